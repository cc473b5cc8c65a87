//go:build windows

package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// SYMBOLIC_LINK_FLAG_ALLOW_UNPRIVILEGED_CREATE, honoured in developer mode.
const symlinkAllowUnprivilegedCreate = 0x2

type platformOps struct{}

// Windows has no POSIX permission bits to compare.
func (platformOps) ComparePermissions(_, _ os.FileInfo) bool {
	return true
}

func (platformOps) MakeSymlink(target, link string, srcIsDir bool) error {
	linkPtr, err := windows.UTF16PtrFromString(link)
	if err != nil {
		return err
	}
	targetPtr, err := windows.UTF16PtrFromString(target)
	if err != nil {
		return err
	}
	flags := uint32(symlinkAllowUnprivilegedCreate)
	if srcIsDir {
		flags |= windows.SYMBOLIC_LINK_FLAG_DIRECTORY
	}
	if err := windows.CreateSymbolicLink(linkPtr, targetPtr, flags); err != nil {
		return &os.LinkError{Op: "symlink", Old: target, New: link, Err: err}
	}
	return nil
}

func (platformOps) ToLongPath(p string) string {
	if strings.HasPrefix(p, longPathPrefix) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = filepath.Clean(p)
	}
	if strings.HasPrefix(abs, `\\`) {
		return uncLongPrefix + abs[2:]
	}
	return longPathPrefix + abs
}

func (platformOps) SetTimes(path string, atime, mtime time.Time) error {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(pathPtr)
	if err != nil {
		return fmt.Errorf("could not read attributes of %s: %w", path, err)
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY != 0 {
		if err := windows.SetFileAttributes(pathPtr, attrs&^windows.FILE_ATTRIBUTE_READONLY); err != nil {
			return fmt.Errorf("could not clear read-only attribute on %s: %w", path, err)
		}
		defer windows.SetFileAttributes(pathPtr, attrs)
	}
	if err := os.Chtimes(path, atime, mtime); err != nil {
		return fmt.Errorf("could not set times on %s: %w", path, err)
	}
	return nil
}

func (platformOps) AccessTime(_ string, info os.FileInfo) time.Time {
	if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, data.LastAccessTime.Nanoseconds())
	}
	return info.ModTime()
}
