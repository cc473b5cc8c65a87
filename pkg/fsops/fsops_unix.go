//go:build !windows

package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/recall/pkg/util"
	"golang.org/x/sys/unix"
)

type platformOps struct{}

func (platformOps) ComparePermissions(src, ref os.FileInfo) bool {
	return src.Mode().Perm() == ref.Mode().Perm()
}

func (platformOps) MakeSymlink(target, link string, _ bool) error {
	return os.Symlink(target, link)
}

func (platformOps) ToLongPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

func (platformOps) SetTimes(path string, atime, mtime time.Time) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	perm := info.Mode().Perm()
	if perm&util.PermUserWrite == 0 {
		if err := os.Chmod(path, util.WithUserWritePermission(perm)); err != nil {
			return fmt.Errorf("could not clear read-only mode on %s: %w", path, err)
		}
		defer os.Chmod(path, perm)
	}

	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNano(path, ts); err != nil {
		return fmt.Errorf("could not set times on %s: %w", path, err)
	}
	return nil
}

func (platformOps) AccessTime(path string, info os.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return info.ModTime()
	}
	sec, nsec := st.Atim.Unix()
	return time.Unix(sec, nsec)
}
