//go:build windows

package pathretention

import (
	"fmt"
	"io/fs"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// fileBasicInfo mirrors FILE_BASIC_INFO. Zero times are left unchanged by
// SetFileInformationByHandle.
type fileBasicInfo struct {
	CreationTime   int64
	LastAccessTime int64
	LastWriteTime  int64
	ChangeTime     int64
	FileAttributes uint32
	_              uint32
}

// unlinkProtected removes a read-only file. The read-only attribute belongs
// to the inode, which other generations may share through hardlinks, so it
// is cleared through an open handle, the link is removed and the attribute
// is restored through the same handle before it is closed.
func unlinkProtected(path string, info fs.FileInfo) error {
	if info.Mode().Perm()&0200 != 0 {
		return nil
	}
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	h, err := windows.CreateFile(pathPtr,
		windows.FILE_READ_ATTRIBUTES|windows.FILE_WRITE_ATTRIBUTES,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_OPEN_REPARSE_POINT, 0)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", path, err)
	}
	defer windows.CloseHandle(h)

	var fi windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &fi); err != nil {
		return fmt.Errorf("could not read attributes of %s: %w", path, err)
	}
	if fi.FileAttributes&windows.FILE_ATTRIBUTE_READONLY == 0 {
		return nil
	}

	if err := setAttributes(h, fi.FileAttributes&^windows.FILE_ATTRIBUTE_READONLY); err != nil {
		return fmt.Errorf("could not clear read-only attribute on %s: %w", path, err)
	}
	removeErr := os.Remove(path)
	if fi.NumberOfLinks > 1 {
		if err := setAttributes(h, fi.FileAttributes); err != nil {
			return fmt.Errorf("could not restore attributes of %s: %w", path, err)
		}
	}
	return removeErr
}

func setAttributes(h windows.Handle, attrs uint32) error {
	if attrs == 0 {
		attrs = windows.FILE_ATTRIBUTE_NORMAL
	}
	bi := fileBasicInfo{FileAttributes: attrs}
	return windows.SetFileInformationByHandle(h, windows.FileBasicInfo, (*byte)(unsafe.Pointer(&bi)), uint32(unsafe.Sizeof(bi)))
}
