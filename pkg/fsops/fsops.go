// Package fsops isolates the platform-specific filesystem behaviour the
// backup pipeline depends on: permission comparison, symlink creation,
// timestamp propagation and long-path handling.
//
// The decision engine and the executor only ever talk to PlatformFsOps; the
// implementation for the build target is returned by Default.
package fsops

import (
	"os"
	"strings"
	"time"
)

// PlatformFsOps is the capability set that differs between operating systems.
type PlatformFsOps interface {
	// ComparePermissions reports whether src and ref carry the same
	// permission bits. Platforms without POSIX bits always report true.
	ComparePermissions(src, ref os.FileInfo) bool
	// MakeSymlink creates link pointing at target. srcIsDir selects a
	// directory symlink on platforms that distinguish the two kinds.
	MakeSymlink(target, link string, srcIsDir bool) error
	// ToLongPath returns an absolute path that is safe to pass to the OS
	// regardless of its length.
	ToLongPath(p string) string
	// SetTimes copies access and modification times onto path, clearing and
	// restoring a read-only flag when the platform refuses otherwise.
	SetTimes(path string, atime, mtime time.Time) error
	// AccessTime returns the last access time of path, or its modification
	// time when the platform does not expose one.
	AccessTime(path string, info os.FileInfo) time.Time
}

const (
	longPathPrefix = `\\?\`
	uncLongPrefix  = `\\?\UNC\`
)

// StripLongPath undoes ToLongPath for display purposes.
func StripLongPath(p string) string {
	switch {
	case strings.HasPrefix(p, uncLongPrefix):
		return `\\` + p[len(uncLongPrefix):]
	case strings.HasPrefix(p, longPathPrefix):
		return p[len(longPathPrefix):]
	default:
		return p
	}
}

// Default returns the PlatformFsOps implementation for the running OS.
func Default() PlatformFsOps {
	return platformOps{}
}
