//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// mountParents are the directories removable and network drives are
// usually mounted under. Variable for tests.
var mountParents = []string{"/mnt", "/media", "/run/media", "/Volumes"}

func checkVolumeExists(string) error { return nil }

// validateMountPoint catches backups about to land on the system disk
// because the intended drive is not mounted: a path under one of the
// mount parents that shares the device of "/" is rejected.
func validateMountPoint(path string) error {
	parent := mountParentOf(path)
	if parent == "" || path == parent {
		return nil
	}

	var root, target unix.Stat_t
	if err := unix.Stat("/", &root); err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	if err := unix.Stat(path, &target); err != nil {
		return fmt.Errorf("failed to stat target path: %w", err)
	}
	if target.Dev == root.Dev {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your external drive is mounted", path)
	}
	return nil
}

func mountParentOf(path string) string {
	clean := filepath.Clean(path)
	for _, p := range mountParents {
		if clean == p || strings.HasPrefix(clean, p+string(os.PathSeparator)) {
			return p
		}
	}
	return ""
}
