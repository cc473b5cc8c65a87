//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// checkVolumeExists verifies that the drive or share root of path exists,
// for example "Z:\" for "Z:\backup".
func checkVolumeExists(path string) error {
	vol := filepath.VolumeName(path)
	if vol == "" {
		return nil
	}
	root := vol
	if !strings.HasSuffix(root, `\`) {
		root += `\`
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", root)
	}
	return nil
}

// Drive letters are checked by checkVolumeExists; there is no separate
// ghost directory case on Windows.
func validateMountPoint(string) error { return nil }
