//go:build !windows

package pathretention

import "io/fs"

// unlinkProtected does nothing: unlinking only needs write access to the
// parent directory, which relaxForRemoval grants.
func unlinkProtected(string, fs.FileInfo) error {
	return nil
}
