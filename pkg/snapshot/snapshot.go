// Package snapshot acquires a point-in-time, read-only view of the source
// volume so that files held open by other programs can be backed up.
//
// A Handle is a scoped resource: Acquire either returns a live handle or an
// error, never both, and any snapshot created during a failed acquisition
// is released before Acquire returns. Callers defer Release on success.
package snapshot

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned (as a hint) on platforms without shadow copies.
var ErrUnsupported = errors.New("volume snapshots are not supported on this platform")

// Handle is an acquired snapshot.
type Handle interface {
	// Root is the snapshot path that corresponds to the acquired source.
	Root() string
	// Release deletes the snapshot. It is safe to call more than once.
	Release() error
}

// Provider creates snapshots.
type Provider interface {
	Acquire(ctx context.Context, source string) (Handle, error)
}

// CommandContext matches exec.CommandContext and is replaced in tests.
type CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

// NewProvider returns the provider for the running platform.
func NewProvider() Provider {
	return newPlatformProvider(exec.CommandContext)
}

// Remap re-roots the absolute source path under shadowRoot, dropping the
// source's volume name: C:\Users\me with root
// \\?\GLOBALROOT\Device\HarddiskVolumeShadowCopy3 becomes
// \\?\GLOBALROOT\Device\HarddiskVolumeShadowCopy3\Users\me.
func Remap(source, shadowRoot string) string {
	vol := filepath.VolumeName(source)
	rest := strings.TrimLeft(source[len(vol):], `\/`)
	root := strings.TrimRight(shadowRoot, `\/`)
	sep := string(os.PathSeparator)
	if rest == "" {
		return root + sep
	}
	return root + sep + rest
}
