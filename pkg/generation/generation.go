// Package generation names, lists and commits backup generations inside a
// project root:
//
//	<root>/2006-01-02_15-04-05/          committed generation
//	<root>/2006-01-02_15-04-05.partial/  in-progress generation
//	<root>/current -> 2006-01-02_15-04-05
//
// Names are fixed-width and zero padded, so lexical order is chronological.
// The current link is a convenience pointer; List is the source of truth.
package generation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/util"
)

const (
	// Layout is the time format of a generation name.
	Layout = "2006-01-02_15-04-05"
	// PartialSuffix marks a generation that has not been committed.
	PartialSuffix = ".partial"
	// CurrentLink names the symlink pointing at the newest generation.
	CurrentLink = "current"
)

// ErrCollision is returned by Commit when the final name is already taken.
var ErrCollision = errors.New("generation already exists")

// Name returns the generation name for t in local time.
func Name(t time.Time) string {
	return t.Format(Layout)
}

// Parse returns the timestamp encoded in name. Only names that round-trip
// exactly through Layout are accepted.
func Parse(name string) (time.Time, bool) {
	t, err := time.ParseInLocation(Layout, name, time.Local)
	if err != nil || t.Format(Layout) != name {
		return time.Time{}, false
	}
	return t, true
}

// IsValid reports whether name is a committed generation name.
func IsValid(name string) bool {
	_, ok := Parse(name)
	return ok
}

// PartialPath returns the in-progress directory for name.
func PartialPath(root, name string) string {
	return filepath.Join(root, name+PartialSuffix)
}

// FinalPath returns the committed directory for name.
func FinalPath(root, name string) string {
	return filepath.Join(root, name)
}

// List returns the committed generation names under root, oldest first.
// A missing root yields an empty list.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root %s: %w", root, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || !IsValid(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the newest committed generation, if any.
func Latest(root string) (string, bool, error) {
	names, err := List(root)
	if err != nil || len(names) == 0 {
		return "", false, err
	}
	return names[len(names)-1], true, nil
}

// CreatePartial creates the in-progress directory for name.
func CreatePartial(root, name string) (string, error) {
	p := PartialPath(root, name)
	if err := os.MkdirAll(p, util.UserWritableDirPerms); err != nil {
		return "", fmt.Errorf("failed to create partial generation %s: %w", p, err)
	}
	return p, nil
}

// AbandonPartial removes an uncommitted generation after a fatal error.
func AbandonPartial(root, name string) error {
	p := PartialPath(root, name)
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("failed to remove partial generation %s: %w", p, err)
	}
	return nil
}

// CleanupStalePartials removes partial generations left behind by runs that
// crashed. It returns the names it removed.
func CleanupStalePartials(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root %s: %w", root, err)
	}
	var removed []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), PartialSuffix)
		if !ok || !e.IsDir() || !IsValid(name) {
			continue
		}
		plog.Warn("Removing stale partial generation", "name", e.Name())
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove stale partial %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// Commit promotes the partial generation to its final name and repoints the
// current link. The rename is the visibility boundary. Each step must finish
// before the next begins; a crash after the rename leaves a valid
// generation that List still finds.
func Commit(root, name string, ops fsops.PlatformFsOps) error {
	final := FinalPath(root, name)
	if _, err := os.Lstat(final); err == nil {
		return fmt.Errorf("%w: %s", ErrCollision, final)
	}
	if err := os.Rename(PartialPath(root, name), final); err != nil {
		return fmt.Errorf("failed to commit generation %s: %w", name, err)
	}
	return UpdateCurrent(root, name, ops)
}

// UpdateCurrent points the current link at name. An existing link is
// removed first; its absence is not an error.
func UpdateCurrent(root, name string, ops fsops.PlatformFsOps) error {
	link := filepath.Join(root, CurrentLink)
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to remove old %s link: %w", CurrentLink, err)
		}
	}
	if err := ops.MakeSymlink(name, link, true); err != nil {
		return fmt.Errorf("failed to point %s at %s: %w", CurrentLink, name, err)
	}
	return nil
}

// Current returns the generation name the current link points at.
func Current(root string) (string, bool) {
	target, err := os.Readlink(filepath.Join(root, CurrentLink))
	if err != nil {
		return "", false
	}
	return filepath.Base(target), true
}
