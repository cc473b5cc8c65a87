// Package preflight validates source and destination before a backup
// touches anything. Apart from the write test, the checks only read.
package preflight

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/recall/pkg/util"
)

// Plan selects what Run checks.
type Plan struct {
	Source      string
	Destination string
	DryRun      bool
}

// Validator runs the preflight checks for the engine.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Run delegates to the package level Run.
func (v *Validator) Run(p Plan) error {
	return Run(p)
}

// Run performs every check in order and returns the first failure.
// The write test is skipped in dry-run mode.
func Run(p Plan) error {
	if err := CheckSourceAccessible(p.Source); err != nil {
		return err
	}
	if err := CheckNotNested(p.Source, p.Destination); err != nil {
		return err
	}
	if err := CheckTargetAccessible(p.Destination); err != nil {
		return err
	}
	if p.DryRun {
		return nil
	}
	return CheckTargetWritable(p.Destination)
}

// CheckSourceAccessible validates that the source exists, is a directory
// and can be listed.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("source directory %s is not readable: %w", srcPath, err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("source directory %s is not readable: %w", srcPath, err)
	}
	return nil
}

// CheckNotNested rejects a destination equal to or inside the source,
// which would make every run back up the previous generations.
func CheckNotNested(srcPath, destPath string) error {
	src, err := filepath.Abs(srcPath)
	if err != nil {
		return fmt.Errorf("invalid source path %s: %w", srcPath, err)
	}
	dst, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("invalid destination path %s: %w", destPath, err)
	}
	if util.IsHostCaseInsensitiveFS() {
		src, dst = strings.ToLower(src), strings.ToLower(dst)
	}
	rel, err := filepath.Rel(src, dst)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("destination %s is inside the source %s", destPath, srcPath)
	}
	return nil
}

// CheckTargetAccessible gives friendlier errors than a failing MkdirAll:
//  1. the volume of the target must exist (Windows drives and shares);
//  2. an existing target must be a directory;
//  3. for a missing target, the deepest existing ancestor must be
//     accessible;
//  4. the target (or that ancestor) must not be a "ghost" directory on the
//     system disk where an external drive was expected (Unix).
func CheckTargetAccessible(targetPath string) error {
	if err := checkVolumeExists(targetPath); err != nil {
		return err
	}

	info, err := os.Stat(targetPath)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("target path exists but is not a directory: %s", targetPath)
		}
		return validateMountPoint(targetPath)
	case !os.IsNotExist(err):
		return fmt.Errorf("cannot access target path: %w", err)
	}

	ancestor, err := deepestExistingAncestor(targetPath)
	if err != nil {
		return err
	}
	return validateMountPoint(ancestor)
}

func deepestExistingAncestor(path string) (string, error) {
	current := path
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return current, nil
		}
		info, err := os.Stat(parent)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("ancestor %s of target path is not a directory", parent)
			}
			if _, err := os.ReadDir(parent); err != nil {
				return "", fmt.Errorf("cannot access ancestor directory %s: %w", parent, err)
			}
			return parent, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("cannot access ancestor directory %s: %w", parent, err)
		}
		current = parent
	}
}

// CheckTargetWritable creates the target if needed and proves it is
// writable with a throwaway file.
func CheckTargetWritable(targetPath string) error {
	if err := os.MkdirAll(targetPath, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", targetPath, err)
	}
	f, err := os.CreateTemp(targetPath, ".recall-writetest-*.tmp")
	if err != nil {
		return fmt.Errorf("target directory %s is not writable: %w", targetPath, err)
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return nil
}
