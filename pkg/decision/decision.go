// Package decision classifies a source entry against its counterpart in the
// previous generation.
//
// The classifier is conservative: it only answers Link when a cheap signal
// (size, permissions, modification time) or an explicit content hash proves
// the two entries equivalent. Every unreadable input resolves towards
// copying.
package decision

import (
	"io/fs"
	"os"
	"time"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/hasher"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/task"
)

// MtimeTolerance is the window within which two modification times are
// considered equal. Many filesystems truncate sub-second precision.
const MtimeTolerance = 1000 * time.Millisecond

// HashFunc digests the file at path.
type HashFunc func(path string) (uint64, error)

// Classifier turns (source entry, reference path) into an Action.
type Classifier struct {
	Ops          fsops.PlatformFsOps
	CheckContent bool
	Hash         HashFunc
}

// New returns a Classifier hashing with xxHash.
func New(ops fsops.PlatformFsOps, checkContent bool) *Classifier {
	return &Classifier{
		Ops:          ops,
		CheckContent: checkContent,
		Hash:         hasher.HashFile,
	}
}

// Classify decides what to do with the entry at srcPath. srcInfo is the
// entry's Lstat result and may be nil, in which case it is read here.
// refPath is the same relative path inside the previous generation, or
// empty on the first backup. The first matching rule wins.
func (c *Classifier) Classify(srcInfo fs.FileInfo, srcPath, refPath string) task.Action {
	if refPath == "" || !exists(refPath) {
		return classifyWithoutRef(srcInfo, srcPath)
	}

	if srcInfo == nil {
		info, err := os.Lstat(srcPath)
		if err != nil {
			return task.SkipAction()
		}
		srcInfo = info
	}

	if srcInfo.IsDir() {
		return task.CreateDirAction()
	}

	if srcInfo.Mode()&fs.ModeSymlink != 0 {
		return classifySymlink(srcPath, refPath)
	}

	refInfo, err := os.Stat(refPath)
	if err != nil {
		return task.CopyNewAction()
	}

	if srcInfo.Size() != refInfo.Size() {
		return task.CopyModifiedAction()
	}

	if !c.Ops.ComparePermissions(srcInfo, refInfo) {
		return task.CopyModifiedAction()
	}

	if mtimeMatch(srcInfo.ModTime(), refInfo.ModTime()) && !c.CheckContent {
		return task.LinkAction(refPath)
	}

	if c.CheckContent {
		if c.sameContent(srcPath, refPath) {
			return task.LinkAction(refPath)
		}
		return task.CopyModifiedAction()
	}

	return task.CopyModifiedAction()
}

func classifyWithoutRef(srcInfo fs.FileInfo, srcPath string) task.Action {
	if srcInfo == nil {
		info, err := os.Lstat(srcPath)
		if err != nil {
			return task.CopyNewAction()
		}
		srcInfo = info
	}
	switch {
	case srcInfo.IsDir():
		return task.CreateDirAction()
	case srcInfo.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(srcPath)
		if err != nil {
			return task.SkipAction()
		}
		return task.SymlinkAction(target)
	default:
		return task.CopyNewAction()
	}
}

func classifySymlink(srcPath, refPath string) task.Action {
	target, err := os.Readlink(srcPath)
	if err != nil {
		return task.SkipAction()
	}
	if refInfo, err := os.Lstat(refPath); err == nil && refInfo.Mode()&fs.ModeSymlink != 0 {
		if refTarget, err := os.Readlink(refPath); err == nil && refTarget == target {
			return task.LinkAction(refPath)
		}
	}
	return task.SymlinkAction(target)
}

func (c *Classifier) sameContent(srcPath, refPath string) bool {
	hash := c.Hash
	if hash == nil {
		hash = hasher.HashFile
	}
	srcSum, err := hash(srcPath)
	if err != nil {
		plog.Debug("hash failed, copying", "path", srcPath, "error", err)
		return false
	}
	refSum, err := hash(refPath)
	if err != nil {
		plog.Debug("hash failed, copying", "path", refPath, "error", err)
		return false
	}
	return srcSum == refSum
}

func mtimeMatch(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff < MtimeTolerance
}

// exists follows symlinks, so a dangling reference counts as absent.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
