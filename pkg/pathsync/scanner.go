package pathsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/task"
	"github.com/paulschiretz/recall/pkg/util"
)

// QueueCapacity bounds the number of classified entries waiting for a
// worker. A full queue blocks the walk until the executor catches up.
const QueueCapacity = 1000

// errScanStopped aborts the walk when the consumer or the context is gone.
var errScanStopped = errors.New("scan stopped")

// Classifier decides the action for one source entry.
type Classifier interface {
	Classify(info fs.FileInfo, srcPath, refPath string) task.Action
}

// Scanner is the single producer of the pipeline.
type Scanner struct {
	layout     task.Layout
	exclusions *ExclusionSet
	classifier Classifier
}

// NewScanner creates a scanner over layout.SourceRoot.
func NewScanner(layout task.Layout, exclusions *ExclusionSet, classifier Classifier) *Scanner {
	return &Scanner{layout: layout, exclusions: exclusions, classifier: classifier}
}

// Run walks the source tree depth-first without following symlinks,
// classifies every entry that survives the exclusion set and sends it to
// out. Excluded directories are pruned. Run always closes out.
//
// When ctx is cancelled or done is closed the walk stops early and Run
// returns nil: the consumer leaving is a shutdown signal, not a fault.
// Unreadable entries are logged and skipped. Only an unreadable source root
// is returned as an error.
func (s *Scanner) Run(ctx context.Context, out chan<- task.Item, done <-chan struct{}) error {
	defer close(out)

	root := s.layout.SourceRoot
	err := filepath.WalkDir(root, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if absPath == root {
				return fmt.Errorf("cannot read source root %s: %w", fsops.StripLongPath(root), err)
			}
			plog.Warn("SKIP", "reason", "error walking entry", "path", fsops.StripLongPath(absPath), "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if absPath == root {
			return nil
		}

		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			plog.Warn("SKIP", "reason", "cannot relativize path", "path", fsops.StripLongPath(absPath), "error", err)
			return nil
		}
		relKey := util.NormalizePath(rel)

		if s.exclusions.Matches(relKey) {
			plog.Notice("EXCL", "path", relKey)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			plog.Warn("SKIP", "reason", "cannot read metadata", "path", fsops.StripLongPath(absPath), "error", err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		t := s.layout.New(relKey)
		item := task.Item{Task: t, Action: s.classifier.Classify(info, t.SrcPath, t.RefPath)}

		select {
		case <-ctx.Done():
			return errScanStopped
		case <-done:
			return errScanStopped
		case out <- item:
			return nil
		}
	})
	if errors.Is(err, errScanStopped) {
		return nil
	}
	return err
}
