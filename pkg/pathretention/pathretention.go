// Package pathretention deletes old generations of a project root, keeping
// the newest Keep of them.
//
// Generations are ranked by name, which is the same as by creation time.
// Partial generations and the current link are never candidates. Deletions
// run on a small worker pool; a failed deletion is logged and counted and
// does not stop the others.
package pathretention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/generation"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/util"
)

// DefaultKeep is the number of generations kept when none is configured.
const DefaultKeep = 5

// ErrInvalidKeep is returned for a Keep below one.
var ErrInvalidKeep = errors.New("keep must be at least 1")

// Plan configures one prune.
type Plan struct {
	Keep    int
	DryRun  bool
	Workers int
}

// Result counts what a prune found and did. In dry-run mode Deleted counts
// the generations that would have been deleted.
type Result struct {
	Found   int `json:"found"`
	Kept    int `json:"kept"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Pruner applies a Plan to a project root.
type Pruner struct {
	ops fsops.PlatformFsOps
}

// New returns a Pruner that uses ops to repoint the current link.
func New(ops fsops.PlatformFsOps) *Pruner {
	return &Pruner{ops: ops}
}

// Prune deletes every generation in root except the Keep newest.
func (p *Pruner) Prune(ctx context.Context, root string, plan Plan) (Result, error) {
	if plan.Keep < 1 {
		return Result{}, fmt.Errorf("%w, got %d", ErrInvalidKeep, plan.Keep)
	}
	workers := plan.Workers
	if workers < 1 {
		workers = 1
	}

	names, err := generation.List(root)
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: len(names)}

	if len(names) <= plan.Keep {
		res.Kept = len(names)
		plog.Info(fmt.Sprintf("Found %d backup(s), keeping %d. Nothing to prune.", len(names), plan.Keep))
		return res, nil
	}

	toDelete := names[:len(names)-plan.Keep]
	kept := names[len(names)-plan.Keep:]
	res.Kept = len(kept)
	plog.Info(fmt.Sprintf("Found %d backup(s). Will delete %d oldest backup(s), keeping %d newest.",
		len(names), len(toDelete), len(kept)))

	deleted, failed := p.deleteAll(ctx, root, toDelete, workers, plan.DryRun)
	res.Deleted = len(deleted)
	res.Failed = failed

	if err := p.repointCurrent(root, deleted, kept[len(kept)-1], plan.DryRun); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if !plan.DryRun {
		plog.Info(fmt.Sprintf("Pruned %d old backup(s).", res.Deleted), "failed", res.Failed)
	}
	return res, nil
}

// deleteAll feeds the doomed generations, oldest first, to the workers and
// returns the names that are gone (or would be, in dry-run mode).
func (p *Pruner) deleteAll(ctx context.Context, root string, names []string, workers int, dryRun bool) (map[string]bool, int) {
	jobs := make(chan string)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		deleted = make(map[string]bool, len(names))
		failed  atomic.Int64
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				if dryRun {
					plog.Notice("[DRY RUN] DELETE", "generation", name)
				} else {
					plog.Notice("DELETE", "generation", name)
					if err := removeGeneration(generation.FinalPath(root, name)); err != nil {
						failed.Add(1)
						plog.Warn("Failed to delete backup", "generation", name, "error", err)
						continue
					}
				}
				mu.Lock()
				deleted[name] = true
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, name := range names {
			select {
			case <-ctx.Done():
				plog.Debug("Cancellation received, stopping prune job feeding")
				return
			case jobs <- name:
			}
		}
	}()

	wg.Wait()
	return deleted, int(failed.Load())
}

// repointCurrent moves the current link to newest if it pointed at a
// generation that was deleted.
func (p *Pruner) repointCurrent(root string, deleted map[string]bool, newest string, dryRun bool) error {
	target, ok := generation.Current(root)
	if !ok || !deleted[target] {
		return nil
	}
	if dryRun {
		plog.Notice("[DRY RUN] Would update 'current'", "from", target, "to", newest)
		return nil
	}
	plog.Info("Repointing 'current' at newest remaining backup", "from", target, "to", newest)
	return generation.UpdateCurrent(root, newest, p.ops)
}

// removeGeneration removes a generation tree. Read-only directories refuse
// the removal of their entries, so a failed attempt grants the owner write
// access to every directory and tries once more. File modes are left alone:
// files are hardlinks whose inode is shared with the generations that are
// kept. Read-only files that the platform refuses to unlink are handed to
// unlinkProtected.
func removeGeneration(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	relaxForRemoval(path)
	return os.RemoveAll(path)
}

// relaxForRemoval makes every directory below path writable and unlinks the
// files the platform protects.
func relaxForRemoval(path string) {
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if d.IsDir() {
			perm := util.WithUserExecutePermission(util.WithUserWritePermission(info.Mode().Perm()))
			_ = os.Chmod(p, perm)
			return nil
		}
		if err := unlinkProtected(p, info); err != nil {
			plog.Debug("Could not unlink protected file", "path", p, "error", err)
		}
		return nil
	})
}
