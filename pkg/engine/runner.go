package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/recall/pkg/decision"
	"github.com/paulschiretz/recall/pkg/generation"
	"github.com/paulschiretz/recall/pkg/hints"
	"github.com/paulschiretz/recall/pkg/hook"
	"github.com/paulschiretz/recall/pkg/ignorefile"
	"github.com/paulschiretz/recall/pkg/lockfile"
	"github.com/paulschiretz/recall/pkg/manifest"
	"github.com/paulschiretz/recall/pkg/metafile"
	"github.com/paulschiretz/recall/pkg/pathsync"
	"github.com/paulschiretz/recall/pkg/planner"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/task"
	"github.com/paulschiretz/recall/pkg/util"
)

// systemExclusions are the files a run writes into every generation root.
// Source entries with these names at the source root are never backed up.
var systemExclusions = []string{
	"/" + metafile.MetaFileName,
	"/" + manifest.BaseName + "*",
}

// ExecuteBackup creates one new generation under p.ProjectRoot. Per-file
// failures are counted in the summary and do not fail the run.
func (r *Runner) ExecuteBackup(ctx context.Context, p *planner.BackupPlan) (err error) {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// save the execution timestamp
	startedAt := time.Now()

	// Run Preflight Validation
	if err := r.validator.Run(*p.Preflight); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	root := p.ProjectRoot
	if err := r.prepareProjectRoot(root, p.DryRun); err != nil {
		return err
	}

	// Acquire Lock on the project root.
	if !p.DryRun {
		releaseLock, err := r.acquireTargetLock(ctx, root)
		if err != nil {
			return err // A real error occurred during lock acquisition.
		}
		if releaseLock == nil {
			return nil // Lock was already held, exit gracefully.
		}
		defer releaseLock()

		if _, err := generation.CleanupStalePartials(root); err != nil {
			return err
		}
	}

	previous, hasPrevious, err := generation.Latest(root)
	if err != nil {
		return err
	}
	refRoot := ""
	if hasPrevious {
		refRoot = generation.FinalPath(root, previous)
		plog.Info("Found previous backup", "generation", previous)
	} else {
		plog.Info("Performing initial full backup")
	}

	exclusions := p.Sync.Exclusions
	patterns, err := ignorefile.LoadOrCreate(r.fs, p.Source, p.DryRun)
	if err != nil {
		plog.Warn("Could not load ignore file, using configured exclusions only", "error", err)
	} else {
		exclusions = util.MergeAndDeduplicate(exclusions, patterns)
	}
	exclusions = util.MergeAndDeduplicate(exclusions, systemExclusions)

	name := generation.Name(startedAt)
	final := generation.FinalPath(root, name)
	if _, err := os.Lstat(final); err == nil {
		return fmt.Errorf("%w: %s", generation.ErrCollision, final)
	}

	vars := hook.Vars{Source: p.Source, Destination: root, Generation: name}

	// --- Pre-Backup Hooks ---
	if err := r.hooks.RunPreBackup(ctx, p.Hooks, vars); err != nil && !errors.Is(err, hook.ErrNothingToExecute) {
		// All pre-backup hook errors are fatal.
		errMsg := "pre-backup hook failed"
		if errors.Is(err, context.Canceled) {
			errMsg = "pre-backup hook canceled"
		}
		return fmt.Errorf("%s: %w", errMsg, err)
	}

	// --- Post-Backup Hooks (deferred) ---
	// These run at the end of the function, even if the backup fails.
	var summary pathsync.Summary
	defer func() {
		vars.Failed = summary.Failed
		vars.RunErr = err
		if herr := r.hooks.RunPostBackup(ctx, p.Hooks, vars); herr != nil && !errors.Is(herr, hook.ErrNothingToExecute) {
			if errors.Is(herr, context.Canceled) {
				plog.Info("post-backup hooks skipped due to cancellation.")
			} else {
				plog.Warn("post-backup hook failed", "error", herr)
			}
		}
	}()

	partial := generation.PartialPath(root, name)
	if !p.DryRun {
		if partial, err = generation.CreatePartial(root, name); err != nil {
			return err
		}
		defer func() {
			if err == nil {
				return
			}
			if aerr := generation.AbandonPartial(root, name); aerr != nil {
				plog.Warn("Could not remove partial generation", "error", aerr)
			}
		}()
	}

	scanRoot, release, err := r.acquireSnapshot(ctx, p)
	if err != nil {
		return err
	}
	defer release()

	plog.Info("Starting backup", "source", p.Source, "scan_root", scanRoot, "generation", name)

	var mw *manifest.Writer
	syncPlan := *p.Sync
	syncPlan.Layout = task.Layout{SourceRoot: scanRoot, DestRoot: partial, RefRoot: refRoot}
	syncPlan.Exclusions = exclusions
	syncPlan.Classifier = decision.New(r.ops, p.CheckContent)
	syncPlan.Ops = r.ops
	if !p.DryRun && p.Manifest != manifest.None {
		if mw, err = manifest.Create(partial, p.Manifest); err != nil {
			return err
		}
		syncPlan.Recorder = mw
	}

	summary, err = r.syncer.Sync(ctx, syncPlan)
	manifestName := r.closeManifest(mw)
	if err != nil {
		return fmt.Errorf("error during sync: %w", err)
	}

	if p.DryRun {
		plog.Notice("[DRY RUN] Would rename .partial", "from", partial, "to", final)
		plog.Notice("[DRY RUN] Would update 'current'", "target", name)
	} else {
		meta := metafile.New(p.Source, previous, startedAt, summary)
		meta.CheckContent = p.CheckContent
		meta.Manifest = manifestName
		if err = metafile.Write(partial, meta); err != nil {
			return err
		}
		if err = generation.Commit(root, name, r.ops); err != nil {
			return err
		}
	}

	summary.LogSummary("Backup summary", time.Since(startedAt))
	plog.Info("Backup completed", "generation", name)
	return nil
}

// ExecutePrune deletes all but the newest generations of one project root.
func (r *Runner) ExecutePrune(ctx context.Context, p *planner.PrunePlan) error {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	root := p.ProjectRoot
	if err := requireDir(root); err != nil {
		return err
	}

	if !p.DryRun {
		releaseLock, err := r.acquireTargetLock(ctx, root)
		if err != nil {
			return err
		}
		if releaseLock == nil {
			return nil
		}
		defer releaseLock()
	}

	plog.Info("Starting prune", "target", root, "keep", p.Retention.Keep)
	res, err := r.retainer.Prune(ctx, root, *p.Retention)
	if err != nil {
		return fmt.Errorf("fatal error during prune: %w", err)
	}
	if res.Failed > 0 {
		plog.Warn("Some backups could not be deleted", "failed", res.Failed)
	}
	plog.Info("Prune completed")
	return nil
}

// prepareProjectRoot creates the per-source directory under the destination.
func (r *Runner) prepareProjectRoot(root string, dryRun bool) error {
	if _, err := os.Stat(root); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot access project directory %s: %w", root, err)
	}
	if dryRun {
		plog.Notice("[DRY RUN] Would create project directory", "path", root)
		return nil
	}
	plog.Info("Creating project directory", "path", root)
	if err := os.MkdirAll(root, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create project directory %s: %w", root, err)
	}
	return nil
}

// acquireSnapshot returns the directory to scan and a release function that
// is always safe to call. An unsupported platform is not an error.
func (r *Runner) acquireSnapshot(ctx context.Context, p *planner.BackupPlan) (string, func(), error) {
	noop := func() {}
	if !p.Snapshot {
		return p.Source, noop, nil
	}
	if p.DryRun {
		plog.Notice("[DRY RUN] Would create volume snapshot", "source", p.Source)
		return p.Source, noop, nil
	}

	h, err := r.snapshots.Acquire(ctx, p.Source)
	if err != nil {
		if hints.IsHint(err) {
			plog.Warn("Volume snapshot not available, backing up the live filesystem", "reason", err)
			return p.Source, noop, nil
		}
		return "", noop, fmt.Errorf("failed to create volume snapshot: %w", err)
	}
	plog.Info("Backing up from volume snapshot", "path", h.Root())
	return h.Root(), func() {
		if err := h.Release(); err != nil {
			plog.Warn("Failed to release volume snapshot", "error", err)
		}
	}, nil
}

// closeManifest finishes the manifest and returns its file name, or "" if
// there is none. A broken manifest is removed and does not fail the run.
func (r *Runner) closeManifest(mw *manifest.Writer) string {
	if mw == nil {
		return ""
	}
	if err := mw.Close(); err != nil {
		plog.Warn("Manifest could not be written, removing it", "path", mw.Path(), "error", err)
		os.Remove(mw.Path())
		return ""
	}
	plog.Debug("Manifest written", "path", mw.Path(), "entries", mw.Count())
	return filepath.Base(mw.Path())
}

// acquireTargetLock acquires the lock file in the project root.
// It returns a release function that must be called to unlock the directory.
func (r *Runner) acquireTargetLock(ctx context.Context, root string) (func(), error) {
	plog.Debug("Attempting to acquire lock", "path", root)
	lock, err := lockfile.Acquire(ctx, root)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Operation is already running for this target, skipping run.", "details", lockErr.Error())
			return nil, nil // Return nil error to indicate a graceful exit.
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired successfully.")

	return lock.Release, nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup directory '%s' does not exist", path)
		}
		return fmt.Errorf("cannot access backup directory '%s': %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup path '%s' is not a directory", path)
	}
	return nil
}
