package pathsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/pool"
	"github.com/paulschiretz/recall/pkg/sharded"
	"github.com/paulschiretz/recall/pkg/task"
	"github.com/paulschiretz/recall/pkg/util"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrInvalidWorkers is returned when the pool would have no workers.
var ErrInvalidWorkers = errors.New("worker count must be at least 1")

// ErrNotRegular is recorded for pipes, sockets and devices in the source.
// Their content is not backed up.
var ErrNotRegular = errors.New("not a regular file")

const copyBufferSize = 256 * 1024

// Outcome is the result of executing one task.
type Outcome struct {
	Task   task.Task
	Action task.Action
	Bytes  int64
	Err    error
}

// Recorder receives every outcome. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(Outcome)
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Workers int
	DryRun  bool
	Ops     fsops.PlatformFsOps
	// BandwidthLimit caps copy throughput in bytes per second; 0 is unlimited.
	BandwidthLimit int64
	Recorder       Recorder
	Stats          *Stats
}

// Executor is the consumer pool. It performs the filesystem mutation for
// each classified entry.
type Executor struct {
	numWorkers int
	dryRun     bool
	ops        fsops.PlatformFsOps
	limiter    *rate.Limiter
	recorder   Recorder
	stats      *Stats
	bufferPool *pool.FixedBufferPool

	// createdDirs remembers directories known to exist so that sibling
	// files do not all stat their parent. dirGroup collapses concurrent
	// creation of the same directory into one MkdirAll.
	createdDirs *sharded.Set
	dirGroup    singleflight.Group

	failures *sharded.Map[error]

	done     chan struct{}
	stopOnce sync.Once
}

// NewExecutor validates opts and builds an idle pool.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, opts.Workers)
	}
	if opts.Ops == nil {
		opts.Ops = fsops.Default()
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	return &Executor{
		numWorkers:  opts.Workers,
		dryRun:      opts.DryRun,
		ops:         opts.Ops,
		limiter:     NewBandwidthLimiter(opts.BandwidthLimit),
		recorder:    opts.Recorder,
		stats:       opts.Stats,
		bufferPool:  pool.NewFixedBuffer(copyBufferSize),
		createdDirs: sharded.NewSet(0),
		failures:    sharded.NewMap[error](0),
		done:        make(chan struct{}),
	}, nil
}

// Done is closed once the executor stops consuming.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// Stop signals the producer that nobody is consuming any more.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

// Run drains in with the worker pool until it is closed, then returns the
// final counters. ctx only bounds bandwidth-limiter waits; in-flight file
// operations are never interrupted.
func (e *Executor) Run(ctx context.Context, in <-chan task.Item) Summary {
	var wg sync.WaitGroup
	for range e.numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range in {
				e.process(ctx, item)
			}
		}()
	}
	wg.Wait()
	e.Stop()

	if n := e.failures.Count(); n > 0 {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%d non-fatal errors occurred during backup:\n", n))
		for _, rel := range e.failures.SortedKeys() {
			err, _ := e.failures.Load(rel)
			sb.WriteString(fmt.Sprintf("  - path: %s, error: %v\n", rel, err))
		}
		plog.Warn(sb.String())
	}
	return e.stats.Snapshot()
}

func (e *Executor) process(ctx context.Context, item task.Item) {
	bytes, err := e.apply(ctx, item)
	e.stats.Record(item.Action.Kind, bytes, err)
	if err != nil {
		plog.Warn("FAILED", "action", item.Action.Kind, "path", item.Task.RelPath, "error", err)
		e.failures.Store(item.Task.RelPath, err)
	}
	if e.recorder != nil {
		e.recorder.Record(Outcome{Task: item.Task, Action: item.Action, Bytes: bytes, Err: err})
	}
}

func (e *Executor) apply(ctx context.Context, item task.Item) (int64, error) {
	t, a := item.Task, item.Action
	switch a.Kind {
	case task.CopyNew, task.CopyModified:
		if e.dryRun {
			plog.Notice("[DRY RUN] COPY", "path", t.RelPath, "reason", a.Kind)
			return 0, nil
		}
		if err := e.ensureDir(filepath.Dir(t.DestPath)); err != nil {
			return 0, err
		}
		n, err := e.copyFile(ctx, t.SrcPath, t.DestPath)
		if err != nil {
			return n, err
		}
		plog.Notice("COPY", "path", t.RelPath, "reason", a.Kind, "bytes", n)
		return n, nil

	case task.Link:
		if e.dryRun {
			plog.Notice("[DRY RUN] LINK", "path", t.RelPath)
			return 0, nil
		}
		if err := e.ensureDir(filepath.Dir(t.DestPath)); err != nil {
			return 0, err
		}
		if err := os.Link(a.Ref, t.DestPath); err != nil {
			return 0, fmt.Errorf("failed to hardlink %s: %w", t.RelPath, err)
		}
		plog.Notice("LINK", "path", t.RelPath)
		return 0, nil

	case task.MakeSymlink:
		if e.dryRun {
			plog.Notice("[DRY RUN] SYMLINK", "path", t.RelPath, "target", a.Target)
			return 0, nil
		}
		if err := e.ensureDir(filepath.Dir(t.DestPath)); err != nil {
			return 0, err
		}
		srcIsDir := false
		if info, err := os.Stat(t.SrcPath); err == nil {
			srcIsDir = info.IsDir()
		}
		if err := e.ops.MakeSymlink(a.Target, t.DestPath, srcIsDir); err != nil {
			return 0, fmt.Errorf("failed to create symlink %s: %w", t.RelPath, err)
		}
		plog.Notice("SYMLINK", "path", t.RelPath, "target", a.Target)
		return 0, nil

	case task.CreateDir:
		if e.dryRun {
			plog.Notice("[DRY RUN] DIR", "path", t.RelPath)
			return 0, nil
		}
		if err := e.createDir(t); err != nil {
			return 0, err
		}
		plog.Notice("DIR", "path", t.RelPath)
		return 0, nil

	case task.Skip:
		plog.Notice("SKIP", "path", t.RelPath)
		return 0, nil
	}
	return 0, fmt.Errorf("unknown action %d for %s", a.Kind, t.RelPath)
}

// ensureDir creates dir (and its parents) at most once per run. Concurrent
// callers for the same directory share a single MkdirAll.
func (e *Executor) ensureDir(dir string) error {
	if e.createdDirs.Has(dir) {
		return nil
	}
	_, err, _ := e.dirGroup.Do(dir, func() (any, error) {
		if e.createdDirs.Has(dir) {
			return nil, nil
		}
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", fsops.StripLongPath(dir), err)
		}
		e.createdDirs.Store(dir)
		return nil, nil
	})
	return err
}

// createDir creates the destination directory and carries over the source
// permission bits. The owner always keeps write and traverse rights.
func (e *Executor) createDir(t task.Task) error {
	if err := e.ensureDir(t.DestPath); err != nil {
		return err
	}
	info, err := os.Stat(t.SrcPath)
	if err != nil {
		return nil
	}
	perm := util.WithUserExecutePermission(util.WithUserWritePermission(info.Mode().Perm()))
	if err := os.Chmod(t.DestPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", fsops.StripLongPath(t.DestPath), err)
	}
	return nil
}

// copyFile copies src into a temporary file next to dest and renames it
// into place, so a crashed copy never leaves a truncated file under the
// final name. Permission bits are copied exactly because the next run
// compares them against the source.
func (e *Executor) copyFile(ctx context.Context, src, dest string) (n int64, err error) {
	srcName, destName := fsops.StripLongPath(src), fsops.StripLongPath(dest)

	// Opening a pipe blocks until a writer shows up, so the type is checked
	// before the open.
	pre, err := os.Lstat(src)
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file %s: %w", srcName, err)
	}
	if !pre.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s (%s)", ErrNotRegular, srcName, pre.Mode().Type())
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", srcName, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file %s: %w", srcName, err)
	}
	if !info.Mode().IsRegular() || !os.SameFile(pre, info) {
		return 0, fmt.Errorf("%w: %s changed while opening", ErrNotRegular, src)
	}

	out, err := os.CreateTemp(filepath.Dir(dest), ".recall-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file for %s: %w", destName, err)
	}
	tmpPath := out.Name()
	defer func() {
		if tmpPath != "" {
			out.Close()
			os.Remove(tmpPath)
		}
	}()

	var w io.Writer = out
	if e.limiter != nil {
		w = &rateLimitedWriter{ctx: ctx, w: out, limiter: e.limiter}
	}

	bufPtr := e.bufferPool.Get()
	defer e.bufferPool.Put(bufPtr)

	n, err = io.CopyBuffer(w, in, *bufPtr)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", srcName, err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return n, fmt.Errorf("failed to set permissions on %s: %w", fsops.StripLongPath(tmpPath), err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close %s: %w", fsops.StripLongPath(tmpPath), err)
	}
	if err := e.ops.SetTimes(tmpPath, e.ops.AccessTime(src, info), info.ModTime()); err != nil {
		return n, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return n, fmt.Errorf("failed to move %s into place: %w", destName, err)
	}
	tmpPath = ""
	return n, nil
}
