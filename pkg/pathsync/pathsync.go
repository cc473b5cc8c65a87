// Package pathsync builds one backup generation.
//
// # Architecture
//
// A single Scanner goroutine walks the source tree, asks the Classifier for
// an Action per entry and sends (Task, Action) items into a bounded channel
// of QueueCapacity. The Executor drains that channel with a fixed pool of
// workers; each worker handles one item completely before taking the next.
//
// The channel is the only coordination point. The scanner closes it when
// the walk ends; the executor's Done channel tells the scanner to stop when
// nobody is consuming. Parent directories are created on demand by every
// task, so workers need no ordering among themselves.
//
// Per-entry scan errors and per-task execution errors are logged and counted
// but never abort the run. Only an invalid worker count or an unreadable
// source root is fatal.
package pathsync

import (
	"context"
	"time"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/task"
	"golang.org/x/sync/errgroup"
)

// Plan describes one pipeline pass.
type Plan struct {
	Layout     task.Layout
	Exclusions []string
	Classifier Classifier

	Workers        int
	DryRun         bool
	Ops            fsops.PlatformFsOps
	BandwidthLimit int64
	Recorder       Recorder

	ProgressInterval time.Duration
}

// PathSyncer is the engine facing entry point of the package.
type PathSyncer struct{}

// NewPathSyncer creates a PathSyncer.
func NewPathSyncer() *PathSyncer {
	return &PathSyncer{}
}

// Sync runs one pipeline pass. See Run.
func (s *PathSyncer) Sync(ctx context.Context, p Plan) (Summary, error) {
	return Run(ctx, p)
}

// Run executes the scanner and the executor and returns once both have
// finished. The returned Summary is valid even when an error is returned.
func Run(ctx context.Context, p Plan) (Summary, error) {
	ops := p.Ops
	if ops == nil {
		ops = fsops.Default()
	}
	layout := p.Layout.Canonical(ops.ToLongPath)

	stats := NewStats()
	exec, err := NewExecutor(ExecutorOptions{
		Workers:        p.Workers,
		DryRun:         p.DryRun,
		Ops:            ops,
		BandwidthLimit: p.BandwidthLimit,
		Recorder:       p.Recorder,
		Stats:          stats,
	})
	if err != nil {
		return Summary{}, err
	}

	scanner := NewScanner(layout, CompileExclusions(p.Exclusions), p.Classifier)
	items := make(chan task.Item, QueueCapacity)

	stats.StartProgress("Progress", p.ProgressInterval)
	defer stats.StopProgress()

	var g errgroup.Group
	g.Go(func() error {
		return scanner.Run(ctx, items, exec.Done())
	})
	summary := exec.Run(ctx, items)

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}
