// Package engine runs the backup, prune and list commands on top of the leaf
// packages. The Runner owns the order of the steps; every step that touches
// the outside world is an injected worker so tests can replace it.
//
// A backup run is: preflight, project directory, lock, stale partial
// cleanup, previous generation lookup, ignore file, pre-backup hooks,
// partial directory, optional volume snapshot, pipeline with manifest,
// metafile, commit, post-backup hooks and the summary. Only the commit makes
// a generation visible; every failure before it leaves at most a partial
// directory that the next run removes.
package engine

import (
	"context"

	"github.com/spf13/afero"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/hook"
	"github.com/paulschiretz/recall/pkg/pathretention"
	"github.com/paulschiretz/recall/pkg/pathsync"
	"github.com/paulschiretz/recall/pkg/preflight"
	"github.com/paulschiretz/recall/pkg/snapshot"
)

// Validator checks source and destination before anything is written.
type Validator interface {
	Run(p preflight.Plan) error
}

// Syncer builds one generation.
type Syncer interface {
	Sync(ctx context.Context, p pathsync.Plan) (pathsync.Summary, error)
}

// Retainer deletes old generations.
type Retainer interface {
	Prune(ctx context.Context, root string, p pathretention.Plan) (pathretention.Result, error)
}

// HookRunner runs the user's pre and post-backup commands.
type HookRunner interface {
	RunPreBackup(ctx context.Context, p *hook.Plan, v hook.Vars) error
	RunPostBackup(ctx context.Context, p *hook.Plan, v hook.Vars) error
}

// Runner executes plans.
type Runner struct {
	validator Validator
	syncer    Syncer
	retainer  Retainer
	hooks     HookRunner
	snapshots snapshot.Provider

	ops fsops.PlatformFsOps
	fs  afero.Fs
}

// NewRunner creates a Runner fed with its leaf workers. The ignore file is
// read through the OS filesystem.
func NewRunner(validator Validator, syncer Syncer, retainer Retainer, hooks HookRunner, snapshots snapshot.Provider) *Runner {
	return &Runner{
		validator: validator,
		syncer:    syncer,
		retainer:  retainer,
		hooks:     hooks,
		snapshots: snapshots,
		ops:       fsops.Default(),
		fs:        afero.NewOsFs(),
	}
}
