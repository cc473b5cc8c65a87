// Package hook runs user supplied shell commands before and after a backup.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/paulschiretz/recall/pkg/hints"
	"github.com/paulschiretz/recall/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")

// Stage names the point of the run a hook belongs to.
type Stage string

const (
	PreBackup  Stage = "pre-backup"
	PostBackup Stage = "post-backup"
)

// Plan holds the commands for both stages.
type Plan struct {
	PreBackup  []string
	PostBackup []string
	DryRun     bool
}

// Vars are exported to every hook process as RECALL_* environment variables.
type Vars struct {
	Source      string
	Destination string
	Generation  string
	// Failed is the run's failed task count; only meaningful post-backup.
	Failed int64
	// RunErr is set for post-backup hooks when the backup itself failed.
	RunErr error
}

func (v Vars) environ(stage Stage, dryRun bool) []string {
	env := []string{
		"RECALL_STAGE=" + string(stage),
		"RECALL_SOURCE=" + v.Source,
		"RECALL_DESTINATION=" + v.Destination,
		"RECALL_GENERATION=" + v.Generation,
		"RECALL_DRY_RUN=" + strconv.FormatBool(dryRun),
	}
	if stage == PostBackup {
		status := "success"
		if v.RunErr != nil {
			status = "failure"
		}
		env = append(env, "RECALL_STATUS="+status, "RECALL_FAILED="+strconv.FormatInt(v.Failed, 10))
	}
	return env
}

// Executor runs hook commands through the platform shell.
type Executor struct {
	// commandContext allows mocking os/exec for tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an Executor; pass exec.CommandContext outside tests.
func NewExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Executor {
	return &Executor{commandContext: commandContext}
}

// RunPreBackup runs the pre-backup commands in order and stops at the
// first failure, which aborts the backup.
func (e *Executor) RunPreBackup(ctx context.Context, p *Plan, v Vars) error {
	if len(p.PreBackup) == 0 {
		return ErrNothingToExecute
	}
	plog.Info("Running pre-backup hook commands", "count", len(p.PreBackup))
	for _, command := range p.PreBackup {
		if err := e.run(ctx, PreBackup, command, p.DryRun, v); err != nil {
			return err
		}
	}
	return nil
}

// RunPostBackup runs every post-backup command even if some fail and
// returns the joined failures.
func (e *Executor) RunPostBackup(ctx context.Context, p *Plan, v Vars) error {
	if len(p.PostBackup) == 0 {
		return ErrNothingToExecute
	}
	plog.Info("Running post-backup hook commands", "count", len(p.PostBackup))
	var errs []error
	for _, command := range p.PostBackup {
		if err := e.run(ctx, PostBackup, command, p.DryRun, v); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			plog.Warn("Hook command failed", "command", command, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) run(ctx context.Context, stage Stage, command string, dryRun bool, v Vars) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dryRun {
		plog.Notice("[DRY RUN] Executing command", "stage", stage, "command", command)
		return nil
	}
	plog.Info("Executing command", "stage", stage, "command", command)

	cmd := e.createCommand(ctx, command)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, v.environ(stage, dryRun)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("%s command '%s' failed: %w", stage, command, err)
	}
	return nil
}
