package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/paulschiretz/recall/pkg/buildinfo"
	"github.com/paulschiretz/recall/pkg/config"
	"github.com/paulschiretz/recall/pkg/engine"
	"github.com/paulschiretz/recall/pkg/flagparse"
	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/hook"
	"github.com/paulschiretz/recall/pkg/pathretention"
	"github.com/paulschiretz/recall/pkg/pathsync"
	"github.com/paulschiretz/recall/pkg/planner"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/preflight"
	"github.com/paulschiretz/recall/pkg/snapshot"
)

// RunBackup handles the logic for the main backup execution.
func RunBackup(ctx context.Context, flagMap map[string]any) error {
	baseConfig := config.NewDefault()

	// A profile supplies the defaults; positionals and flags still win.
	if name, ok := flagMap["profile"].(string); ok && name != "" {
		store, storePath, err := loadProfileStore(flagMap)
		if err != nil {
			return err
		}
		p, err := store.Get(name)
		if err != nil {
			return fmt.Errorf("failed to load profile from %s: %w", storePath, err)
		}
		baseConfig = config.ApplyProfile(baseConfig, p)
	}

	// Merge the flag values over the base config to get the final run config.
	runConfig := config.MergeConfigWithFlags(flagparse.Backup, baseConfig, flagMap)
	if runConfig.Source == "" || runConfig.Destination == "" {
		return errors.New("a backup needs SOURCE and DESTINATION arguments or a -profile")
	}

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	// Log the Summary
	runConfig.LogSummary()

	// Create the runner and feed it with our leaf workers
	runner := newRunner()

	// Get the Plan
	backupPlan, err := planner.GenerateBackupPlan(runConfig)
	if err != nil {
		return err
	}

	// Execute the plan
	startTime := time.Now()
	err = runner.ExecuteBackup(ctx, backupPlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}

func newRunner() *engine.Runner {
	return engine.NewRunner(
		preflight.NewValidator(),
		pathsync.NewPathSyncer(),
		pathretention.New(fsops.Default()),
		hook.NewExecutor(exec.CommandContext),
		snapshot.NewProvider(),
	)
}
