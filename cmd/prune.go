package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/paulschiretz/recall/pkg/buildinfo"
	"github.com/paulschiretz/recall/pkg/config"
	"github.com/paulschiretz/recall/pkg/flagparse"
	"github.com/paulschiretz/recall/pkg/planner"
	"github.com/paulschiretz/recall/pkg/plog"
)

// RunPrune handles the logic for the prune command.
func RunPrune(ctx context.Context, flagMap map[string]any) error {
	if dst, ok := flagMap["destination"].(string); !ok || dst == "" {
		return errors.New("prune needs the DESTINATION argument")
	}

	// Merge the flag values over the defaults.
	runConfig := config.MergeConfigWithFlags(flagparse.Prune, config.NewDefault(), flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(false); err != nil {
		return err
	}

	// Set the global log level.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	prunePlan, err := planner.GeneratePrunePlan(runConfig)
	if err != nil {
		return err
	}

	startTime := time.Now()
	err = newRunner().ExecutePrune(ctx, prunePlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" prune finished successfully.", "duration", duration)
	return nil
}
