package cmd

import (
	"context"
	"errors"

	"github.com/paulschiretz/recall/pkg/config"
	"github.com/paulschiretz/recall/pkg/flagparse"
	"github.com/paulschiretz/recall/pkg/planner"
	"github.com/paulschiretz/recall/pkg/plog"
)

// RunList handles the logic for the list command.
func RunList(ctx context.Context, flagMap map[string]any) error {
	if dst, ok := flagMap["destination"].(string); !ok || dst == "" {
		return errors.New("list needs the DESTINATION argument")
	}

	runConfig := config.MergeConfigWithFlags(flagparse.List, config.NewDefault(), flagMap)
	if err := runConfig.Validate(false); err != nil {
		return err
	}

	// Set the global log level.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	listPlan, err := planner.GenerateListPlan(runConfig)
	if err != nil {
		return err
	}
	return newRunner().ExecuteList(ctx, listPlan)
}
