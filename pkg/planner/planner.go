// Package planner turns a validated config.Config into the plans the engine
// executes. Plans carry resolved values only: parsed formats, byte rates and
// absolute paths.
package planner

import (
	"path/filepath"

	"github.com/paulschiretz/recall/pkg/config"
	"github.com/paulschiretz/recall/pkg/hook"
	"github.com/paulschiretz/recall/pkg/manifest"
	"github.com/paulschiretz/recall/pkg/pathretention"
	"github.com/paulschiretz/recall/pkg/pathsync"
	"github.com/paulschiretz/recall/pkg/preflight"
)

type BackupPlan struct {
	DryRun bool

	// Source is the absolute source directory.
	Source string
	// ProjectRoot is <destination>/<project name>; generations live in it.
	ProjectRoot string

	CheckContent bool
	Snapshot     bool
	Manifest     manifest.Format

	Preflight *preflight.Plan
	// Sync is a template: Layout, Classifier, Ops and Recorder are filled
	// in by the engine once the previous generation is known.
	Sync  *pathsync.Plan
	Hooks *hook.Plan
}

type PrunePlan struct {
	DryRun bool

	ProjectRoot string
	Retention   *pathretention.Plan
}

type ListPlan struct {
	ProjectRoot string
}

func GenerateBackupPlan(cfg config.Config) (*BackupPlan, error) {
	dryRun := cfg.DryRun

	format, err := cfg.ManifestFormat()
	if err != nil {
		return nil, err
	}
	bwlimit, err := cfg.BandwidthBytesPerSec()
	if err != nil {
		return nil, err
	}

	return &BackupPlan{
		DryRun: dryRun,

		Source:      cfg.Source,
		ProjectRoot: filepath.Join(cfg.Destination, config.ProjectName(cfg.Source)),

		CheckContent: cfg.CheckContent,
		Snapshot:     cfg.Snapshot,
		Manifest:     format,

		Preflight: &preflight.Plan{
			Source:      cfg.Source,
			Destination: cfg.Destination,
			DryRun:      dryRun,
		},
		Sync: &pathsync.Plan{
			Exclusions:       cfg.Exclude,
			Workers:          cfg.Workers,
			BandwidthLimit:   bwlimit,
			ProgressInterval: cfg.ProgressInterval,
			DryRun:           dryRun,
		},
		Hooks: &hook.Plan{
			PreBackup:  cfg.PreBackupHooks,
			PostBackup: cfg.PostBackupHooks,
			DryRun:     dryRun,
		},
	}, nil
}

// GeneratePrunePlan treats the destination as the project root itself.
func GeneratePrunePlan(cfg config.Config) (*PrunePlan, error) {
	dryRun := cfg.DryRun

	return &PrunePlan{
		DryRun:      dryRun,
		ProjectRoot: cfg.Destination,
		Retention: &pathretention.Plan{
			Keep:    cfg.Keep,
			Workers: cfg.Workers,
			DryRun:  dryRun,
		},
	}, nil
}

func GenerateListPlan(cfg config.Config) (*ListPlan, error) {
	return &ListPlan{ProjectRoot: cfg.Destination}, nil
}
