package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/recall/pkg/generation"
	"github.com/paulschiretz/recall/pkg/metafile"
	"github.com/paulschiretz/recall/pkg/planner"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/util"
)

// BackupInfo describes one committed generation.
type BackupInfo struct {
	Name    string
	Path    string
	Current bool
	// Metadata is zero when the metafile could not be read; MetaErr says why.
	Metadata metafile.Content
	MetaErr  error
}

// Time is the run's start time, taken from the metafile when available and
// from the generation name otherwise.
func (b BackupInfo) Time() time.Time {
	if b.MetaErr == nil && !b.Metadata.TimestampUTC.IsZero() {
		return b.Metadata.TimestampUTC
	}
	t, _ := generation.Parse(b.Name)
	return t
}

// ListBackups returns the generations of root, newest first.
func (r *Runner) ListBackups(ctx context.Context, root string) ([]BackupInfo, error) {
	names, err := generation.List(root)
	if err != nil {
		return nil, err
	}
	current, _ := generation.Current(root)

	backups := make([]BackupInfo, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := names[i]
		path := generation.FinalPath(root, name)
		info := BackupInfo{Name: name, Path: path, Current: name == current}
		info.Metadata, info.MetaErr = metafile.Read(path)
		backups = append(backups, info)
	}
	return backups, nil
}

// ExecuteList logs every generation of the project root with its stats.
func (r *Runner) ExecuteList(ctx context.Context, p *planner.ListPlan) error {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := requireDir(p.ProjectRoot); err != nil {
		return err
	}

	backups, err := r.ListBackups(ctx, p.ProjectRoot)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		plog.Info("No backups found", "path", p.ProjectRoot)
		return nil
	}

	plog.Info(fmt.Sprintf("Found %d backup(s)", len(backups)), "path", p.ProjectRoot)
	for _, b := range backups {
		logArgs := []interface{}{"name", b.Name}
		if b.Current {
			logArgs = append(logArgs, "current", true)
		}
		switch {
		case b.MetaErr == nil:
			s := b.Metadata.Stats
			logArgs = append(logArgs,
				"new", s.CopiedNew,
				"modified", s.CopiedModified,
				"linked", s.Linked,
				"failed", s.Failed,
				"copied", util.FormatBytes(s.BytesCopied),
			)
			if b.Metadata.Manifest != "" {
				logArgs = append(logArgs, "manifest", b.Metadata.Manifest)
			}
		case os.IsNotExist(b.MetaErr):
			logArgs = append(logArgs, "meta", "missing")
		default:
			logArgs = append(logArgs, "meta", "unreadable", "error", b.MetaErr)
		}
		plog.Info("Backup found from "+humanize.Time(b.Time()), logArgs...)
	}
	return nil
}
