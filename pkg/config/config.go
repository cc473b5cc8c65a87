package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/recall/pkg/flagparse"
	"github.com/paulschiretz/recall/pkg/manifest"
	"github.com/paulschiretz/recall/pkg/pathretention"
	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/profile"
	"github.com/paulschiretz/recall/pkg/util"
)

// DefaultWorkers is the executor pool size when nothing else is configured.
const DefaultWorkers = 4

// Config holds the settings of one run. It is assembled from the defaults,
// an optional profile and the flags the user set, in that order.
type Config struct {
	Source       string
	Destination  string
	Profile      string
	CheckContent bool
	DryRun       bool
	Exclude      []string
	Workers      int
	Snapshot     bool
	LogLevel     string

	ProgressInterval time.Duration
	BandwidthLimit   string
	Manifest         string

	PreBackupHooks  []string
	PostBackupHooks []string

	// ConfigPath overrides the profile store location.
	ConfigPath string

	// Keep is the number of generations prune retains.
	Keep int
}

// NewDefault returns the configuration used when neither a profile nor a
// flag says otherwise.
func NewDefault() Config {
	return Config{
		Workers:  DefaultWorkers,
		LogLevel: "info",
		Manifest: manifest.Zstd.String(),
		Keep:     pathretention.DefaultKeep,
		Exclude:  []string{},
	}
}

// ApplyProfile overlays a saved profile on base. Zero profile values leave
// the base untouched.
func ApplyProfile(base Config, p profile.Profile) Config {
	merged := base
	if p.Source != "" {
		merged.Source = p.Source
	}
	if p.Destination != "" {
		merged.Destination = p.Destination
	}
	if p.CheckContent {
		merged.CheckContent = true
	}
	if p.Workers > 0 {
		merged.Workers = p.Workers
	}
	merged.Exclude = util.MergeAndDeduplicate(base.Exclude, p.Exclude)
	if len(p.PreBackupHooks) > 0 {
		merged.PreBackupHooks = p.PreBackupHooks
	}
	if len(p.PostBackupHooks) > 0 {
		merged.PostBackupHooks = p.PostBackupHooks
	}
	return merged
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line plus the positionals.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "destination":
			merged.Destination = value.(string)
		case "profile":
			merged.Profile = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "dry-run":
			merged.DryRun = value.(bool)
		case "check-content":
			merged.CheckContent = value.(bool)
		case "workers":
			merged.Workers = value.(int)
		case "snapshot":
			merged.Snapshot = value.(bool)
		case "progress":
			merged.ProgressInterval = value.(time.Duration)
		case "bwlimit":
			merged.BandwidthLimit = value.(string)
		case "manifest":
			merged.Manifest = value.(string)
		case "config":
			merged.ConfigPath = value.(string)
		case "keep":
			if command == flagparse.Prune {
				merged.Keep = value.(int)
			}
		case "exclude":
			// Flag patterns add to the profile's list instead of replacing it.
			merged.Exclude = util.MergeAndDeduplicate(merged.Exclude, value.([]string))
		case "pre-backup-hooks":
			merged.PreBackupHooks = value.([]string)
		case "post-backup-hooks":
			merged.PostBackupHooks = value.([]string)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}

// Validate checks the configuration for logical errors and normalizes its
// paths to absolute form. checkSource is false for commands that only need
// the destination.
func (c *Config) Validate(checkSource bool) error {
	if checkSource && c.Source == "" {
		return errors.New("source path cannot be empty")
	}
	if c.Destination == "" {
		return errors.New("destination path cannot be empty")
	}

	var err error
	if c.Source != "" {
		c.Source, err = util.ExpandedAbsPath(c.Source)
		if err != nil {
			return fmt.Errorf("could not expand source path: %w", err)
		}
	}
	c.Destination, err = util.ExpandedAbsPath(c.Destination)
	if err != nil {
		return fmt.Errorf("could not expand destination path: %w", err)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Keep < 1 {
		return fmt.Errorf("keep must be at least 1, got %d", c.Keep)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative: %s", c.ProgressInterval)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "notice", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be 'debug', 'notice', 'info', 'warn' or 'error'", c.LogLevel)
	}
	if err := validateGlobPatterns("exclude", c.Exclude); err != nil {
		return err
	}
	if _, err := c.ManifestFormat(); err != nil {
		return err
	}
	if _, err := c.BandwidthBytesPerSec(); err != nil {
		return err
	}
	return nil
}

// ManifestFormat parses the configured manifest format.
func (c *Config) ManifestFormat() (manifest.Format, error) {
	return manifest.ParseFormat(c.Manifest)
}

// BandwidthBytesPerSec parses BandwidthLimit. An empty limit means unlimited
// and yields 0.
func (c *Config) BandwidthBytesPerSec() (int64, error) {
	return ParseBandwidth(c.BandwidthLimit)
}

// ParseBandwidth parses a human readable byte rate such as "10MB", "512KiB"
// or "1048576". The empty string and "0" mean unlimited.
func ParseBandwidth(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth limit %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("bandwidth limit %q is too large", s)
	}
	return int64(n), nil
}

// ProjectName derives the per-source directory name under the destination.
// Drive roots become "X_Drive" and the POSIX root becomes "Root_Backup".
func ProjectName(absSource string) string {
	clean := filepath.Clean(absSource)
	if vol := filepath.VolumeName(clean); vol != "" && len(vol) == 2 && vol[1] == ':' {
		rest := strings.Trim(clean[len(vol):], `\/`)
		if rest == "" {
			return strings.ToUpper(vol[:1]) + "_Drive"
		}
	}
	base := filepath.Base(clean)
	if base == "" || base == "." || base == string(filepath.Separator) || base == "/" {
		return "Root_Backup"
	}
	return base
}

// LogSummary prints the effective configuration.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"log_level", c.LogLevel,
		"source", c.Source,
		"destination", c.Destination,
		"dry_run", c.DryRun,
		"check_content", c.CheckContent,
		"workers", c.Workers,
		"manifest", c.Manifest,
	}
	if c.Profile != "" {
		logArgs = append(logArgs, "profile", c.Profile)
	}
	if c.Snapshot {
		logArgs = append(logArgs, "snapshot", true)
	}
	if c.BandwidthLimit != "" {
		logArgs = append(logArgs, "bwlimit", c.BandwidthLimit+"/s")
	}
	if c.ProgressInterval > 0 {
		logArgs = append(logArgs, "progress", c.ProgressInterval.String())
	}
	if len(c.Exclude) > 0 {
		logArgs = append(logArgs, "exclude", strings.Join(c.Exclude, ", "))
	}
	if len(c.PreBackupHooks) > 0 {
		logArgs = append(logArgs, "pre_backup_hooks", strings.Join(c.PreBackupHooks, "; "))
	}
	if len(c.PostBackupHooks) > 0 {
		logArgs = append(logArgs, "post_backup_hooks", strings.Join(c.PostBackupHooks, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// validateGlobPatterns checks if a list of strings are valid glob patterns.
func validateGlobPatterns(fieldName string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid glob pattern for %s: %q - %w", fieldName, pattern, err)
		}
	}
	return nil
}
