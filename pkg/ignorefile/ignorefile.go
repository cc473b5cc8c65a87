// Package ignorefile reads the per-source exclusion file. When the file is
// missing it is created with defaults for the host platform.
package ignorefile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/util"
	"github.com/spf13/afero"
)

// FileName is looked up in the source root.
const FileName = ".recallignore"

const header = "# Recall Ignore File\n# Add patterns to exclude from backup (Glob style)\n\n"

const commonSection = "# --- Common ---\n.git\n.svn\n.DS_Store\nThumbs.db\n\n"

// DefaultContent is written when the source has no ignore file yet.
func DefaultContent() string {
	return header + commonSection + platformSection
}

// LoadOrCreate returns the patterns of sourceRoot's ignore file. A missing
// file is created with DefaultContent unless dryRun is set; in dry-run the
// default patterns are returned without touching the source.
func LoadOrCreate(fs afero.Fs, sourceRoot string, dryRun bool) ([]string, error) {
	p := filepath.Join(sourceRoot, FileName)
	data, err := afero.ReadFile(fs, p)
	if err == nil {
		return Parse(data), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("could not read ignore file %s: %w", p, err)
	}

	content := []byte(DefaultContent())
	if dryRun {
		plog.Info("[DRY RUN] Would create default ignore file", "path", p)
		return Parse(content), nil
	}
	if err := afero.WriteFile(fs, p, content, util.UserWritableFilePerms); err != nil {
		return nil, fmt.Errorf("could not create default ignore file %s: %w", p, err)
	}
	plog.Info("Created default ignore file", "path", p)
	return Parse(content), nil
}

// Parse returns the trimmed, deduplicated patterns of an ignore file. Blank
// lines and lines starting with # are skipped.
func Parse(data []byte) []string {
	var patterns []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return util.MergeAndDeduplicate(patterns)
}
