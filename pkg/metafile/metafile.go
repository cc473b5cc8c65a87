package metafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/paulschiretz/recall/pkg/buildinfo"
	"github.com/paulschiretz/recall/pkg/pathsync"
	"github.com/paulschiretz/recall/pkg/util"
)

// MetaFileName is the name of the generation metadata file.
const MetaFileName = ".recall.meta.json"

// Content is what a generation records about the run that produced it.
type Content struct {
	Version      string           `json:"version"`
	UUID         string           `json:"uuid"`
	TimestampUTC time.Time        `json:"timestampUTC"`
	Source       string           `json:"source"`
	Previous     string           `json:"previous,omitempty"`
	CheckContent bool             `json:"checkContent,omitempty"`
	Manifest     string           `json:"manifest,omitempty"`
	Stats        pathsync.Summary `json:"stats"`
}

// New fills in version, a fresh UUID and the timestamp for a finished run.
// previous is the name of the reference generation, empty on a first backup.
func New(source, previous string, startedAt time.Time, stats pathsync.Summary) *Content {
	return &Content{
		Version:      buildinfo.Version,
		UUID:         uuid.NewString(),
		TimestampUTC: startedAt.UTC(),
		Source:       source,
		Previous:     previous,
		Stats:        stats,
	}
}

// Write creates the metafile in dirPath.
func Write(dirPath string, content *Content) error {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	jsonData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal meta data: %w", err)
	}
	// Group-writable: the metafile is part of the backup data, unlike the lock.
	if err := os.WriteFile(metaFilePath, jsonData, util.UserGroupWritableFilePerms); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}
	return nil
}

// Read parses the metafile in dirPath. A missing file is returned unwrapped
// so callers can test it with os.IsNotExist.
func Read(dirPath string) (Content, error) {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	metaFile, err := os.Open(metaFilePath)
	if err != nil {
		return Content{}, err
	}
	defer metaFile.Close()

	var content Content
	if err := json.NewDecoder(metaFile).Decode(&content); err != nil {
		return Content{}, fmt.Errorf("could not parse metafile %s: %w. It may be corrupt", metaFilePath, err)
	}
	return content, nil
}
