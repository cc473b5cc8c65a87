package cmd_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulschiretz/recall/cmd"
	"github.com/paulschiretz/recall/pkg/generation"
	"github.com/paulschiretz/recall/pkg/metafile"
	"github.com/paulschiretz/recall/pkg/pathsync"
	"github.com/paulschiretz/recall/pkg/plog"
)

// makeGeneration creates a committed generation directory with a metafile.
func makeGeneration(t *testing.T, root string, at time.Time, stats pathsync.Summary) string {
	t.Helper()
	name := generation.Name(at)
	path := generation.FinalPath(root, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
	if err := metafile.Write(path, metafile.New("/src", "", at, stats)); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestRunList_Order(t *testing.T) {
	root := t.TempDir()
	oldest := makeGeneration(t, root, time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local), pathsync.Summary{CopiedNew: 3})
	middle := makeGeneration(t, root, time.Date(2023, 2, 1, 0, 0, 0, 0, time.Local), pathsync.Summary{Linked: 3})
	newest := makeGeneration(t, root, time.Date(2023, 3, 1, 0, 0, 0, 0, time.Local), pathsync.Summary{CopiedModified: 1})

	// Capture logs
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	defer plog.SetOutput(os.Stderr)

	if err := cmd.RunList(context.Background(), map[string]any{"destination": root}); err != nil {
		t.Fatalf("RunList failed: %v", err)
	}

	output := logBuf.String()
	if !strings.Contains(output, "Found 3 backup(s)") {
		t.Errorf("expected backup count in output, got:\n%s", output)
	}

	// Newest first.
	lastIndex := -1
	for _, name := range []string{newest, middle, oldest} {
		idx := strings.Index(output, name)
		if idx == -1 {
			t.Errorf("Expected generation %s not found in output", name)
			continue
		}
		if idx < lastIndex {
			t.Errorf("Generation %s appeared out of order (index %d < %d)", name, idx, lastIndex)
		}
		lastIndex = idx
	}
}

func TestRunList_Empty(t *testing.T) {
	root := t.TempDir()

	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	defer plog.SetOutput(os.Stderr)

	if err := cmd.RunList(context.Background(), map[string]any{"destination": root}); err != nil {
		t.Fatalf("RunList failed: %v", err)
	}
	if !strings.Contains(logBuf.String(), "No backups found") {
		t.Errorf("expected 'No backups found', got:\n%s", logBuf.String())
	}
}

func TestRunList_Errors(t *testing.T) {
	t.Run("Missing Destination", func(t *testing.T) {
		if err := cmd.RunList(context.Background(), map[string]any{}); err == nil {
			t.Error("expected an error without DESTINATION")
		}
	})

	t.Run("Destination Does Not Exist", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope")
		if err := cmd.RunList(context.Background(), map[string]any{"destination": missing}); err == nil {
			t.Error("expected an error for a missing project directory")
		}
	})
}
