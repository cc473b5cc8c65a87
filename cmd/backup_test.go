package cmd_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/recall/cmd"
	"github.com/paulschiretz/recall/pkg/generation"
	"github.com/paulschiretz/recall/pkg/metafile"
)

func writeSourceFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRunBackup_EndToEnd(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Documents")
	dst := t.TempDir()
	writeSourceFile(t, src, "a.txt", "alpha")
	writeSourceFile(t, src, filepath.Join("sub", "b.txt"), "beta")
	writeSourceFile(t, src, "skip.tmp", "ignored")

	flags := map[string]any{
		"source":      src,
		"destination": dst,
		"exclude":     []string{"*.tmp"},
		"manifest":    "gzip",
	}
	if err := cmd.RunBackup(context.Background(), flags); err != nil {
		t.Fatalf("RunBackup failed: %v", err)
	}

	root := filepath.Join(dst, "Documents")
	names, err := generation.List(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 {
		t.Fatalf("expected one generation, got %v", names)
	}
	gen := generation.FinalPath(root, names[0])

	data, err := os.ReadFile(filepath.Join(gen, "sub", "b.txt"))
	if err != nil {
		t.Fatalf("expected sub/b.txt in the backup: %v", err)
	}
	if string(data) != "beta" {
		t.Errorf("unexpected content %q", data)
	}
	if _, err := os.Lstat(filepath.Join(gen, "skip.tmp")); !os.IsNotExist(err) {
		t.Errorf("expected skip.tmp to be excluded, got err=%v", err)
	}

	meta, err := metafile.Read(gen)
	if err != nil {
		t.Fatalf("expected a metafile: %v", err)
	}
	if meta.Stats.CopiedNew == 0 {
		t.Errorf("expected new files in stats, got %+v", meta.Stats)
	}
	if meta.Manifest == "" {
		t.Error("expected the manifest to be recorded in the metafile")
	}

	if current, ok := generation.Current(root); !ok || current != names[0] {
		t.Errorf("expected current to point at %s, got %q", names[0], current)
	}
}

func TestRunBackup_DryRun(t *testing.T) {
	src := filepath.Join(t.TempDir(), "Photos")
	dst := t.TempDir()
	writeSourceFile(t, src, "a.jpg", "pixels")

	flags := map[string]any{"source": src, "destination": dst, "dry-run": true}
	if err := cmd.RunBackup(context.Background(), flags); err != nil {
		t.Fatalf("RunBackup failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "Photos")); !os.IsNotExist(err) {
		t.Errorf("expected no project directory after a dry run, got err=%v", err)
	}
}

func TestRunBackup_Errors(t *testing.T) {
	t.Run("Missing Arguments", func(t *testing.T) {
		err := cmd.RunBackup(context.Background(), map[string]any{})
		if err == nil {
			t.Fatal("expected an error without SOURCE and DESTINATION")
		}
	})

	t.Run("Missing Source Directory", func(t *testing.T) {
		flags := map[string]any{
			"source":      filepath.Join(t.TempDir(), "missing"),
			"destination": t.TempDir(),
		}
		if err := cmd.RunBackup(context.Background(), flags); err == nil {
			t.Fatal("expected an error for a missing source")
		}
	})

	t.Run("Unknown Profile", func(t *testing.T) {
		flags := map[string]any{
			"profile": "nope",
			"config":  filepath.Join(t.TempDir(), "config.toml"),
		}
		if err := cmd.RunBackup(context.Background(), flags); err == nil {
			t.Fatal("expected an error for an unknown profile")
		}
	})

	t.Run("Invalid Workers", func(t *testing.T) {
		flags := map[string]any{
			"source":      t.TempDir(),
			"destination": t.TempDir(),
			"workers":     0,
		}
		if err := cmd.RunBackup(context.Background(), flags); err == nil {
			t.Fatal("expected an error for workers=0")
		}
	})
}
