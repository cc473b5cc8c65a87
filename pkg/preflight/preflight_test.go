package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckTargetAccessible(t *testing.T) {
	t.Run("Happy Path - Target Exists", func(t *testing.T) {
		if err := CheckTargetAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Happy Path - Target Does Not Exist, Ancestor Exists", func(t *testing.T) {
		targetDir := filepath.Join(t.TempDir(), "a", "b", "new_dir")
		if err := CheckTargetAccessible(targetDir); err != nil {
			t.Errorf("expected no error when an ancestor exists, but got: %v", err)
		}
	})

	t.Run("Error - Target Is a File", func(t *testing.T) {
		targetFile := filepath.Join(t.TempDir(), "target.txt")
		if err := os.WriteFile(targetFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckTargetAccessible(targetFile)
		if err == nil || !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected 'not a directory' error, got: %v", err)
		}
	})

	t.Run("Error - Ancestor Is a File", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckTargetAccessible(filepath.Join(file, "child", "target"))
		if err == nil || !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected 'not a directory' error, got: %v", err)
		}
	})
}

func TestCheckSourceAccessible(t *testing.T) {
	t.Run("Happy Path - Source is a directory", func(t *testing.T) {
		if err := CheckSourceAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Error - Source does not exist", func(t *testing.T) {
		err := CheckSourceAccessible(filepath.Join(t.TempDir(), "nonexistent"))
		if err == nil || !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("expected 'does not exist' error, got: %v", err)
		}
	})

	t.Run("Error - Source is a file", func(t *testing.T) {
		srcFile := filepath.Join(t.TempDir(), "source.txt")
		if err := os.WriteFile(srcFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckSourceAccessible(srcFile)
		if err == nil || !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected 'not a directory' error, got: %v", err)
		}
	})
}

func TestCheckNotNested(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")

	testCases := []struct {
		name    string
		dest    string
		wantErr bool
	}{
		{"Sibling", filepath.Join(base, "backups"), false},
		{"Sibling With Common Prefix", filepath.Join(base, "src-backups"), false},
		{"Parent", base, false},
		{"Same Directory", src, true},
		{"Child", filepath.Join(src, "backups"), true},
		{"Deep Child", filepath.Join(src, "a", "b"), true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckNotNested(src, tc.dest)
			if tc.wantErr && err == nil {
				t.Error("expected nesting error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestCheckTargetWritable(t *testing.T) {
	target := filepath.Join(t.TempDir(), "new", "target")
	if err := CheckTargetWritable(target); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		t.Fatalf("target was not created: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected write test file to be removed, found %d entries", len(entries))
	}
}

func TestRun(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	if err := os.Mkdir(src, 0755); err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	t.Run("Valid", func(t *testing.T) {
		dest := filepath.Join(base, "dest")
		if err := Run(Plan{Source: src, Destination: dest}); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if _, err := os.Stat(dest); err != nil {
			t.Errorf("expected destination to be created: %v", err)
		}
	})

	t.Run("Dry Run Does Not Create Destination", func(t *testing.T) {
		dest := filepath.Join(base, "dry")
		if err := Run(Plan{Source: src, Destination: dest, DryRun: true}); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if _, err := os.Stat(dest); !os.IsNotExist(err) {
			t.Errorf("expected destination not to exist in dry run, got: %v", err)
		}
	})

	t.Run("Nested Destination", func(t *testing.T) {
		if err := Run(Plan{Source: src, Destination: filepath.Join(src, "bk")}); err == nil {
			t.Error("expected error for destination inside source")
		}
	})
}
