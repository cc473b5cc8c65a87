package pathretention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/paulschiretz/recall/pkg/fsops"
	"github.com/paulschiretz/recall/pkg/generation"
)

// createTestGenerations creates n committed generations one hour apart and
// returns their names oldest first.
func createTestGenerations(t *testing.T, root string, n int) []string {
	t.Helper()
	start := time.Date(2024, 1, 15, 8, 0, 0, 0, time.Local)
	names := make([]string, n)
	for i := range n {
		names[i] = generation.Name(start.Add(time.Duration(i) * time.Hour))
		dir := generation.FinalPath(root, names[i])
		if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
			t.Fatalf("failed to create generation: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "sub", "file.txt"), []byte("data"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
	return names
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func TestPruneKeepsNewest(t *testing.T) {
	root := t.TempDir()
	names := createTestGenerations(t, root, 7)
	// Non-generation entries must never be touched.
	if err := os.Mkdir(filepath.Join(root, names[0]+generation.PartialSuffix), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "notes"), 0755); err != nil {
		t.Fatal(err)
	}

	res, err := New(fsops.Default()).Prune(context.Background(), root, Plan{Keep: 3, Workers: 2})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	want := Result{Found: 7, Kept: 3, Deleted: 4}
	if res != want {
		t.Errorf("expected result %+v, got %+v", want, res)
	}
	for i, name := range names {
		gone := !exists(generation.FinalPath(root, name))
		if i < 4 && !gone {
			t.Errorf("expected %s to be deleted", name)
		}
		if i >= 4 && gone {
			t.Errorf("expected %s to be kept", name)
		}
	}
	if !exists(filepath.Join(root, names[0]+generation.PartialSuffix)) || !exists(filepath.Join(root, "notes")) {
		t.Error("prune removed an entry that is not a committed generation")
	}
}

func TestPruneNothingToDo(t *testing.T) {
	root := t.TempDir()
	createTestGenerations(t, root, 3)

	res, err := New(fsops.Default()).Prune(context.Background(), root, Plan{Keep: 5})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if res.Found != 3 || res.Kept != 3 || res.Deleted != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestPruneMissingRoot(t *testing.T) {
	res, err := New(fsops.Default()).Prune(context.Background(), filepath.Join(t.TempDir(), "none"), Plan{Keep: 1})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if res != (Result{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestPruneDryRun(t *testing.T) {
	root := t.TempDir()
	names := createTestGenerations(t, root, 4)

	res, err := New(fsops.Default()).Prune(context.Background(), root, Plan{Keep: 1, DryRun: true})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if res.Deleted != 3 {
		t.Errorf("expected 3 would-be deletions, got %d", res.Deleted)
	}
	for _, name := range names {
		if !exists(generation.FinalPath(root, name)) {
			t.Errorf("dry run deleted %s", name)
		}
	}
}

func TestPruneInvalidKeep(t *testing.T) {
	_, err := New(fsops.Default()).Prune(context.Background(), t.TempDir(), Plan{Keep: 0})
	if !errors.Is(err, ErrInvalidKeep) {
		t.Errorf("expected ErrInvalidKeep, got %v", err)
	}
}

func TestPruneRepointsCurrent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on windows")
	}
	root := t.TempDir()
	names := createTestGenerations(t, root, 3)
	ops := fsops.Default()
	// current lags behind, e.g. after a crash between commit and link update.
	if err := generation.UpdateCurrent(root, names[0], ops); err != nil {
		t.Fatalf("failed to set current: %v", err)
	}

	if _, err := New(ops).Prune(context.Background(), root, Plan{Keep: 2}); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	got, ok := generation.Current(root)
	if !ok || got != names[2] {
		t.Errorf("expected current to point at %s, got %q (ok=%v)", names[2], got, ok)
	}
}

func TestPruneLeavesCurrentAlone(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on windows")
	}
	root := t.TempDir()
	names := createTestGenerations(t, root, 3)
	ops := fsops.Default()
	if err := generation.UpdateCurrent(root, names[2], ops); err != nil {
		t.Fatalf("failed to set current: %v", err)
	}
	if _, err := New(ops).Prune(context.Background(), root, Plan{Keep: 1}); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if got, _ := generation.Current(root); got != names[2] {
		t.Errorf("expected current to stay at %s, got %q", names[2], got)
	}
}

func TestPruneReadOnlyContent(t *testing.T) {
	root := t.TempDir()
	names := createTestGenerations(t, root, 2)
	oldest := generation.FinalPath(root, names[0])
	if err := os.Chmod(filepath.Join(oldest, "sub", "file.txt"), 0444); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(filepath.Join(oldest, "sub"), 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(oldest, "sub"), 0755) })

	res, err := New(fsops.Default()).Prune(context.Background(), root, Plan{Keep: 1})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if res.Deleted != 1 || res.Failed != 0 {
		t.Errorf("expected read-only generation to be deleted, got %+v", res)
	}
	if exists(oldest) {
		t.Error("read-only generation still exists")
	}
}

func TestRelaxForRemovalKeepsSharedFileModes(t *testing.T) {
	root := t.TempDir()
	doomed := filepath.Join(root, "doomed")
	kept := filepath.Join(root, "kept")
	for _, dir := range []string{filepath.Join(doomed, "sub"), kept} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	keptFile := filepath.Join(kept, "file.txt")
	if err := os.WriteFile(keptFile, []byte("shared"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(keptFile, 0444); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(keptFile, filepath.Join(doomed, "sub", "file.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(filepath.Join(doomed, "sub"), 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Chmod(filepath.Join(doomed, "sub"), 0755)
		os.Chmod(keptFile, 0644)
	})

	relaxForRemoval(doomed)

	info, err := os.Stat(filepath.Join(doomed, "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0200 == 0 {
		t.Errorf("expected the directory to become writable, got %o", info.Mode().Perm())
	}

	keptInfo, err := os.Stat(keptFile)
	if err != nil {
		t.Fatalf("the kept generation lost its file: %v", err)
	}
	if keptInfo.Mode().Perm()&0200 != 0 {
		t.Errorf("expected the kept file to stay read-only, got %o", keptInfo.Mode().Perm())
	}

	if err := removeGeneration(doomed); err != nil {
		t.Fatalf("removeGeneration() failed: %v", err)
	}
	if exists(doomed) {
		t.Error("doomed generation still exists")
	}
	if keptInfo, err = os.Stat(keptFile); err != nil || keptInfo.Mode().Perm()&0200 != 0 {
		t.Errorf("expected the kept file to survive read-only (err %v)", err)
	}
}

func TestPruneCancelled(t *testing.T) {
	root := t.TempDir()
	names := createTestGenerations(t, root, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fsops.Default()).Prune(ctx, root, Plan{Keep: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !exists(generation.FinalPath(root, names[3])) {
		t.Error("cancellation must never delete kept generations")
	}
}
