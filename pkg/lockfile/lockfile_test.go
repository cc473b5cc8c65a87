package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulschiretz/recall/pkg/util"
)

func writeOwner(t *testing.T, path string, o Owner) {
	t.Helper()
	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("failed to marshal owner: %v", err)
	}
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to write lock file: %v", err)
	}
}

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, FileName)

	lock, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("expected to acquire lock, got error: %v", err)
	}
	if lock.Path() != lockPath {
		t.Errorf("expected lock path %q, got %q", lockPath, lock.Path())
	}

	owner, err := readOwner(lockPath)
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if owner.PID != os.Getpid() {
		t.Errorf("expected PID %d in lock file, got %d", os.Getpid(), owner.PID)
	}
	if owner.Token == "" {
		t.Error("expected a token in the lock file")
	}

	lock.Release()
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("lock file was not removed after release")
	}
}

func TestContention(t *testing.T) {
	dir := t.TempDir()

	lock1, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer lock1.Release()

	_, err = Acquire(context.Background(), dir)
	var active *ErrLockActive
	if !errors.As(err, &active) {
		t.Fatalf("expected *ErrLockActive, got %T: %v", err, err)
	}
	if active.Owner.PID != os.Getpid() {
		t.Errorf("expected holder PID %d, got %d", os.Getpid(), active.Owner.PID)
	}
}

func TestStaleLockTakeover(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, FileName)
	writeOwner(t, lockPath, Owner{
		PID:       12345,
		Hostname:  "stale-host",
		Heartbeat: time.Now().Add(-(staleAfter + time.Minute)),
		Token:     "stale",
	})

	lock, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("failed to take over stale lock: %v", err)
	}
	defer lock.Release()

	owner, err := readOwner(lockPath)
	if err != nil {
		t.Fatalf("failed to read lock after takeover: %v", err)
	}
	if owner.Token == "stale" || owner.PID != os.Getpid() {
		t.Errorf("lock file still describes the stale owner: %+v", owner)
	}
}

func TestCorruptLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{corrupt"), util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to write corrupt lock: %v", err)
	}
	lock, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("failed to take over corrupt lock: %v", err)
	}
	lock.Release()
}

func TestStaleLockContention(t *testing.T) {
	dir := t.TempDir()
	writeOwner(t, filepath.Join(dir, FileName), Owner{
		PID:       12345,
		Hostname:  "stale-host",
		Heartbeat: time.Now().Add(-(staleAfter + time.Minute)),
		Token:     "stale",
	})

	var wg sync.WaitGroup
	locks := make(chan *Lock, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock, err := Acquire(context.Background(), dir); err == nil {
				locks <- lock
			}
		}()
	}
	wg.Wait()
	close(locks)

	if len(locks) != 1 {
		t.Fatalf("expected exactly one contender to win, %d did", len(locks))
	}
	for lock := range locks {
		lock.Release()
	}
}

func TestHeartbeatKeepsLockFresh(t *testing.T) {
	origBeat, origStale := heartbeatEvery, staleAfter
	heartbeatEvery = 50 * time.Millisecond
	staleAfter = 3 * heartbeatEvery
	t.Cleanup(func() {
		heartbeatEvery, staleAfter = origBeat, origStale
	})

	dir := t.TempDir()
	lock, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer lock.Release()

	time.Sleep(staleAfter + 50*time.Millisecond)

	_, err = Acquire(context.Background(), dir)
	var active *ErrLockActive
	if !errors.As(err, &active) {
		t.Fatalf("expected heartbeat to keep lock active, got %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	lock.Release()
	lock.Release()
	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Fatal("lock file still exists after release")
	}
}

func TestAcquireCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Acquire(ctx, t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReadOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	t.Run("valid", func(t *testing.T) {
		writeOwner(t, path, Owner{PID: 1, Token: "abc"})
		got, err := readOwner(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Token != "abc" {
			t.Errorf("expected token 'abc', got %q", got.Token)
		}
	})

	for name, body := range map[string]string{"empty": "", "corrupt": "{corrupt"} {
		t.Run(name, func(t *testing.T) {
			if err := os.WriteFile(path, []byte(body), util.UserWritableFilePerms); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}
			if _, err := readOwner(path); !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
		})
	}

	t.Run("transiently empty", func(t *testing.T) {
		if err := os.WriteFile(path, nil, util.UserWritableFilePerms); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		go func() {
			time.Sleep(20 * time.Millisecond)
			data, _ := json.Marshal(Owner{PID: 2, Token: "late"})
			os.WriteFile(path, data, util.UserWritableFilePerms)
		}()
		got, err := readOwner(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Token != "late" {
			t.Errorf("expected token 'late', got %q", got.Token)
		}
	})
}

func TestRemoveLeftoverTemps(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, FileName)

	oldTemp := lockPath + ".123.tmp"
	if err := os.WriteFile(oldTemp, []byte("old"), 0644); err != nil {
		t.Fatalf("failed to create old temp: %v", err)
	}
	old := time.Now().Add(-(staleAfter + time.Minute))
	if err := os.Chtimes(oldTemp, old, old); err != nil {
		t.Fatalf("failed to age old temp: %v", err)
	}
	newTemp := lockPath + ".456.tmp"
	if err := os.WriteFile(newTemp, []byte("new"), 0644); err != nil {
		t.Fatalf("failed to create new temp: %v", err)
	}

	removeLeftoverTemps(lockPath)

	if _, err := os.Stat(oldTemp); !os.IsNotExist(err) {
		t.Error("expected old temp file to be removed")
	}
	if _, err := os.Stat(newTemp); err != nil {
		t.Errorf("expected new temp file to be kept: %v", err)
	}
}
