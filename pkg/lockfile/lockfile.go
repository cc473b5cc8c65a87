// Package lockfile keeps two runs from writing into the same project root.
//
// The lock is a small JSON file created with O_EXCL. Its owner refreshes
// the timestamp on a heartbeat; a lock whose heartbeat is older than
// staleAfter is considered abandoned and may be taken over. Takeover
// writes a fresh token through an atomic rename and reads it back, so of
// two contenders only the one whose token survives wins.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/util"
)

// FileName is created in the locked directory. The '~' marks it temporary.
const FileName = ".~recall.lock"

// Owner is the JSON body of the lock file.
type Owner struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Heartbeat time.Time `json:"heartbeat"`
	Token     string    `json:"token"`
}

// ErrLockActive reports a lock held by a live run.
type ErrLockActive struct {
	Owner Owner
	Age   time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("destination is locked by PID %d on host '%s', last heartbeat %s ago",
		e.Owner.PID, e.Owner.Hostname, e.Age.Truncate(time.Second))
}

var (
	// ErrLostRace means another run took over the same stale lock first.
	ErrLostRace = errors.New("lost race during stale lock takeover")
	// ErrCorrupt means the lock file is empty or not valid JSON.
	ErrCorrupt = errors.New("lock file is corrupt or empty")
)

// Overridden in tests.
var (
	heartbeatEvery = time.Minute
	staleAfter     = 3 * time.Minute
	retryDelay     = 100 * time.Millisecond
)

const maxAttempts = 3

// Lock is a held lock. Release it exactly once; extra calls are no-ops.
type Lock struct {
	path  string
	owner Owner

	stop     chan struct{}
	stopped  chan struct{}
	release  sync.Once
	ownerMux sync.Mutex
}

// Acquire takes the lock in dir or returns *ErrLockActive if a live run
// holds it. ctx bounds the acquisition only.
func Acquire(ctx context.Context, dir string) (*Lock, error) {
	path := filepath.Join(dir, FileName)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := create(path)
		if err == nil {
			return lock.start(), nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		held, readErr := readOwner(path)
		switch {
		case errors.Is(readErr, ErrCorrupt):
			plog.Warn("Found corrupt lock file, treating as stale", "path", path, "error", readErr)
		case os.IsNotExist(readErr):
			// Released between our create and read.
			continue
		case readErr != nil:
			return nil, fmt.Errorf("failed to read lock file: %w", readErr)
		default:
			age := time.Since(held.Heartbeat)
			if age < staleAfter {
				return nil, &ErrLockActive{Owner: held, Age: age}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", held.PID, "host", held.Hostname, "age", age.Truncate(time.Second))
		}

		lock, err = takeOver(path)
		if err == nil {
			return lock.start(), nil
		}
		if errors.Is(err, ErrLostRace) {
			plog.Debug("Lock takeover race lost, retrying")
		} else {
			plog.Warn("Lock takeover failed, retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("failed to acquire lock after %d attempts", maxAttempts)
}

func newOwner() (Owner, error) {
	host, err := os.Hostname()
	if err != nil {
		return Owner{}, fmt.Errorf("failed to read hostname: %w", err)
	}
	return Owner{
		PID:       os.Getpid(),
		Hostname:  host,
		Heartbeat: time.Now().UTC(),
		Token:     uuid.NewString(),
	}, nil
}

func create(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	owner, err := newOwner()
	if err == nil {
		err = json.NewEncoder(f).Encode(owner)
	}
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path, owner: owner}, nil
}

func takeOver(path string) (*Lock, error) {
	owner, err := newOwner()
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, owner); err != nil {
		return nil, err
	}
	got, err := readOwner(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock after takeover: %w", err)
	}
	if got.Token != owner.Token {
		return nil, ErrLostRace
	}
	plog.Debug("Took over stale lock", "path", path)
	return &Lock{path: path, owner: owner}, nil
}

func (l *Lock) start() *Lock {
	removeLeftoverTemps(l.path)
	l.stop = make(chan struct{})
	l.stopped = make(chan struct{})
	go l.heartbeat()
	return l
}

func (l *Lock) heartbeat() {
	defer close(l.stopped)
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.ownerMux.Lock()
			l.owner.Heartbeat = time.Now().UTC()
			owner := l.owner
			l.ownerMux.Unlock()
			if err := writeAtomic(l.path, owner); err != nil {
				plog.Warn("Failed to refresh lock heartbeat", "error", err)
			}
		}
	}
}

// Path is the lock file path.
func (l *Lock) Path() string { return l.path }

// Release stops the heartbeat and removes the lock file.
func (l *Lock) Release() {
	l.release.Do(func() {
		close(l.stop)
		<-l.stopped
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
			return
		}
		plog.Debug("Lock released", "path", l.path)
	})
}

// writeAtomic replaces the lock file through a temp file in the same
// directory so readers never see a half-written body.
func writeAtomic(path string, owner Owner) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(owner); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace lock file: %w", err)
	}
	return nil
}

// readOwner retries briefly on empty or malformed content, which can be
// observed on some filesystems while another process writes the file.
func readOwner(path string) (Owner, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return Owner{}, err
		}
		var owner Owner
		if len(data) == 0 {
			lastErr = errors.New("empty file")
		} else if lastErr = json.Unmarshal(data, &owner); lastErr == nil {
			return owner, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return Owner{}, fmt.Errorf("%w: %v", ErrCorrupt, lastErr)
}

// removeLeftoverTemps deletes temp files of crashed heartbeats. Young temps
// may belong to a live writer and are kept.
func removeLeftoverTemps(path string) {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), filepath.Base(path)+".*.tmp"))
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-staleAfter)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove leftover temp lock file", "path", m, "error", err)
		}
	}
}
