package pathsync

import (
	"sync"
	"time"

	"github.com/paulschiretz/recall/pkg/plog"
	"github.com/paulschiretz/recall/pkg/task"
	"github.com/paulschiretz/recall/pkg/util"
)

// Stats aggregates task outcomes across workers. Each task takes the lock
// exactly once, in Record.
type Stats struct {
	mu      sync.Mutex
	current Summary

	stopChan chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// Summary is an immutable copy of the counters.
type Summary struct {
	Total          int64  `json:"total"`
	CopiedNew      int64  `json:"copied_new"`
	CopiedModified int64  `json:"copied_modified"`
	Linked         int64  `json:"linked"`
	Skipped        int64  `json:"skipped"`
	Failed         int64  `json:"failed"`
	BytesCopied    uint64 `json:"bytes_copied"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Record accounts for one finished task. A failed task only increments
// Failed. A successful CreateDir is taken back out of Total so that Total
// counts file work, not directories.
func (s *Stats) Record(kind task.ActionKind, bytes int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Total++
	if err != nil {
		s.current.Failed++
		return
	}
	switch kind {
	case task.CopyNew:
		s.current.CopiedNew++
		s.current.BytesCopied += uint64(max(bytes, 0))
	case task.CopyModified:
		s.current.CopiedModified++
		s.current.BytesCopied += uint64(max(bytes, 0))
	case task.Link, task.MakeSymlink:
		s.current.Linked++
	case task.Skip:
		s.current.Skipped++
	case task.CreateDir:
		s.current.Total--
	}
}

// Snapshot returns the counters as they are right now.
func (s *Stats) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// StartProgress logs the running counters every interval until
// StopProgress. A non-positive interval disables progress output.
func (s *Stats) StartProgress(msg string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.stopChan = make(chan struct{})
	s.stopped = make(chan struct{})
	start := time.Now()
	ticker := time.NewTicker(interval)
	go func() {
		defer close(s.stopped)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Snapshot().LogSummary(msg, time.Since(start))
			case <-s.stopChan:
				return
			}
		}
	}()
}

// StopProgress stops the progress ticker and waits for its last line.
// Safe to call more than once.
func (s *Stats) StopProgress() {
	if s.stopChan == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.stopped
}

// LogSummary logs the per-category counts and the elapsed time.
func (s Summary) LogSummary(msg string, elapsed time.Duration) {
	plog.Info(msg,
		"total", s.Total,
		"copied_new", s.CopiedNew,
		"copied_modified", s.CopiedModified,
		"linked", s.Linked,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"bytes_copied", util.FormatBytes(s.BytesCopied),
		"elapsed", util.FormatDuration(elapsed),
	)
}
