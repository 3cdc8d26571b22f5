package internal

import (
	"sync/atomic"
	"time"
)

// ScanStats atomic counters for totals. Informational only.
type ScanStats struct {
	start        time.Time
	FilesFound   atomic.Int64 // enqueued
	FilesScanned atomic.Int64 // processed without error
	FilesIgnored atomic.Int64 // dropped by the ignore filter
	FilesSkipped atomic.Int64 // dequeued after cancellation
	Matches      atomic.Int64
	Errors       atomic.Int64 // per-file failures in workers
	WalkErrors   atomic.Int64
	WriteErrors  atomic.Int64
}

func (s *ScanStats) Start() {
	s.start = time.Now()
}

func (s *ScanStats) Elapsed() time.Duration {
	if s.start.IsZero() {
		return 0
	}
	return time.Since(s.start)
}

// Processed counts every dequeued task, whatever its outcome.
func (s *ScanStats) Processed() int64 {
	return s.FilesScanned.Load() + s.Errors.Load() + s.FilesSkipped.Load()
}
