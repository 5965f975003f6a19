// Package stats tracks counts for idempotent batch writes.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// WriteStats tracks cumulative inserted and skipped rows for an
// insert-or-ignore workload. Safe for concurrent use.
type WriteStats struct {
	inserted atomic.Int64
	skipped  atomic.Int64
}

// NewWriteStats creates a new WriteStats instance.
func NewWriteStats() *WriteStats {
	return &WriteStats{}
}

// RecordInsert increments the inserted counter.
func (s *WriteStats) RecordInsert() {
	s.inserted.Add(1)
}

// RecordSkip increments the skipped counter, for rows that already existed.
func (s *WriteStats) RecordSkip() {
	s.skipped.Add(1)
}

// Add records a batch result.
func (s *WriteStats) Add(inserted, skipped int64) {
	s.inserted.Add(inserted)
	s.skipped.Add(skipped)
}

// Inserted returns the total number of inserted rows.
func (s *WriteStats) Inserted() int64 {
	return s.inserted.Load()
}

// Skipped returns the total number of skipped rows.
func (s *WriteStats) Skipped() int64 {
	return s.skipped.Load()
}

// Total returns inserted plus skipped.
func (s *WriteStats) Total() int64 {
	return s.Inserted() + s.Skipped()
}

// Reset resets all counters to zero.
func (s *WriteStats) Reset() {
	s.inserted.Store(0)
	s.skipped.Store(0)
}

// String returns a human-readable summary of the statistics.
func (s *WriteStats) String() string {
	return fmt.Sprintf("inserted=%d skipped=%d total=%d", s.Inserted(), s.Skipped(), s.Total())
}

// LogSummary logs the counters at INFO level.
func (s *WriteStats) LogSummary(logger *slog.Logger, entity string) {
	logger.Info("write statistics",
		"entity", entity,
		"inserted", s.Inserted(),
		"skipped", s.Skipped(),
		"total", s.Total(),
	)
}
