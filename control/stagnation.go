// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"time"
)

// StagnationScheduler tracks how long water has sat in the loop and decides
// when a hygiene flush is due. The clock advances only when a completed run
// lasted at least the configured flush runtime; an aborted run leaves the
// flush due.
type StagnationScheduler struct {
	interval  time.Duration
	lastFlush time.Time
}

// NewStagnationScheduler creates a scheduler. lastFlush seeds the clock,
// typically from persisted state; callers pass the current time when no
// persisted value exists.
func NewStagnationScheduler(interval time.Duration, lastFlush time.Time) *StagnationScheduler {
	return &StagnationScheduler{interval: interval, lastFlush: lastFlush}
}

// IsDue reports whether a flush is due at the given time.
func (s *StagnationScheduler) IsDue(now time.Time) bool {
	return now.Sub(s.lastFlush) >= s.interval
}

// MarkFlushed records a completed flush at the given time.
func (s *StagnationScheduler) MarkFlushed(now time.Time) {
	s.lastFlush = now
}

// LastFlush returns when the loop was last flushed.
func (s *StagnationScheduler) LastFlush() time.Time {
	return s.lastFlush
}

// Overdue returns how far past due the flush is. Zero or negative means
// not yet due.
func (s *StagnationScheduler) Overdue(now time.Time) time.Duration {
	return now.Sub(s.lastFlush) - s.interval
}

// Interval returns the configured flush interval.
func (s *StagnationScheduler) Interval() time.Duration {
	return s.interval
}
