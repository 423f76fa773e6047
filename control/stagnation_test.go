// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"testing"
	"time"
)

func TestStagnationSchedulerIsDue(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	interval := 48 * time.Hour

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"just flushed", base, false},
		{"halfway", base.Add(24 * time.Hour), false},
		{"one second early", base.Add(interval - time.Second), false},
		{"exactly at interval", base.Add(interval), true},
		{"past interval", base.Add(interval + time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStagnationScheduler(interval, base)
			if got := s.IsDue(tt.at); got != tt.want {
				t.Errorf("IsDue(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestStagnationSchedulerMarkFlushed(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	interval := 48 * time.Hour
	s := NewStagnationScheduler(interval, base)

	due := base.Add(interval)
	if !s.IsDue(due) {
		t.Fatal("should be due at interval")
	}

	// The flush runs for 15 seconds; the clock advances to completion time,
	// not to the due time.
	done := due.Add(15 * time.Second)
	s.MarkFlushed(done)

	if !s.LastFlush().Equal(done) {
		t.Errorf("LastFlush = %v, want %v", s.LastFlush(), done)
	}
	if s.IsDue(done) {
		t.Error("should not be due immediately after flush")
	}
	if !s.IsDue(done.Add(interval)) {
		t.Error("should be due one interval after completion")
	}
}

func TestStagnationSchedulerOverdue(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := NewStagnationScheduler(48*time.Hour, base)

	if got := s.Overdue(base.Add(24 * time.Hour)); got > 0 {
		t.Errorf("Overdue before due = %v, want <= 0", got)
	}
	if got := s.Overdue(base.Add(50 * time.Hour)); got != 2*time.Hour {
		t.Errorf("Overdue = %v, want 2h", got)
	}
}
