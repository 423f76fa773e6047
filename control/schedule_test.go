// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"testing"
	"time"
)

// Monday 2025-03-03.
func monday(hour, min int) time.Time {
	return time.Date(2025, 3, 3, hour, min, 0, 0, time.UTC)
}

func TestSlotOf(t *testing.T) {
	tests := []struct {
		name     string
		t        time.Time
		wantDay  int
		wantSlot int
	}{
		{"monday midnight", monday(0, 0), 0, 0},
		{"monday 06:29", monday(6, 29), 0, 12},
		{"monday 06:30", monday(6, 30), 0, 13},
		{"monday 23:59", monday(23, 59), 0, 47},
		{"sunday", time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC), 6, 24},
		{"saturday", time.Date(2025, 3, 8, 9, 15, 0, 0, time.UTC), 5, 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day, slot := slotOf(tt.t)
			if day != tt.wantDay || slot != tt.wantSlot {
				t.Errorf("slotOf() = (%d, %d), want (%d, %d)", day, slot, tt.wantDay, tt.wantSlot)
			}
		})
	}
}

func TestDefaultPatternSeedsFreshMatrix(t *testing.T) {
	s := NewSchedule([7][48]uint8{}, "")

	// Weekday morning peak carries trigger-level weight.
	if got := s.Weight(monday(6, 45)); got != 120 {
		t.Errorf("monday 06:45 weight = %d, want 120", got)
	}
	// Weekends shift the morning later.
	sat := time.Date(2025, 3, 8, 6, 45, 0, 0, time.UTC)
	if got := s.Weight(sat); got != 0 {
		t.Errorf("saturday 06:45 weight = %d, want 0", got)
	}
	satMorning := time.Date(2025, 3, 8, 8, 45, 0, 0, time.UTC)
	if got := s.Weight(satMorning); got != 100 {
		t.Errorf("saturday 08:45 weight = %d, want 100", got)
	}
}

func TestScheduleKeepsNonEmptyMatrix(t *testing.T) {
	var m [7][48]uint8
	m[2][10] = 99
	s := NewSchedule(m, "")

	if got := s.Weight(monday(6, 45)); got != 0 {
		t.Errorf("persisted matrix should not be replaced by the default pattern, weight = %d", got)
	}
	wed := time.Date(2025, 3, 5, 5, 0, 0, 0, time.UTC)
	if got := s.Weight(wed); got != 99 {
		t.Errorf("persisted weight = %d, want 99", got)
	}
}

func TestScheduleLearnIncrementsAndClamps(t *testing.T) {
	var m [7][48]uint8
	m[0][13] = 1 // keep matrix non-empty so the default pattern stays out
	s := NewSchedule(m, "")

	at := monday(6, 45)
	s.Learn(at)
	if got := s.Weight(at); got != 41 {
		t.Errorf("weight after one learn = %d, want 41", got)
	}

	for i := 0; i < 10; i++ {
		s.Learn(at)
	}
	if got := s.Weight(at); got != 255 {
		t.Errorf("weight should clamp at 255, got %d", got)
	}
}

func TestScheduleDecayOncePerDay(t *testing.T) {
	var m [7][48]uint8
	m[0][13] = 200
	s := NewSchedule(m, "2025-03-02")

	if !s.DecayIfNewDay(monday(0, 1)) {
		t.Fatal("first tick of a new day should decay")
	}
	if got := s.Weight(monday(6, 45)); got != 196 {
		t.Errorf("weight after decay = %d, want 196 (round(200*0.98))", got)
	}

	if s.DecayIfNewDay(monday(12, 0)) {
		t.Error("second decay on the same day should not run")
	}
	if got := s.Weight(monday(6, 45)); got != 196 {
		t.Errorf("weight changed by suppressed decay, got %d", got)
	}
}

func TestScheduleDueOncePerSlot(t *testing.T) {
	var m [7][48]uint8
	m[0][13] = 150
	s := NewSchedule(m, "2025-03-03")

	at := monday(6, 40)
	if !s.Due(at) {
		t.Fatal("weight 150 >= 120 should be due")
	}
	s.MarkTriggered(at)

	if s.Due(monday(6, 50)) {
		t.Error("same slot should not re-trigger")
	}
	// Weight below threshold is never due.
	if s.Due(monday(7, 40)) {
		t.Error("slot with zero weight should not be due")
	}
}

func TestScheduleBelowThresholdNotDue(t *testing.T) {
	var m [7][48]uint8
	m[0][13] = 119
	s := NewSchedule(m, "2025-03-03")

	if s.Due(monday(6, 40)) {
		t.Error("weight 119 is below the trigger threshold")
	}
}
