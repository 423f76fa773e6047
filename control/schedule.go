// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"math"
	"time"
)

const (
	slotsPerDay = 48

	// learnIncrement is added to a slot's weight on each confirmed water draw
	learnIncrement = 40
	// scheduleThreshold is the slot weight at which a pre-circulation triggers
	scheduleThreshold = 120
	// decayFactor is applied to every cell once per calendar day
	decayFactor = 0.98
)

// Schedule is the usage-learning matrix: one uint8 weight per day-of-week
// and half-hour slot. Confirmed water draws raise the current slot's weight,
// a daily decay forgets stale habits, and a slot whose weight crosses the
// threshold triggers a pre-circulation at most once per occurrence.
type Schedule struct {
	weights      [7][48]uint8
	lastDecayDay string // YYYY-MM-DD
	lastTrigDay  int
	lastTrigSlot int
}

// NewSchedule creates a schedule from a persisted matrix. An all-zero
// matrix initializes to the typical household pattern instead.
func NewSchedule(weights [7][48]uint8, lastDecayDay string) *Schedule {
	if matrixEmpty(weights) {
		weights = DefaultPattern()
	}
	return &Schedule{
		weights:      weights,
		lastDecayDay: lastDecayDay,
		lastTrigDay:  -1,
		lastTrigSlot: -1,
	}
}

func matrixEmpty(w [7][48]uint8) bool {
	for d := range w {
		for s := range w[d] {
			if w[d][s] != 0 {
				return false
			}
		}
	}
	return true
}

// DefaultPattern returns the typical household usage pattern used to seed a
// fresh matrix: weekday morning showers, lunch, dinner and an evening bath,
// with later mornings on weekends. Day index 0 is Monday.
func DefaultPattern() [7][48]uint8 {
	var w [7][48]uint8

	// Monday through Friday
	for d := 0; d < 5; d++ {
		// Morning shower 06:00-08:30
		w[d][12] = 80
		w[d][13] = 120
		w[d][14] = 120
		w[d][15] = 100
		w[d][16] = 80
		// Lunch 11:30-13:00
		w[d][23] = 80
		w[d][24] = 100
		w[d][25] = 80
		// Dinner 18:00-19:00
		w[d][36] = 100
		w[d][37] = 100
		// Evening bath 21:00-22:00
		w[d][42] = 100
		w[d][43] = 80
	}

	// Saturday and Sunday: later morning
	for d := 5; d < 7; d++ {
		// Morning 08:00-10:00
		w[d][16] = 80
		w[d][17] = 100
		w[d][18] = 100
		w[d][19] = 80
		// Lunch 12:00-13:00
		w[d][24] = 100
		w[d][25] = 80
		// Dinner 18:30-19:30
		w[d][37] = 100
		w[d][38] = 80
		// Evening 21:00-22:00
		w[d][42] = 100
		w[d][43] = 80
	}

	return w
}

// slotOf maps a time to its matrix cell. Day index 0 is Monday, 6 is Sunday.
func slotOf(t time.Time) (day, slot int) {
	day = (int(t.Weekday()) + 6) % 7
	slot = t.Hour() * 2
	if t.Minute() >= 30 {
		slot++
	}
	return day, slot
}

// Learn raises the current slot's weight for a confirmed water draw.
func (s *Schedule) Learn(now time.Time) {
	day, slot := slotOf(now)
	v := int(s.weights[day][slot]) + learnIncrement
	if v > 255 {
		v = 255
	}
	s.weights[day][slot] = uint8(v)
}

// DecayIfNewDay applies the daily decay when the calendar day has changed
// since the last decay. It returns true when a decay ran, so the caller can
// persist the matrix.
func (s *Schedule) DecayIfNewDay(now time.Time) bool {
	day := now.Format("2006-01-02")
	if day == s.lastDecayDay {
		return false
	}
	s.lastDecayDay = day
	for d := range s.weights {
		for slot := range s.weights[d] {
			s.weights[d][slot] = uint8(math.Round(float64(s.weights[d][slot]) * decayFactor))
		}
	}
	return true
}

// Due reports whether the current slot's weight has crossed the trigger
// threshold and this occurrence has not triggered yet.
func (s *Schedule) Due(now time.Time) bool {
	day, slot := slotOf(now)
	if s.weights[day][slot] < scheduleThreshold {
		return false
	}
	return day != s.lastTrigDay || slot != s.lastTrigSlot
}

// MarkTriggered records that the current slot has triggered, preventing a
// repeat within the same occurrence.
func (s *Schedule) MarkTriggered(now time.Time) {
	s.lastTrigDay, s.lastTrigSlot = slotOf(now)
}

// Weights returns a copy of the matrix for persistence.
func (s *Schedule) Weights() [7][48]uint8 {
	return s.weights
}

// LastDecayDay returns the calendar day of the last decay for persistence.
func (s *Schedule) LastDecayDay() string {
	return s.lastDecayDay
}

// Weight returns the weight of the slot covering the given time.
func (s *Schedule) Weight(t time.Time) uint8 {
	day, slot := slotOf(t)
	return s.weights[day][slot]
}
