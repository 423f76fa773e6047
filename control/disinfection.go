// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"time"
)

// DisinfectionMonitor watches a pump run for evidence of a thermal
// disinfection cycle: the outlet must rise at least tempRise above its
// run-start baseline while the return simultaneously holds at or above
// minReturnTemp. Both conditions must be met in the same observation;
// meeting them at different moments of the run earns no credit.
//
// A recorded disinfection starts a cooldown during which further runs
// cannot record another one.
type DisinfectionMonitor struct {
	tempRise      float64
	minReturnTemp float64
	cooldown      time.Duration

	inRun        bool
	baseline     float64
	baselineSet  bool
	achieved     bool
	lastRecorded time.Time
}

// NewDisinfectionMonitor creates a monitor. lastRecorded seeds the cooldown
// clock from persisted state; the zero time means no disinfection has ever
// been recorded.
func NewDisinfectionMonitor(tempRise, minReturnTemp float64, cooldown time.Duration, lastRecorded time.Time) *DisinfectionMonitor {
	return &DisinfectionMonitor{
		tempRise:      tempRise,
		minReturnTemp: minReturnTemp,
		cooldown:      cooldown,
		lastRecorded:  lastRecorded,
	}
}

// BeginRun arms the monitor for a new pump run. The outlet reading, when
// valid, becomes the rise baseline; otherwise the first valid outlet
// observation during the run does.
func (m *DisinfectionMonitor) BeginRun(outlet Reading) {
	m.inRun = true
	m.achieved = false
	m.baselineSet = false
	if outlet.Valid {
		m.baseline = outlet.Value
		m.baselineSet = true
	}
}

// Observe feeds one tick's readings to the monitor. It returns true exactly
// once per run, on the observation where both disinfection conditions hold
// simultaneously and the cooldown has expired.
func (m *DisinfectionMonitor) Observe(now time.Time, outlet, ret Reading) bool {
	if !m.inRun || m.achieved {
		return false
	}
	if !m.baselineSet {
		if !outlet.Valid {
			return false
		}
		m.baseline = outlet.Value
		m.baselineSet = true
		return false
	}
	if !outlet.Valid || !ret.Valid {
		return false
	}
	if outlet.Value < m.baseline+m.tempRise {
		return false
	}
	if ret.Value < m.minReturnTemp {
		return false
	}
	if !m.lastRecorded.IsZero() && now.Sub(m.lastRecorded) < m.cooldown {
		return false
	}
	m.achieved = true
	m.lastRecorded = now
	return true
}

// EndRun disarms the monitor and reports whether the finished run recorded
// a disinfection.
func (m *DisinfectionMonitor) EndRun() bool {
	achieved := m.achieved
	m.inRun = false
	m.achieved = false
	m.baselineSet = false
	return achieved
}

// LastRecorded returns when a disinfection was last recorded.
func (m *DisinfectionMonitor) LastRecorded() time.Time {
	return m.lastRecorded
}
