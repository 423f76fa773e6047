// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"time"
)

// Water heat capacity in joules per litre per kelvin.
const waterHeatCapacity = 4186.0

// EnergyTracker integrates the thermal energy moved by one pump run from
// the temperature differential across the loop and the configured pump
// flow rate in litres per minute.
type EnergyTracker struct {
	flowRate float64 // litres per minute
	wh       float64
	lastTick time.Time
	running  bool
}

// NewEnergyTracker creates a tracker for the given flow rate.
func NewEnergyTracker(flowRate float64) *EnergyTracker {
	return &EnergyTracker{flowRate: flowRate}
}

// Begin starts accounting for a new run.
func (e *EnergyTracker) Begin(now time.Time) {
	e.wh = 0
	e.lastTick = now
	e.running = true
}

// Observe accumulates energy for the interval since the previous
// observation. Ticks with an invalid sensor or a non-positive differential
// contribute nothing but still advance the interval clock.
func (e *EnergyTracker) Observe(now time.Time, outlet, ret Reading) {
	if !e.running {
		return
	}
	dt := now.Sub(e.lastTick).Seconds()
	e.lastTick = now
	if dt <= 0 {
		return
	}
	if !outlet.Valid || !ret.Valid {
		return
	}
	deltaT := outlet.Value - ret.Value
	if deltaT <= 0 {
		return
	}
	watts := (e.flowRate / 60.0) * deltaT * waterHeatCapacity
	e.wh += watts * dt / 3600.0
}

// Finish stops accounting and returns the run's total in watt hours.
func (e *EnergyTracker) Finish() float64 {
	e.running = false
	return e.wh
}

// SetFlowRate updates the flow rate used for subsequent observations.
func (e *EnergyTracker) SetFlowRate(flowRate float64) {
	e.flowRate = flowRate
}
