// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package control implements the recirculation pump control logic.
//
// The package is pure: the state machine performs no I/O and is driven one
// tick at a time with a snapshot of sensor and button inputs. All wiring to
// real sensors, actuators and storage lives in the device, storage and app
// packages. The Runner type in this package bridges the two worlds.
package control

import (
	"time"
)

// State identifies the controller's operating state.
type State int

const (
	// StateIdle means the pump is off and the controller is watching for triggers
	StateIdle State = iota
	// StateDemandRun means the pump is circulating after a detected water draw
	StateDemandRun
	// StateStagnationFlush means the pump is performing a hygiene flush
	StateStagnationFlush
	// StateManualRun means the pump was started by the momentary trigger
	StateManualRun
	// StateScheduledRun means the pump is pre-circulating for a learned usage slot
	StateScheduledRun
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDemandRun:
		return "demand_run"
	case StateStagnationFlush:
		return "stagnation_flush"
	case StateManualRun:
		return "manual_run"
	case StateScheduledRun:
		return "scheduled_run"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger identifies what started a pump run.
type Trigger int

const (
	// TriggerDemand is a detected water draw
	TriggerDemand Trigger = iota
	// TriggerStagnation is an anti-stagnation hygiene flush
	TriggerStagnation
	// TriggerManual is the momentary button
	TriggerManual
	// TriggerScheduled is a learned usage slot
	TriggerScheduled
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerDemand:
		return "demand"
	case TriggerStagnation:
		return "stagnation"
	case TriggerManual:
		return "manual"
	case TriggerScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Reading is one sensor value with its validity.
// A reading is invalid when the sensor has never reported, the last report
// is stale, or the poll failed.
type Reading struct {
	Value float64
	Valid bool
}

// Input is everything one control tick observes.
type Input struct {
	Now    time.Time
	Outlet Reading
	Return Reading
	Button bool // debounced momentary trigger level, true while held
}

// EventKind classifies controller events.
type EventKind int

const (
	// EventRunStarted fires when a pump run begins
	EventRunStarted EventKind = iota
	// EventRunStopped fires when a pump run ends
	EventRunStopped
	// EventFlushCompleted fires when a run long enough to count as an
	// anti-stagnation flush completes
	EventFlushCompleted
	// EventDisinfection fires when a thermal disinfection is recorded
	EventDisinfection
	// EventVacationEntered fires after 24 hours without a water draw
	EventVacationEntered
	// EventVacationExited fires when a water draw ends vacation mode
	EventVacationExited
	// EventMatrixDecayed fires when the daily learning decay runs
	EventMatrixDecayed
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventRunStarted:
		return "run_started"
	case EventRunStopped:
		return "run_stopped"
	case EventFlushCompleted:
		return "flush_completed"
	case EventDisinfection:
		return "disinfection"
	case EventVacationEntered:
		return "vacation_entered"
	case EventVacationExited:
		return "vacation_exited"
	case EventMatrixDecayed:
		return "matrix_decayed"
	default:
		return "unknown"
	}
}

// Event is a notable controller state change.
type Event struct {
	Kind    EventKind
	At      time.Time
	Trigger Trigger // meaningful for run events
}

// CycleEvent summarizes one completed pump run.
type CycleEvent struct {
	Start        time.Time
	End          time.Time
	Trigger      Trigger
	Duration     time.Duration
	EnergyWh     float64
	Disinfection bool
}

// Output is the actuator command triple plus anything notable that happened
// during the tick. Every tick produces a complete Output.
type Output struct {
	Pump      bool
	GreenLED  bool // water fresh: disinfection recorded within the freshness window
	YellowLED bool // pump running
	Events    []Event
	Cycle     *CycleEvent // non-nil when a run completed this tick
}

// Snapshot is the persistable controller state. A zero Snapshot is valid and
// yields safe defaults: the stagnation clock starts at construction time and
// the learning matrix initializes to the typical household pattern.
type Snapshot struct {
	LastFlush        time.Time    `json:"last_flush"`
	LastDisinfection time.Time    `json:"last_disinfection"`
	LastDraw         time.Time    `json:"last_draw"`
	LastDecayDay     string       `json:"last_decay_day"` // YYYY-MM-DD of the last matrix decay
	Learning         [7][48]uint8 `json:"learning"`
}
