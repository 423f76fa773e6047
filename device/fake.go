// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package device

import (
	"context"
	"sync"
	"time"

	"github.com/hotcirc/hotcirc/pkg/interfaces"
)

// FakeSensor is a settable TemperatureSource for tests.
type FakeSensor struct {
	mu sync.Mutex

	// Value and At are returned by Current.
	Value float64
	At    time.Time

	// Err, if set, is returned by Current.
	Err error

	// Started and Stopped track lifecycle calls.
	Started bool
	Stopped bool
}

// SetReading updates the reading returned by Current.
func (f *FakeSensor) SetReading(value float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Value = value
	f.At = at
	f.Err = nil
}

// SetError makes Current fail with err.
func (f *FakeSensor) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Current returns the configured reading or error.
func (f *FakeSensor) Current() (float64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, time.Time{}, f.Err
	}
	return f.Value, f.At, nil
}

// Start marks the sensor as started.
func (f *FakeSensor) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = true
}

// Stop marks the sensor as stopped.
func (f *FakeSensor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = true
}

// FakeSwitch records commanded states for test assertions.
type FakeSwitch struct {
	mu sync.Mutex

	// Commands contains every state passed to Set, in order.
	Commands []bool

	// SetError, if set, is returned by Set.
	SetError error
}

// Set records the commanded state.
func (f *FakeSwitch) Set(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Commands = append(f.Commands, on)
	return nil
}

// Last returns the most recent commanded state, or false when no command
// has been issued.
func (f *FakeSwitch) Last() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Commands) == 0 {
		return false
	}
	return f.Commands[len(f.Commands)-1]
}

// FakeButton is a settable ButtonSource for tests.
type FakeButton struct {
	mu   sync.Mutex
	down bool
}

// Press sets the button level.
func (f *FakeButton) Press(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// Pressed returns the configured level.
func (f *FakeButton) Pressed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

// FakeCyclePublisher records published cycles for test assertions.
type FakeCyclePublisher struct {
	mu sync.Mutex

	// Cycles contains all cycles that were published.
	Cycles []*interfaces.Cycle

	// PublishError, if set, is returned by PublishCycle.
	PublishError error
}

// PublishCycle records the cycle.
func (f *FakeCyclePublisher) PublishCycle(_ context.Context, cycle *interfaces.Cycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Cycles = append(f.Cycles, cycle)
	return nil
}

// Published returns a copy of the recorded cycles.
func (f *FakeCyclePublisher) Published() []*interfaces.Cycle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*interfaces.Cycle, len(f.Cycles))
	copy(out, f.Cycles)
	return out
}
