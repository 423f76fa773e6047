// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package interfaces

import (
	"context"
	"time"
)

// TemperatureSource provides the most recent reading from one sensor.
// Implementations poll the sensor in the background; Current never blocks
// on I/O.
type TemperatureSource interface {
	// Current returns the latest reading and when it was taken.
	// It returns an error when no reading exists yet or the latest
	// reading has gone stale.
	Current() (value float64, at time.Time, err error)

	// Start begins background polling
	Start(ctx context.Context)

	// Stop halts background polling
	Stop()
}

// Switch commands a binary actuator such as the pump relay or an
// indicator LED.
type Switch interface {
	// Set drives the actuator to the given state
	Set(ctx context.Context, on bool) error
}

// ButtonSource reports the debounced level of the momentary trigger.
type ButtonSource interface {
	// Pressed returns true while the button is held down
	Pressed() bool
}

// CyclePublisher publishes completed pump cycles to an event stream.
type CyclePublisher interface {
	// PublishCycle publishes one completed pump cycle
	PublishCycle(ctx context.Context, cycle *Cycle) error
}
