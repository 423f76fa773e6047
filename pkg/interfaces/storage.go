// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"
	"time"
)

// Sample is one tick's worth of thermal and pump state.
// Redeclared here to avoid circular dependencies with the control package.
type Sample struct {
	Timestamp   time.Time
	Outlet      float64 // Outlet temperature in degrees Celsius
	OutletValid bool
	Return      float64 // Return temperature in degrees Celsius
	ReturnValid bool
	PumpOn      bool
	State       string // Controller state name
}

// Cycle is one completed pump run.
// Redeclared here to avoid circular dependencies with the control package.
type Cycle struct {
	Start        time.Time
	End          time.Time
	Trigger      string  // What started the run: demand, stagnation, manual, scheduled
	Duration     float64 // Run duration in seconds
	EnergyWh     float64 // Thermal energy moved during the run
	Disinfection bool    // Whether the run qualified as a thermal disinfection
}

// TimeSeriesStorage defines the interface for time-series data persistence.
// Implementations should handle thermal samples and pump cycles and provide
// health checks.
type TimeSeriesStorage interface {
	// WriteSample writes a single thermal sample to storage
	WriteSample(sample *Sample) error

	// WriteCycle writes a completed pump cycle to storage
	WriteCycle(cycle *Cycle) error

	// Flush ensures all pending writes are completed
	Flush()

	// Close gracefully shuts down the storage connection
	Close()

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error
}
