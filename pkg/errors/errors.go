// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package errors provides structured error types for the hot-water
// recirculation controller.
//
// The taxonomy mirrors how failures are handled at runtime:
//
//   - ConfigError: rejected before the controller is constructed, fatal to
//     startup.
//   - SensorError: a missing or stale reading at tick time, recovered locally
//     by treating the sensor as "no demand signal"; never fatal.
//   - ActuatorError: a pump or indicator binding that failed at setup, or a
//     command that could not be delivered.
//   - StorageError / DiscoveryError / NotificationError: infrastructure
//     failures around the control loop, logged and retried or spooled but
//     never allowed to stop the tick function.
//
// All types support errors.Is / errors.As inspection and wrap their
// underlying cause.
package errors

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration error caught at setup time.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// SensorError represents a failed or stale temperature reading.
type SensorError struct {
	Sensor string // Sensor role, e.g. "outlet", "return"
	Op     string // Operation being performed, e.g. "poll", "parse"
	Err    error  // Underlying error
}

func (e *SensorError) Error() string {
	if e.Sensor != "" {
		return fmt.Sprintf("sensor %s %s: %v", e.Sensor, e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("sensor %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sensor %s failed", e.Op)
}

func (e *SensorError) Unwrap() error {
	return e.Err
}

// NewSensorError creates a new sensor error.
func NewSensorError(sensor, op string, err error) *SensorError {
	return &SensorError{Sensor: sensor, Op: op, Err: err}
}

// IsSensorError checks if an error is a SensorError.
func IsSensorError(err error) bool {
	var se *SensorError
	return errors.As(err, &se)
}

// ActuatorError represents a failed pump or indicator command.
type ActuatorError struct {
	Actuator string // Actuator role, e.g. "pump", "led_green"
	Op       string // Operation being performed, e.g. "bind", "set"
	Err      error  // Underlying error
}

func (e *ActuatorError) Error() string {
	if e.Actuator != "" {
		return fmt.Sprintf("actuator %s %s: %v", e.Actuator, e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("actuator %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("actuator %s failed", e.Op)
}

func (e *ActuatorError) Unwrap() error {
	return e.Err
}

// NewActuatorError creates a new actuator error.
func NewActuatorError(actuator, op string, err error) *ActuatorError {
	return &ActuatorError{Actuator: actuator, Op: op, Err: err}
}

// IsActuatorError checks if an error is an ActuatorError.
func IsActuatorError(err error) bool {
	var ae *ActuatorError
	return errors.As(err, &ae)
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Op  string // Operation being performed, e.g. "write sample", "replay"
	Err error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// DiscoveryError represents an error during sensor node discovery.
type DiscoveryError struct {
	Op  string // Operation being performed, e.g. "mDNS scan", "resolve node"
	Err error  // Underlying error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("discovery %s failed", e.Op)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// NewDiscoveryError creates a new discovery error.
func NewDiscoveryError(op string, err error) *DiscoveryError {
	return &DiscoveryError{Op: op, Err: err}
}

// IsDiscoveryError checks if an error is a DiscoveryError.
func IsDiscoveryError(err error) bool {
	var de *DiscoveryError
	return errors.As(err, &de)
}

// NotificationError represents an error sending notifications.
type NotificationError struct {
	Type string // Notification type, e.g. "slack"
	Err  error  // Underlying error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("notification %s failed", e.Type)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new notification error.
func NewNotificationError(notifType string, err error) *NotificationError {
	return &NotificationError{Type: notifType, Err: err}
}

// IsNotificationError checks if an error is a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// Sentinel errors for common conditions
var (
	// ErrSensorStale indicates a sensor reading is too old to trust
	ErrSensorStale = errors.New("sensor reading stale")

	// ErrSensorUnavailable indicates a sensor has never produced a reading
	ErrSensorUnavailable = errors.New("sensor unavailable")

	// ErrNodeNotFound indicates a named sensor node was not discovered
	ErrNodeNotFound = errors.New("sensor node not found")

	// ErrStateCorrupt indicates the persisted runtime state failed validation
	ErrStateCorrupt = errors.New("persisted state corrupt")

	// ErrNotConnected indicates the MQTT broker connection is down
	ErrNotConnected = errors.New("broker not connected")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timeout")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
