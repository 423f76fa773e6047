// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the recirculation controller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PumpState tracks whether the pump is currently running (1) or idle (0)
	PumpState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotcirc_pump_state",
		Help: "Current pump state (1 running, 0 idle)",
	})

	// ControllerState tracks the controller state as an enumerated value
	ControllerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotcirc_controller_state",
		Help: "Controller state (0 idle, 1 demand, 2 stagnation, 3 manual, 4 scheduled)",
	})

	// PumpRunsTotal tracks completed pump runs by trigger
	PumpRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotcirc_pump_runs_total",
		Help: "Total number of completed pump runs by trigger",
	}, []string{"trigger"})

	// OutletTemperature tracks the latest outlet sensor reading
	OutletTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotcirc_outlet_temperature_celsius",
		Help: "Latest outlet temperature reading in degrees Celsius",
	})

	// ReturnTemperature tracks the latest return sensor reading
	ReturnTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotcirc_return_temperature_celsius",
		Help: "Latest return temperature reading in degrees Celsius",
	})

	// CycleEnergy tracks the energy moved by the last completed pump cycle
	CycleEnergy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotcirc_cycle_energy_wh",
		Help: "Energy moved by the last completed pump cycle in watt hours",
	})

	// SecondsSinceLastFlush tracks the age of the anti-stagnation clock
	SecondsSinceLastFlush = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotcirc_seconds_since_last_flush",
		Help: "Seconds elapsed since the last completed anti-stagnation flush",
	})

	// DisinfectionsTotal tracks recorded thermal disinfection events
	DisinfectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotcirc_disinfections_total",
		Help: "Total number of recorded thermal disinfection events",
	})

	// SensorReadErrors tracks failed or stale sensor readings by sensor role
	SensorReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotcirc_sensor_read_errors_total",
		Help: "Total number of failed or stale sensor readings",
	}, []string{"sensor"})

	// InfluxDBWritesTotal tracks the total number of writes to InfluxDB
	InfluxDBWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotcirc_influxdb_writes_total",
		Help: "Total number of writes to InfluxDB",
	})

	// InfluxDBWriteErrors tracks the number of failed writes to InfluxDB
	InfluxDBWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotcirc_influxdb_write_errors_total",
		Help: "Total number of failed writes to InfluxDB",
	})

	// CachedSamples tracks samples currently spooled to the local disk cache
	CachedSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotcirc_cached_samples",
		Help: "Number of samples spooled to the local disk cache awaiting replay",
	})

	// DiscoveryDuration tracks how long sensor node discovery takes
	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotcirc_discovery_duration_seconds",
		Help:    "Duration of sensor node discovery in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TickDuration tracks how long one control tick takes end to end
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotcirc_tick_duration_seconds",
		Help:    "Duration of one control tick in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})

	// NotificationsTotal tracks alerts sent by type
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotcirc_notifications_total",
		Help: "Total number of alert notifications sent by type",
	}, []string{"type"})
)
