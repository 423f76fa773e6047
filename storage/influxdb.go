// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package storage persists thermal samples and pump cycles to InfluxDB,
// spooling to a local disk cache while the backend is unreachable, and
// keeps the controller's runtime state on disk across restarts.
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/hotcirc/hotcirc/config"
	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/interfaces"
	"github.com/hotcirc/hotcirc/pkg/logger"
	"github.com/hotcirc/hotcirc/pkg/metrics"
)

const (
	measurementSample = "recirculation"
	measurementCycle  = "pump_cycle"

	connectCheckTimeout = 5 * time.Second
	writeTimeout        = 5 * time.Second

	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 30 * time.Second
)

// InfluxDBStorage writes thermal samples and pump cycles to InfluxDB v2.
// Writes go through a circuit breaker so a dead backend fails fast instead
// of stalling the data writer on every sample.
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	breaker  *gobreaker.CircuitBreaker
	org      string
	bucket   string
}

// NewInfluxDBStorage creates a storage client and verifies the connection.
func NewInfluxDBStorage(cfg config.InfluxDBConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), connectCheckTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, errors.NewStorageError("connect", err)
	}
	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, errors.NewStorageError("connect", fmt.Errorf("health check failed: %s", message))
	}

	logger.Info().Str("url", cfg.URL).Str("status", string(health.Status)).Msg("Connected to InfluxDB")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influxdb",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("InfluxDB circuit breaker state changed")
		},
	})

	return &InfluxDBStorage{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		breaker:  breaker,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// WriteSample writes one thermal sample. Invalid sensor readings are
// omitted from the point rather than recorded as zeros.
func (s *InfluxDBStorage) WriteSample(sample *interfaces.Sample) error {
	if sample == nil {
		return errors.NewStorageError("write sample", fmt.Errorf("sample cannot be nil"))
	}
	if sample.Timestamp.IsZero() {
		return errors.NewStorageError("write sample", fmt.Errorf("timestamp cannot be zero"))
	}

	fields := map[string]interface{}{
		"pump_on": sample.PumpOn,
	}
	if sample.OutletValid {
		fields["outlet"] = sample.Outlet
	}
	if sample.ReturnValid {
		fields["return"] = sample.Return
	}

	p := influxdb2.NewPoint(
		measurementSample,
		map[string]string{"state": sample.State},
		fields,
		sample.Timestamp,
	)
	return s.writePoint("write sample", p)
}

// WriteCycle writes one completed pump cycle, stamped at the cycle's end.
func (s *InfluxDBStorage) WriteCycle(cycle *interfaces.Cycle) error {
	if cycle == nil {
		return errors.NewStorageError("write cycle", fmt.Errorf("cycle cannot be nil"))
	}
	if cycle.End.IsZero() {
		return errors.NewStorageError("write cycle", fmt.Errorf("cycle end cannot be zero"))
	}

	p := influxdb2.NewPoint(
		measurementCycle,
		map[string]string{"trigger": cycle.Trigger},
		map[string]interface{}{
			"duration_s":   cycle.Duration,
			"energy_wh":    cycle.EnergyWh,
			"disinfection": cycle.Disinfection,
		},
		cycle.End,
	)
	return s.writePoint("write cycle", p)
}

// writePoint pushes one point through the circuit breaker.
func (s *InfluxDBStorage) writePoint(op string, p *write.Point) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return nil, s.writeAPI.WritePoint(ctx, p)
	})
	if err != nil {
		metrics.InfluxDBWriteErrors.Inc()
		return errors.NewStorageError(op, err)
	}

	metrics.InfluxDBWritesTotal.Inc()
	return nil
}

// Flush is a no-op: the blocking write API has no pending buffer.
func (s *InfluxDBStorage) Flush() {}

// Close closes the InfluxDB client.
func (s *InfluxDBStorage) Close() {
	logger.Info().Msg("Closing InfluxDB connection")
	s.client.Close()
}

// Health checks if the InfluxDB backend is healthy.
func (s *InfluxDBStorage) Health(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return errors.NewStorageError("health", err)
	}
	if health.Status != "pass" {
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return errors.NewStorageError("health", fmt.Errorf("health check failed: %s", message))
	}
	return nil
}
