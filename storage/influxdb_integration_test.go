// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/influxdb"

	"github.com/hotcirc/hotcirc/config"
	"github.com/hotcirc/hotcirc/pkg/interfaces"
)

// startInfluxDB brings up a disposable InfluxDB container and returns a
// connected storage client.
func startInfluxDB(t *testing.T) *InfluxDBStorage {
	t.Helper()
	ctx := context.Background()

	container, err := influxdb.Run(ctx,
		"influxdb:2.7-alpine",
		influxdb.WithV2Auth("test-org", "test-bucket", "test-user", "test-password"),
		influxdb.WithV2AdminToken("test-token"),
	)
	if err != nil {
		t.Fatalf("Failed to start InfluxDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionUrl(ctx)
	if err != nil {
		t.Fatalf("Failed to get InfluxDB URL: %v", err)
	}

	storage, err := NewInfluxDBStorage(config.InfluxDBConfig{
		URL:          url,
		Token:        "test-token",
		Organization: "test-org",
		Bucket:       "test-bucket",
	})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(storage.Close)

	return storage
}

func TestIntegrationWriteSampleAndCycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	storage := startInfluxDB(t)
	ctx := context.Background()

	sample := &interfaces.Sample{
		Timestamp:   time.Now(),
		Outlet:      44.5,
		OutletValid: true,
		Return:      38.0,
		ReturnValid: true,
		PumpOn:      true,
		State:       "DEMAND_RUN",
	}
	if err := storage.WriteSample(sample); err != nil {
		t.Fatalf("WriteSample() error: %v", err)
	}

	cycle := &interfaces.Cycle{
		Start:        time.Now().Add(-45 * time.Second),
		End:          time.Now(),
		Trigger:      "demand",
		Duration:     45,
		EnergyWh:     12.5,
		Disinfection: false,
	}
	if err := storage.WriteCycle(cycle); err != nil {
		t.Fatalf("WriteCycle() error: %v", err)
	}

	storage.Flush()

	if err := storage.Health(ctx); err != nil {
		t.Errorf("Health() error: %v", err)
	}
}

func TestIntegrationInvalidSensorOmitted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	storage := startInfluxDB(t)

	// An invalid sensor still produces a valid point (pump state only).
	sample := &interfaces.Sample{
		Timestamp:   time.Now(),
		OutletValid: false,
		ReturnValid: false,
		PumpOn:      false,
		State:       "IDLE",
	}
	if err := storage.WriteSample(sample); err != nil {
		t.Errorf("WriteSample() with invalid sensors error: %v", err)
	}
}

func TestIntegrationHealthWithTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	storage := startInfluxDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := storage.Health(ctx); err != nil {
		t.Errorf("Health() with timeout error: %v", err)
	}
}
