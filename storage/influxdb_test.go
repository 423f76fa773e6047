// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package storage

import (
	"testing"
	"time"

	"github.com/hotcirc/hotcirc/config"
	hcerrors "github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/interfaces"
)

func TestNewInfluxDBStorageUnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping connection test in short mode")
	}

	storage, err := NewInfluxDBStorage(config.InfluxDBConfig{
		URL:          "http://invalid-host-that-does-not-exist:8086",
		Token:        "testtoken123",
		Organization: "home",
		Bucket:       "hotcirc",
	})
	if err == nil {
		storage.Close()
		t.Fatal("NewInfluxDBStorage() should fail with an unreachable host")
	}
	if !hcerrors.IsStorageError(err) {
		t.Errorf("error should be a StorageError, got %v", err)
	}
	if storage != nil {
		t.Error("NewInfluxDBStorage() should return nil storage on error")
	}
}

func TestWriteSampleValidation(t *testing.T) {
	// Validation happens before any backend traffic, so a zero-value
	// storage is enough for these cases.
	s := &InfluxDBStorage{}

	tests := []struct {
		name   string
		sample *interfaces.Sample
	}{
		{"nil sample", nil},
		{"zero timestamp", &interfaces.Sample{State: "IDLE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.WriteSample(tt.sample)
			if err == nil {
				t.Fatal("WriteSample() should fail")
			}
			if !hcerrors.IsStorageError(err) {
				t.Errorf("error should be a StorageError, got %v", err)
			}
		})
	}
}

func TestWriteCycleValidation(t *testing.T) {
	s := &InfluxDBStorage{}

	tests := []struct {
		name  string
		cycle *interfaces.Cycle
	}{
		{"nil cycle", nil},
		{"zero end", &interfaces.Cycle{Start: time.Now(), Trigger: "demand"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.WriteCycle(tt.cycle)
			if err == nil {
				t.Fatal("WriteCycle() should fail")
			}
			if !hcerrors.IsStorageError(err) {
				t.Errorf("error should be a StorageError, got %v", err)
			}
		})
	}
}
