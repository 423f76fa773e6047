// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hotcirc/hotcirc/control"
	hcerrors "github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/logger"
)

func init() {
	logger.Initialize("error", "json")
}

func TestStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewStateStore(path)
	if err != nil {
		t.Fatalf("NewStateStore() error: %v", err)
	}

	snap := &control.Snapshot{
		LastFlush:        time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC),
		LastDisinfection: time.Date(2025, 2, 28, 18, 30, 0, 0, time.UTC),
		LastDraw:         time.Date(2025, 3, 1, 7, 15, 0, 0, time.UTC),
		LastDecayDay:     "2025-03-01",
	}
	snap.Learning[0][14] = 120
	snap.Learning[6][36] = 85

	if err := store.Save(snap); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() returned nil snapshot")
	}

	if !loaded.LastFlush.Equal(snap.LastFlush) {
		t.Errorf("LastFlush = %v, want %v", loaded.LastFlush, snap.LastFlush)
	}
	if !loaded.LastDisinfection.Equal(snap.LastDisinfection) {
		t.Errorf("LastDisinfection = %v, want %v", loaded.LastDisinfection, snap.LastDisinfection)
	}
	if !loaded.LastDraw.Equal(snap.LastDraw) {
		t.Errorf("LastDraw = %v, want %v", loaded.LastDraw, snap.LastDraw)
	}
	if loaded.LastDecayDay != "2025-03-01" {
		t.Errorf("LastDecayDay = %q, want 2025-03-01", loaded.LastDecayDay)
	}
	if loaded.Learning[0][14] != 120 || loaded.Learning[6][36] != 85 {
		t.Error("learning matrix did not survive the round trip")
	}
}

func TestStateStoreLoadMissingFile(t *testing.T) {
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewStateStore() error: %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Errorf("Load() on first boot should not fail, got %v", err)
	}
	if snap != nil {
		t.Errorf("Load() = %+v, want nil for a missing file", snap)
	}
}

func TestStateStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStateStore(path)
	if err != nil {
		t.Fatalf("NewStateStore() error: %v", err)
	}

	_, err = store.Load()
	if err == nil {
		t.Fatal("Load() should fail for corrupt state")
	}
	if !errors.Is(err, hcerrors.ErrStateCorrupt) {
		t.Errorf("error should wrap ErrStateCorrupt, got %v", err)
	}
}

func TestStateStoreSaveNil(t *testing.T) {
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewStateStore() error: %v", err)
	}
	if err := store.Save(nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}

func TestStateStoreSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store, err := NewStateStore(path)
	if err != nil {
		t.Fatalf("NewStateStore() error: %v", err)
	}

	if err := store.Save(&control.Snapshot{LastDecayDay: "2025-03-01"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Save(&control.Snapshot{LastDecayDay: "2025-03-02"}); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	// No temp file left behind after a successful save.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away after Save()")
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.LastDecayDay != "2025-03-02" {
		t.Errorf("LastDecayDay = %q, want the second save", loaded.LastDecayDay)
	}
}

func TestStateStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")
	store, err := NewStateStore(path)
	if err != nil {
		t.Fatalf("NewStateStore() error: %v", err)
	}
	if err := store.Save(&control.Snapshot{}); err != nil {
		t.Errorf("Save() into nested dir error: %v", err)
	}
}
