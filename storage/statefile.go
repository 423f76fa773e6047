// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hotcirc/hotcirc/control"
	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/logger"
)

// StateStore persists the controller's runtime snapshot as JSON. Saves are
// atomic (write to a temp file, then rename) so a crash mid-save never
// leaves a truncated state file behind. Save is safe for concurrent use.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a state store at the given path. The parent
// directory is created if missing.
func NewStateStore(path string) (*StateStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorageError("create state dir", err)
	}
	return &StateStore{path: path}, nil
}

// Load reads the persisted snapshot. A missing file returns (nil, nil):
// first boot is not an error. A file that cannot be parsed returns an
// error wrapping ErrStateCorrupt; callers fall back to defaults.
func (ss *StateStore) Load() (*control.Snapshot, error) {
	data, err := os.ReadFile(ss.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageError("load state", err)
	}

	var snap control.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewStorageError("load state",
			fmt.Errorf("%w: %v", errors.ErrStateCorrupt, err))
	}

	logger.Info().Str("path", ss.path).Msg("Loaded runtime state")
	return &snap, nil
}

// Save persists the snapshot atomically.
func (ss *StateStore) Save(snap *control.Snapshot) error {
	if snap == nil {
		return errors.NewStorageError("save state", fmt.Errorf("snapshot cannot be nil"))
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.NewStorageError("save state", err)
	}

	tmp := ss.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewStorageError("save state", err)
	}
	if err := os.Rename(tmp, ss.path); err != nil {
		os.Remove(tmp)
		return errors.NewStorageError("save state", err)
	}

	logger.Debug().Str("path", ss.path).Msg("Saved runtime state")
	return nil
}

// Path returns the state file path.
func (ss *StateStore) Path() string {
	return ss.path
}
