// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/interfaces"
	"github.com/hotcirc/hotcirc/pkg/logger"
	"github.com/hotcirc/hotcirc/pkg/metrics"
)

const (
	cacheFilePrefix = "spool_"
	cacheFileExt    = ".json"
	defaultMaxSize  = 50 * 1024 * 1024 // 50 MB
	defaultMaxAge   = 7 * 24 * time.Hour
)

// LocalCache spools samples and cycles to disk while InfluxDB is down.
// Each entry is one JSON file so a crash mid-write loses at most one entry.
type LocalCache struct {
	cacheDir    string
	maxSize     int64
	maxAge      time.Duration
	mu          sync.Mutex // Protects currentSize and file operations
	currentSize int64
}

// CachedEntry is one spooled sample or cycle. Exactly one of Sample and
// Cycle is set.
type CachedEntry struct {
	Sample    *interfaces.Sample `json:"sample,omitempty"`
	Cycle     *interfaces.Cycle  `json:"cycle,omitempty"`
	CachedAt  time.Time          `json:"cached_at"`
	AttemptID string             `json:"attempt_id"`
}

// NewLocalCache creates the spool directory and indexes what is already
// there from a previous run.
func NewLocalCache(cacheDir string, maxSize int64, maxAge time.Duration) (*LocalCache, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.NewStorageError("create cache dir", err)
	}

	cache := &LocalCache{
		cacheDir: cacheDir,
		maxSize:  maxSize,
		maxAge:   maxAge,
	}

	if err := cache.updateCurrentSize(); err != nil {
		logger.Warn().Err(err).Msg("Failed to calculate initial cache size")
	}
	if err := cache.CleanupOld(); err != nil {
		logger.Warn().Err(err).Msg("Failed to cleanup old cache files")
	}
	cache.updateGauge()

	return cache, nil
}

// WriteSample spools one thermal sample.
func (lc *LocalCache) WriteSample(sample *interfaces.Sample) error {
	return lc.write(&CachedEntry{
		Sample:    sample,
		CachedAt:  time.Now(),
		AttemptID: fmt.Sprintf("%d_sample", time.Now().UnixNano()),
	})
}

// WriteCycle spools one completed pump cycle.
func (lc *LocalCache) WriteCycle(cycle *interfaces.Cycle) error {
	return lc.write(&CachedEntry{
		Cycle:     cycle,
		CachedAt:  time.Now(),
		AttemptID: fmt.Sprintf("%d_cycle", time.Now().UnixNano()),
	})
}

func (lc *LocalCache) write(entry *CachedEntry) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.currentSize >= lc.maxSize {
		return errors.NewStorageError("spool",
			fmt.Errorf("cache is full (%d >= %d bytes)", lc.currentSize, lc.maxSize))
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.NewStorageError("spool", err)
	}

	filename := lc.generateFilename(entry.AttemptID)
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.NewStorageError("spool", err)
	}

	lc.currentSize += int64(len(data))
	lc.updateGaugeLocked()

	logger.Debug().
		Str("filename", filepath.Base(filename)).
		Int64("cache_size", lc.currentSize).
		Msg("Spooled entry to cache")

	return nil
}

// ListCached returns all spooled entries sorted by spool time. Unreadable
// files are skipped, not fatal.
func (lc *LocalCache) ListCached() ([]*CachedEntry, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(lc.cacheDir, cacheFilePrefix+"*"+cacheFileExt))
	if err != nil {
		return nil, errors.NewStorageError("list cache", err)
	}

	var entries []*CachedEntry
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("Failed to read cache file")
			continue
		}

		var entry CachedEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("Failed to unmarshal cache file")
			continue
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.Before(entries[j].CachedAt)
	})

	return entries, nil
}

// DeleteCached deletes one spooled entry after a successful replay.
func (lc *LocalCache) DeleteCached(attemptID string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	filename := lc.generateFilename(attemptID)

	info, err := os.Stat(filename)
	if err != nil {
		return errors.NewStorageError("delete cached", err)
	}
	if err := os.Remove(filename); err != nil {
		return errors.NewStorageError("delete cached", err)
	}

	lc.currentSize -= info.Size()
	lc.updateGaugeLocked()
	return nil
}

// CleanupOld removes spooled entries older than maxAge.
func (lc *LocalCache) CleanupOld() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(lc.cacheDir, cacheFilePrefix+"*"+cacheFileExt))
	if err != nil {
		return errors.NewStorageError("cleanup cache", err)
	}

	cutoff := time.Now().Add(-lc.maxAge)
	deletedCount := 0

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}

		var entry CachedEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}

		if entry.CachedAt.Before(cutoff) {
			if err := os.Remove(file); err != nil {
				logger.Warn().Err(err).Str("file", file).Msg("Failed to delete old cache file")
				continue
			}
			deletedCount++
			lc.currentSize -= int64(len(data))
		}
	}

	if deletedCount > 0 {
		logger.Info().Int("count", deletedCount).Msg("Cleaned up old cache files")
		lc.updateGaugeLocked()
	}
	return nil
}

// Size returns the current cache size in bytes.
func (lc *LocalCache) Size() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.currentSize
}

// MaxSize returns the maximum cache size in bytes.
func (lc *LocalCache) MaxSize() int64 {
	return lc.maxSize
}

func (lc *LocalCache) updateCurrentSize() error {
	files, err := filepath.Glob(filepath.Join(lc.cacheDir, cacheFilePrefix+"*"+cacheFileExt))
	if err != nil {
		return errors.NewStorageError("index cache", err)
	}

	var totalSize int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		totalSize += info.Size()
	}

	lc.currentSize = totalSize
	return nil
}

func (lc *LocalCache) updateGauge() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.updateGaugeLocked()
}

func (lc *LocalCache) updateGaugeLocked() {
	files, err := filepath.Glob(filepath.Join(lc.cacheDir, cacheFilePrefix+"*"+cacheFileExt))
	if err != nil {
		return
	}
	metrics.CachedSamples.Set(float64(len(files)))
}

func (lc *LocalCache) generateFilename(attemptID string) string {
	return filepath.Join(lc.cacheDir, cacheFilePrefix+attemptID+cacheFileExt)
}
