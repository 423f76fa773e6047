// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hotcirc/hotcirc/pkg/interfaces"
	"github.com/hotcirc/hotcirc/pkg/logger"
)

const (
	healthCheckInterval = 30 * time.Second
	replayFlushBatch    = 100
	alertTimeout        = 5 * time.Second
	cacheWarnRatio      = 0.8
)

// CachingStorage wraps InfluxDBStorage with the local disk spool. While the
// backend is down, writes divert to the spool; a background goroutine
// watches the backend's health and replays the spool when it recovers.
type CachingStorage struct {
	storage  interfaces.TimeSeriesStorage
	cache    *LocalCache
	notifier interfaces.Notifier

	ctx      context.Context
	cancel   context.CancelFunc
	replayWg sync.WaitGroup

	spoolMu     sync.RWMutex // Protects spoolActive
	spoolActive bool
}

// NewCachingStorage creates the caching wrapper and starts the health
// monitor. notifier may be nil.
func NewCachingStorage(storage interfaces.TimeSeriesStorage, cache *LocalCache, notifier interfaces.Notifier) *CachingStorage {
	ctx, cancel := context.WithCancel(context.Background())

	cs := &CachingStorage{
		storage:  storage,
		cache:    cache,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}

	cs.replayWg.Add(1)
	go cs.monitorAndReplay()

	return cs
}

// WriteSample writes a thermal sample, spooling it locally when the
// backend write fails.
func (cs *CachingStorage) WriteSample(sample *interfaces.Sample) error {
	err := cs.storage.WriteSample(sample)
	if err == nil {
		return nil
	}
	return cs.spool(err, func() error { return cs.cache.WriteSample(sample) })
}

// WriteCycle writes a completed pump cycle, spooling it locally when the
// backend write fails.
func (cs *CachingStorage) WriteCycle(cycle *interfaces.Cycle) error {
	err := cs.storage.WriteCycle(cycle)
	if err == nil {
		return nil
	}
	return cs.spool(err, func() error { return cs.cache.WriteCycle(cycle) })
}

// spool diverts one failed write to the local cache and raises the spool
// alert on the first activation.
func (cs *CachingStorage) spool(writeErr error, cacheWrite func() error) error {
	logger.Warn().Err(writeErr).Msg("InfluxDB write failed, spooling locally")

	cs.spoolMu.Lock()
	firstActivation := !cs.spoolActive
	cs.spoolActive = true
	cs.spoolMu.Unlock()

	if firstActivation {
		cs.alert("warning", "Storage spooling activated",
			fmt.Sprintf("InfluxDB writes are failing (%v); samples are spooling to the local disk cache", writeErr))
	}

	if cacheErr := cacheWrite(); cacheErr != nil {
		return fmt.Errorf("backend write failed and spool failed: backend=%w, spool=%w", writeErr, cacheErr)
	}

	if float64(cs.cache.Size())/float64(cs.cache.MaxSize()) > cacheWarnRatio {
		cs.alert("warning", "Storage spool nearly full",
			fmt.Sprintf("Local spool at %d of %d bytes", cs.cache.Size(), cs.cache.MaxSize()))
	}
	return nil
}

// Flush flushes pending backend writes.
func (cs *CachingStorage) Flush() {
	cs.storage.Flush()
}

// Close stops the health monitor and closes the backend.
func (cs *CachingStorage) Close() {
	logger.Info().Msg("Closing caching storage")
	cs.cancel()
	cs.replayWg.Wait()
	cs.storage.Close()
}

// Health checks backend health.
func (cs *CachingStorage) Health(ctx context.Context) error {
	return cs.storage.Health(ctx)
}

// Spooling reports whether writes are currently diverting to the local
// cache.
func (cs *CachingStorage) Spooling() bool {
	cs.spoolMu.RLock()
	defer cs.spoolMu.RUnlock()
	return cs.spoolActive
}

// monitorAndReplay watches backend health while the spool is active and
// replays spooled entries once the backend recovers.
func (cs *CachingStorage) monitorAndReplay() {
	defer cs.replayWg.Done()

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cs.ctx.Done():
			return
		case <-ticker.C:
			if cs.ctx.Err() != nil {
				return
			}
			if !cs.Spooling() {
				continue
			}

			healthCtx, healthCancel := context.WithTimeout(cs.ctx, alertTimeout)
			err := cs.storage.Health(healthCtx)
			healthCancel()

			if err != nil {
				logger.Debug().Err(err).Msg("InfluxDB still unhealthy, keeping spool active")
				continue
			}

			logger.Info().Msg("InfluxDB is healthy, replaying spooled data")
			if replayErr := cs.replaySpooled(); replayErr != nil {
				logger.Error().Err(replayErr).Msg("Failed to replay spooled data")
				continue
			}

			cs.spoolMu.Lock()
			cs.spoolActive = false
			cs.spoolMu.Unlock()

			cs.alert("info", "Storage recovered",
				"InfluxDB writes are healthy again; spooled data has been replayed")
		}
	}
}

// replaySpooled writes all spooled entries back to the backend in spool
// order, deleting each one that lands.
func (cs *CachingStorage) replaySpooled() error {
	entries, err := cs.cache.ListCached()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Info().Msg("No spooled entries to replay")
		return nil
	}

	logger.Info().Int("count", len(entries)).Msg("Replaying spooled entries")

	successCount := 0
	failCount := 0

	for _, entry := range entries {
		var writeErr error
		switch {
		case entry.Sample != nil:
			writeErr = cs.storage.WriteSample(entry.Sample)
		case entry.Cycle != nil:
			writeErr = cs.storage.WriteCycle(entry.Cycle)
		default:
			// Neither set: drop the malformed entry.
			writeErr = nil
		}

		if writeErr != nil {
			logger.Warn().Err(writeErr).Str("attempt_id", entry.AttemptID).
				Msg("Failed to replay spooled entry")
			failCount++
			continue
		}

		if err := cs.cache.DeleteCached(entry.AttemptID); err != nil {
			logger.Warn().Err(err).Str("attempt_id", entry.AttemptID).
				Msg("Failed to delete replayed entry from spool")
		}
		successCount++

		if successCount%replayFlushBatch == 0 {
			cs.storage.Flush()
		}
	}

	cs.storage.Flush()

	logger.Info().
		Int("success", successCount).
		Int("failed", failCount).
		Int("total", len(entries)).
		Msg("Finished replaying spooled entries")

	return nil
}

// alert sends one notification, swallowing notifier failures.
func (cs *CachingStorage) alert(level, title, message string) {
	if cs.notifier == nil || !cs.notifier.IsEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(cs.ctx, alertTimeout)
	defer cancel()
	if err := cs.notifier.SendAlert(ctx, level, title, message); err != nil {
		logger.Error().Err(err).Str("title", title).Msg("Failed to send storage alert")
	}
}
