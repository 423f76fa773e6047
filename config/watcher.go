// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package config

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hotcirc/hotcirc/pkg/logger"
)

// Watcher handles hot reloading of the configuration file on SIGHUP.
//
// Only a subset of the configuration is safe to change at runtime: log
// level and format, the notification webhook, and the poll/tick cadences.
// Changes to connection settings (broker, InfluxDB, sensor endpoints) and
// to the control thresholds require a restart; the watcher detects and
// reports them so a reload never silently half-applies.
type Watcher struct {
	path       string
	configChan chan<- *Config
	reloadChan chan os.Signal
	cancelFunc context.CancelFunc
	current    *Config
}

// NewWatcher creates a new configuration watcher. current is the config
// the daemon booted with, used to detect non-reloadable changes.
func NewWatcher(path string, current *Config, configChan chan<- *Config) *Watcher {
	return &Watcher{
		path:       path,
		configChan: configChan,
		reloadChan: make(chan os.Signal, 1),
		current:    current,
	}
}

// Start begins watching for SIGHUP signals to trigger a configuration
// reload.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancelFunc = context.WithCancel(ctx)
	signal.Notify(w.reloadChan, syscall.SIGHUP)

	go w.watch(ctx)
}

// Stop stops the configuration watcher.
func (w *Watcher) Stop() {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	signal.Stop(w.reloadChan)
}

// watch listens for reload signals and reloads the configuration.
func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.reloadChan:
			logger.Info().Msg("SIGHUP received, reloading configuration")
			w.Reload()
		}
	}
}

// Reload loads the file, reports ignored non-reloadable changes, and pushes
// the new configuration to the application.
func (w *Watcher) Reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload configuration, keeping current")
		return
	}

	for _, change := range w.restartOnlyChanges(cfg) {
		logger.Warn().
			Str("setting", change).
			Msg("Changed setting requires a restart, ignoring")
	}

	w.current = cfg
	w.configChan <- cfg
	logger.Info().Msg("Configuration reloaded")
}

// restartOnlyChanges lists the connection-level settings that differ from
// the running configuration.
func (w *Watcher) restartOnlyChanges(next *Config) []string {
	if w.current == nil {
		return nil
	}
	var changes []string
	if next.MQTT.Broker != w.current.MQTT.Broker {
		changes = append(changes, "mqtt.broker")
	}
	if next.InfluxDB.URL != w.current.InfluxDB.URL {
		changes = append(changes, "influxdb.url")
	}
	if next.Sensors.Outlet != w.current.Sensors.Outlet {
		changes = append(changes, "sensors.outlet")
	}
	if next.Sensors.Return != w.current.Sensors.Return {
		changes = append(changes, "sensors.return")
	}
	if next.Storage.StateFile != w.current.Storage.StateFile {
		changes = append(changes, "storage.state_file")
	}
	if controlChanged(&next.Control, &w.current.Control) {
		changes = append(changes, "control")
	}
	return changes
}

// controlChanged compares the restart-only control fields. The tick
// interval is reloadable and excluded; the learning flag is compared by
// effective value, not pointer.
func controlChanged(next, cur *ControlConfig) bool {
	if next.OutletRise != cur.OutletRise ||
		next.ReturnRise != cur.ReturnRise ||
		next.DisinfectionTempRise != cur.DisinfectionTempRise ||
		next.MinReturnTemp != cur.MinReturnTemp ||
		next.PumpFlowRate != cur.PumpFlowRate ||
		next.AntiStagnationInterval != cur.AntiStagnationInterval ||
		next.AntiStagnationRuntime != cur.AntiStagnationRuntime {
		return true
	}
	return next.LearningOn() != cur.LearningOn()
}
