// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package app wires the controller to its sensors, actuators, storage and
// operational surfaces, and owns the daemon lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/hotcirc/hotcirc/config"
	"github.com/hotcirc/hotcirc/control"
	"github.com/hotcirc/hotcirc/device"
	"github.com/hotcirc/hotcirc/discovery"
	hcerrors "github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/interfaces"
	"github.com/hotcirc/hotcirc/pkg/logger"
	"github.com/hotcirc/hotcirc/pkg/notifications"
	"github.com/hotcirc/hotcirc/storage"
)

const (
	signalChannelSize     = 1
	discoveryTimeout      = 10 * time.Second
	alertContextTimeout   = 5 * time.Second
	publishTimeout        = 5 * time.Second
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
	flushTimeout          = 10 * time.Second

	// watchdogInterval paces the flush-overdue and sensor-health checks.
	watchdogInterval = time.Minute
	// sensorInvalidAlertAfter is how long a sensor may stay invalid before
	// an alert is raised.
	sensorInvalidAlertAfter = 10 * time.Minute
	// flushOverdueRatio is the fraction of the anti-stagnation interval the
	// flush may run late before an alert is raised.
	flushOverdueRatio = 0.25
)

// App represents the running daemon.
type App struct {
	cfg         *config.Config
	metricsPort string

	server        *http.Server
	scanner       *discovery.Scanner
	conn          *device.Conn
	outletSensor  *device.HTTPSensor
	returnSensor  *device.HTTPSensor
	runner        *control.Runner
	publisher     *device.MQTTCyclePublisher
	db            *storage.CachingStorage
	influxDB      interfaces.TimeSeriesStorage
	stateStore    *storage.StateStore
	notifier      *notifications.SlackNotifier
	configWatcher *config.Watcher
	configChan    chan *config.Config

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the application and its storage and notification components.
// Device connections are deferred to Run so discovery can resolve sensor
// endpoints first.
func New(cfg *config.Config, metricsPort string, configPath string) (*App, error) {
	app := &App{
		cfg:         cfg,
		metricsPort: metricsPort,
		configChan:  make(chan *config.Config),
	}
	app.configWatcher = config.NewWatcher(configPath, cfg, app.configChan)

	if err := app.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	if cfg.Discovery.Enabled {
		app.scanner = discovery.NewScanner(cfg.Discovery.ServiceType, cfg.Discovery.Domain)
	}

	return app, nil
}

// Run starts the daemon and blocks until shutdown.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()

	a.startMetricsServer()
	a.setupSignalHandler()
	a.startConfigWatcher()

	if err := a.connectDevices(ctx); err != nil {
		return err
	}
	if err := a.startController(ctx); err != nil {
		a.stopDevices()
		return err
	}

	a.startDataWriter(ctx)
	a.startWatchdog(ctx)

	logger.Info().Msg("Recirculation controller running")
	a.runMainLoop(ctx)
	return nil
}

// initializeComponents initializes the notifier, storage layers and the
// metrics server.
func (a *App) initializeComponents() error {
	a.notifier = notifications.NewSlackNotifier(a.cfg.Notifications.SlackWebhookURL)
	if a.notifier.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}

	influxDB, err := storage.NewInfluxDBStorage(a.cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("failed to initialize InfluxDB: %w", err)
	}
	a.influxDB = influxDB

	cache, err := storage.NewLocalCache(a.cfg.Storage.CacheDir, 0, 0)
	if err != nil {
		influxDB.Close()
		return fmt.Errorf("failed to initialize local cache: %w", err)
	}
	logger.Info().Str("directory", a.cfg.Storage.CacheDir).Msg("Local cache initialized")

	a.db = storage.NewCachingStorage(influxDB, cache, a.notifier)

	a.stateStore, err = storage.NewStateStore(a.cfg.Storage.StateFile)
	if err != nil {
		a.db.Close()
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, a.influxDB)
	}))

	a.server = &http.Server{
		Addr:    "localhost:" + a.metricsPort,
		Handler: mux,
	}

	return nil
}

// connectDevices resolves the sensor endpoints, connects to the broker and
// starts the sensor pollers.
func (a *App) connectDevices(ctx context.Context) error {
	if a.scanner != nil {
		a.discoverNodes(ctx)
	}

	outletURL, err := a.resolveSensorURL(a.cfg.Sensors.Outlet)
	if err != nil {
		return fmt.Errorf("failed to resolve outlet sensor: %w", err)
	}
	returnURL, err := a.resolveSensorURL(a.cfg.Sensors.Return)
	if err != nil {
		return fmt.Errorf("failed to resolve return sensor: %w", err)
	}

	a.conn, err = device.Connect(a.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	poll := a.cfg.Sensors.PollInterval.Std()
	staleness := a.cfg.Sensors.Staleness.Std()
	a.outletSensor = device.NewHTTPSensor("outlet", outletURL, poll, staleness)
	a.returnSensor = device.NewHTTPSensor("return", returnURL, poll, staleness)
	a.outletSensor.Start(ctx)
	a.returnSensor.Start(ctx)

	a.publisher = a.conn.CyclePublisher(a.cfg.MQTT.Topics.Events)

	return nil
}

// resolveSensorURL turns a sensor config entry into a REST endpoint, either
// directly or through a discovered node.
func (a *App) resolveSensorURL(sc config.SensorConfig) (string, error) {
	if sc.URL != "" {
		return sc.URL, nil
	}
	if a.scanner == nil {
		return "", fmt.Errorf("sensor node %q configured but discovery is disabled", sc.Node)
	}
	return a.scanner.ResolveSensorURL(sc.Node, sc.ID)
}

// startController restores persisted state, builds the controller and starts
// the tick loop.
func (a *App) startController(ctx context.Context) error {
	snap, err := a.stateStore.Load()
	if err != nil {
		if errors.Is(err, hcerrors.ErrStateCorrupt) {
			logger.Warn().Err(err).Msg("State file corrupt, starting with fresh state")
		} else {
			return fmt.Errorf("failed to load controller state: %w", err)
		}
	}
	var snapshot control.Snapshot
	if snap != nil {
		snapshot = *snap
		logger.Info().
			Time("last_flush", snapshot.LastFlush).
			Time("last_disinfection", snapshot.LastDisinfection).
			Msg("Controller state restored")
	} else {
		logger.Info().Msg("No persisted state, controller starting fresh")
	}

	ctrl := control.New(controllerConfig(a.cfg.Control), snapshot, time.Now())

	bindings := control.Bindings{
		Outlet: a.outletSensor,
		Return: a.returnSensor,
		Pump:   a.conn.Switch("pump", a.cfg.MQTT.Topics.Pump),
	}
	if topic := a.cfg.MQTT.Topics.GreenLED; topic != "" {
		bindings.GreenLED = a.conn.Switch("led_green", topic)
	}
	if topic := a.cfg.MQTT.Topics.YellowLED; topic != "" {
		bindings.YellowLED = a.conn.Switch("led_yellow", topic)
	}
	if topic := a.cfg.MQTT.Topics.Button; topic != "" {
		button, err := a.conn.Button(topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to button topic: %w", err)
		}
		bindings.Button = button
	}

	runner, err := control.NewRunner(ctrl, bindings, a.cfg.Control.TickInterval.Std())
	if err != nil {
		return fmt.Errorf("failed to create control runner: %w", err)
	}
	a.runner = runner
	a.runner.Start(ctx)

	return nil
}

// controllerConfig maps the YAML control section onto the controller's
// configuration.
func controllerConfig(c config.ControlConfig) control.Config {
	return control.Config{
		OutletRise:             c.OutletRise,
		ReturnRise:             c.ReturnRise,
		DisinfectionTempRise:   c.DisinfectionTempRise,
		MinReturnTemp:          c.MinReturnTemp,
		PumpFlowRate:           c.PumpFlowRate,
		AntiStagnationInterval: c.AntiStagnationInterval.Std(),
		AntiStagnationRuntime:  c.AntiStagnationRuntime.Std(),
		LearningEnabled:        c.LearningOn(),
	}
}

// startMetricsServer starts the HTTP server for metrics and health checks.
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// startDataWriter drains the runner's sample, cycle and event channels into
// storage, MQTT and the state file. The runner closes all three channels on
// Stop, so the writer exits once they are exhausted and never loses a cycle
// completed during shutdown.
func (a *App) startDataWriter(ctx context.Context) {
	samples := a.runner.Samples()
	cycles := a.runner.Cycles()
	events := a.runner.Events()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for samples != nil || cycles != nil || events != nil {
			select {
			case sample, ok := <-samples:
				if !ok {
					samples = nil
					continue
				}
				if err := a.db.WriteSample(sample); err != nil {
					logger.Error().Err(err).Msg("Failed to write sample")
				}
			case cycle, ok := <-cycles:
				if !ok {
					cycles = nil
					continue
				}
				a.handleCycle(cycle)
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				a.handleEvent(ev)
			}
		}
		logger.Info().Msg("Data writer goroutine shutting down")
	}()
}

// handleCycle records a completed pump run in storage, publishes it on the
// event topic and persists the controller state.
func (a *App) handleCycle(cycle *interfaces.Cycle) {
	if err := a.db.WriteCycle(cycle); err != nil {
		logger.Error().Err(err).Str("trigger", cycle.Trigger).Msg("Failed to write cycle")
	}

	// Background context: a cycle completed during shutdown still gets
	// published.
	pubCtx, pubCancel := context.WithTimeout(context.Background(), publishTimeout)
	defer pubCancel()
	if err := a.publisher.PublishCycle(pubCtx, cycle); err != nil {
		logger.Error().Err(err).Str("trigger", cycle.Trigger).Msg("Failed to publish cycle")
	}

	a.persistState()
}

// handleEvent reacts to controller events: state persistence on the hygiene
// milestones, alerts for the notable ones.
func (a *App) handleEvent(ev control.Event) {
	switch ev.Kind {
	case control.EventFlushCompleted, control.EventMatrixDecayed:
		a.persistState()
	case control.EventDisinfection:
		a.persistState()
		a.sendAlert("good", "Thermal disinfection recorded",
			"The loop reached disinfection temperature; water is fresh.")
	case control.EventVacationEntered:
		a.sendAlert("warning", "Vacation mode entered",
			"No water draw for 24 hours. Demand and scheduled runs are suspended, hygiene flushes continue.")
	case control.EventVacationExited:
		a.sendAlert("good", "Vacation mode exited",
			"Water draw detected, normal operation resumed.")
	}
}

// persistState writes the controller snapshot to the state file.
func (a *App) persistState() {
	snap := a.runner.Snapshot()
	if err := a.stateStore.Save(&snap); err != nil {
		logger.Error().Err(err).Msg("Failed to persist controller state")
	}
}

// startWatchdog periodically checks for an overdue anti-stagnation flush and
// for sensors that have been invalid too long.
func (a *App) startWatchdog(ctx context.Context) {
	interval := a.cfg.Control.AntiStagnationInterval.Std()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(watchdogInterval)
		defer ticker.Stop()

		var flushAlerted bool
		sensors := []*device.HTTPSensor{a.outletSensor, a.returnSensor}
		invalidSince := make([]time.Time, len(sensors))
		invalidAlerted := make([]bool, len(sensors))

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				flushAlerted = a.checkFlushOverdue(interval, flushAlerted)
				for i, sensor := range sensors {
					invalidSince[i], invalidAlerted[i] = a.checkSensorHealth(
						sensor, invalidSince[i], invalidAlerted[i])
				}
			}
		}
	}()
}

// checkFlushOverdue alerts once per episode when the hygiene flush runs more
// than flushOverdueRatio past its interval.
func (a *App) checkFlushOverdue(interval time.Duration, alerted bool) bool {
	snap := a.runner.Snapshot()
	overdue := time.Since(snap.LastFlush) - interval
	if overdue <= time.Duration(flushOverdueRatio*float64(interval)) {
		return false
	}
	if !alerted {
		a.sendAlert("warning", "Anti-stagnation flush overdue",
			fmt.Sprintf("The hygiene flush is %s overdue. Check pump and sensors.", overdue.Round(time.Minute)))
	}
	return true
}

// checkSensorHealth alerts once per episode when a sensor stays invalid past
// sensorInvalidAlertAfter.
func (a *App) checkSensorHealth(sensor *device.HTTPSensor, since time.Time, alerted bool) (time.Time, bool) {
	_, _, err := sensor.Current()
	if err == nil {
		return time.Time{}, false
	}
	if since.IsZero() {
		return time.Now(), false
	}
	if !alerted && time.Since(since) > sensorInvalidAlertAfter {
		a.sendAlert("danger", "Sensor unavailable",
			fmt.Sprintf("The %s sensor has been invalid for over %s: %v",
				sensor.Name(), sensorInvalidAlertAfter, err))
		return since, true
	}
	return since, alerted
}

// sendAlert delivers a notification with a bounded context, logging failures.
// Alerts use a fresh context so they still go out during shutdown.
func (a *App) sendAlert(level, title, message string) {
	if a.notifier == nil || !a.notifier.IsEnabled() {
		return
	}
	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	defer alertCancel()
	if err := a.notifier.SendAlert(alertCtx, level, title, message); err != nil {
		logger.Error().Err(err).Str("title", title).Msg("Failed to send alert")
	}
}

// setupSignalHandler sets up graceful shutdown on interrupt signals.
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// runMainLoop runs the periodic node rediscovery loop until shutdown.
func (a *App) runMainLoop(ctx context.Context) {
	var rescan <-chan time.Time
	if a.scanner != nil {
		ticker := time.NewTicker(a.cfg.Discovery.ScanInterval.Std())
		defer ticker.Stop()
		rescan = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down")
			a.performCleanup()
			return
		case <-rescan:
			if ctx.Err() != nil {
				return
			}
			a.discoverNodes(ctx)
		}
	}
}

// discoverNodes performs one mDNS scan and reports the result.
func (a *App) discoverNodes(ctx context.Context) {
	logger.Info().Msg("Performing sensor node discovery")
	found, err := a.scanner.Discover(ctx, discoveryTimeout)
	if err != nil {
		logger.Error().Err(err).Msg("Discovery failed")
		a.sendAlert("warning", "Sensor node discovery failure",
			fmt.Sprintf("Failed to discover sensor nodes: %v", err))
		return
	}
	logger.Info().
		Int("total_nodes", len(a.scanner.GetNodes())).
		Int("found", len(found)).
		Msg("Discovery complete")
}

// performGracefulShutdown stops the outward-facing components, drives the
// pump to its safe state and cancels the run context.
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	if a.runner != nil {
		a.runner.Stop()
		a.persistState()
	}
	a.stopDevices()
	a.configWatcher.Stop()
	a.cancel()
}

// stopDevices stops the sensor pollers.
func (a *App) stopDevices() {
	if a.outletSensor != nil {
		a.outletSensor.Stop()
	}
	if a.returnSensor != nil {
		a.returnSensor.Stop()
	}
}

// performCleanup flushes storage, waits for goroutines and releases the
// broker connection.
func (a *App) performCleanup() {
	flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
	defer flushCancel()

	flushDone := make(chan struct{})
	go func() {
		a.db.Flush()
		close(flushDone)
	}()

	select {
	case <-flushDone:
		logger.Info().Msg("Storage flush completed")
	case <-flushCtx.Done():
		logger.Warn().Msg("Storage flush timeout - some data may be lost")
	}

	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()

	a.db.Close()
	if a.conn != nil {
		a.conn.Close()
	}
	logger.Info().Msg("All goroutines finished, exiting")
}

// UpdateConfig applies a reloaded configuration. Logging, the notification
// webhook and the poll/tick cadences take effect at runtime; the watcher
// reports anything else that changed.
func (a *App) UpdateConfig(newCfg *config.Config) {
	if newCfg.Logging != a.cfg.Logging {
		logger.Initialize(newCfg.Logging.Level, newCfg.Logging.Format)
		logger.Info().
			Str("level", newCfg.Logging.Level).
			Str("format", newCfg.Logging.Format).
			Msg("Logging reconfigured")
	}
	a.notifier.UpdateWebhookURL(newCfg.Notifications.SlackWebhookURL)

	if a.runner != nil {
		a.runner.SetInterval(newCfg.Control.TickInterval.Std())
	}
	if a.outletSensor != nil {
		a.outletSensor.SetPollInterval(newCfg.Sensors.PollInterval.Std())
	}
	if a.returnSensor != nil {
		a.returnSensor.SetPollInterval(newCfg.Sensors.PollInterval.Std())
	}

	a.cfg = newCfg
	logger.Info().Msg("Application configuration updated")
}

// startConfigWatcher listens for reloaded configurations from the watcher.
func (a *App) startConfigWatcher() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config watcher goroutine shutting down")
				return
			case newCfg := <-a.configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// DumpApplicationState dumps the current daemon state to the logs.
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	if a.runner != nil {
		snap := a.runner.Snapshot()
		logger.Info().
			Time("last_flush", snap.LastFlush).
			Time("last_disinfection", snap.LastDisinfection).
			Time("last_draw", snap.LastDraw).
			Str("last_decay_day", snap.LastDecayDay).
			Msg("Controller state")
	}

	if a.scanner != nil {
		nodes := a.scanner.GetNodes()
		logger.Info().Int("total_nodes", len(nodes)).Msg("Discovery state")
		for _, node := range nodes {
			logger.Info().
				Str("name", node.Name).
				Str("address", node.Address.String()).
				Int("port", node.Port).
				Str("version", node.Version()).
				Msg("Discovered node")
		}
	}

	logger.Info().
		Bool("spooling", a.db.Spooling()).
		Bool("mqtt_connected", a.conn != nil && a.conn.IsConnected()).
		Msg("Connectivity state")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to the logs.
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024)
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting.
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles liveness requests.
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler reports ready only while the storage backend is
// reachable.
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, db interfaces.TimeSeriesStorage) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		logger.Warn().Err(err).Msg("Readiness check failed: InfluxDB unhealthy")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte("NOT READY: InfluxDB unhealthy")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}
