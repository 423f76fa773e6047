// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

// Package device binds the controller to its physical collaborators: the
// two loop temperature sensors, the pump relay, the indicator LEDs and the
// momentary button. Sensors are polled over HTTP against ESP-style REST
// endpoints; actuators and the button speak MQTT.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/logger"
)

const (
	httpRequestTimeout = 5 * time.Second
	maxResponseBytes   = 4096
)

// sensorResponse is the JSON body an ESP node serves at /sensor/<id>.
// Value is a pointer so an unavailable sensor ("value": null) is
// distinguishable from a reading of zero.
type sensorResponse struct {
	ID    string   `json:"id"`
	Value *float64 `json:"value"`
	State string   `json:"state"`
}

// HTTPSensor polls one REST sensor endpoint in the background and serves
// the latest reading without blocking the control loop. A reading older
// than the staleness bound reports invalid through Current.
type HTTPSensor struct {
	name         string
	url          string
	pollInterval time.Duration
	staleness    time.Duration
	client       *http.Client

	mu     sync.RWMutex // Protects value, readAt, hasValue
	value  float64
	readAt time.Time

	hasValue bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewHTTPSensor creates a poller for one sensor endpoint. name is the
// sensor's role in log and error output ("outlet", "return").
func NewHTTPSensor(name, url string, pollInterval, staleness time.Duration) *HTTPSensor {
	return &HTTPSensor{
		name:         name,
		url:          url,
		pollInterval: pollInterval,
		staleness:    staleness,
		client:       &http.Client{Timeout: httpRequestTimeout},
	}
}

// Name returns the sensor's role name.
func (s *HTTPSensor) Name() string {
	return s.name
}

// SetPollInterval updates the polling cadence. The change takes effect on
// the next poll.
func (s *HTTPSensor) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.pollInterval = d
	s.mu.Unlock()
}

func (s *HTTPSensor) interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pollInterval
}

// Start begins background polling. The first poll happens immediately so
// the controller does not wait a full interval for its first reading.
func (s *HTTPSensor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.pollLoop(ctx)
}

// Stop halts background polling and waits for the poll goroutine to exit.
func (s *HTTPSensor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Current returns the latest reading and when it was taken. It returns
// ErrSensorUnavailable before the first successful poll and ErrSensorStale
// when the latest reading is older than the staleness bound.
func (s *HTTPSensor) Current() (float64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasValue {
		return 0, time.Time{}, errors.NewSensorError(s.name, "read", errors.ErrSensorUnavailable)
	}
	if time.Since(s.readAt) > s.staleness {
		return s.value, s.readAt, errors.NewSensorError(s.name, "read", errors.ErrSensorStale)
	}
	return s.value, s.readAt, nil
}

func (s *HTTPSensor) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	logger.Info().
		Str("sensor", s.name).
		Str("url", s.url).
		Dur("poll_interval", s.interval()).
		Msg("Starting sensor polling")

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	s.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("sensor", s.name).Msg("Stopped sensor polling")
			return
		case <-ticker.C:
			s.pollOnce(ctx)
			// Pick up runtime interval changes.
			ticker.Reset(s.interval())
		}
	}
}

// pollOnce fetches one reading. Failures are logged but never surfaced
// here; staleness in Current is what makes them visible to the controller.
func (s *HTTPSensor) pollOnce(ctx context.Context) {
	value, err := s.fetch(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("sensor", s.name).Msg("Sensor poll failed")
		return
	}

	s.mu.Lock()
	s.value = value
	s.readAt = time.Now()
	s.hasValue = true
	s.mu.Unlock()

	logger.Debug().
		Str("sensor", s.name).
		Float64("value", value).
		Msg("Sensor reading")
}

func (s *HTTPSensor) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, errors.NewSensorError(s.name, "build request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errors.NewSensorError(s.name, "poll", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.NewSensorError(s.name, "poll",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body sensorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return 0, errors.NewSensorError(s.name, "parse", err)
	}
	if body.Value == nil || math.IsNaN(*body.Value) {
		return 0, errors.NewSensorError(s.name, "parse", errors.ErrSensorUnavailable)
	}
	return *body.Value, nil
}
