// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"context"
	"sync"
	"time"

	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/interfaces"
	"github.com/hotcirc/hotcirc/pkg/logger"
	"github.com/hotcirc/hotcirc/pkg/metrics"
)

// Bindings connects the controller to its physical collaborators. Outlet,
// Return and Pump are required; the LEDs and the button are optional and
// may be nil.
type Bindings struct {
	Outlet    interfaces.TemperatureSource
	Return    interfaces.TemperatureSource
	Pump      interfaces.Switch
	GreenLED  interfaces.Switch
	YellowLED interfaces.Switch
	Button    interfaces.ButtonSource
}

// Validate checks that all required bindings are present.
func (b *Bindings) Validate() error {
	if b.Outlet == nil {
		return errors.NewSensorError("outlet", "bind", errors.ErrSensorUnavailable)
	}
	if b.Return == nil {
		return errors.NewSensorError("return", "bind", errors.ErrSensorUnavailable)
	}
	if b.Pump == nil {
		return errors.NewActuatorError("pump", "bind", errors.ErrNotConnected)
	}
	return nil
}

// Runner drives the controller with a wall-clock ticker, snapshots the
// sensor and button inputs each tick, applies the output commands, and
// fans samples, cycles and events out to buffered channels for the data
// writer. The controller itself is only ever touched by the runner's loop
// goroutine and, under the mutex, by Snapshot.
type Runner struct {
	ctrl     *HotWaterController
	bindings Bindings
	interval time.Duration

	samples chan *interfaces.Sample
	cycles  chan *interfaces.Cycle
	events  chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lastPump   *bool
	lastGreen  *bool
	lastYellow *bool
}

// NewRunner creates a runner. It fails when a required binding is missing.
func NewRunner(ctrl *HotWaterController, bindings Bindings, interval time.Duration) (*Runner, error) {
	if err := bindings.Validate(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		ctrl:     ctrl,
		bindings: bindings,
		interval: interval,
		samples:  make(chan *interfaces.Sample, 256),
		cycles:   make(chan *interfaces.Cycle, 16),
		events:   make(chan Event, 64),
	}, nil
}

// Samples returns the channel of per-tick thermal samples.
func (r *Runner) Samples() <-chan *interfaces.Sample {
	return r.samples
}

// Cycles returns the channel of completed pump cycles.
func (r *Runner) Cycles() <-chan *interfaces.Cycle {
	return r.cycles
}

// Events returns the channel of controller events.
func (r *Runner) Events() <-chan Event {
	return r.events
}

// Snapshot returns the controller's persistable state. Safe to call from
// any goroutine.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl.Snapshot()
}

// SetInterval updates the tick cadence. The change takes effect on the
// next tick.
func (r *Runner) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.mu.Lock()
	r.interval = interval
	r.mu.Unlock()
}

func (r *Runner) tickInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Start launches the tick loop.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.tickInterval())
		defer ticker.Stop()

		logger.Info().
			Dur("interval", r.tickInterval()).
			Msg("Control loop started")

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.tickOnce(ctx, now)
				// Pick up runtime interval changes.
				ticker.Reset(r.tickInterval())
			}
		}
	}()
}

// Stop halts the tick loop and drives the pump and LEDs to their safe
// state (everything off), then closes the output channels.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	// Fail safe: never leave the pump running unattended.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.bindings.Pump.Set(ctx, false); err != nil {
		logger.Error().Err(err).Msg("Failed to command pump off during shutdown")
	}
	if r.bindings.GreenLED != nil {
		_ = r.bindings.GreenLED.Set(ctx, false)
	}
	if r.bindings.YellowLED != nil {
		_ = r.bindings.YellowLED.Set(ctx, false)
	}

	close(r.samples)
	close(r.cycles)
	close(r.events)
	logger.Info().Msg("Control loop stopped")
}

func (r *Runner) tickOnce(ctx context.Context, now time.Time) {
	start := time.Now()

	in := Input{
		Now:    now,
		Outlet: r.readSensor("outlet", r.bindings.Outlet),
		Return: r.readSensor("return", r.bindings.Return),
	}
	if r.bindings.Button != nil {
		in.Button = r.bindings.Button.Pressed()
	}

	r.mu.Lock()
	out := r.ctrl.Tick(in)
	state := r.ctrl.State()
	flushAge := r.ctrl.SecondsSinceLastFlush(now)
	r.mu.Unlock()

	r.applyOutputs(ctx, out)
	r.publish(now, in, state, out)

	metrics.PumpState.Set(boolToFloat(out.Pump))
	metrics.ControllerState.Set(float64(state))
	metrics.SecondsSinceLastFlush.Set(flushAge)
	if in.Outlet.Valid {
		metrics.OutletTemperature.Set(in.Outlet.Value)
	}
	if in.Return.Valid {
		metrics.ReturnTemperature.Set(in.Return.Value)
	}
	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (r *Runner) readSensor(role string, src interfaces.TemperatureSource) Reading {
	value, _, err := src.Current()
	if err != nil {
		metrics.SensorReadErrors.WithLabelValues(role).Inc()
		logger.Debug().
			Err(err).
			Str("sensor", role).
			Msg("Sensor reading unavailable")
		return Reading{}
	}
	return Reading{Value: value, Valid: true}
}

func (r *Runner) applyOutputs(ctx context.Context, out Output) {
	r.lastPump = r.setIfChanged(ctx, "pump", r.bindings.Pump, out.Pump, r.lastPump)
	r.lastGreen = r.setIfChanged(ctx, "led_green", r.bindings.GreenLED, out.GreenLED, r.lastGreen)
	r.lastYellow = r.setIfChanged(ctx, "led_yellow", r.bindings.YellowLED, out.YellowLED, r.lastYellow)
}

// setIfChanged commands an actuator only on transitions. A failed command
// leaves the cached state unset so the next tick retries.
func (r *Runner) setIfChanged(ctx context.Context, role string, sw interfaces.Switch, want bool, last *bool) *bool {
	if sw == nil {
		return nil
	}
	if last != nil && *last == want {
		return last
	}
	if err := sw.Set(ctx, want); err != nil {
		logger.Error().
			Err(errors.NewActuatorError(role, "set", err)).
			Bool("state", want).
			Msg("Actuator command failed")
		return nil
	}
	return &want
}

func (r *Runner) publish(now time.Time, in Input, state State, out Output) {
	sample := &interfaces.Sample{
		Timestamp:   now,
		Outlet:      in.Outlet.Value,
		OutletValid: in.Outlet.Valid,
		Return:      in.Return.Value,
		ReturnValid: in.Return.Valid,
		PumpOn:      out.Pump,
		State:       state.String(),
	}
	select {
	case r.samples <- sample:
	default:
		logger.Warn().Msg("Sample channel full, dropping sample")
	}

	for _, ev := range out.Events {
		switch ev.Kind {
		case EventRunStarted:
			logger.Info().
				Str("trigger", ev.Trigger.String()).
				Msg("Pump run started")
		case EventRunStopped:
			logger.Info().
				Str("trigger", ev.Trigger.String()).
				Msg("Pump run stopped")
		case EventFlushCompleted:
			logger.Info().
				Str("trigger", ev.Trigger.String()).
				Msg("Stagnation clock reset by completed run")
		case EventDisinfection:
			metrics.DisinfectionsTotal.Inc()
			logger.Info().Msg("Thermal disinfection recorded")
		case EventVacationEntered:
			logger.Warn().Msg("Entering vacation mode, no water draw for 24h")
		case EventVacationExited:
			logger.Info().Msg("Exiting vacation mode, water draw detected")
		}
		select {
		case r.events <- ev:
		default:
			logger.Warn().Str("kind", ev.Kind.String()).Msg("Event channel full, dropping event")
		}
	}

	if out.Cycle != nil {
		metrics.PumpRunsTotal.WithLabelValues(out.Cycle.Trigger.String()).Inc()
		metrics.CycleEnergy.Set(out.Cycle.EnergyWh)
		cycle := &interfaces.Cycle{
			Start:        out.Cycle.Start,
			End:          out.Cycle.End,
			Trigger:      out.Cycle.Trigger.String(),
			Duration:     out.Cycle.Duration.Seconds(),
			EnergyWh:     out.Cycle.EnergyWh,
			Disinfection: out.Cycle.Disinfection,
		}
		select {
		case r.cycles <- cycle:
		default:
			logger.Warn().Msg("Cycle channel full, dropping cycle")
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
