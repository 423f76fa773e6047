// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package control

import (
	"time"
)

const (
	// minRunTime is the shortest a demand, manual or scheduled run may last
	minRunTime = 30 * time.Second
	// maxRunTime is the safety cap on any pump run
	maxRunTime = 480 * time.Second
	// disinfectionCooldown limits how often a disinfection can be recorded
	disinfectionCooldown = time.Hour
	// freshnessWindow is how long the green LED stays lit after a disinfection
	freshnessWindow = 24 * time.Hour
	// vacationAfter is how long without a water draw before vacation mode
	vacationAfter = 24 * time.Hour
	// repeatDrawWindow suppresses a new demand run shortly after the last run,
	// when the loop is still warm
	repeatDrawWindow = 30 * time.Minute
	// flushLockout suppresses learning and scheduled runs after a hygiene
	// flush so the flush's own temperature swing is not mistaken for usage
	flushLockout = 30 * time.Minute

	// demandExitMargin is subtracted from the return rise threshold for the
	// demand-run exit so the run ends just before the full rise, avoiding
	// overshoot on slow sensors
	demandExitMargin = 0.2
	// minDemandExitRise keeps the effective exit threshold positive for
	// small configured rises
	minDemandExitRise = 0.05
)

// Config holds the controller's tuning parameters. Durations and thresholds
// are validated upstream by the config package; SetDefaults fills zero
// values for direct construction in tests.
type Config struct {
	OutletRise             float64       // °C rise on outlet that counts as a water draw
	ReturnRise             float64       // °C rise on return that ends a demand run
	DisinfectionTempRise   float64       // °C outlet rise that qualifies as disinfection
	MinReturnTemp          float64       // °C floor the return must hold during disinfection
	PumpFlowRate           float64       // litres per minute, for energy accounting
	AntiStagnationInterval time.Duration // max time water may sit in the loop
	AntiStagnationRuntime  time.Duration // duration of a hygiene flush
	LearningEnabled        bool          // usage-pattern learning and scheduled runs
}

// SetDefaults fills unset fields with the standard values.
func (c *Config) SetDefaults() {
	if c.OutletRise == 0 {
		c.OutletRise = 1.5
	}
	if c.ReturnRise == 0 {
		c.ReturnRise = 2.0
	}
	if c.DisinfectionTempRise == 0 {
		c.DisinfectionTempRise = 10.0
	}
	if c.MinReturnTemp == 0 {
		c.MinReturnTemp = 35.0
	}
	if c.PumpFlowRate == 0 {
		c.PumpFlowRate = 6.0
	}
	if c.AntiStagnationInterval == 0 {
		c.AntiStagnationInterval = 48 * time.Hour
	}
	if c.AntiStagnationRuntime == 0 {
		c.AntiStagnationRuntime = 15 * time.Second
	}
}

// HotWaterController is the recirculation state machine. It owns no
// goroutines and performs no I/O; a single caller drives it with Tick.
type HotWaterController struct {
	cfg Config

	state    State
	trigger  Trigger
	runStart time.Time

	outletRise   *RiseDetector
	returnRise   *RiseDetector
	stagnation   *StagnationScheduler
	disinfection *DisinfectionMonitor
	energy       *EnergyTracker
	schedule     *Schedule

	lastDraw     time.Time
	lastRunEnd   time.Time
	lastFlushEnd time.Time
	vacation     bool
}

// New creates a controller from configuration and a persisted snapshot.
// A zero snapshot yields safe defaults: the stagnation clock and draw clock
// start at now, and the learning matrix seeds with the typical pattern.
func New(cfg Config, snap Snapshot, now time.Time) *HotWaterController {
	cfg.SetDefaults()

	lastFlush := snap.LastFlush
	if lastFlush.IsZero() {
		lastFlush = now
	}
	lastDraw := snap.LastDraw
	if lastDraw.IsZero() {
		lastDraw = now
	}
	lastDecayDay := snap.LastDecayDay
	if lastDecayDay == "" {
		lastDecayDay = now.Format("2006-01-02")
	}

	exitRise := cfg.ReturnRise - demandExitMargin
	if exitRise < minDemandExitRise {
		exitRise = minDemandExitRise
	}

	return &HotWaterController{
		cfg:          cfg,
		state:        StateIdle,
		outletRise:   NewRiseDetector(cfg.OutletRise),
		returnRise:   NewRiseDetector(exitRise),
		stagnation:   NewStagnationScheduler(cfg.AntiStagnationInterval, lastFlush),
		disinfection: NewDisinfectionMonitor(cfg.DisinfectionTempRise, cfg.MinReturnTemp, disinfectionCooldown, snap.LastDisinfection),
		energy:       NewEnergyTracker(cfg.PumpFlowRate),
		schedule:     NewSchedule(snap.Learning, lastDecayDay),
		lastDraw:     lastDraw,
	}
}

// State returns the current controller state.
func (c *HotWaterController) State() State {
	return c.state
}

// Vacation reports whether vacation mode is active.
func (c *HotWaterController) Vacation() bool {
	return c.vacation
}

// SecondsSinceLastFlush returns the age of the stagnation clock.
func (c *HotWaterController) SecondsSinceLastFlush(now time.Time) float64 {
	return now.Sub(c.stagnation.LastFlush()).Seconds()
}

// FlushOverdue returns how far past due the hygiene flush is.
func (c *HotWaterController) FlushOverdue(now time.Time) time.Duration {
	return c.stagnation.Overdue(now)
}

// Snapshot returns the persistable controller state.
func (c *HotWaterController) Snapshot() Snapshot {
	return Snapshot{
		LastFlush:        c.stagnation.LastFlush(),
		LastDisinfection: c.disinfection.LastRecorded(),
		LastDraw:         c.lastDraw,
		LastDecayDay:     c.schedule.LastDecayDay(),
		Learning:         c.schedule.Weights(),
	}
}

// Tick advances the state machine by one step. Every call produces a
// complete Output; the pump command is true exactly when the controller is
// in a non-idle state after the tick.
func (c *HotWaterController) Tick(in Input) Output {
	var out Output

	// Daily matrix decay runs regardless of pump state but not on vacation.
	if !c.vacation && c.schedule.DecayIfNewDay(in.Now) {
		out.Events = append(out.Events, Event{Kind: EventMatrixDecayed, At: in.Now})
	}

	// Vacation entry is checked every tick. Exit happens on draw detection.
	if !c.vacation && in.Now.Sub(c.lastDraw) >= vacationAfter {
		c.vacation = true
		out.Events = append(out.Events, Event{Kind: EventVacationEntered, At: in.Now})
	}

	if c.state == StateIdle {
		c.tickIdle(in, &out)
	} else {
		c.tickRunning(in, &out)
	}

	out.Pump = c.state != StateIdle
	out.YellowLED = out.Pump
	out.GreenLED = !out.Pump && c.waterFresh(in.Now)
	return out
}

func (c *HotWaterController) waterFresh(now time.Time) bool {
	last := c.disinfection.LastRecorded()
	return !last.IsZero() && now.Sub(last) <= freshnessWindow
}

func (c *HotWaterController) tickIdle(in Input, out *Output) {
	// Draw detection runs every idle tick, even on vacation: a draw is the
	// only way out of vacation mode. An invalid outlet contributes nothing.
	draw := false
	if in.Outlet.Valid {
		draw = c.outletRise.Update(in.Outlet.Value)
	}

	if draw {
		// Re-baseline at the elevated temperature so a single draw is a
		// single event rather than one per tick while the outlet stays hot.
		c.outletRise.Reset()
		c.lastDraw = in.Now
		if c.vacation {
			c.vacation = false
			out.Events = append(out.Events, Event{Kind: EventVacationExited, At: in.Now})
		}
		if c.cfg.LearningEnabled && !c.inFlushLockout(in.Now) {
			c.schedule.Learn(in.Now)
		}
	}

	// Start arbitration: manual beats stagnation beats demand beats
	// scheduled. Stagnation ignores sensor validity entirely.
	switch {
	case in.Button:
		c.start(in, TriggerManual, out)
	case c.stagnation.IsDue(in.Now):
		c.start(in, TriggerStagnation, out)
	case draw && !c.inRepeatDrawWindow(in.Now) && !c.vacation:
		c.start(in, TriggerDemand, out)
	case c.scheduledDue(in):
		c.schedule.MarkTriggered(in.Now)
		c.start(in, TriggerScheduled, out)
	}
}

func (c *HotWaterController) scheduledDue(in Input) bool {
	if !c.cfg.LearningEnabled || c.vacation || c.inFlushLockout(in.Now) {
		return false
	}
	if !c.schedule.Due(in.Now) {
		return false
	}
	// No point pre-circulating a loop that is already warm.
	if in.Return.Valid && in.Return.Value >= c.cfg.MinReturnTemp {
		c.schedule.MarkTriggered(in.Now)
		return false
	}
	return true
}

func (c *HotWaterController) inRepeatDrawWindow(now time.Time) bool {
	return !c.lastRunEnd.IsZero() && now.Sub(c.lastRunEnd) < repeatDrawWindow
}

func (c *HotWaterController) inFlushLockout(now time.Time) bool {
	return !c.lastFlushEnd.IsZero() && now.Sub(c.lastFlushEnd) < flushLockout
}

func (c *HotWaterController) start(in Input, trigger Trigger, out *Output) {
	switch trigger {
	case TriggerStagnation:
		c.state = StateStagnationFlush
	case TriggerManual:
		c.state = StateManualRun
	case TriggerScheduled:
		c.state = StateScheduledRun
	default:
		c.state = StateDemandRun
	}
	c.trigger = trigger
	c.runStart = in.Now

	// Circulating water invalidates both references; they re-baseline from
	// the first valid reading after the run ends.
	c.outletRise.Reset()
	c.returnRise.Reset()
	if in.Return.Valid {
		c.returnRise.Update(in.Return.Value)
	}

	c.disinfection.BeginRun(in.Outlet)
	c.energy.Begin(in.Now)

	out.Events = append(out.Events, Event{Kind: EventRunStarted, At: in.Now, Trigger: trigger})
}

func (c *HotWaterController) tickRunning(in Input, out *Output) {
	elapsed := in.Now.Sub(c.runStart)

	if c.disinfection.Observe(in.Now, in.Outlet, in.Return) {
		out.Events = append(out.Events, Event{Kind: EventDisinfection, At: in.Now, Trigger: c.trigger})
	}
	c.energy.Observe(in.Now, in.Outlet, in.Return)

	// The button escalates any run to manual. Manual outranks everything,
	// so the run continues under manual exit rules.
	if in.Button && c.state != StateManualRun {
		c.state = StateManualRun
		c.trigger = TriggerManual
	}

	returnRisen := false
	if in.Return.Valid {
		returnRisen = c.returnRise.Update(in.Return.Value)
	}

	stop := false
	switch c.state {
	case StateStagnationFlush:
		stop = elapsed >= c.cfg.AntiStagnationRuntime
	case StateManualRun:
		stop = elapsed >= minRunTime && !in.Button
	case StateDemandRun:
		stop = elapsed >= minRunTime && returnRisen
	case StateScheduledRun:
		stop = elapsed >= minRunTime && in.Return.Valid && in.Return.Value >= c.cfg.MinReturnTemp
	}
	if elapsed >= maxRunTime {
		stop = true
	}

	if stop {
		c.stop(in, out)
	}
}

func (c *HotWaterController) stop(in Input, out *Output) {
	duration := in.Now.Sub(c.runStart)
	achieved := c.disinfection.EndRun()
	energyWh := c.energy.Finish()

	// Any run long enough to displace the loop volume counts as a flush.
	if duration >= c.cfg.AntiStagnationRuntime {
		c.stagnation.MarkFlushed(in.Now)
		out.Events = append(out.Events, Event{Kind: EventFlushCompleted, At: in.Now, Trigger: c.trigger})
	}
	if c.trigger == TriggerStagnation {
		c.lastFlushEnd = in.Now
	}
	c.lastRunEnd = in.Now

	out.Events = append(out.Events, Event{Kind: EventRunStopped, At: in.Now, Trigger: c.trigger})
	out.Cycle = &CycleEvent{
		Start:        c.runStart,
		End:          in.Now,
		Trigger:      c.trigger,
		Duration:     duration,
		EnergyWh:     energyWh,
		Disinfection: achieved,
	}

	c.state = StateIdle
	c.outletRise.Reset()
	c.returnRise.Reset()
}
