// Package engine provides the tick loop and the simulation controller that
// steps every intersection, vehicle and drone once per tick.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultReportEvery is how often the engine fires OnReport, in ticks.
const DefaultReportEvery = 25

// Engine drives the simulation forward.
type Engine struct {
	MaxTicks    uint64        // Stop after this many ticks; 0 runs until cancelled
	Delay       time.Duration // Pause between ticks; 0 runs flat out
	ReportEvery uint64        // Ticks between OnReport calls; 0 disables

	// Callbacks, populated during setup.
	OnTick   func(tick uint64) // Every tick
	OnReport func(tick uint64) // Every ReportEvery ticks

	tick    atomic.Uint64
	running atomic.Bool
	stop    atomic.Bool
}

// NewEngine creates an engine that runs maxTicks ticks with the given delay.
func NewEngine(maxTicks uint64, delay time.Duration) *Engine {
	return &Engine{
		MaxTicks:    maxTicks,
		Delay:       delay,
		ReportEvery: DefaultReportEvery,
	}
}

// Tick returns the number of ticks completed so far.
func (e *Engine) Tick() uint64 {
	return e.tick.Load()
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run steps until MaxTicks is reached, Stop is called, or ctx is done.
// Cancellation is only observed between ticks; a tick in progress always
// completes. It returns ctx.Err() when cancelled and nil otherwise.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	e.stop.Store(false)

	slog.Info("simulation engine started", "tick", e.Tick(), "max_ticks", e.MaxTicks, "delay", e.Delay)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for e.MaxTicks == 0 || e.Tick() < e.MaxTicks {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation engine cancelled", "tick", e.Tick())
			return err
		}
		if e.stop.Load() {
			break
		}

		e.step()

		if e.Delay <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(e.Delay)
		} else {
			timer.Reset(e.Delay)
		}
		select {
		case <-ctx.Done():
			slog.Info("simulation engine cancelled", "tick", e.Tick())
			return ctx.Err()
		case <-timer.C:
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick())
	return nil
}

// Stop asks Run to return before the next tick.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	tick := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(tick)
	}

	if e.ReportEvery > 0 && tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
}
