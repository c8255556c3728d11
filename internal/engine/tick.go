// Package engine provides the day-stepping simulation loop.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward one simulated day per step.
type Engine struct {
	Date     time.Time     // Current simulated date (the last day stepped)
	Day      uint64        // Days stepped so far
	Interval time.Duration // Wall-clock pause per day (0 = as fast as possible)

	running atomic.Bool

	// Callbacks, populated during setup. OnYear fires before OnDay on the
	// first day of every calendar year, including the first day run.
	OnDay  func(date time.Time) error
	OnYear func(year int) error
}

// NewEngine creates an engine whose first step lands on start.
func NewEngine(start time.Time) *Engine {
	return &Engine{
		Date: start.AddDate(0, 0, -1),
	}
}

// Today returns the current simulated date. It satisfies flow.Clock.
func (e *Engine) Today() time.Time {
	return e.Date
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run steps days until Stop is called, a callback fails, or days have been
// stepped (days <= 0 runs until stopped).
func (e *Engine) Run(days int) error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "date", SimTime(e.Date.AddDate(0, 0, 1)), "days", days)

	for n := 0; days <= 0 || n < days; n++ {
		if !e.running.Load() {
			break
		}

		start := time.Now()
		if err := e.step(); err != nil {
			slog.Error("simulation engine failed", "date", SimTime(e.Date), "error", err)
			return err
		}

		if elapsed := time.Since(start); elapsed < e.Interval {
			time.Sleep(e.Interval - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "date", SimTime(e.Date), "day", e.Day)
	return nil
}

// Stop halts Run after the current day.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the simulation by one day.
func (e *Engine) step() error {
	prev := e.Date
	e.Date = e.Date.AddDate(0, 0, 1)
	e.Day++

	if (e.Day == 1 || e.Date.Year() != prev.Year()) && e.OnYear != nil {
		if err := e.OnYear(e.Date.Year()); err != nil {
			return fmt.Errorf("year %d: %w", e.Date.Year(), err)
		}
	}
	if e.OnDay != nil {
		if err := e.OnDay(e.Date); err != nil {
			return fmt.Errorf("day %s: %w", SimTime(e.Date), err)
		}
	}
	return nil
}

// SimTime formats a simulated date.
func SimTime(date time.Time) string {
	return date.Format("2006-01-02")
}
