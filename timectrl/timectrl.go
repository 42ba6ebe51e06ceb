package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// Listener is invoked once per control cycle with the cycle number (starting
// at 1) and the simulation time at the end of the cycle.
type Listener func(cycle uint64, now time.Time)

// TimeController drives the fixed-rate control cycle and notifies registered
// listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	cycle       uint64

	listeners []Listener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Cycle returns the number of completed cycles.
func (tc *TimeController) Cycle() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.cycle
}

// AddListener registers a callback invoked on every cycle, in registration
// order.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances simulation time by one Tick and runs the listeners
// synchronously. It returns the completed cycle number.
func (tc *TimeController) Step() uint64 {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.cycle++
	now, cycle := tc.currentTime, tc.cycle
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(cycle, now)
	}
	return cycle
}

// Run steps the controller until duration of simulation time has elapsed
// (forever when duration is 0) or ctx is cancelled. In RealTime mode each
// step waits for a wall-clock tick; in Accelerated mode steps run back to
// back.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	tc.mu.Lock()
	tc.currentTime = tc.StartTime
	tc.mu.Unlock()

	var tick <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()
		tick = ticker.C
	}

	elapsed := time.Duration(0)
	for {
		if duration > 0 && elapsed >= duration {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		tc.Step()
		elapsed += tc.Tick
	}
}
