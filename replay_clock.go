// FILE: replay_clock.go
// Package main – ReplayClock: the virtual one-minute-step time cursor.
//
// Adapted from the candle-by-candle pacing in other example replayers (see
// DESIGN.md), but driven by a logical minute grid instead of a wall-clock
// sleep: spec.md's engine needs deterministic, instant replay, not a
// real-time simulation.
package main

// ReplayClock advances in MinuteMillis steps from startMillis to endMillis
// inclusive (spec.md §3, §4.4).
type ReplayClock struct {
	startMillis int64
	endMillis   int64
	clock       int64
}

// NewReplayClock builds a clock starting at startMillis. Returns
// *ConfigFailureError if endMillis < startMillis (spec.md §7).
func NewReplayClock(startMillis, endMillis int64) (*ReplayClock, error) {
	if endMillis < startMillis {
		return nil, &ConfigFailureError{Reason: "simulation end before start"}
	}
	return &ReplayClock{startMillis: startMillis, endMillis: endMillis, clock: startMillis}, nil
}

// Now returns the clock's current value in milliseconds.
func (c *ReplayClock) Now() int64 { return c.clock }

// Done reports whether the clock has advanced past the simulation end
// (state "done" in spec.md §4.4).
func (c *ReplayClock) Done() bool { return c.clock > c.endMillis }

// WindowBounds returns the current minute bucket [lo, hi) used by
// dispatch_loop.go's window predicate: lo is the clock itself, hi is one
// minute later.
func (c *ReplayClock) WindowBounds() (lo, hi int64) {
	return c.clock, c.clock + MinuteMillis
}

// Advance steps the clock forward by one minute. Called once per dispatch
// pass, after dispatch_loop.go has drained every reader's in-window
// candles for the window just scanned (spec.md §4.4).
func (c *ReplayClock) Advance() { c.clock += MinuteMillis }
