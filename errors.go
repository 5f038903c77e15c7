// FILE: errors.go
// Package main – Error kinds for the replay engine (spec.md §7).
//
//   - LoadFailure   – one symbol's candle source could not be produced.
//                     Recovered locally by stream_loader.go: logged, symbol
//                     dropped from the run.
//   - EmptyReplay   – dispatch_loop.go processed zero candles. Fatal for the
//                     run; surfaced to the caller as an *EmptyReplayError.
//   - EngineFailure – returned by an Engine.Process call; not caught here,
//                     propagated straight out of dispatch_loop.go.
//   - ConfigFailure – invalid time bounds (end < start) etc.; the caller's
//                     responsibility, checked fast by simulation_driver.go.
package main

import "fmt"

// LoadFailureError wraps the underlying cause of a failed per-symbol load.
type LoadFailureError struct {
	Symbol Symbol
	Cause  error
}

func (e *LoadFailureError) Error() string {
	return fmt.Sprintf("load failed for %s: %v", e.Symbol, e.Cause)
}

func (e *LoadFailureError) Unwrap() error { return e.Cause }

// EmptyReplayError is raised when a run's dispatch loop processed zero
// candles end to end. Message mirrors spec.md §7's literal wording.
type EmptyReplayError struct {
	StartMillis int64
	EndMillis   int64
}

func (e *EmptyReplayError) Error() string {
	return fmt.Sprintf("no candles processed in simulation from %d to %d", e.StartMillis, e.EndMillis)
}

// ConfigFailureError reports an invalid simulation configuration.
type ConfigFailureError struct {
	Reason string
}

func (e *ConfigFailureError) Error() string {
	return fmt.Sprintf("invalid simulation configuration: %s", e.Reason)
}
