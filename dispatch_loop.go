// FILE: dispatch_loop.go
// Package main – DispatchLoop: the hot loop that drives every candle in
// every reader's stream through its Engines exactly once, in strict
// chronological order (spec.md §4.3).
//
// Grounded on the candle-by-candle drain loop in the pack's replay.go
// (other_examples/…marketdata-replay-replay.go), generalized from a single
// merged+sorted slice to the spec's one-pending-candle-per-reader design so
// no reader needs its whole stream buffered up front.
package main

import "log"

// RunDispatchLoop drives readers (already sorted by SortReaders) across
// clock's minute grid until clock.Done(). Returns the total number of
// candles dispatched, or the first EngineFailure a reader's Engines
// returned (propagated unmodified, per spec.md §7).
func RunDispatchLoop(clock *ReplayClock, readers []*MarketReader, isHistorical bool) (int64, error) {
	var candlesProcessed int64

	for !clock.Done() {
		lo, hi := clock.WindowBounds()

		// Readers are scanned in sorted-symbol order (spec.md §4.2 tie-break).
		// Each reader is drained of every pending candle that still falls in
		// this window — including ones revealed by its own refill — before
		// the scan moves on to the next reader. Without this, a refill that
		// lands back inside the window being scanned would only surface on
		// the following reader, putting it after candles with a later open
		// time from lexicographically-later symbols (spec.md §8 invariant:
		// within one window, dispatches are strictly (symbol, subscription)
		// ordered regardless of how many candles any one reader contributes).
		for _, r := range readers {
			for r.HasPending() && inWindow(r.Pending().OpenTimeMillis(), lo, hi) {
				if _, err := r.Dispatch(isHistorical, lo, hi); err != nil {
					return candlesProcessed, err
				}
				candlesProcessed++
			}
		}

		clock.Advance()
	}

	AddCandlesProcessed(candlesProcessed)
	if candlesProcessed == 0 {
		log.Printf("[WARN] dispatch loop processed zero candles")
	}
	return candlesProcessed, nil
}

// inWindow implements spec.md §4.3's window predicate: the minute bucket
// [clock, clock+MinuteMillis) with a one-ms tolerance on the lower edge, so
// a candle at clock-1 is still admitted.
func inWindow(openTimeMillis, lo, hi int64) bool {
	return openTimeMillis+1 >= lo && openTimeMillis <= hi-1
}
