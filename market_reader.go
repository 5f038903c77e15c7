// FILE: market_reader.go
// Package main – MarketReader: per-symbol cursor over a CandleSource.
//
// Couples one symbol's CandleSource to the ordered list of Engines
// subscribed to it, plus the single buffered "pending" candle the dispatch
// loop uses to look one step ahead without a global priority queue
// (spec.md §3, §4.3, §9).
package main

import "sort"

// MarketReader is a per-symbol cursor: it owns the symbol, its CandleSource,
// its at-most-one buffered pending candle, and the Engines subscribed to it.
//
// Invariants (spec.md §3):
//   - pending is the next unemitted candle of input, or the reader holds no
//     pending candle at all (represented by hasPending=false).
//   - once input is exhausted and there is no pending candle, the reader is
//     terminal and contributes nothing further to dispatch.
//   - emitting a candle always clears pending; a subsequent refill step
//     attempts to repopulate it from input.
type MarketReader struct {
	Symbol  Symbol
	Input   CandleSource
	Engines []Engine

	pending    Candle
	hasPending bool
}

// NewMarketReader builds a reader and immediately attempts one refill, so a
// freshly constructed reader already holds its first pending candle (or is
// already terminal if its source is empty).
func NewMarketReader(symbol Symbol, input CandleSource, engines []Engine) (*MarketReader, error) {
	r := &MarketReader{Symbol: symbol, Input: input, Engines: engines}
	if err := r.refill(); err != nil {
		return nil, err
	}
	return r, nil
}

// HasPending reports whether the reader currently holds a buffered candle.
func (r *MarketReader) HasPending() bool { return r.hasPending }

// Pending returns the buffered candle; callers must check HasPending first.
func (r *MarketReader) Pending() Candle { return r.pending }

// Terminal reports whether the reader can never produce another candle:
// input exhausted and nothing buffered (invariant I2, spec.md §3).
func (r *MarketReader) Terminal() bool {
	return !r.hasPending && !r.Input.HasNext()
}

// refill attempts to repopulate pending from input when empty.
func (r *MarketReader) refill() error {
	if r.hasPending || !r.Input.HasNext() {
		return nil
	}
	c, err := r.Input.Next()
	if err != nil {
		return err
	}
	r.pending = c
	r.hasPending = true
	return nil
}

// Dispatch invokes every subscribed Engine in subscription order with the
// pending candle, then clears pending and attempts one refill. Returns
// whether the refill produced a candle that is itself still inside
// [loMillis, hiMillis); callers that don't need the immediate answer can
// re-derive it from HasPending/Pending after the call (dispatch_loop.go
// does this to decide whether to keep draining the same reader before
// moving on to the next one in sorted order).
func (r *MarketReader) Dispatch(isHistorical bool, loMillis, hiMillis int64) (refilledInWindow bool, err error) {
	candle := r.pending
	for _, e := range r.Engines {
		if procErr := e.Process(candle, isHistorical); procErr != nil {
			return false, procErr
		}
	}
	r.hasPending = false

	if err := r.refill(); err != nil {
		return false, err
	}
	if r.hasPending {
		ot := r.pending.OpenTimeMillis()
		refilledInWindow = ot+1 >= loMillis && ot <= hiMillis-1
	}
	return refilledInWindow, nil
}

// SortReaders returns readers sorted lexicographically by symbol, the
// correctness-affecting tie-break spec.md §4.2 requires: when two readers
// have candles in the same minute window, the earlier symbol is dispatched
// first.
func SortReaders(readers []*MarketReader) []*MarketReader {
	sorted := append([]*MarketReader(nil), readers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	return sorted
}
