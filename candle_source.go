// FILE: candle_source.go
// Package main – CandleSource: lazy, single-pass, finite candle sequences.
//
// CandleSource is the external collaborator described in spec.md §6: the
// candle store hands the replay core one of these per symbol, already
// filtered to [start, end] and sorted by OpenTimeMillis ascending. The core
// only ever calls HasNext/Next on it (single pass, left to right).
//
// Two implementations live here, chosen by stream_loader.go's preload
// decision:
//   - preloadedSource: the full []Candle is materialized up front (used
//     when preload=true); holds no cursor against the backing store.
//   - streamingSource: pulls candles from a CandleStore one at a time
//     on demand (used when preload=false).
package main

// CandleSource is a finite, time-ordered, single-pass sequence of candles.
type CandleSource interface {
	HasNext() bool
	Next() (Candle, error)
}

// preloadedSource serves candles from an in-memory slice.
type preloadedSource struct {
	candles []Candle
	idx     int
}

// NewPreloadedSource materializes candles into memory before returning, as
// required when preload=true (spec.md §4.1).
func NewPreloadedSource(candles []Candle) CandleSource {
	return &preloadedSource{candles: candles}
}

func (s *preloadedSource) HasNext() bool { return s.idx < len(s.candles) }

func (s *preloadedSource) Next() (Candle, error) {
	c := s.candles[s.idx]
	s.idx++
	return c, nil
}

// streamingSource pulls candles lazily from a CandleStore cursor, holding an
// open query against the store for the lifetime of the replay.
type streamingSource struct {
	cursor CandleCursor
}

// NewStreamingSource wraps a store-provided cursor without preloading.
func NewStreamingSource(cursor CandleCursor) CandleSource {
	return &streamingSource{cursor: cursor}
}

func (s *streamingSource) HasNext() bool { return s.cursor.HasNext() }

func (s *streamingSource) Next() (Candle, error) { return s.cursor.Next() }

// CandleCursor is the lazy per-query handle a CandleStore hands back for
// on-demand (non-preloaded) iteration.
type CandleCursor interface {
	HasNext() bool
	Next() (Candle, error)
}
