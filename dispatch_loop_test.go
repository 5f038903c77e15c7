package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchEvent struct {
	symbol     Symbol
	openMillis int64
}

type orderTrackingEngine struct {
	symbol Symbol
	log    *[]dispatchEvent
}

func (e *orderTrackingEngine) Process(c Candle, isHistorical bool) error {
	*e.log = append(*e.log, dispatchEvent{symbol: e.symbol, openMillis: c.OpenTimeMillis()})
	return nil
}

func buildReader(t *testing.T, symbol Symbol, opens []int64, log *[]dispatchEvent) *MarketReader {
	t.Helper()
	candles := make([]Candle, len(opens))
	for i, o := range opens {
		candles[i] = mkCandle(o)
	}
	r, err := NewMarketReader(symbol, NewPreloadedSource(candles), []Engine{&orderTrackingEngine{symbol: symbol, log: log}})
	require.NoError(t, err)
	return r
}

// TestRunDispatchLoop_ChronologicalOrderWithTieBreak mirrors spec.md's
// worked example: A yields t=0,120000; B yields t=60000,180000;
// start=0, end=240000. Expected order: (A,0) (B,60000) (A,120000) (B,180000).
func TestRunDispatchLoop_ChronologicalOrderWithTieBreak(t *testing.T) {
	var log []dispatchEvent
	a := buildReader(t, "A", []int64{0, 120_000}, &log)
	b := buildReader(t, "B", []int64{60_000, 180_000}, &log)
	readers := SortReaders([]*MarketReader{b, a})

	clock, err := NewReplayClock(0, 240_000)
	require.NoError(t, err)

	processed, err := RunDispatchLoop(clock, readers, true)
	require.NoError(t, err)
	assert.Equal(t, int64(4), processed)

	want := []dispatchEvent{
		{"A", 0}, {"B", 60_000}, {"A", 120_000}, {"B", 180_000},
	}
	assert.Equal(t, want, log)
}

// TestRunDispatchLoop_LowerEdgeToleranceAdmitsOffByOne covers the spec's
// boundary case: a candle open at start-1 still dispatches in the first
// window.
func TestRunDispatchLoop_LowerEdgeToleranceAdmitsOffByOne(t *testing.T) {
	var log []dispatchEvent
	r := buildReader(t, "A", []int64{-1}, &log)

	clock, err := NewReplayClock(0, MinuteMillis)
	require.NoError(t, err)

	processed, err := RunDispatchLoop(clock, []*MarketReader{r}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processed)
	require.Len(t, log, 1)
	assert.Equal(t, int64(-1), log[0].openMillis)
}

// TestRunDispatchLoop_EmptySourcesProcessNothing covers the all-sources-empty
// case that simulation_driver.go turns into an EmptyReplayError.
func TestRunDispatchLoop_EmptySourcesProcessNothing(t *testing.T) {
	var log []dispatchEvent
	r := buildReader(t, "A", nil, &log)

	clock, err := NewReplayClock(0, 180_000)
	require.NoError(t, err)

	processed, err := RunDispatchLoop(clock, []*MarketReader{r}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processed)
	assert.Empty(t, log)
}

type failingEngine struct{ err error }

func (e *failingEngine) Process(Candle, bool) error { return e.err }

// TestRunDispatchLoop_PropagatesEngineFailureUncaught verifies an Engine
// error aborts the loop and is returned unmodified (spec.md §7).
func TestRunDispatchLoop_PropagatesEngineFailureUncaught(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewMarketReader("A", NewPreloadedSource([]Candle{mkCandle(0)}), []Engine{&failingEngine{err: boom}})
	require.NoError(t, err)

	clock, err := NewReplayClock(0, MinuteMillis)
	require.NoError(t, err)

	_, err = RunDispatchLoop(clock, []*MarketReader{r}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

// TestRunDispatchLoop_MidScanRefillDrainsSameReaderWithoutWaiting covers a
// reader whose refill reveals a second candle that still belongs to the
// window just scanned: it must be dispatched without waiting a whole extra
// minute, and before the scan advances to any later reader.
func TestRunDispatchLoop_MidScanRefillDrainsSameReaderWithoutWaiting(t *testing.T) {
	var log []dispatchEvent
	// Two candles 100ms apart, both inside the same first minute window.
	r := buildReader(t, "A", []int64{0, 100}, &log)

	clock, err := NewReplayClock(0, MinuteMillis)
	require.NoError(t, err)

	processed, err := RunDispatchLoop(clock, []*MarketReader{r}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), processed)
	require.Len(t, log, 2)
	assert.Equal(t, int64(0), log[0].openMillis)
	assert.Equal(t, int64(100), log[1].openMillis)
}

// TestRunDispatchLoop_RefillDrainsBeforeLaterSymbolInSameWindow covers
// spec.md §8 scenario 2: A yields t=0,30000 (the second only surfacing via
// refill after the first dispatches); B yields t=45000. All three candles
// fall in the first minute window. The §8 invariant requires strict
// (sorted-symbol, subscription-index) order within one window, so A's
// refilled candle at t=30000 must dispatch before B's t=45000 even though
// B was already pending when the window started.
func TestRunDispatchLoop_RefillDrainsBeforeLaterSymbolInSameWindow(t *testing.T) {
	var log []dispatchEvent
	a := buildReader(t, "A", []int64{0, 30_000}, &log)
	b := buildReader(t, "B", []int64{45_000}, &log)
	readers := SortReaders([]*MarketReader{b, a})

	clock, err := NewReplayClock(0, MinuteMillis)
	require.NoError(t, err)

	processed, err := RunDispatchLoop(clock, readers, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), processed)

	want := []dispatchEvent{
		{"A", 0}, {"A", 30_000}, {"B", 45_000},
	}
	assert.Equal(t, want, log)
}
