package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	seen []Candle
}

func (e *recordingEngine) Process(c Candle, isHistorical bool) error {
	e.seen = append(e.seen, c)
	return nil
}

func TestMarketReader_PrefillsPendingOnConstruction(t *testing.T) {
	src := NewPreloadedSource([]Candle{mkCandle(0), mkCandle(60_000)})
	r, err := NewMarketReader("BTCUSDT", src, nil)
	require.NoError(t, err)

	require.True(t, r.HasPending())
	assert.Equal(t, int64(0), r.Pending().OpenTimeMillis())
	assert.False(t, r.Terminal())
}

func TestMarketReader_EmptySourceIsImmediatelyTerminal(t *testing.T) {
	src := NewPreloadedSource(nil)
	r, err := NewMarketReader("BTCUSDT", src, nil)
	require.NoError(t, err)

	assert.False(t, r.HasPending())
	assert.True(t, r.Terminal())
}

func TestMarketReader_DispatchInvokesEnginesOnceAndRefills(t *testing.T) {
	eng := &recordingEngine{}
	src := NewPreloadedSource([]Candle{mkCandle(0), mkCandle(60_000)})
	r, err := NewMarketReader("BTCUSDT", src, []Engine{eng})
	require.NoError(t, err)

	refilled, err := r.Dispatch(true, 0, MinuteMillis)
	require.NoError(t, err)

	require.Len(t, eng.seen, 1)
	assert.Equal(t, int64(0), eng.seen[0].OpenTimeMillis())
	assert.True(t, r.HasPending())
	assert.Equal(t, int64(60_000), r.Pending().OpenTimeMillis())
	assert.False(t, refilled, "60_000 is outside [0, MinuteMillis)")
}

func TestMarketReader_DispatchReportsRefillStillInWindow(t *testing.T) {
	eng := &recordingEngine{}
	src := NewPreloadedSource([]Candle{mkCandle(0), mkCandle(100)})
	r, err := NewMarketReader("BTCUSDT", src, []Engine{eng})
	require.NoError(t, err)

	refilled, err := r.Dispatch(true, 0, MinuteMillis)
	require.NoError(t, err)
	assert.True(t, refilled, "candle at t=100 is still inside [0, MinuteMillis)")
}

func TestSortReaders_OrdersLexicographicallyBySymbol(t *testing.T) {
	rb, _ := NewMarketReader("BTCUSDT", NewPreloadedSource(nil), nil)
	ra, _ := NewMarketReader("AAAUSDT", NewPreloadedSource(nil), nil)
	sorted := SortReaders([]*MarketReader{rb, ra})
	require.Len(t, sorted, 2)
	assert.Equal(t, Symbol("AAAUSDT"), sorted[0].Symbol)
	assert.Equal(t, Symbol("BTCUSDT"), sorted[1].Symbol)
}
