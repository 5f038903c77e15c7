package main

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	candles map[Symbol][]Candle
	failFor map[Symbol]bool

	mu           sync.Mutex
	preloadCalls map[Symbol]bool
}

func (s *fakeStore) Iterate(symbol Symbol, startMillis, endMillis int64, preload bool) (CandleSource, error) {
	s.mu.Lock()
	if s.preloadCalls == nil {
		s.preloadCalls = make(map[Symbol]bool)
	}
	s.preloadCalls[symbol] = preload
	s.mu.Unlock()

	if s.failFor[symbol] {
		return nil, errors.New("simulated store outage")
	}
	return NewPreloadedSource(s.candles[symbol]), nil
}

func (s *fakeStore) KnownSymbols() ([]Symbol, error) {
	var out []Symbol
	for k := range s.candles {
		out = append(out, k)
	}
	return out, nil
}

func (s *fakeStore) ClearCaches() {}

func TestStreamLoader_LoadsAllHealthySymbols(t *testing.T) {
	store := &fakeStore{candles: map[Symbol][]Candle{
		"A": {mkCandle(0)},
		"B": {mkCandle(0)},
	}}
	loader := NewStreamLoader(store, 2, false, 8)

	results := loader.Load([]Symbol{"A", "B"}, 0, MinuteMillis, func(Symbol) []Engine { return nil })
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.NotNil(t, r.Reader)
	}
}

func TestStreamLoader_DropsFailingSymbolWithoutAbortingRun(t *testing.T) {
	store := &fakeStore{
		candles: map[Symbol][]Candle{"A": {mkCandle(0)}, "B": {mkCandle(0)}},
		failFor: map[Symbol]bool{"B": true},
	}
	loader := NewStreamLoader(store, 2, false, 8)

	results := loader.Load([]Symbol{"A", "B"}, 0, MinuteMillis, func(Symbol) []Engine { return nil })
	require.Len(t, results, 2)

	var okSymbols, failedSymbols []Symbol
	for _, r := range results {
		if r.Err != nil {
			failedSymbols = append(failedSymbols, r.Symbol)
			var loadErr *LoadFailureError
			assert.ErrorAs(t, r.Err, &loadErr)
			continue
		}
		okSymbols = append(okSymbols, r.Symbol)
	}
	assert.ElementsMatch(t, []Symbol{"A"}, okSymbols)
	assert.ElementsMatch(t, []Symbol{"B"}, failedSymbols)
}

func TestStreamLoader_PreloadsPastActiveQueryLimit(t *testing.T) {
	// limit=1: index 0 streams, indices 1.. preload.
	store := &fakeStore{candles: map[Symbol][]Candle{
		"A": {mkCandle(0)}, "B": {mkCandle(0)}, "C": {mkCandle(0)},
	}}
	loader := NewStreamLoader(store, 1, false, 1)
	results := loader.Load([]Symbol{"A", "B", "C"}, 0, MinuteMillis, func(Symbol) []Engine { return nil })
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	assert.False(t, store.preloadCalls["A"], "first symbol within the limit should stream")
	assert.True(t, store.preloadCalls["B"], "symbol at the limit should preload")
	assert.True(t, store.preloadCalls["C"], "symbol past the limit should preload")
}

// TestStreamLoader_ActiveQueryLimitSplitMatchesSpecScenario covers spec.md
// §8 scenario 3 directly: active_query_limit=2 over five symbols must
// stream exactly the first two and preload the remaining three.
func TestStreamLoader_ActiveQueryLimitSplitMatchesSpecScenario(t *testing.T) {
	symbols := []Symbol{"A", "B", "C", "D", "E"}
	candles := map[Symbol][]Candle{}
	for _, s := range symbols {
		candles[s] = []Candle{mkCandle(0)}
	}
	store := &fakeStore{candles: candles}
	loader := NewStreamLoader(store, 2, false, 2)

	results := loader.Load(symbols, 0, MinuteMillis, func(Symbol) []Engine { return nil })
	require.Len(t, results, 5)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	streamed, preloaded := 0, 0
	for _, sym := range symbols {
		if store.preloadCalls[sym] {
			preloaded++
		} else {
			streamed++
		}
	}
	assert.Equal(t, 2, streamed)
	assert.Equal(t, 3, preloaded)
	assert.False(t, store.preloadCalls["A"])
	assert.False(t, store.preloadCalls["B"])
	assert.True(t, store.preloadCalls["C"])
	assert.True(t, store.preloadCalls["D"])
	assert.True(t, store.preloadCalls["E"])
}

func TestStreamLoader_CacheAllForcesPreloadForEverySymbol(t *testing.T) {
	store := &fakeStore{candles: map[Symbol][]Candle{"A": {mkCandle(0)}}}
	loader := NewStreamLoader(store, 1, true, 0)
	results := loader.Load([]Symbol{"A"}, 0, MinuteMillis, func(Symbol) []Engine { return nil })
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
}
