package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandle(openMillis int64) Candle {
	return Candle{Time: time.UnixMilli(openMillis).UTC(), Close: 1}
}

func TestPreloadedSource_DrainsInOrder(t *testing.T) {
	src := NewPreloadedSource([]Candle{mkCandle(0), mkCandle(60_000), mkCandle(120_000)})

	var seen []int64
	for src.HasNext() {
		c, err := src.Next()
		require.NoError(t, err)
		seen = append(seen, c.OpenTimeMillis())
	}
	assert.Equal(t, []int64{0, 60_000, 120_000}, seen)
	assert.False(t, src.HasNext())
}

type fakeCursor struct {
	candles []Candle
	idx     int
}

func (f *fakeCursor) HasNext() bool { return f.idx < len(f.candles) }
func (f *fakeCursor) Next() (Candle, error) {
	c := f.candles[f.idx]
	f.idx++
	return c, nil
}

func TestStreamingSource_DelegatesToCursor(t *testing.T) {
	cur := &fakeCursor{candles: []Candle{mkCandle(0), mkCandle(60_000)}}
	src := NewStreamingSource(cur)

	require.True(t, src.HasNext())
	c, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.OpenTimeMillis())

	require.True(t, src.HasNext())
	c, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), c.OpenTimeMillis())

	assert.False(t, src.HasNext())
}
