package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReplayClock_RejectsEndBeforeStart(t *testing.T) {
	_, err := NewReplayClock(1000, 0)
	require.Error(t, err)
	var cfgErr *ConfigFailureError
	require.ErrorAs(t, err, &cfgErr)
}

func TestReplayClock_AdvancesByMinuteSteps(t *testing.T) {
	c, err := NewReplayClock(0, 2*MinuteMillis)
	require.NoError(t, err)

	assert.Equal(t, int64(0), c.Now())
	lo, hi := c.WindowBounds()
	assert.Equal(t, int64(0), lo)
	assert.Equal(t, int64(MinuteMillis), hi)

	c.Advance()
	assert.Equal(t, MinuteMillis, c.Now())
	assert.False(t, c.Done())

	c.Advance()
	assert.Equal(t, 2*MinuteMillis, c.Now())
	assert.False(t, c.Done())

	c.Advance()
	assert.True(t, c.Done())
}
