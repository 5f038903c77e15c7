package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionalEngine_Process_FeedsPriceToPaperBroker(t *testing.T) {
	broker := NewPaperBroker()
	acc := NewAccount("sim", "USD", 1000, []Symbol{"BTCUSDT"}, broker)
	tm := acc.ManagerFor("BTCUSDT")
	require.NotNil(t, tm)

	cfg := loadConfigFromEnv()
	cfg.MaxHistoryCandle = 500
	eng := NewDirectionalEngine(tm, newModel(), nil, cfg, broker)

	c := Candle{Time: time.Unix(0, 0).UTC(), Close: 42}
	err := eng.Process(c, true)
	require.NoError(t, err)

	price, err := broker.GetNowPrice(nil, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 42.0, price)
}

func TestDirectionalEngine_Process_CapsHistoryAtMaxHistoryCandle(t *testing.T) {
	broker := NewPaperBroker()
	acc := NewAccount("sim", "USD", 1000, []Symbol{"BTCUSDT"}, broker)
	tm := acc.ManagerFor("BTCUSDT")

	cfg := loadConfigFromEnv()
	cfg.MaxHistoryCandle = 3
	eng := NewDirectionalEngine(tm, newModel(), nil, cfg, broker)

	for i := 0; i < 10; i++ {
		err := eng.Process(Candle{Time: time.Unix(int64(i*60), 0).UTC(), Close: float64(i)}, true)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(eng.history), 3)
}
