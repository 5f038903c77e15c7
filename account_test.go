package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccount_SkipsUntradableAndUnknownSymbols(t *testing.T) {
	broker := NewPaperBroker()
	acc := NewAccount("sim", "USD", 1000, []Symbol{"BTCUSDT", "USDUSD", "WHATEVER"}, broker)

	pairs := acc.SymbolPairs()
	_, hasBTC := pairs["BTCUSDT"]
	_, hasUSDUSD := pairs["USDUSD"]
	_, hasWhatever := pairs["WHATEVER"]
	assert.True(t, hasBTC)
	assert.False(t, hasUSDUSD, "asset==fund should be skipped")
	assert.False(t, hasWhatever, "symbol with no known fund suffix should be skipped")

	assert.NotNil(t, acc.ManagerFor("BTCUSDT"))
	assert.Nil(t, acc.ManagerFor("USDUSD"))
}

func TestTradingManager_OpensAndExitsOnTakeProfit(t *testing.T) {
	broker := NewPaperBroker()
	acc := NewAccount("sim", "USD", 1000, []Symbol{"BTCUSDT"}, broker)
	tm := acc.ManagerFor("BTCUSDT")
	require.NotNil(t, tm)

	broker.SetPrice("BTCUSDT", 100)
	open := Candle{Time: time.Unix(0, 0).UTC(), Close: 100}
	msg, err := tm.OnDecision(context.Background(), open, Decision{Signal: Buy}, 10, 5, 5)
	require.NoError(t, err)
	assert.Contains(t, msg, "OPEN")
	assert.Equal(t, 0, tm.Trades())

	broker.SetPrice("BTCUSDT", 106)
	tp := Candle{Time: time.Unix(60, 0).UTC(), Close: 106}
	msg, err = tm.OnDecision(context.Background(), tp, Decision{Signal: Flat}, 10, 5, 5)
	require.NoError(t, err)
	assert.Contains(t, msg, "EXIT")
	assert.Equal(t, 1, tm.Trades())
	assert.Greater(t, tm.RealizedPnL(), 0.0)
}

func TestTradingManager_FlatWithNoLotHolds(t *testing.T) {
	broker := NewPaperBroker()
	acc := NewAccount("sim", "USD", 1000, []Symbol{"ETHUSDT"}, broker)
	tm := acc.ManagerFor("ETHUSDT")
	require.NotNil(t, tm)

	msg, err := tm.OnDecision(context.Background(), mkCandle(0), Decision{Signal: Flat}, 10, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, "FLAT", msg)
}

func TestAccount_LiquidateClosesOpenLots(t *testing.T) {
	broker := NewPaperBroker()
	acc := NewAccount("sim", "USD", 1000, []Symbol{"BTCUSDT"}, broker)
	tm := acc.ManagerFor("BTCUSDT")
	require.NotNil(t, tm)

	broker.SetPrice("BTCUSDT", 100)
	_, err := tm.OnDecision(context.Background(), mkCandle(0), Decision{Signal: Buy}, 10, 50, 50)
	require.NoError(t, err)

	exits := acc.Liquidate(context.Background())
	require.Len(t, exits, 1)
	assert.Equal(t, "end_of_run", exits[0].Reason)
}
