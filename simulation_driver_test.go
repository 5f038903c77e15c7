package main

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationDriver_Run_EndToEndProducesFunds(t *testing.T) {
	dir := t.TempDir()
	rows := [][]string{}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < 80; i++ {
		ts := base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		if i%2 == 0 {
			price += 1
		} else {
			price -= 0.5
		}
		p := formatFloat(price)
		rows = append(rows, []string{ts, p, p, p, p, "10"})
	}
	path := writeCandleCSV(t, dir, "BTCUSDT.csv", rows)

	store := NewCSVCandleStore(map[Symbol]string{"BTCUSDT": path})
	broker := NewPaperBroker()
	driver := NewSimulationDriver(store, 2, false, 8, broker, nil)

	cfg := loadConfigFromEnv()
	cfg.RiskPerTradePct = 10
	cfg.TakeProfitPct = 50
	cfg.StopLossPct = 50

	ps := ParamSet{Label: "default", RiskPerTradePct: 10, TakeProfitPct: 50, StopLossPct: 50}
	start := base
	end := base.Add(79 * time.Minute)

	rr, err := driver.Run(context.Background(), []Symbol{"BTCUSDT"}, start, end, ps, 1000, cfg)
	require.NoError(t, err)
	assert.Greater(t, rr.CandlesProcessed, int64(0))
	assert.Greater(t, rr.FinalFunds, 0.0)
}

func TestSimulationDriver_Run_RejectsEndBeforeStart(t *testing.T) {
	store := NewCSVCandleStore(map[Symbol]string{})
	broker := NewPaperBroker()
	driver := NewSimulationDriver(store, 1, false, 8, broker, nil)

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := driver.Run(context.Background(), []Symbol{"BTCUSDT"}, start, end, ParamSet{}, 1000, loadConfigFromEnv())
	require.Error(t, err)
	var cfgErr *ConfigFailureError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSimulationDriver_Run_EmptyReplayWhenNoCandlesInWindow(t *testing.T) {
	dir := t.TempDir()
	path := writeCandleCSV(t, dir, "BTCUSDT.csv", [][]string{
		{"2030-01-01T00:00:00Z", "1", "1", "1", "1", "1"},
	})
	store := NewCSVCandleStore(map[Symbol]string{"BTCUSDT": path})
	broker := NewPaperBroker()
	driver := NewSimulationDriver(store, 1, false, 8, broker, nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	_, err := driver.Run(context.Background(), []Symbol{"BTCUSDT"}, start, end, ParamSet{}, 1000, loadConfigFromEnv())
	require.Error(t, err)
	var emptyErr *EmptyReplayError
	assert.ErrorAs(t, err, &emptyErr)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
