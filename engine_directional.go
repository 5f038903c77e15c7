// FILE: engine_directional.go
// Package main – DirectionalEngine: the Engine implementation that drives
// TradingManager decisions from strategy.go's decide().
//
// This is the concrete strategy the replay core dispatches candles to. It
// keeps the teacher's original micro-model + EMA-regime decision logic
// (strategy.go, model.go, indicators.go) intact, just behind the Engine
// interface (engine.go) instead of the old single-symbol Trader.step loop.
package main

import (
	"context"
	"sync"
)

// priceSetter is implemented by brokers that need to be told the latest
// candle price out of band (PaperBroker, which has no live feed of its
// own); live Broker implementations ignore it.
type priceSetter interface {
	SetPrice(product string, price float64)
}

// DirectionalEngine wraps decide() + a TradingManager so the replay core
// can treat "a strategy trading one symbol for one account" as an opaque
// Engine.
type DirectionalEngine struct {
	manager *TradingManager
	model   *AIMicroModel
	mdlExt  *ExtendedLogit
	cfg     Config
	broker  Broker

	mu      sync.Mutex
	history []Candle
}

// NewDirectionalEngine builds an Engine for manager, backed by model (and
// optionally mdlExt when MODEL_MODE=extended). broker is used only to push
// the latest candle price into brokers that need it out of band (see
// priceSetter); pass the same broker manager itself trades through.
func NewDirectionalEngine(manager *TradingManager, model *AIMicroModel, mdlExt *ExtendedLogit, cfg Config, broker Broker) *DirectionalEngine {
	return &DirectionalEngine{manager: manager, model: model, mdlExt: mdlExt, cfg: cfg, broker: broker}
}

// Process implements Engine. isHistorical is accepted for interface
// conformance but does not change behavior here: backtest and live candles
// both flow through the same decide()/TradingManager path, matching the
// teacher's original single code path for paper and live trading.
func (e *DirectionalEngine) Process(candle Candle, isHistorical bool) error {
	if ps, ok := e.broker.(priceSetter); ok {
		ps.SetPrice(string(e.manager.Symbol()), candle.Close)
	}

	e.mu.Lock()
	e.history = append(e.history, candle)
	if len(e.history) > e.cfg.MaxHistoryCandle && e.cfg.MaxHistoryCandle > 0 {
		e.history = e.history[len(e.history)-e.cfg.MaxHistoryCandle:]
	}
	hist := append([]Candle(nil), e.history...)
	e.mu.Unlock()

	d := decide(hist, e.model, e.mdlExt, buyThreshold, sellThreshold, useMAFilter)
	_, err := e.manager.OnDecision(context.Background(), candle, d, e.cfg.RiskPerTradePct, e.cfg.TakeProfitPct, e.cfg.StopLossPct)
	return err
}
