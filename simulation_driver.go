// FILE: simulation_driver.go
// Package main – SimulationDriver: the outer orchestration loop (spec.md §4.5).
//
// Adapted from backtest.go's runBacktest (the teacher's original single-
// symbol backtest entry point, now superseded): this keeps its basic shape —
// load candles, feed the core, report, reset — but drives any number of
// symbols through Account/TradingManager/Engine instead of one Trader, and
// can run a whole RunSweep of parameter sets back to back.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// ParamSet is one parameter combination RunSweep walks through;
// RiskPerTradePct, TakeProfitPct and StopLossPct map straight onto Config's
// equivalents.
type ParamSet struct {
	Label           string
	RiskPerTradePct float64
	TakeProfitPct   float64
	StopLossPct     float64
	BuyThreshold    float64
	SellThreshold   float64
}

// SimulationDriver owns the CandleStore, StreamLoader and Reporter shared
// across every run it drives; each Run call builds a fresh Account, fresh
// MarketReaders and a fresh ReplayClock so parameter sets never leak state
// into one another (spec.md §4.5, §9).
type SimulationDriver struct {
	Store    CandleStore
	Loader   *StreamLoader
	Reporter Reporter
	Broker   Broker
}

// NewSimulationDriver wires a driver against store, using workers concurrent
// load goroutines per run.
func NewSimulationDriver(store CandleStore, workers int, cacheAll bool, activeQueryLimit int, broker Broker, reporter Reporter) *SimulationDriver {
	return &SimulationDriver{
		Store:    store,
		Loader:   NewStreamLoader(store, workers, cacheAll, activeQueryLimit),
		Reporter: reporter,
		Broker:   broker,
	}
}

// RunResult summarizes one Run call's outcome, handed to Reporter.Report.
type RunResult struct {
	ParamSet         ParamSet
	CandlesProcessed int64
	Exits            []ExitRecord
	FinalFunds       float64
	Dropped          []Symbol
}

// Run drives one full replay for symbols across [start, end] under ps,
// per spec.md §4.5:
//  1. reset balances for a fresh Account
//  2. build one TradingManager + DirectionalEngine per symbol
//  3. load MarketReaders via StreamLoader (dropping any LoadFailure symbols)
//  4. run the DispatchLoop end to end
//  5. liquidate every open position
//  6. report results
func (d *SimulationDriver) Run(ctx context.Context, symbols []Symbol, start, end time.Time, ps ParamSet, startingEquityUSD float64, cfg Config) (RunResult, error) {
	if end.Before(start) {
		return RunResult{}, &ConfigFailureError{Reason: "simulation end before start"}
	}

	account := NewAccount("sim", "USD", startingEquityUSD, symbols, d.Broker)

	model := newModel()
	var mdlExt *ExtendedLogit
	if cfg.Extended().ModelMode == ModelModeExtended {
		mdlExt = NewExtendedLogit(8)
	}

	engineCfg := cfg
	engineCfg.RiskPerTradePct = ps.RiskPerTradePct
	engineCfg.TakeProfitPct = ps.TakeProfitPct
	engineCfg.StopLossPct = ps.StopLossPct

	prevBuy, prevSell := buyThreshold, sellThreshold
	if ps.BuyThreshold > 0 {
		buyThreshold = ps.BuyThreshold
	}
	if ps.SellThreshold > 0 {
		sellThreshold = ps.SellThreshold
	}
	defer func() { buyThreshold, sellThreshold = prevBuy, prevSell }()

	engineFor := func(sym Symbol) []Engine {
		tm := account.ManagerFor(sym)
		if tm == nil {
			return nil
		}
		return []Engine{NewDirectionalEngine(tm, model, mdlExt, engineCfg, d.Broker)}
	}

	startMillis := start.UnixMilli()
	endMillis := end.UnixMilli()

	results := d.Loader.Load(symbols, startMillis, endMillis, engineFor)

	var readers []*MarketReader
	var dropped []Symbol
	for _, res := range results {
		if res.Err != nil {
			dropped = append(dropped, res.Symbol)
			continue
		}
		readers = append(readers, res.Reader)
	}
	readers = SortReaders(readers)

	clock, err := NewReplayClock(startMillis, endMillis)
	if err != nil {
		return RunResult{}, err
	}

	processed, err := RunDispatchLoop(clock, readers, true)
	if err != nil {
		return RunResult{}, fmt.Errorf("engine failure: %w", err)
	}
	if processed == 0 {
		return RunResult{}, &EmptyReplayError{StartMillis: startMillis, EndMillis: endMillis}
	}

	exits := account.Liquidate(ctx)

	rr := RunResult{
		ParamSet:         ps,
		CandlesProcessed: processed,
		Exits:            exits,
		FinalFunds:       account.TotalFunds(),
		Dropped:          dropped,
	}
	if d.Reporter != nil {
		d.Reporter.Report(rr)
	}
	return rr, nil
}

// RunSweep walks paramSets sequentially, one full Run per set, returning as
// soon as every set has completed (or the first non-recoverable error, which
// is everything except EmptyReplay/LoadFailure on an individual set — those
// are logged and the sweep continues, since one bad parameter combination
// shouldn't abort an entire sweep).
func (d *SimulationDriver) RunSweep(ctx context.Context, symbols []Symbol, start, end time.Time, paramSets []ParamSet, startingEquityUSD float64, cfg Config) ([]RunResult, error) {
	var out []RunResult
	defer d.Store.ClearCaches()
	for _, ps := range paramSets {
		d.Store.ClearCaches()
		rr, err := d.Run(ctx, symbols, start, end, ps, startingEquityUSD, cfg)
		if err != nil {
			var empty *EmptyReplayError
			if asEmptyReplay(err, &empty) {
				log.Printf("[WARN] param set %q produced no candles, skipping: %v", ps.Label, err)
				continue
			}
			return out, fmt.Errorf("param set %q: %w", ps.Label, err)
		}
		out = append(out, rr)
	}
	return out, nil
}

func asEmptyReplay(err error, target **EmptyReplayError) bool {
	e, ok := err.(*EmptyReplayError)
	if ok {
		*target = e
	}
	return ok
}

// loadParamSweep reads a CSV of ParamSet rows:
// label,risk_per_trade_pct,take_profit_pct,stop_loss_pct,buy_threshold,sell_threshold
func loadParamSweep(path string) ([]ParamSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s: no parameter rows", path)
	}

	var sets []ParamSet
	for _, row := range rows[1:] {
		if len(row) < 6 {
			continue
		}
		risk, _ := strconv.ParseFloat(row[1], 64)
		tp, _ := strconv.ParseFloat(row[2], 64)
		sl, _ := strconv.ParseFloat(row[3], 64)
		buy, _ := strconv.ParseFloat(row[4], 64)
		sell, _ := strconv.ParseFloat(row[5], 64)
		sets = append(sets, ParamSet{
			Label:           row[0],
			RiskPerTradePct: risk,
			TakeProfitPct:   tp,
			StopLossPct:     sl,
			BuyThreshold:    buy,
			SellThreshold:   sell,
		})
	}
	return sets, nil
}
