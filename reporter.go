// FILE: reporter.go
// Package main – Reporter: end-of-run result summaries.
//
// The teacher logged run results straight to stdout from runBacktest
// (now superseded); this generalizes that into an interface so
// SimulationDriver.RunSweep can compare many parameter sets, while the
// console implementation keeps the teacher's plain log.Printf reporting
// style and the metrics get the same prometheus gauges the live bot uses.
package main

import "log"

// Reporter is handed each RunResult as a run completes.
type Reporter interface {
	Report(RunResult)
}

// ConsoleReporter prints a one-line summary per run and sets the shared
// bot_equity_usd gauge (metrics.go) to the run's final funds, matching how
// the teacher's live trading path already reports PnL. Trade counters are
// not touched here; TradingManager increments them as lots close.
type ConsoleReporter struct{}

func (ConsoleReporter) Report(rr RunResult) {
	wins, losses := 0, 0
	var pnl float64
	for _, ex := range rr.Exits {
		pnl += ex.PNLUSD
		if ex.PNLUSD > 0 {
			wins++
		} else if ex.PNLUSD < 0 {
			losses++
		}
	}
	mtxPnL.Set(rr.FinalFunds)
	log.Printf(
		"[SIM] params=%q candles=%d exits=%d wins=%d losses=%d pnl=%.2f final_funds=%.2f dropped=%v",
		rr.ParamSet.Label, rr.CandlesProcessed, len(rr.Exits), wins, losses, pnl, rr.FinalFunds, rr.Dropped,
	)
}

// SweepReporter wraps ConsoleReporter and additionally tracks the best
// parameter set seen so far by final funds, used by main.go to print a
// sweep's winner at the end of RunSweep.
type SweepReporter struct {
	ConsoleReporter
	Best *RunResult
}

func NewSweepReporter() *SweepReporter { return &SweepReporter{} }

func (s *SweepReporter) Report(rr RunResult) {
	s.ConsoleReporter.Report(rr)
	if s.Best == nil || rr.FinalFunds > s.Best.FinalFunds {
		cp := rr
		s.Best = &cp
	}
}
