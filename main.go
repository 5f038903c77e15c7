// FILE: main.go
// Package main – Program entrypoint and HTTP/metrics server.
//
// Boot sequence:
//   1) loadBotEnv()                – read .env (no shell exports required)
//   2) initThresholdsFromEnv()     – tune BUY/SELL thresholds & MA filter
//   3) cfg := loadConfigFromEnv()  – build runtime Config
//   4) wire broker + CandleStore + SimulationDriver
//   5) start Prometheus /healthz server on cfg.Port
//   6) run -simulate, -sweep or -backfill based on flags
//
// Flags:
//   -simulate <glob>   Run one replay over CSV candles matching glob (one
//                       file per symbol, named SYMBOL.csv)
//   -sweep <file>      Run a parameter sweep; file is CSV of ParamSet rows
//   -backfill          Run the history backfill loop instead of a replay
//   -start, -end       RFC3339 simulation bounds (defaults to Config's
//                       SIMULATION_START/SIMULATION_END)
//
// BROKER selects the execution backend (env var, case-insensitive) used by
// -backfill; -simulate always fills against its own PaperBroker:
//   ""              (unset) bridge broker when BRIDGE_URL is set and not
//                   backfilling/simulating, paper broker otherwise
//   binance         direct REST client against Binance (BinanceBroker)
//   binance-bridge  sidecar HTTP bridge for Binance (BinanceBridge)
//   hitbtc          sidecar HTTP bridge for HitBTC (HitbtcBridge)
//   coinbase        direct REST client against Coinbase (CoinbaseBroker)
//
// Example:
//   go run . -simulate 'data/*.csv' -start 2024-01-01T00:00:00Z -end 2024-02-01T00:00:00Z
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var simulateGlob string
	var sweepFile string
	var backfill bool
	var startFlag, endFlag string
	flag.StringVar(&simulateGlob, "simulate", "", "Glob of per-symbol CSV files (SYMBOL.csv) to replay")
	flag.StringVar(&sweepFile, "sweep", "", "CSV of ParamSet rows to run as a sweep instead of a single replay")
	flag.BoolVar(&backfill, "backfill", false, "Run the history backfill loop instead of a replay")
	flag.StringVar(&startFlag, "start", "", "Simulation start, RFC3339 (overrides SIMULATION_START)")
	flag.StringVar(&endFlag, "end", "", "Simulation end, RFC3339 (overrides SIMULATION_END)")
	flag.Parse()

	// ---- Environment & Config ----
	loadBotEnv()
	initThresholdsFromEnv()
	cfg := loadConfigFromEnv()

	if cfg.Extended().ModelMode == ModelModeExtended {
		SetModelModeMetric("extended")
	} else {
		SetModelModeMetric("baseline")
	}

	// ---- Broker wiring ----
	var broker Broker
	switch strings.ToLower(getEnv("BROKER", "")) {
	case "binance":
		broker = NewBinanceBroker()
	case "binance-bridge":
		broker = NewBinanceBridge(cfg.BinanceBridgeURL)
	case "hitbtc":
		broker = NewHitbtcBridge(cfg.HitbtcBridgeURL)
	case "coinbase":
		broker = NewCoinbaseBroker()
	default:
		if cfg.BridgeURL != "" && !backfill && simulateGlob == "" {
			broker = NewBridgeBroker(cfg.BridgeURL)
		} else {
			broker = NewPaperBroker()
		}
	}

	// ---- HTTP metrics/health ----
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Printf("serving metrics on :%d/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case backfill:
		runBackfillMode(ctx, cfg, broker)
	case simulateGlob != "":
		runSimulateMode(ctx, cfg, simulateGlob, sweepFile, startFlag, endFlag)
	default:
		log.Printf("no mode selected: pass -simulate <glob> or -backfill")
	}

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

// runSimulateMode builds a CSVCandleStore from simulateGlob (one file per
// symbol, named SYMBOL.csv), then runs either a single replay or, if
// sweepFile is set, a full RunSweep.
func runSimulateMode(ctx context.Context, cfg Config, simulateGlob, sweepFile, startFlag, endFlag string) {
	paths, err := filepath.Glob(simulateGlob)
	if err != nil || len(paths) == 0 {
		log.Fatalf("simulate: no files matched %q: %v", simulateGlob, err)
	}

	bySymbol := make(map[Symbol]string, len(paths))
	var symbols []Symbol
	for _, p := range paths {
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		sym := Symbol(base)
		bySymbol[sym] = p
		symbols = append(symbols, sym)
	}

	start, end, err := resolveSimulationBounds(cfg, startFlag, endFlag)
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}

	store := NewCSVCandleStore(bySymbol)
	broker := NewPaperBroker()
	reporter := NewSweepReporter()
	driver := NewSimulationDriver(store, 4, cfg.CacheCandles, cfg.ActiveQueryLimit, broker, reporter)

	if sweepFile != "" {
		sets, err := loadParamSweep(sweepFile)
		if err != nil {
			log.Fatalf("simulate: %v", err)
		}
		if _, err := driver.RunSweep(ctx, symbols, start, end, sets, cfg.USDEquity, cfg); err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
		if reporter.Best != nil {
			log.Printf("[SWEEP] best params=%q final_funds=%.2f", reporter.Best.ParamSet.Label, reporter.Best.FinalFunds)
		}
		return
	}

	ps := ParamSet{
		Label:           "default",
		RiskPerTradePct: cfg.RiskPerTradePct,
		TakeProfitPct:   cfg.TakeProfitPct,
		StopLossPct:     cfg.StopLossPct,
	}
	if _, err := driver.Run(ctx, symbols, start, end, ps, cfg.USDEquity, cfg); err != nil {
		log.Fatalf("simulate failed: %v", err)
	}
}

// resolveSimulationBounds prefers the -start/-end flags, falling back to
// cfg.SimulationStart/SimulationEnd, both RFC3339.
func resolveSimulationBounds(cfg Config, startFlag, endFlag string) (time.Time, time.Time, error) {
	s := startFlag
	if s == "" {
		s = cfg.SimulationStart
	}
	e := endFlag
	if e == "" {
		e = cfg.SimulationEnd
	}
	if s == "" || e == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("simulation bounds not set: pass -start/-end or SIMULATION_START/SIMULATION_END")
	}
	start, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad -start %q: %w", s, err)
	}
	end, err := time.Parse(time.RFC3339, e)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad -end %q: %w", e, err)
	}
	return start, end, nil
}

// runBackfillMode drives the resumable history backfill (backfill.go)
// instead of a replay.
func runBackfillMode(ctx context.Context, cfg Config, broker Broker) {
	if cfg.BackfillFrom == "" || cfg.BackfillTo == "" {
		log.Fatalf("backfill: BACKFILL_FROM/BACKFILL_TO not set")
	}
	from, err := time.Parse(time.RFC3339, cfg.BackfillFrom)
	if err != nil {
		log.Fatalf("backfill: bad BACKFILL_FROM: %v", err)
	}
	to, err := time.Parse(time.RFC3339, cfg.BackfillTo)
	if err != nil {
		log.Fatalf("backfill: bad BACKFILL_TO: %v", err)
	}
	bf := NewBackfiller(broker, cfg.ProductID, time.Duration(cfg.TickInterval)*time.Second, cfg.ResumeBackfill)
	if err := bf.Run(ctx, from, to); err != nil {
		log.Fatalf("backfill: %v", err)
	}
}
