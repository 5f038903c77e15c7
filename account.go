// FILE: account.go
// Package main – Account / TradingManager: the simulated bookkeeping layer.
//
// Adapted from trader.go's Position/SideBook pair-bookkeeping in the
// original single-symbol bot, generalized here to (a) back any number of
// symbols and (b) expose exactly the Account surface spec.md §6 names:
//
//   configuration().symbol_pairs()         -> Account.SymbolPairs()
//   all_trading_managers()                 -> Account.TradingManagers()
//   reference_currency_symbol()            -> Account.ReferenceCurrencySymbol()
//   total_funds_in_reference_currency()    -> Account.TotalFunds()
//   client().id()                          -> Account.ClientID()
//
// A TradingManager drives order matching for one (account, symbol) pair
// against a simulated exchange (a Broker, broker.go); SimulationDriver
// constructs one Engine per (account, symbol) backed by a TradingManager
// (spec.md §4.5 step 2).
package main

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SymbolPair is the (asset, fund) decomposition of a Symbol, as returned by
// Account.SymbolPairs().
type SymbolPair struct {
	Asset string
	Fund  string
}

// Account is the external collaborator spec.md §6 describes: it knows which
// symbols it trades and how to build a TradingManager per symbol.
type Account struct {
	clientID    string
	refCurrency string
	equityUSD   float64
	pairs       map[Symbol]SymbolPair
	managers    map[Symbol]*TradingManager
	mu          sync.RWMutex
}

// NewAccount builds an Account trading the given symbols against broker,
// seeded with startingEquityUSD in the reference currency.
func NewAccount(clientID, refCurrency string, startingEquityUSD float64, symbols []Symbol, broker Broker) *Account {
	a := &Account{
		clientID:    clientID,
		refCurrency: refCurrency,
		equityUSD:   startingEquityUSD,
		pairs:       make(map[Symbol]SymbolPair, len(symbols)),
		managers:    make(map[Symbol]*TradingManager, len(symbols)),
	}
	for _, sym := range symbols {
		asset, fund, ok := sym.AssetFund()
		if !ok || !sym.Tradable() {
			continue
		}
		a.pairs[sym] = SymbolPair{Asset: asset, Fund: fund}
		a.managers[sym] = NewTradingManager(a, sym, broker)
	}
	return a
}

// SymbolPairs returns the configured (asset, fund) mapping this account
// trades; only symbols with a recognized, tradable pair are present.
func (a *Account) SymbolPairs() map[Symbol]SymbolPair {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[Symbol]SymbolPair, len(a.pairs))
	for k, v := range a.pairs {
		out[k] = v
	}
	return out
}

// TradingManagers returns every TradingManager this account owns, one per
// tradable symbol.
func (a *Account) TradingManagers() []*TradingManager {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*TradingManager, 0, len(a.managers))
	for _, tm := range a.managers {
		out = append(out, tm)
	}
	return out
}

// ManagerFor returns the TradingManager backing symbol, or nil if the
// account does not trade it.
func (a *Account) ManagerFor(symbol Symbol) *TradingManager {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.managers[symbol]
}

func (a *Account) ReferenceCurrencySymbol() string { return a.refCurrency }

// TotalFunds returns current equity, reference-currency denominated, summed
// across all of this account's TradingManagers' realized PnL.
func (a *Account) TotalFunds() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := a.equityUSD
	for _, tm := range a.managers {
		total += tm.RealizedPnL()
	}
	return total
}

func (a *Account) ClientID() string { return a.clientID }

// Liquidate closes every open position across every TradingManager, as
// SimulationDriver does once per parameter set after replay (spec.md §4.5
// step 4).
func (a *Account) Liquidate(ctx context.Context) []ExitRecord {
	a.mu.RLock()
	managers := make([]*TradingManager, 0, len(a.managers))
	for _, tm := range a.managers {
		managers = append(managers, tm)
	}
	a.mu.RUnlock()

	var exits []ExitRecord
	for _, tm := range managers {
		exits = append(exits, tm.LiquidateAll(ctx, "end_of_run")...)
	}
	return exits
}

// ---- TradingManager ----

// Position is one open lot, long or short, opened at OpenPrice.
type Position struct {
	Side      OrderSide
	OpenPrice float64
	SizeBase  float64
	Take      float64
	Stop      float64
	OpenTime  time.Time
	EntryFee  float64
}

// ExitRecord is a compact record of a closed lot, used by reporter.go.
type ExitRecord struct {
	Symbol     Symbol
	Side       OrderSide
	OpenPrice  float64
	ClosePrice float64
	SizeBase   float64
	PNLUSD     float64
	Reason     string
	ExitTime   time.Time
}

// TradingManager drives order matching for one symbol against a simulated
// (or live) exchange, tracking at most one open lot at a time. This is a
// deliberately compact version of trader.go's original multi-lot,
// trailing-stop, maker-first-routing bookkeeping: the replay core only
// needs *an* account-side consumer of decisions, not the full live-trading
// feature set (no trailing stops, no multiple lots, no maker-first routing).
type TradingManager struct {
	account *Account
	symbol  Symbol
	broker  Broker

	mu       sync.Mutex
	lot      *Position
	realized float64
	trades   int
}

// NewTradingManager builds a manager for symbol, executing through broker
// (the simulated exchange during backtests, a live Broker in production).
func NewTradingManager(account *Account, symbol Symbol, broker Broker) *TradingManager {
	return &TradingManager{account: account, symbol: symbol, broker: broker}
}

func (tm *TradingManager) Symbol() Symbol { return tm.symbol }

func (tm *TradingManager) RealizedPnL() float64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.realized
}

func (tm *TradingManager) Trades() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.trades
}

// OnDecision opens, holds, or exits the current lot based on d, sizing new
// entries as riskPerTradePct of the account's reference-currency funds.
func (tm *TradingManager) OnDecision(ctx context.Context, c Candle, d Decision, riskPerTradePct, takeProfitPct, stopLossPct float64) (string, error) {
	// TotalFunds reads every manager's RealizedPnL (including this one's),
	// so it is taken before tm.mu is locked.
	funds := tm.account.TotalFunds()

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.lot == nil {
		if d.Signal == Flat {
			return "FLAT", nil
		}
		quoteUSD := math.Max(funds*riskPerTradePct/100.0, 0)
		if quoteUSD <= 0 {
			return "NO_FUNDS", nil
		}
		po, err := tm.broker.PlaceMarketQuote(ctx, string(tm.symbol), d.SignalToSide(), quoteUSD)
		if err != nil {
			return "", fmt.Errorf("open %s %s: %w", tm.symbol, d.Signal, err)
		}
		sign := 1.0
		if d.SignalToSide() == SideSell {
			sign = -1.0
		}
		tm.lot = &Position{
			Side:      d.SignalToSide(),
			OpenPrice: po.Price,
			SizeBase:  po.BaseSize,
			Take:      po.Price * (1 + sign*takeProfitPct/100.0),
			Stop:      po.Price * (1 - sign*stopLossPct/100.0),
			OpenTime:  c.Time,
			EntryFee:  po.CommissionUSD,
		}
		return fmt.Sprintf("OPEN %s @ %.8f", d.SignalToSide(), po.Price), nil
	}

	exitReason := tm.shouldExit(c.Close)
	if exitReason == "" {
		return "HOLD", nil
	}
	rec, err := tm.closeLot(ctx, c, exitReason)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EXIT %s P/L=%.2f reason=%s", rec.Side, rec.PNLUSD, rec.Reason), nil
}

// shouldExit returns a non-empty reason once price has reached the open
// lot's take-profit or stop-loss level.
func (tm *TradingManager) shouldExit(price float64) string {
	lot := tm.lot
	if lot.Side == SideBuy {
		if price >= lot.Take {
			return "take_profit"
		}
		if price <= lot.Stop {
			return "stop_loss"
		}
		return ""
	}
	if price <= lot.Take {
		return "take_profit"
	}
	if price >= lot.Stop {
		return "stop_loss"
	}
	return ""
}

// closeLot must be called with tm.mu held.
func (tm *TradingManager) closeLot(ctx context.Context, c Candle, reason string) (ExitRecord, error) {
	lot := tm.lot
	closeSide := SideSell
	if lot.Side == SideSell {
		closeSide = SideBuy
	}
	quoteUSD := lot.SizeBase * c.Close
	po, err := tm.broker.PlaceMarketQuote(ctx, string(tm.symbol), closeSide, quoteUSD)
	if err != nil {
		return ExitRecord{}, fmt.Errorf("close %s: %w", tm.symbol, err)
	}
	pnl := (po.Price - lot.OpenPrice) * lot.SizeBase
	if lot.Side == SideSell {
		pnl = -pnl
	}
	pnl -= lot.EntryFee + po.CommissionUSD

	rec := ExitRecord{
		Symbol:     tm.symbol,
		Side:       lot.Side,
		OpenPrice:  lot.OpenPrice,
		ClosePrice: po.Price,
		SizeBase:   lot.SizeBase,
		PNLUSD:     pnl,
		Reason:     reason,
		ExitTime:   c.Time,
	}
	tm.realized += pnl
	tm.trades++
	tm.lot = nil
	mtxTrades.WithLabelValues(resultLabel(pnl)).Inc()
	return rec, nil
}

// LiquidateAll closes any open lot at the broker's current price, used once
// at end of run (spec.md §4.5 step 4). When the broker reports no price (an
// error or a non-positive value), the lot is closed at its own open price.
func (tm *TradingManager) LiquidateAll(ctx context.Context, reason string) []ExitRecord {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.lot == nil {
		return nil
	}
	price, err := tm.broker.GetNowPrice(ctx, string(tm.symbol))
	if err != nil || price <= 0 {
		price = tm.lot.OpenPrice
	}
	rec, err := tm.closeLot(ctx, Candle{Time: time.Now().UTC(), Close: price}, reason)
	if err != nil {
		return nil
	}
	return []ExitRecord{rec}
}

func resultLabel(pnl float64) string {
	switch {
	case pnl > 0:
		return "win"
	case pnl < 0:
		return "loss"
	default:
		return "flat"
	}
}

// newOrderID is a thin wrapper kept so callers don't import uuid directly;
// unused by TradingManager itself (the broker mints order IDs), and nothing
// else in the package calls it either.
func newOrderID() string { return uuid.New().String() }
