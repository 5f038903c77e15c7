// FILE: broker_paper.go
// Package main – In-memory paper broker (no external dependencies).
//
// This broker simulates execution using the latest known price. It’s used for
// dry runs and backtests. Prices come from SetPrice (called with each replayed
// candle's close), and orders here never touch the exchange.
//
// Methods:
//   • Name() string
//   • GetNowPrice(ctx, product) (float64, error)
//   • PlaceMarketQuote(ctx, product, side, quoteUSD) (*PlacedOrder, error)
//   • GetRecentCandles(...) ([]Candle, error)  // unsupported in paper mode
//   • GetAvailableBase(...) (string, float64, float64, error)   // env-based
//   • GetAvailableQuote(...) (string, float64, float64, error)  // env-based
//
// Minimal additions for maker-first routing compatibility:
//   • PlaceLimitPostOnly(ctx, product, side, limitPrice, baseSize) (string, error)  // returns "not supported"
//   • GetOrder(ctx, product, orderID) (*PlacedOrder, error)                          // returns "not supported"
//   • CancelOrder(ctx, product, orderID) error                                       // returns "not supported"
//   • GetExchangeFilters(ctx, product) (ExFilters, error)                            // zero value, no error
//   • GetBBO(ctx, product) (bid, ask float64, error)                                 // zero-spread around GetNowPrice
package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperBroker keeps a per-product mutable price used to simulate fills.
// Generalized from the teacher's single shared price field so one
// PaperBroker can back a multi-symbol replay (spec.md §3): each symbol's
// DirectionalEngine calls SetPrice with the candle it just processed before
// asking the broker to fill an order, so fills always happen at that
// candle's close instead of a fixed bootstrap value.
type PaperBroker struct {
	prices map[string]float64
	mu     sync.Mutex
}

func NewPaperBroker() *PaperBroker { return &PaperBroker{prices: make(map[string]float64)} }

func (p *PaperBroker) Name() string { return "paper" }

// SetPrice records the latest known price for product, used by the next
// GetNowPrice/PlaceMarketQuote call against that product.
func (p *PaperBroker) SetPrice(product string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[product] = price
}

func (p *PaperBroker) GetNowPrice(ctx context.Context, product string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price := p.prices[product]
	if price <= 0 {
		price = 108000 // default bootstrap price if none seen yet
		p.prices[product] = price
	}
	return price, nil
}

// PlaceMarketQuote simulates a market order by converting quoteUSD at current price.
func (p *PaperBroker) PlaceMarketQuote(ctx context.Context, product string, side OrderSide, quoteUSD float64) (*PlacedOrder, error) {
	if quoteUSD <= 0 {
		return nil, errors.New("quoteUSD must be > 0")
	}
	price, _ := p.GetNowPrice(ctx, product)
	base := quoteUSD / price
	return &PlacedOrder{
		ID:         uuid.New().String(),
		ProductID:  product,
		Side:       side,
		Price:      price,
		BaseSize:   base,
		QuoteSpent: quoteUSD,
		CreateTime: time.Now().UTC(),
	}, nil
}

// GetRecentCandles is not supported in paper mode; use the bridge for market data.
func (p *PaperBroker) GetRecentCandles(ctx context.Context, product string, granularity string, limit int) ([]Candle, error) {
	return nil, errors.New("paper broker has no candles (use bridge or CSV)")
}

// GetAvailableBase returns env-driven paper balances for the base asset.
// - asset: parsed from product "BASE-QUOTE" (fallback to BASE_ASSET env if parsing fails)
// - available: PAPER_BASE_BALANCE
// - step: BASE_STEP
func (p *PaperBroker) GetAvailableBase(ctx context.Context, product string) (asset string, available float64, step float64, err error) {
	base, _ := parseProductSymbols(product)
	if strings.TrimSpace(base) == "" {
		base = strings.TrimSpace(baseAssetOverride()) // fallback for paper
	}
	return base, paperBaseBalance(), baseStepOverride(), nil
}

// GetAvailableQuote returns env-driven paper balances for the quote asset.
// - asset: parsed from product "BASE-QUOTE"
// - available: PAPER_QUOTE_BALANCE
// - step: QUOTE_STEP
func (p *PaperBroker) GetAvailableQuote(ctx context.Context, product string) (asset string, available float64, step float64, err error) {
	_, quote := parseProductSymbols(product)
	return quote, paperQuoteBalance(), quoteStepOverride(), nil
}

// --- Maker-first additions (stubs to satisfy the Broker interface) ---

func (p *PaperBroker) PlaceLimitPostOnly(ctx context.Context, product string, side OrderSide, limitPrice, baseSize float64) (string, error) {
	return "", errors.New("limit_post_only not supported on paper")
}

func (p *PaperBroker) GetOrder(ctx context.Context, product, orderID string) (*PlacedOrder, error) {
	return nil, errors.New("get order not supported on paper")
}

func (p *PaperBroker) CancelOrder(ctx context.Context, product, orderID string) error {
	return errors.New("cancel not supported on paper")
}

func (p *PaperBroker) GetExchangeFilters(ctx context.Context, product string) (ExFilters, error) {
	return ExFilters{}, nil
}

// GetBBO approximates bid/ask with the paper broker's single known price
// (zero spread); there is no real order book to quote.
func (p *PaperBroker) GetBBO(ctx context.Context, product string) (bid, ask float64, err error) {
	price, err := p.GetNowPrice(ctx, product)
	if err != nil {
		return 0, 0, err
	}
	return price, price, nil
}

// parseProductSymbols splits a product like "BTC-USD" into ("BTC", "USD").
func parseProductSymbols(product string) (base string, quote string) {
	product = strings.TrimSpace(product)
	parts := strings.Split(product, "-")
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	// unknown format
	return "", ""
}
