// FILE: candle.go
// Package main – Shared market-data types for the replay engine.
//
// Candle is the normalized OHLCV row used everywhere in this repo (strategy
// decisions, brokers, the replay core). The core (dispatch_loop.go,
// replay_clock.go) only ever inspects OpenTimeMillis(); everything else is
// opaque payload as far as replay is concerned.
//
// Symbol is a string key such as "BTCUSDT" with a derived (asset, fund)
// pair; symbols whose asset equals fund carry no tradable spread and are
// skipped when NewAccount builds its TradingManagers (see account.go).
package main

import (
	"strings"
)

// Candle (the OHLCV row itself) is defined in strategy.go, alongside the
// rest of the strategy's market-data vocabulary (Signal, Decision).

// OpenTimeMillis returns the candle's open time as milliseconds since the
// Unix epoch (UTC), the one field the replay core reasons about.
func (c Candle) OpenTimeMillis() int64 {
	return c.Time.UnixMilli()
}

// Symbol identifies a tradable instrument, conventionally the concatenation
// of an asset and a fund (quote) currency, e.g. "BTCUSDT".
type Symbol string

// AssetFund splits a symbol into its (asset, fund) pair using the known fund
// currency suffixes. Returns ok=false if no known suffix matches, which the
// caller treats as "skip this symbol".
func (s Symbol) AssetFund() (asset, fund string, ok bool) {
	raw := strings.ToUpper(string(s))
	for _, suffix := range knownFundSuffixes {
		if len(raw) > len(suffix) && strings.HasSuffix(raw, suffix) {
			return raw[:len(raw)-len(suffix)], suffix, true
		}
	}
	return "", "", false
}

// Tradable reports whether the symbol's asset and fund differ; symbols
// where asset == fund (e.g. a misconfigured "USDUSD") are skipped per
// spec.md §3.
func (s Symbol) Tradable() bool {
	asset, fund, ok := s.AssetFund()
	if !ok {
		return true // unknown suffix scheme: assume tradable, let downstream reject
	}
	return asset != fund
}

var knownFundSuffixes = []string{"USDT", "USDC", "USD", "BTC", "ETH", "BUSD"}

// MinuteMillis is the replay clock's step size, one minute in milliseconds.
const MinuteMillis int64 = 60_000
