// FILE: backfill.go
// Package main – Backfiller: resumable history backfill into CSV.
//
// Adapted from tools/backfill_bridge.go, which made one fixed-size fetch
// and wrote one CSV. This generalizes that into a Backfiller that polls
// Broker.GetRecentCandles once per tick (spec.md's SUPPLEMENTED FEATURES:
// history backfill with resume), appending newly seen candles to its CSV as
// it goes so a killed backfill can restart from the last written row instead
// of rewriting rows it already has. Each poll asks only for the broker's
// most recent 300 one-minute candles; older history is never requested.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Backfiller periodically pulls recent candles from broker and appends new
// ones to a per-product CSV file under "data/".
type Backfiller struct {
	broker       Broker
	product      string
	tickInterval time.Duration
	resume       bool
}

// NewBackfiller builds a Backfiller for product, ticking every tickInterval.
// When resume is true, an existing CSV's last row's timestamp is used as the
// effective start instead of `from`.
func NewBackfiller(broker Broker, product string, tickInterval time.Duration, resume bool) *Backfiller {
	if tickInterval <= 0 {
		tickInterval = 60 * time.Second
	}
	return &Backfiller{broker: broker, product: product, tickInterval: tickInterval, resume: resume}
}

// Run polls the broker's latest 300 one-minute candles every tickInterval,
// appends those newer than the cursor (from, or the CSV's last row when
// resuming) and moves the cursor to the newest candle fetched. It returns
// once the cursor reaches to, or when ctx is cancelled. Candles older than
// the broker's latest page are not fetched, so a from far in the past is not
// filled in, and candles after to that arrive in the final page are written.
func (b *Backfiller) Run(ctx context.Context, from, to time.Time) error {
	outPath := filepath.Join("data", b.product+".csv")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	cursor := from
	if b.resume {
		if last, ok := lastCSVTimestamp(outPath); ok && last.After(cursor) {
			cursor = last
		}
	}

	ticker := time.NewTicker(b.tickInterval)
	defer ticker.Stop()

	for cursor.Before(to) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		candles, err := b.broker.GetRecentCandles(ctx, b.product, "ONE_MINUTE", 300)
		if err != nil {
			log.Printf("[WARN] backfill fetch failed: %v", err)
		} else if err := appendNewCandles(outPath, candles, cursor); err != nil {
			return fmt.Errorf("append candles: %w", err)
		} else if n := len(candles); n > 0 {
			cursor = candles[n-1].Time
			log.Printf("[BACKFILL] %s: advanced to %s", b.product, cursor.Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// lastCSVTimestamp reads outPath's final row's time column, if the file
// already exists (resume support).
func lastCSVTimestamp(outPath string) (time.Time, bool) {
	f, err := os.Open(outPath)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil || len(rows) < 2 {
		return time.Time{}, false
	}
	last := rows[len(rows)-1]
	if len(last) == 0 {
		return time.Time{}, false
	}
	ts, err := parseTimeFlexible(last[0])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// appendNewCandles writes rows from candles whose time is after sinceExclusive,
// creating outPath with a header if it doesn't already exist.
func appendNewCandles(outPath string, candles []Candle, sinceExclusive time.Time) error {
	exists := true
	if _, err := os.Stat(outPath); os.IsNotExist(err) {
		exists = false
	}

	f, err := os.OpenFile(outPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if !exists {
		if err := w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
			return err
		}
	}
	for _, c := range candles {
		if !c.Time.After(sinceExclusive) {
			continue
		}
		rec := []string{
			c.Time.Format(time.RFC3339),
			fmt.Sprintf("%v", c.Open),
			fmt.Sprintf("%v", c.High),
			fmt.Sprintf("%v", c.Low),
			fmt.Sprintf("%v", c.Close),
			fmt.Sprintf("%v", c.Volume),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}
