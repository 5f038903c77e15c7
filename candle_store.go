// FILE: candle_store.go
// Package main – CandleStore: the external candle repository (spec.md §6).
//
// loadCSV here is the teacher's original backtest.go CSV reader, unchanged
// in its parsing logic; everything around it is new: a CandleStore
// interface matching spec.md's `iterate/known_symbols/clear_caches`, backed
// by one CSV file per symbol, plus a CandleCursor so stream_loader.go can
// choose between preloading a symbol's full slice and streaming it
// on-demand (candle_source.go).
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CandleStore is the candle repository the replay core queries through
// StreamLoader. iterate returns every candle in [startMillis, endMillis]
// in non-decreasing OpenTimeMillis order; preload controls whether the
// returned CandleCursor is backed by an in-memory slice or a lazy stream.
type CandleStore interface {
	Iterate(symbol Symbol, startMillis, endMillis int64, preload bool) (CandleSource, error)
	KnownSymbols() ([]Symbol, error)
	ClearCaches()
}

// CSVCandleStore serves one CSV file per symbol (time,open,high,low,close,volume
// headers, case-insensitive, RFC3339 or Unix-seconds time column) — the
// format loadCSV below parses, lifted from the teacher's backtest.go.
type CSVCandleStore struct {
	paths map[Symbol]string
	cache map[Symbol][]Candle
}

// NewCSVCandleStore builds a store from a symbol->path mapping.
func NewCSVCandleStore(paths map[Symbol]string) *CSVCandleStore {
	return &CSVCandleStore{paths: paths, cache: make(map[Symbol][]Candle)}
}

func (s *CSVCandleStore) KnownSymbols() ([]Symbol, error) {
	out := make([]Symbol, 0, len(s.paths))
	for sym := range s.paths {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ClearCaches drops every preloaded/cached candle slice, as
// SimulationDriver.RunSweep does before each parameter set and again when
// the sweep ends (spec.md §3 "Lifecycle").
func (s *CSVCandleStore) ClearCaches() {
	s.cache = make(map[Symbol][]Candle)
}

// Iterate loads (or reuses a cached load of) symbol's full candle history,
// filters to [startMillis, endMillis], and wraps it in a preloaded or
// streaming CandleSource per the preload flag.
func (s *CSVCandleStore) Iterate(symbol Symbol, startMillis, endMillis int64, preload bool) (CandleSource, error) {
	all, ok := s.cache[symbol]
	if !ok {
		path, ok := s.paths[symbol]
		if !ok {
			return nil, fmt.Errorf("unknown symbol %s", symbol)
		}
		loaded, err := loadCSV(path)
		if err != nil {
			return nil, err
		}
		all = loaded
		s.cache[symbol] = all
	}

	filtered := make([]Candle, 0, len(all))
	for _, c := range all {
		ms := c.OpenTimeMillis()
		if ms >= startMillis && ms <= endMillis {
			filtered = append(filtered, c)
		}
	}

	if preload {
		return NewPreloadedSource(filtered), nil
	}
	return NewStreamingSource(&sliceCursor{candles: filtered}), nil
}

// sliceCursor is the lazy-streaming CandleCursor backing a non-preloaded
// Iterate call. It holds the already-filtered slice (the CSV store has no
// real server-side cursor to keep open) but the symbol using it behaves as
// if it were pulling on demand, so the preload/stream distinction stays
// meaningful if CandleStore is later backed by a real database.
type sliceCursor struct {
	candles []Candle
	idx     int
}

func (c *sliceCursor) HasNext() bool { return c.idx < len(c.candles) }

func (c *sliceCursor) Next() (Candle, error) {
	v := c.candles[c.idx]
	c.idx++
	return v, nil
}

// loadCSV reads a generic candle CSV with headers:
// time|timestamp, open, high, low, close, volume
func loadCSV(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []Candle
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := first(row, "time", "timestamp")
		op := first(row, "open")
		hp := first(row, "high")
		lp := first(row, "low")
		cp := first(row, "close")
		vp := first(row, "volume", "vol")
		if ts == "" || op == "" || cp == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		o, _ := strconv.ParseFloat(op, 64)
		h, _ := strconv.ParseFloat(hp, 64)
		l, _ := strconv.ParseFloat(lp, 64)
		c, _ := strconv.ParseFloat(cp, 64)
		v, _ := strconv.ParseFloat(vp, 64)
		out = append(out, Candle{Time: tt, Open: o, High: h, Low: l, Close: c, Volume: v})
		rowIdx++
	}

	sortCandles(out)
	return out, nil
}

// parseTimeFlexible supports RFC3339 or UNIX seconds.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

// sortCandles ensures ascending time.
func sortCandles(c []Candle) {
	sort.Slice(c, func(i, j int) bool { return c[i].Time.Before(c[j].Time) })
}

// first returns the first non-empty value for keys in m.
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
