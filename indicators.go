// FILE: indicators.go
// Package main – Technical indicators for the trading bot.
//
// This file implements lightweight TA helpers used by the strategy/model:
//   • SMA(c, n)      – Simple Moving Average of Close
//   • RSI(c, n)      – Relative Strength Index (Wilder’s smoothing)
//   • ZScore(c, n)   – Rolling Z-Score of Close
//   • EMA(x, n)      – Exponential Moving Average
//   • ATR(c, n)      – Average True Range
//   • MACD(x, ...)   – MACD line, signal line, histogram
//   • OBV(c)         – On-Balance Volume
//   • RollingStd(x,n)– Rolling standard deviation
//
// Notes
//   - SMA, RSI, ZScore, ATR and OBV take a slice of Candle (defined in strategy.go);
//     EMA, MACD and RollingStd take a slice of float64.
//   - Outputs are aligned to input length; unavailable lookbacks emit NaN/0 as noted.
//   - Keep these fast and allocation-light; they’re called on every replayed candle.
package main

import (
	"math"
)

// SMA returns the n-period simple moving average of Close, aligned to c.
// For indices < n-1, the function returns NaN.
func SMA(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range c {
		sum += c[i].Close
		if i >= n {
			sum -= c[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder’s smoothing.
// Indices before the first full window are zero (0).
func RSI(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		return out
	}
	var gain, loss float64
	for i := 1; i < len(c); i++ {
		d := c[i].Close - c[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				avgGain := gain / float64(n)
				avgLoss := loss / float64(n)
				rs := 0.0
				if avgLoss != 0 {
					rs = avgGain / avgLoss
				}
				out[i] = 100.0 - (100.0 / (1.0 + rs))
			}
		} else {
			// Wilder smoothing
			if d > 0 {
				gain = (gain*float64(n-1) + d) / float64(n)
				loss = (loss*float64(n-1) + 0) / float64(n)
			} else {
				gain = (gain*float64(n-1) + 0) / float64(n)
				loss = (loss*float64(n-1) - d) / float64(n)
			}
			rs := 0.0
			if loss != 0 {
				rs = gain / loss
			}
			out[i] = 100.0 - (100.0 / (1.0 + rs))
		}
	}
	return out
}

// ZScore returns the rolling z-score of Close over window n, aligned to c.
// For indices < n-1, the function returns 0.
func ZScore(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 1 || len(c) == 0 {
		return out
	}
	var sum, sumSq float64
	for i := range c {
		x := c[i].Close
		sum += x
		sumSq += x * x
		if i >= n {
			y := c[i-n].Close
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := (sumSq / float64(n)) - (mean * mean)
			std := math.Sqrt(math.Max(variance, 1e-12))
			out[i] = (x - mean) / std
		} else {
			out[i] = 0
		}
	}
	return out
}

// EMA returns the n-period exponential moving average of x, aligned to x.
// The first value seeds the average; indices before that carry the seed.
func EMA(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	if n <= 0 || len(x) == 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = alpha*x[i] + (1-alpha)*out[i-1]
	}
	return out
}

// ATR returns the n-period Average True Range (Wilder smoothing), aligned to c.
func ATR(c []Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		return out
	}
	tr := make([]float64, len(c))
	for i := range c {
		if i == 0 {
			tr[i] = c[i].High - c[i].Low
			continue
		}
		hl := c[i].High - c[i].Low
		hc := math.Abs(c[i].High - c[i-1].Close)
		lc := math.Abs(c[i].Low - c[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	var avg float64
	for i := range tr {
		if i < n {
			avg += tr[i] / float64(n)
			out[i] = avg
			continue
		}
		avg = (avg*float64(n-1) + tr[i]) / float64(n)
		out[i] = avg
	}
	return out
}

// MACD returns the MACD line, signal line, and histogram for x using the
// given fast/slow/signal periods.
func MACD(x []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	ef := EMA(x, fast)
	es := EMA(x, slow)
	macd = make([]float64, len(x))
	for i := range x {
		macd[i] = ef[i] - es[i]
	}
	sig = EMA(macd, signal)
	hist = make([]float64, len(x))
	for i := range x {
		hist[i] = macd[i] - sig[i]
	}
	return macd, sig, hist
}

// OBV returns On-Balance Volume, aligned to c.
func OBV(c []Candle) []float64 {
	out := make([]float64, len(c))
	for i := 1; i < len(c); i++ {
		switch {
		case c[i].Close > c[i-1].Close:
			out[i] = out[i-1] + c[i].Volume
		case c[i].Close < c[i-1].Close:
			out[i] = out[i-1] - c[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// RollingStd returns the rolling standard deviation of x over window n.
func RollingStd(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	if n <= 1 || len(x) == 0 {
		return out
	}
	var sum, sumSq float64
	for i := range x {
		sum += x[i]
		sumSq += x[i] * x[i]
		if i >= n {
			sum -= x[i-n]
			sumSq -= x[i-n] * x[i-n]
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := (sumSq / float64(n)) - (mean * mean)
			out[i] = math.Sqrt(math.Max(variance, 1e-12))
		}
	}
	return out
}
