// FILE: model.go
// Package main – Tiny in-memory ML “micro-model” for directional bias.
//
// Minimal logistic-regression–style model used to produce pUp from
// hand-crafted features. Kept simple and fast.
//
// ExtendedLogit below is the opt-in richer-feature sibling (8 features
// instead of 4, mini-batch fit) selected by MODEL_MODE=extended; see
// strategy.go's BuildExtendedFeatures/ComputePUpextended.

package main

import (
	"math"
	"math/rand"
	"time"
)

type AIMicroModel struct {
	W []float64 // weights
	B float64   // bias
}

func newModel() *AIMicroModel {
	rand.Seed(time.Now().UnixNano())
	w := make([]float64, 4) // features: ret1, ret5, rsi14/100, zscore20
	for i := range w {
		w[i] = rand.NormFloat64() * 0.01
	}
	return &AIMicroModel{W: w}
}

// sigmoid returns 1/(1+e^-x) with simple clamping for numerical stability.
func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

// predict expects exactly len(W) features; otherwise returns 0.5.
func (m *AIMicroModel) predict(features []float64) float64 {
	if len(features) != len(m.W) {
		return 0.5
	}
	z := m.B
	for i := range features {
		z += m.W[i] * features[i]
	}
	return sigmoid(z)
}

// fit performs a simple gradient step on cross-entropy loss.
func (m *AIMicroModel) fit(c []Candle, lr float64, epochs int) {
	if len(c) < 40 {
		return
	}
	feats, labels := buildDataset(c)
	for e := 0; e < epochs; e++ {
		for i := range feats {
			p := m.predict(feats[i])
			y := labels[i]
			grad := p - y
			for j := range m.W {
				m.W[j] -= lr * grad * feats[i][j]
			}
			m.B -= lr * grad
		}
	}
}

// buildDataset creates (features, labels) from candles.
func buildDataset(c []Candle) ([][]float64, []float64) {
	var feats [][]float64
	var labels []float64
	rsis := RSI(c, 14)
	zs := ZScore(c, 20)
	for i := 21; i < len(c)-1; i++ {
		ret1 := (c[i].Close - c[i-1].Close) / c[i-1].Close
		ret5 := (c[i].Close - c[i-5].Close) / c[i-5].Close
		f := []float64{ret1, ret5, rsis[i] / 100.0, zs[i]}
		up := 0.0
		if c[i+1].Close > c[i].Close {
			up = 1.0
		}
		feats = append(feats, f)
		labels = append(labels, up)
	}
	return feats, labels
}

// ExtendedLogit is a plain logistic-regression head over a richer feature
// set (see strategy.go's BuildExtendedFeatures), trained by mini-batch
// gradient descent instead of AIMicroModel's full-batch loop.
type ExtendedLogit struct {
	W []float64
	B float64
}

// NewExtendedLogit allocates a model sized for nFeatures, zero-initialized
// except for small random weights (breaks symmetry, matches newModel).
func NewExtendedLogit(nFeatures int) *ExtendedLogit {
	w := make([]float64, nFeatures)
	for i := range w {
		w[i] = rand.NormFloat64() * 0.01
	}
	return &ExtendedLogit{W: w}
}

// Predict returns pUp for one feature row; 0.5 on a feature-count mismatch.
func (m *ExtendedLogit) Predict(features []float64) float64 {
	if len(features) != len(m.W) {
		return 0.5
	}
	z := m.B
	for i := range features {
		z += m.W[i] * features[i]
	}
	return sigmoid(z)
}

// FitMiniBatch trains on (feats, labels) for epochs passes, shuffling
// indices into batches of batchSize each epoch.
func (m *ExtendedLogit) FitMiniBatch(feats [][]float64, labels []float64, lr float64, epochs, batchSize int) {
	n := len(feats)
	if n == 0 || batchSize <= 0 {
		return
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for e := 0; e < epochs; e++ {
		rand.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				end = n
			}
			gradW := make([]float64, len(m.W))
			var gradB float64
			for _, i := range idx[start:end] {
				p := m.Predict(feats[i])
				grad := p - labels[i]
				for j := range m.W {
					gradW[j] += grad * feats[i][j]
				}
				gradB += grad
			}
			batchN := float64(end - start)
			for j := range m.W {
				m.W[j] -= lr * gradW[j] / batchN
			}
			m.B -= lr * gradB / batchN
		}
	}
}
