// FILE: internal/pipeline/extended.go
// ExtendedLogit is the richer 8-feature logistic model the teacher's
// strategy.go/trader.go/backtest.go reference throughout (via MODEL_MODE=
// extended, mdlExt, trainExtendedIfEnabled) but whose definition was not
// present in the retrieved teacher copy (see DESIGN.md) — authored here
// from strategy.go:BuildExtendedFeatures/ComputePUpextended's documented
// feature order and the same sigmoid/gradient-step shape as MicroModel.
package pipeline

import (
	"math"

	"github.com/chidi150c/tradekernel/internal/market"
)

// ExtendedFeatureCount is the width of BuildExtendedFeatures' vector:
// ret1, ret5, RSI14/100, ZScore20, ATR14/Close, MACD_hist(12,26,9),
// OBV_norm, Std20/Close.
const ExtendedFeatureCount = 8

// ExtendedLogit is an 8-feature logistic regression.
type ExtendedLogit struct {
	W []float64
	B float64
}

// NewExtendedLogit seeds small random weights.
func NewExtendedLogit(seed int64) *ExtendedLogit {
	m := NewMicroModel(seed)
	w := make([]float64, ExtendedFeatureCount)
	for i := range w {
		w[i] = m.W[i%len(m.W)]
	}
	return &ExtendedLogit{W: w}
}

// Predict returns P(up) for an 8-feature vector; 0.5 on a shape mismatch.
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

// FitMiniBatch runs one mini-batch gradient step over a slice of
// (features, label) pairs, grounded on the teacher's model.go:fit shape.
func (m *ExtendedLogit) FitMiniBatch(features [][]float64, labels []float64, lr float64) {
	for i := range features {
		if len(features[i]) != len(m.W) {
			continue
		}
		p := m.Predict(features[i])
		grad := p - labels[i]
		for j := range m.W {
			m.W[j] -= lr * grad * features[i][j]
		}
		m.B -= lr * grad
	}
}

// BuildExtendedFeatures constructs the 8-feature vector per row of the
// table, matching strategy.go:BuildExtendedFeatures' documented feature
// order and volume-aware OBV term. If train is true, labels (next-bar "up")
// are also returned. Rows before the warmup window (26 bars) are skipped.
func BuildExtendedFeatures(t *market.TradingTable, symbol string, train bool) ([][]float64, []float64) {
	if t.Len() < 60 {
		return nil, nil
	}
	closes := closeSeries(t, symbol)
	volumes := make([]float64, t.Len())
	for i, row := range t.Rows {
		volumes[i] = row.Symbols[symbol].Volume
	}

	rsi14 := rsi(closes, 14)
	zs20 := zscore(closes, 20)
	atr14 := atr(t.Rows, symbol, 14)
	macdHist := macdHistogram(closes, 12, 26, 9)
	obvNorm := obv(t.Rows, symbol, volumes, 20)
	std20 := rollingStd(closes, 20)

	var feats [][]float64
	var labels []float64
	start := 26
	end := t.Len() - 1
	if !train {
		end = t.Len()
	}
	for i := start; i < end; i++ {
		if i < 5 || closes[i-1] == 0 || closes[i-5] == 0 {
			continue
		}
		atrPct := 0.0
		if closes[i] > 0 && !math.IsNaN(atr14[i]) {
			atrPct = atr14[i] / closes[i]
		}
		volPct := 0.0
		if closes[i] > 0 && !math.IsNaN(std20[i]) {
			volPct = std20[i] / closes[i]
		}
		hist := macdHist[i]
		if math.IsNaN(hist) {
			hist = 0
		}
		f := []float64{
			(closes[i] - closes[i-1]) / (closes[i-1] + 1e-12),
			(closes[i] - closes[i-5]) / (closes[i-5] + 1e-12),
			rsi14[i] / 100.0,
			zs20[i],
			atrPct,
			hist,
			obvNorm[i],
			volPct,
		}
		feats = append(feats, f)
		if train {
			up := 0.0
			if closes[i+1] > closes[i] {
				up = 1.0
			}
			labels = append(labels, up)
		}
	}
	return feats, labels
}

// ComputePUpExtended returns pUp from the extended model for the most
// recent feature row, or 0.5 if features/model are unavailable.
func ComputePUpExtended(t *market.TradingTable, symbol string, mdl *ExtendedLogit) float64 {
	feats, _ := BuildExtendedFeatures(t, symbol, false)
	if len(feats) == 0 || mdl == nil {
		return 0.5
	}
	return mdl.Predict(feats[len(feats)-1])
}
