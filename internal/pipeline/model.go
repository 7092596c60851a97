// FILE: internal/pipeline/model.go
// MicroModel is a tiny logistic-regression directional-bias model, grounded
// on the teacher's model.go:AIMicroModel — same four features (ret1, ret5,
// rsi14/100, zscore20), same sigmoid/gradient-step shape, renamed to fit
// this package and to operate on market.TradingTable rows instead of the
// teacher's []Candle.
package pipeline

import (
	"math"
	"math/rand"

	"github.com/chidi150c/tradekernel/internal/market"
)

// MicroModel is a 4-feature logistic regression: ret1, ret5, rsi14/100,
// zscore20.
type MicroModel struct {
	W []float64
	B float64
}

// NewMicroModel seeds small random weights, per the teacher's newModel.
func NewMicroModel(seed int64) *MicroModel {
	r := rand.New(rand.NewSource(seed))
	w := make([]float64, 4)
	for i := range w {
		w[i] = r.NormFloat64() * 0.01
	}
	return &MicroModel{W: w}
}

func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

// Predict returns P(up) for a 4-feature vector; 0.5 on a shape mismatch.
func (m *MicroModel) Predict(features []float64) float64 {
	if len(features) != len(m.W) {
		return 0.5
	}
	z := m.B
	for i := range features {
		z += m.W[i] * features[i]
	}
	return sigmoid(z)
}

// microFeatures builds the (ret1, ret5, rsi14/100, zscore20) feature vector
// for row i of the table, or nil if i is too early to compute ret5/rsi14.
func microFeatures(closes []float64, rsi14, zs20 []float64, i int) []float64 {
	if i < 21 || i >= len(closes) {
		return nil
	}
	ret1 := (closes[i] - closes[i-1]) / closes[i-1]
	ret5 := (closes[i] - closes[i-5]) / closes[i-5]
	return []float64{ret1, ret5, rsi14[i] / 100.0, zs20[i]}
}

// Fit runs epochs passes of online gradient descent over the table's closes,
// labeling each row by whether the next close was higher — the teacher's
// model.go:buildDataset/fit shape, generalized to a TradingTable.
func (m *MicroModel) Fit(t *market.TradingTable, symbol string, lr float64, epochs int) {
	closes := closeSeries(t, symbol)
	if len(closes) < 40 {
		return
	}
	rsi14 := rsi(closes, 14)
	zs20 := zscore(closes, 20)
	var feats [][]float64
	var labels []float64
	for i := 21; i < len(closes)-1; i++ {
		f := microFeatures(closes, rsi14, zs20, i)
		if f == nil {
			continue
		}
		up := 0.0
		if closes[i+1] > closes[i] {
			up = 1.0
		}
		feats = append(feats, f)
		labels = append(labels, up)
	}
	for e := 0; e < epochs; e++ {
		for i := range feats {
			p := m.Predict(feats[i])
			grad := p - labels[i]
			for j := range m.W {
				m.W[j] -= lr * grad * feats[i][j]
			}
			m.B -= lr * grad
		}
	}
}
