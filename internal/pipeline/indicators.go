// FILE: internal/pipeline/indicators.go
// Concrete indicator Stages. Formulas grounded on the teacher's
// indicators.go (SMA/RSI/ZScore Wilder-smoothing and NaN-padding idiom),
// generalized to the Stage interface's Fit/Update contract and extended
// with EMA/ATR/MACD/OBV/RollingStd, which the teacher's strategy.go/trader.go
// reference but whose definitions were not present in the retrieved copy
// (see DESIGN.md) — authored here in the same padding/smoothing idiom as
// indicators.go's existing SMA/RSI/ZScore.
package pipeline

import (
	"math"

	"github.com/chidi150c/tradekernel/internal/market"
)

// sma computes the simple moving average over n periods, NaN-padded for the
// first n-1 points — teacher's indicators.go:SMA idiom.
func sma(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for j := i - n + 1; j <= i; j++ {
			sum += closes[j]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// rsi computes Wilder's RSI over n periods — teacher's indicators.go:RSI idiom.
func rsi(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) <= n {
		return out
	}
	var gainSum, lossSum float64
	for i := 1; i <= n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gainSum += d
		} else {
			lossSum += -d
		}
	}
	avgGain := gainSum / float64(n)
	avgLoss := lossSum / float64(n)
	out[n] = rsiFromAvg(avgGain, avgLoss)
	for i := n + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// zscore computes a rolling z-score over n periods — teacher's
// indicators.go:ZScore idiom (0-padded for insufficient lookback).
func zscore(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		if i < n-1 {
			out[i] = 0
			continue
		}
		window := closes[i-n+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(n)
		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(n)
		std := math.Sqrt(variance)
		if std == 0 {
			out[i] = 0
			continue
		}
		out[i] = (closes[i] - mean) / std
	}
	return out
}

// ema computes the exponential moving average over n periods, seeded with
// an SMA of the first n points (standard EMA convention), NaN-padded
// before that seed — authored in indicators.go's padding idiom since the
// teacher never shipped its own EMA.
func ema(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) < n {
		return out
	}
	seed := 0.0
	for i := 0; i < n; i++ {
		seed += closes[i]
	}
	seed /= float64(n)
	out[n-1] = seed
	k := 2.0 / float64(n+1)
	for i := n; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}

// rollingStd computes the rolling standard deviation over n periods.
func rollingStd(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		if i < n-1 {
			out[i] = math.NaN()
			continue
		}
		window := closes[i-n+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(n)
		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(n)
		out[i] = math.Sqrt(variance)
	}
	return out
}

// atr computes Wilder's Average True Range over n periods using each bar's
// high/low/previous-close, seeded by the simple mean of the first n true
// ranges as ATR classically is.
func atr(rows []market.Bar, symbol string, n int) []float64 {
	out := make([]float64, len(rows))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(rows) <= n {
		return out
	}
	tr := make([]float64, len(rows))
	for i := range rows {
		ohlc := rows[i].Symbols[symbol]
		if i == 0 {
			tr[i] = ohlc.High - ohlc.Low
			continue
		}
		prevClose := rows[i-1].Symbols[symbol].Close
		hl := ohlc.High - ohlc.Low
		hc := math.Abs(ohlc.High - prevClose)
		lc := math.Abs(ohlc.Low - prevClose)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	sum := 0.0
	for i := 1; i <= n; i++ {
		sum += tr[i]
	}
	avg := sum / float64(n)
	out[n] = avg
	for i := n + 1; i < len(rows); i++ {
		avg = (avg*float64(n-1) + tr[i]) / float64(n)
		out[i] = avg
	}
	return out
}

// macdHistogram computes the MACD histogram (MACD line minus its signal
// EMA) for the standard (fast, slow, signal) triple.
func macdHistogram(closes []float64, fast, slow, signal int) []float64 {
	fastEMA := ema(closes, fast)
	slowEMA := ema(closes, slow)
	macdLine := make([]float64, len(closes))
	for i := range macdLine {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			macdLine[i] = math.NaN()
			continue
		}
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalEMA := emaSkippingNaN(macdLine, signal)
	out := make([]float64, len(closes))
	for i := range out {
		if math.IsNaN(macdLine[i]) || math.IsNaN(signalEMA[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = macdLine[i] - signalEMA[i]
	}
	return out
}

// emaSkippingNaN is ema() but tolerant of a NaN-padded prefix, seeding once
// n valid values have accumulated.
func emaSkippingNaN(series []float64, n int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	start := -1
	for i, v := range series {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || start+n > len(series) {
		return out
	}
	seed := 0.0
	for i := start; i < start+n; i++ {
		seed += series[i]
	}
	seed /= float64(n)
	out[start+n-1] = seed
	k := 2.0 / float64(n+1)
	for i := start + n; i < len(series); i++ {
		out[i] = series[i]*k + out[i-1]*(1-k)
	}
	return out
}

// obv computes On-Balance Volume normalized by its own rolling std so it is
// comparable in scale across symbols, matching strategy.go's
// BuildExtendedFeatures' "normalized OBV" feature.
func obv(rows []market.Bar, symbol string, volumes []float64, normWindow int) []float64 {
	raw := make([]float64, len(rows))
	cum := 0.0
	for i := range rows {
		if i > 0 {
			prevClose := rows[i-1].Symbols[symbol].Close
			close := rows[i].Symbols[symbol].Close
			switch {
			case close > prevClose:
				cum += volumes[i]
			case close < prevClose:
				cum -= volumes[i]
			}
		}
		raw[i] = cum
	}
	std := rollingStd(raw, normWindow)
	out := make([]float64, len(rows))
	for i := range out {
		if math.IsNaN(std[i]) || std[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = raw[i] / std[i]
	}
	return out
}
