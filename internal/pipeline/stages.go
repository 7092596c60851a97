// FILE: internal/pipeline/stages.go
// Stage wrappers exposing the indicator functions through the Fit/Update/
// PatchSymbols contract. Update recomputes the full series and writes only
// the tail value (O(1) per spec §9's tabular-data note) but must remain
// numerically identical to what Fit would produce on the last row — the
// live-incremental invariant of spec §8 property 3. Because every indicator
// here only looks backward (no future bars), recomputing the series and
// keeping just the new point satisfies that invariant exactly.
package pipeline

import (
	"fmt"

	"github.com/chidi150c/tradekernel/internal/market"
)

// SMAStage decorates a "smaN" column.
type SMAStage struct{ Period int }

func (s *SMAStage) Name() string  { return fmt.Sprintf("sma%d", s.Period) }
func (s *SMAStage) Kind() Kind    { return KindIndicator }
func (s *SMAStage) PatchSymbols(market.SymbolsPair) {}

func (s *SMAStage) Fit(t *market.TradingTable, symbol string) error {
	return t.SetColumn(s.Name(), sma(closeSeries(t, symbol), s.Period))
}

func (s *SMAStage) Update(t *market.TradingTable, symbol string) error {
	series := sma(closeSeries(t, symbol), s.Period)
	if len(series) == 0 {
		return nil
	}
	return t.SetTailValue(s.Name(), series[len(series)-1])
}

// RSIStage decorates an "rsiN" column.
type RSIStage struct{ Period int }

func (s *RSIStage) Name() string  { return fmt.Sprintf("rsi%d", s.Period) }
func (s *RSIStage) Kind() Kind    { return KindIndicator }
func (s *RSIStage) PatchSymbols(market.SymbolsPair) {}

func (s *RSIStage) Fit(t *market.TradingTable, symbol string) error {
	return t.SetColumn(s.Name(), rsi(closeSeries(t, symbol), s.Period))
}

func (s *RSIStage) Update(t *market.TradingTable, symbol string) error {
	series := rsi(closeSeries(t, symbol), s.Period)
	if len(series) == 0 {
		return nil
	}
	return t.SetTailValue(s.Name(), series[len(series)-1])
}

// ZScoreStage decorates a "zscoreN" column.
type ZScoreStage struct{ Period int }

func (s *ZScoreStage) Name() string  { return fmt.Sprintf("zscore%d", s.Period) }
func (s *ZScoreStage) Kind() Kind    { return KindIndicator }
func (s *ZScoreStage) PatchSymbols(market.SymbolsPair) {}

func (s *ZScoreStage) Fit(t *market.TradingTable, symbol string) error {
	return t.SetColumn(s.Name(), zscore(closeSeries(t, symbol), s.Period))
}

func (s *ZScoreStage) Update(t *market.TradingTable, symbol string) error {
	series := zscore(closeSeries(t, symbol), s.Period)
	if len(series) == 0 {
		return nil
	}
	return t.SetTailValue(s.Name(), series[len(series)-1])
}

// EMACrossRegimeStage decorates four 0/1 regime-flag columns derived from
// the crossover of a fast and slow EMA, grounded on the teacher's
// strategy.go:decide EMA4/EMA8 crossover filter (HighPeak/PriceDownGoingUp/
// LowBottom/PriceUpGoingDown), generalized to configurable periods.
type EMACrossRegimeStage struct {
	FastPeriod, SlowPeriod int
}

func (s *EMACrossRegimeStage) Name() string { return "ema_cross_regime" }
func (s *EMACrossRegimeStage) Kind() Kind   { return KindIndicator }
func (s *EMACrossRegimeStage) PatchSymbols(market.SymbolsPair) {}

func (s *EMACrossRegimeStage) columns() []string {
	return []string{"regime_high_peak", "regime_price_down_going_up", "regime_low_bottom", "regime_price_up_going_down"}
}

func (s *EMACrossRegimeStage) compute(t *market.TradingTable, symbol string) map[string][]float64 {
	closes := closeSeries(t, symbol)
	fast := ema(closes, s.FastPeriod)
	slow := ema(closes, s.SlowPeriod)
	n := len(closes)
	highPeak := make([]float64, n)
	priceDownGoingUp := make([]float64, n)
	lowBottom := make([]float64, n)
	priceUpGoingDown := make([]float64, n)
	for i := 3; i < n; i++ {
		if anyNaN(fast[i], fast[i-1], fast[i-2], fast[i-3], slow[i], slow[i-1]) {
			continue
		}
		dNow := fast[i] - slow[i]
		dPrev := fast[i-1] - slow[i-1]
		d2 := fast[i-2] - slow[i-2]
		d3 := fast[i-3] - slow[i-3]
		if dPrev > 0 && dNow < dPrev && d2 <= dPrev && d3 <= d2 {
			highPeak[i] = 1
		}
		if dNow > dPrev && dPrev < 0 {
			priceDownGoingUp[i] = 1
		}
		if dPrev < 0 && dNow > dPrev && d2 >= dPrev && d3 >= d2 {
			lowBottom[i] = 1
		}
		if dNow < dPrev && dPrev > 0 {
			priceUpGoingDown[i] = 1
		}
	}
	return map[string][]float64{
		"regime_high_peak":           highPeak,
		"regime_price_down_going_up": priceDownGoingUp,
		"regime_low_bottom":          lowBottom,
		"regime_price_up_going_down": priceUpGoingDown,
	}
}

func (s *EMACrossRegimeStage) Fit(t *market.TradingTable, symbol string) error {
	cols := s.compute(t, symbol)
	for _, name := range s.columns() {
		if err := t.SetColumn(name, cols[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *EMACrossRegimeStage) Update(t *market.TradingTable, symbol string) error {
	cols := s.compute(t, symbol)
	for _, name := range s.columns() {
		series := cols[name]
		if len(series) == 0 {
			continue
		}
		if err := t.SetTailValue(name, series[len(series)-1]); err != nil {
			return err
		}
	}
	return nil
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if v != v {
			return true
		}
	}
	return false
}
