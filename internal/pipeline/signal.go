// FILE: internal/pipeline/signal.go
// MicroModelSignalStage turns the MicroModel's pUp plus the EMA-cross
// regime columns into the spec's 0/1 signal columns, grounded on the
// teacher's strategy.go:decide — same pUp-threshold-plus-optional-MA-filter
// gating, generalized from a single Buy/Sell/Flat Decision into the spec's
// six named signal columns. decide() itself never distinguishes "open" from
// "close" (that distinction lives entirely in step.go's position
// bookkeeping); here pUp above BuyThreshold (in a buy regime, when
// UseRegimeFilter is set) emits both go_long and close_short, and pUp below
// SellThreshold (in a sell regime, when UseRegimeFilter is set) emits both
// go_short and close_long, matching spec §4.5's
// expectation that the Signal->Order State Machine — not the pipeline —
// decides what a signal means against the current ledger state.
// close_position/revert_position are left at 0: the teacher has no
// unconditional "exit now" signal distinct from the directional reversal,
// and spec §4.4/§4.5 only require revert_position semantics when
// signals_revert_opposite is set, which orderstate derives from the
// opposite go_* signal rather than from a dedicated column.
package pipeline

import (
	"github.com/chidi150c/tradekernel/internal/market"
)

// MicroModelSignalStage is the Signal-phase stage.
type MicroModelSignalStage struct {
	Model            *MicroModel
	BuyThreshold     float64
	SellThreshold    float64
	UseRegimeFilter  bool
}

func (s *MicroModelSignalStage) Name() string { return "micro_model_signal" }
func (s *MicroModelSignalStage) Kind() Kind   { return KindSignal }
func (s *MicroModelSignalStage) PatchSymbols(market.SymbolsPair) {}

func (s *MicroModelSignalStage) compute(t *market.TradingTable, symbol string) map[string][]float64 {
	closes := closeSeries(t, symbol)
	n := len(closes)
	goLong := make([]float64, n)
	goShort := make([]float64, n)
	closeLong := make([]float64, n)
	closeShort := make([]float64, n)
	closePosition := make([]float64, n)
	revertPosition := make([]float64, n)

	rsi14 := rsi(closes, 14)
	zs20 := zscore(closes, 20)
	lowBottom := t.Columns["regime_low_bottom"]
	highPeak := t.Columns["regime_high_peak"]
	priceDownGoingUp := t.Columns["regime_price_down_going_up"]
	priceUpGoingDown := t.Columns["regime_price_up_going_down"]

	for i := 0; i < n; i++ {
		feats := microFeatures(closes, rsi14, zs20, i)
		if feats == nil {
			continue
		}
		pUp := s.Model.Predict(feats)

		buyRegime := !s.UseRegimeFilter
		sellRegime := !s.UseRegimeFilter
		if s.UseRegimeFilter && i < len(lowBottom) {
			buyRegime = lowBottom[i] == 1 || priceDownGoingUp[i] == 1
			sellRegime = highPeak[i] == 1 || priceUpGoingDown[i] == 1
		}

		if pUp > s.BuyThreshold && buyRegime {
			goLong[i] = 1
			closeShort[i] = 1
		} else if pUp < s.SellThreshold && sellRegime {
			goShort[i] = 1
			closeLong[i] = 1
		}
	}
	return map[string][]float64{
		"go_long": goLong, "go_short": goShort,
		"close_long": closeLong, "close_short": closeShort,
		"close_position": closePosition, "revert_position": revertPosition,
	}
}

func (s *MicroModelSignalStage) Fit(t *market.TradingTable, symbol string) error {
	cols := s.compute(t, symbol)
	for _, name := range SignalColumns {
		if err := t.SetColumn(name, cols[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MicroModelSignalStage) Update(t *market.TradingTable, symbol string) error {
	cols := s.compute(t, symbol)
	for _, name := range SignalColumns {
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
