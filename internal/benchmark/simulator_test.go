// FILE: internal/benchmark/simulator_test.go
package benchmark

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func flatSymbol(feeRate string) market.Symbol {
	return market.Symbol{
		Name:              "X",
		MinimumOrderSize:  decimal.Zero,
		MaximumOrderSize:  d("1000000000"),
		QuantityPrecision: 8,
		PricePrecision:    2,
		MaxLeverage:       d("20"),
		TakerFeeRate:      d(feeRate),
		MakerFeeRate:      d(feeRate),
	}
}

// buildTable constructs a one-symbol table of doji bars (open==close) from
// a price series, plus the six fixed 0/1 signal columns.
func buildTable(prices []float64, signals map[string][]float64) *market.TradingTable {
	t := market.NewTradingTable(market.OneMinute)
	for i, p := range prices {
		bar := market.Bar{
			StartTime: int64(i) * market.OneMinute.Seconds(),
			Symbols: map[string]market.OHLC{
				"X": {Open: p, High: p + 1, Low: p - 1, Close: p},
			},
		}
		if err := t.Append(bar); err != nil {
			panic(err)
		}
	}
	n := len(prices)
	for _, name := range []string{"go_long", "go_short", "close_long", "close_short", "close_position", "revert_position"} {
		col := make(market.Column, n)
		if vals, ok := signals[name]; ok {
			copy(col, vals)
		}
		_ = t.SetColumn(name, col)
	}
	return t
}

// Scenario A (spec §8): clean long round trip. go_long recorded at bar 0
// opens at bar 1's open; close_long recorded at bar 3 closes at bar 4's
// open. Leverage 1, fee 0, allocation 1: pnl should equal units*(104-101).
func TestSimulatorCleanLongRoundTrip(t *testing.T) {
	prices := []float64{100, 101, 102, 103, 104, 105}
	table := buildTable(prices, map[string][]float64{
		"go_long":    {1, 0, 0, 0, 0, 0},
		"close_long": {0, 0, 0, 1, 0, 0},
	})
	sim := &Simulator{
		Settings: ledger.TradingSettings{Leverage: d("1"), AllocationPercentage: d("1")},
		Symbol:   flatSymbol("0"),
	}
	results, err := sim.Run(table, "X", d("10000"))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("len(results) = %d, want 6", len(results))
	}

	if results[0].Action != ActionNone || results[0].Position != PositionFlat {
		t.Fatalf("bar0 = %+v, want flat/none", results[0])
	}
	if results[1].Action != ActionGoLong || results[1].Position != PositionLong {
		t.Fatalf("bar1 = %+v, want go_long/long", results[1])
	}
	wantUnits := d("99.00990099")
	if !results[1].Units.Equal(wantUnits) {
		t.Fatalf("bar1 units = %s, want %s", results[1].Units, wantUnits)
	}
	if results[2].Action != ActionKeepPosition || results[3].Action != ActionKeepPosition {
		t.Fatalf("bars 2/3 should be keep_position, got %v / %v", results[2].Action, results[3].Action)
	}
	if results[4].Action != ActionCloseLong || results[4].Position != PositionFlat {
		t.Fatalf("bar4 = %+v, want close_long/flat", results[4])
	}
	wantPnL := d("297.02970297")
	if !results[4].PnL.Equal(wantPnL) {
		t.Fatalf("bar4 pnl = %s, want %s", results[4].PnL, wantPnL)
	}
	wantBalance := d("10297.02970297")
	if !results[4].Balance.Equal(wantBalance) {
		t.Fatalf("bar4 balance = %s, want %s", results[4].Balance, wantBalance)
	}
	if results[5].Action != ActionNone || results[5].Position != PositionFlat {
		t.Fatalf("bar5 = %+v, want flat/none", results[5])
	}
	if !results[5].Balance.Equal(wantBalance) {
		t.Fatalf("bar5 balance should carry forward unchanged: %svs%s", results[5].Balance, wantBalance)
	}

	// Only one go_long and one close_long action in the whole action vector
	// (spec §8 scenario A).
	var longs, closes int
	for _, r := range results {
		if r.Action == ActionGoLong {
			longs++
		}
		if r.Action == ActionCloseLong {
			closes++
		}
	}
	if longs != 1 || closes != 1 {
		t.Fatalf("action counts: go_long=%d close_long=%d, want exactly 1 each", longs, closes)
	}
}

// Scenario B (spec §8): stop-loss takes priority over the bar's close price.
// Leverage 10, SL 2%. Long at entry 100; bar low dips to 97, below the SL
// trigger of 98 but above the bankruptcy trigger of 90 - SL must fire at
// its threshold price, not at the bar's low or close.
func TestSimulatorStopLossTakesPriority(t *testing.T) {
	sl := d("0.02")
	prices := []float64{100, 100, 100}
	table := buildTable(prices, map[string][]float64{"go_long": {1, 0, 0}})
	// Bar 2's low pierces the SL threshold (98) but not bankruptcy (90).
	table.Rows[2].Symbols["X"] = market.OHLC{Open: 100, High: 101, Low: 97, Close: 100}

	sim := &Simulator{
		Settings: ledger.TradingSettings{
			Leverage:             d("10"),
			AllocationPercentage: d("1"),
			PriceLevelModifiers:  ledger.PriceLevelModifiers{StopLoss: &sl},
		},
		Symbol: flatSymbol("0"),
	}
	results, err := sim.Run(table, "X", d("10000"))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if results[1].Action != ActionGoLong {
		t.Fatalf("bar1 action = %v, want go_long", results[1].Action)
	}
	if results[2].Action != ActionStopLoss {
		t.Fatalf("bar2 action = %v, want stop_loss", results[2].Action)
	}
	if results[2].Position != PositionFlat {
		t.Fatalf("bar2 position = %v, want flat after stop", results[2].Position)
	}
	// PnL must reflect the SL price (98), not the bar low (97) or close
	// (100): units*(98-100) is strictly between units*(97-100) and 0.
	if !results[2].PnL.IsNegative() {
		t.Fatalf("bar2 pnl = %s, want negative (stopped out below entry)", results[2].PnL)
	}
	lossAtLow := results[1].Units.Mul(d("97").Sub(d("100")))
	if results[2].PnL.LessThan(lossAtLow) {
		t.Fatalf("bar2 pnl = %s, should not be worse than stopping at the bar low (%s)", results[2].PnL, lossAtLow)
	}
}

// Scenario C (spec §8): tail rewind. Same setup as the clean long round
// trip but the position is never closed; the window must not count the
// still-open trade, zeroing every bar after the last flat bar.
func TestSimulatorTailRewind(t *testing.T) {
	prices := []float64{100, 101, 102, 103, 104, 105}
	table := buildTable(prices, map[string][]float64{
		"go_long": {1, 0, 0, 0, 0, 0},
		// no close_long: position stays open through the end of the window.
	})
	sim := &Simulator{
		Settings: ledger.TradingSettings{Leverage: d("1"), AllocationPercentage: d("1")},
		Symbol:   flatSymbol("0"),
	}
	results, err := sim.Run(table, "X", d("10000"))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	// bar0 was the last flat bar; everything after it must be rewound.
	flatBalance := results[0].Balance
	for i := 1; i < len(results); i++ {
		r := results[i]
		if r.Position != PositionFlat {
			t.Fatalf("bar%d position = %v, want flat after rewind", i, r.Position)
		}
		if r.Action != ActionKeepPosition {
			t.Fatalf("bar%d action = %v, want keep_position after rewind", i, r.Action)
		}
		if !r.Fee.IsZero() || !r.Units.IsZero() || !r.PnL.IsZero() {
			t.Fatalf("bar%d = %+v, want zeroed fee/units/pnl after rewind", i, r)
		}
		if !r.Balance.Equal(flatBalance) {
			t.Fatalf("bar%d balance = %s, want flat-bar balance %s", i, r.Balance, flatBalance)
		}
	}
}

// Scenario D (spec §8): signal reversal. A long is held; an opposite
// go_short signal with signals_revert_opposite=true must close the long and
// reopen a short in the same bar, with cumulative fee equal to both legs.
func TestSimulatorSignalReversalSameBar(t *testing.T) {
	prices := []float64{100, 101, 102, 103}
	table := buildTable(prices, map[string][]float64{
		"go_long":  {1, 0, 0, 0},
		"go_short": {0, 0, 1, 0}, // recorded at bar2, fires the reversal at bar3
	})
	sim := &Simulator{
		Settings: ledger.TradingSettings{
			Leverage:              d("1"),
			AllocationPercentage:  d("1"),
			SignalsRevertOpposite: true,
		},
		Symbol: flatSymbol("0.001"),
	}
	results, err := sim.Run(table, "X", d("10000"))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if results[1].Position != PositionLong {
		t.Fatalf("bar1 position = %v, want long", results[1].Position)
	}
	r3 := results[3]
	if r3.Action != ActionGoShort {
		t.Fatalf("bar3 action = %v, want go_short (reversal)", r3.Action)
	}
	if r3.Position != PositionShort {
		t.Fatalf("bar3 position = %v, want short after reversal", r3.Position)
	}
	if r3.Units.IsZero() {
		t.Fatal("bar3 units should reflect the new short leg, not zero")
	}
	// Cumulative fee is the sum of the close leg and the reopen leg, so it
	// must exceed a single-leg fee (notional*feeRate) on its own.
	singleLegFee := results[1].Units.Mul(d("103")).Mul(d("0.001"))
	if r3.Fee.LessThanOrEqual(singleLegFee) {
		t.Fatalf("bar3 cumulative fee = %s, want more than a single leg's fee %s", r3.Fee, singleLegFee)
	}
}

// Universal property 6 (spec §8): every placed order respects sizing
// constraints and max leverage.
func TestSimulatorSizingConstraints(t *testing.T) {
	prices := []float64{100, 101, 102}
	table := buildTable(prices, map[string][]float64{"go_long": {1, 0, 0}})
	sym := flatSymbol("0")
	sym.MinimumOrderSize = d("0.001")
	sym.MaximumOrderSize = d("5")
	sim := &Simulator{
		Settings: ledger.TradingSettings{Leverage: d("1"), AllocationPercentage: d("1")},
		Symbol:   sym,
	}
	results, err := sim.Run(table, "X", d("10000"))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	units := results[1].Units
	if units.LessThan(sym.MinimumOrderSize) || units.GreaterThan(sym.MaximumOrderSize) {
		t.Fatalf("units = %s, want within [%s, %s]", units, sym.MinimumOrderSize, sym.MaximumOrderSize)
	}
	if !units.Equal(sym.MaximumOrderSize) {
		t.Fatalf("units = %s, want clamped to max %s (10000 would otherwise buy far more than 5)", units, sym.MaximumOrderSize)
	}
}

// Trailing stop-loss: the stop trails the peak return since entry, so a
// pullback that never threatens the fixed SL/TP still exits once it gives
// back more than the configured TSL distance from the peak.
func TestSimulatorTrailingStopFollowsPeakReturn(t *testing.T) {
	tsl := d("0.05")
	prices := []float64{100, 100, 100, 100}
	table := buildTable(prices, map[string][]float64{"go_long": {1, 0, 0, 0}})
	// bar1: opens at 100. bar2: runs up to a close of 110, pushing
	// peakReturns to 0.10 and the trailing stop up to 100*(1+0.10-0.05)=105.
	table.Rows[2].Symbols["X"] = market.OHLC{Open: 100, High: 111, Low: 99, Close: 110}
	// bar3: pulls back through 105 without touching the fixed bankruptcy
	// level or any SL/TP (neither configured here).
	table.Rows[3].Symbols["X"] = market.OHLC{Open: 110, High: 111, Low: 104, Close: 108}

	sim := &Simulator{
		Settings: ledger.TradingSettings{
			Leverage:             d("1"),
			AllocationPercentage: d("1"),
			PriceLevelModifiers:  ledger.PriceLevelModifiers{TrailingStopLoss: &tsl},
		},
		Symbol: flatSymbol("0"),
	}
	results, err := sim.Run(table, "X", d("10000"))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if results[1].Action != ActionGoLong {
		t.Fatalf("bar1 action = %v, want go_long", results[1].Action)
	}
	if results[2].Action != ActionKeepPosition {
		t.Fatalf("bar2 action = %v, want keep_position (peak update, no exit yet)", results[2].Action)
	}
	if results[3].Action != ActionTrailingStop {
		t.Fatalf("bar3 action = %v, want trailing_stop", results[3].Action)
	}
	if results[3].Position != PositionFlat {
		t.Fatalf("bar3 position = %v, want flat after the trailing stop", results[3].Position)
	}
	// Exit price is the trail (105), strictly between the bar low (104)
	// and the peak close (110).
	units := results[1].Units
	pnlAtTrail := units.Mul(d("105").Sub(d("100")))
	if !results[3].PnL.Equal(pnlAtTrail) {
		t.Fatalf("bar3 pnl = %s, want %s (exit at the trailing stop price 105)", results[3].PnL, pnlAtTrail)
	}
}
