// FILE: internal/benchmark/simulator.go
// Package benchmark implements spec §4.4: a deterministic walk-forward
// simulation over a decorated TradingTable producing per-bar
// {fee, units, pnl, returns, balance, position, action}. Grounded on the
// teacher's backtest.go:runBacktest (train/test split, win/loss bookkeeping)
// and on original_source/shared/core/src/benchmark/legacy.rs for the exact
// per-bar priority and tail-rewind algorithm spec.md only summarizes.
// Cost/threshold arithmetic uses shopspring/decimal throughout so repeated
// "round down to quantity_precision" truncation matches the spec exactly,
// which float64 division does not guarantee bit-for-bit across runs.
package benchmark

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
)

// Action labels the per-bar outcome, mirroring spec §4.4's action vocabulary.
type Action string

const (
	ActionNone          Action = "none"
	ActionGoLong        Action = "go_long"
	ActionGoShort       Action = "go_short"
	ActionCloseLong     Action = "close_long"
	ActionCloseShort    Action = "close_short"
	ActionStopBankrupt  Action = "stop_bankruptcy"
	ActionStopLoss      Action = "stop_loss"
	ActionTakeProfit    Action = "take_profit"
	ActionTrailingStop  Action = "trailing_stop"
	ActionKeepPosition  Action = "keep_position"
)

// Position is the simulator's directional exposure at a bar.
type Position int

const (
	PositionFlat  Position = 0
	PositionLong  Position = 1
	PositionShort Position = -1
)

// BarResult is one row of the benchmark output.
type BarResult struct {
	Fee      decimal.Decimal
	Units    decimal.Decimal
	PnL      decimal.Decimal
	Returns  decimal.Decimal
	Balance  decimal.Decimal
	Position Position
	Action   Action
}

// thresholds holds the recomputed bankruptcy/SL/TP/TSL trigger prices for
// the live position.
type thresholds struct {
	bankruptcy *decimal.Decimal
	stopLoss   *decimal.Decimal
	takeProfit *decimal.Decimal
}

type openState struct {
	side        ledger.Side
	entryPrice  decimal.Decimal
	units       decimal.Decimal
	entryFee    decimal.Decimal
	th          thresholds
	peakReturns decimal.Decimal
	trailStop   *decimal.Decimal
}

// Simulator runs the deterministic per-bar walk of spec §4.4.
type Simulator struct {
	Settings ledger.TradingSettings
	Symbol   market.Symbol
}

// Run walks table (using column "close" via table.Rows) from bar 1 to the
// end, using signals at i-1 to act at bar i's open, per spec §4.4. symbol
// is the traded symbol's key in each Bar's Symbols map. startingBalance is
// the simulation's initial wallet balance.
func (s *Simulator) Run(table *market.TradingTable, symbol string, startingBalance decimal.Decimal) ([]BarResult, error) {
	n := table.Len()
	if n == 0 {
		return nil, nil
	}
	results := make([]BarResult, n)
	balance := startingBalance
	var pos *openState

	goLong := table.Columns["go_long"]
	goShort := table.Columns["go_short"]
	closeLong := table.Columns["close_long"]
	closeShort := table.Columns["close_short"]

	// Bar 0 has no i-1 signal to act on; it is always flat/none.
	results[0] = BarResult{Fee: decimal.Zero, Units: decimal.Zero, PnL: decimal.Zero, Returns: decimal.Zero, Balance: balance, Position: PositionFlat, Action: ActionNone}

	for i := 1; i < n; i++ {
		ohlc := table.Rows[i].Symbols[symbol]
		open := decimal.NewFromFloat(ohlc.Open)
		high := decimal.NewFromFloat(ohlc.High)
		low := decimal.NewFromFloat(ohlc.Low)
		close_ := decimal.NewFromFloat(ohlc.Close)

		sigGoLong := bit(goLong, i-1)
		sigGoShort := bit(goShort, i-1)
		sigCloseLong := bit(closeLong, i-1)
		sigCloseShort := bit(closeShort, i-1)

		if pos == nil {
			if sigGoShort || sigGoLong {
				side := ledger.SideBuy
				if sigGoShort {
					side = ledger.SideSell
				}
				opened, fee, units, newBalance, err := s.open(side, open, balance)
				if err != nil {
					return nil, err
				}
				if opened != nil {
					pos = opened
					balance = newBalance
					action := ActionGoLong
					if side == ledger.SideSell {
						action = ActionGoShort
					}
					results[i] = BarResult{Fee: fee, Units: units, PnL: decimal.Zero, Returns: decimal.Zero, Balance: balance, Position: positionOf(side), Action: action}
					continue
				}
			}
			results[i] = BarResult{Fee: decimal.Zero, Units: decimal.Zero, PnL: decimal.Zero, Returns: decimal.Zero, Balance: balance, Position: PositionFlat, Action: ActionNone}
			continue
		}

		// In position: price-level check has priority (bankruptcy > SL > TP > TSL).
		if hit, price, action := s.checkPriceLevels(pos, low, high); hit {
			pnl, fee, newBalance := s.closeAt(pos, price, balance)
			results[i] = BarResult{Fee: fee, Units: pos.units, PnL: pnl, Returns: returnsOf(pnl, pos), Balance: newBalance, Position: PositionFlat, Action: action}
			balance = newBalance
			pos = nil
			continue
		}

		revertOpposite := s.Settings.SignalsRevertOpposite && ((pos.side == ledger.SideBuy && sigGoShort) || (pos.side == ledger.SideSell && sigGoLong))
		signalClose := (pos.side == ledger.SideBuy && sigCloseLong) || (pos.side == ledger.SideSell && sigCloseShort) || revertOpposite
		if signalClose {
			pnl, fee, afterClose := s.closeAt(pos, open, balance)
			closeAction := ActionCloseLong
			if pos.side == ledger.SideSell {
				closeAction = ActionCloseShort
			}
			totalFee := fee
			totalUnits := pos.units
			newBalance := afterClose
			newPos := PositionFlat
			action := closeAction
			var newOpen *openState
			if revertOpposite {
				// Reverse immediately in the same bar, sized against the
				// post-close balance. See DESIGN.md for why post-close
				// (not pre-close) balance is the chosen rule.
				oppSide := pos.side.Opposite()
				opened, openFee, openUnits, afterOpen, err := s.open(oppSide, open, afterClose)
				if err != nil {
					return nil, err
				}
				if opened != nil {
					newOpen = opened
					newBalance = afterOpen
					totalFee = totalFee.Add(openFee)
					totalUnits = totalUnits.Add(openUnits)
					newPos = positionOf(oppSide)
					if oppSide == ledger.SideBuy {
						action = ActionGoLong
					} else {
						action = ActionGoShort
					}
				}
			}
			results[i] = BarResult{Fee: totalFee, Units: totalUnits, PnL: pnl, Returns: returnsOf(pnl, pos), Balance: newBalance, Position: newPos, Action: action}
			balance = newBalance
			pos = newOpen
			continue
		}

		// Keep position: recompute pnl/returns at this bar's close.
		pnl := unrealizedPnL(pos, close_)
		returns := returnsOf(pnl, pos)
		if returns.GreaterThan(pos.peakReturns) {
			pos.peakReturns = returns
			pos.trailStop = s.computeTrailStop(pos.side, pos.entryPrice, pos.peakReturns)
		}
		results[i] = BarResult{Fee: decimal.Zero, Units: pos.units, PnL: pnl, Returns: returns, Balance: balance, Position: positionOf(pos.side), Action: ActionKeepPosition}
	}

	rewind(results, table, symbol)
	return results, nil
}

func bit(col market.Column, i int) bool {
	if i < 0 || i >= len(col) {
		return false
	}
	return col[i] == 1
}

func positionOf(side ledger.Side) Position {
	if side == ledger.SideSell {
		return PositionShort
	}
	return PositionLong
}

// open sizes and opens a position per spec §4.4's cost formula:
// available_balance * leverage / (open * (1 + 2*fee*leverage +/- fee)).
func (s *Simulator) open(side ledger.Side, openPrice, balance decimal.Decimal) (*openState, decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	if balance.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, decimal.Zero, balance, nil
	}
	leverage := s.Settings.Leverage
	fee := s.Symbol.TakerFeeRate
	signedFee := fee
	if side == ledger.SideSell {
		signedFee = fee.Neg()
	}
	denom := openPrice.Mul(decimal.NewFromInt(1).Add(decimal.NewFromInt(2).Mul(fee).Mul(leverage)).Add(signedFee))
	if denom.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, decimal.Zero, balance, fmt.Errorf("benchmark: non-positive cost denominator")
	}
	allocated := balance.Mul(s.Settings.AllocationPercentage)
	units := allocated.Mul(leverage).Div(denom)
	units = s.Symbol.ClampOrderSize(units)
	units = s.Symbol.RoundQuantity(units)
	if units.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, decimal.Zero, balance, nil
	}
	notional := units.Mul(openPrice)
	margin := notional.Div(leverage)
	openFee := notional.Mul(fee)
	closeFeeReserve := notional.Mul(fee)
	cost := margin.Add(openFee).Add(closeFeeReserve)
	newBalance := balance.Sub(cost)

	th := s.computeThresholds(side, openPrice, leverage)
	pos := &openState{side: side, entryPrice: openPrice, units: units, entryFee: openFee, th: th, peakReturns: decimal.Zero}
	pos.trailStop = s.computeTrailStop(side, openPrice, pos.peakReturns)
	return pos, openFee, units, newBalance, nil
}

// computeThresholds derives bankruptcy/SL/TP trigger prices from entry
// price, leverage, and the settings' price-level modifiers.
func (s *Simulator) computeThresholds(side ledger.Side, entry, leverage decimal.Decimal) thresholds {
	var th thresholds
	if leverage.GreaterThan(decimal.NewFromInt(1)) {
		bankruptcyDist := entry.Div(leverage)
		var b decimal.Decimal
		if side == ledger.SideBuy {
			b = entry.Sub(bankruptcyDist)
		} else {
			b = entry.Add(bankruptcyDist)
		}
		th.bankruptcy = &b
	}
	if s.Settings.PriceLevelModifiers.StopLoss != nil {
		sl := *s.Settings.PriceLevelModifiers.StopLoss
		var p decimal.Decimal
		if side == ledger.SideBuy {
			p = entry.Mul(decimal.NewFromInt(1).Sub(sl))
		} else {
			p = entry.Mul(decimal.NewFromInt(1).Add(sl))
		}
		th.stopLoss = &p
	}
	if s.Settings.PriceLevelModifiers.TakeProfit != nil {
		tp := *s.Settings.PriceLevelModifiers.TakeProfit
		var p decimal.Decimal
		if side == ledger.SideBuy {
			p = entry.Mul(decimal.NewFromInt(1).Add(tp))
		} else {
			p = entry.Mul(decimal.NewFromInt(1).Sub(tp))
		}
		th.takeProfit = &p
	}
	return th
}

// computeTrailStop derives the trailing stop-loss trigger price from the
// peak return realized since entry: it trails peakReturns down by the
// configured TSL distance, moving only in the position's favor as
// peakReturns grows (spec glossary: "Peak returns — driver of trailing
// stop-loss"). Returns nil when TSL is not configured.
func (s *Simulator) computeTrailStop(side ledger.Side, entry, peakReturns decimal.Decimal) *decimal.Decimal {
	if s.Settings.PriceLevelModifiers.TrailingStopLoss == nil {
		return nil
	}
	tsl := *s.Settings.PriceLevelModifiers.TrailingStopLoss
	var p decimal.Decimal
	if side == ledger.SideBuy {
		p = entry.Mul(decimal.NewFromInt(1).Add(peakReturns).Sub(tsl))
	} else {
		p = entry.Mul(decimal.NewFromInt(1).Sub(peakReturns).Add(tsl))
	}
	return &p
}

// checkPriceLevels implements the priority bankruptcy > SL > TP > TSL.
func (s *Simulator) checkPriceLevels(pos *openState, low, high decimal.Decimal) (bool, decimal.Decimal, Action) {
	long := pos.side == ledger.SideBuy
	if pos.th.bankruptcy != nil {
		if (long && low.LessThanOrEqual(*pos.th.bankruptcy)) || (!long && high.GreaterThanOrEqual(*pos.th.bankruptcy)) {
			return true, *pos.th.bankruptcy, ActionStopBankrupt
		}
	}
	if pos.th.stopLoss != nil {
		if (long && low.LessThanOrEqual(*pos.th.stopLoss)) || (!long && high.GreaterThanOrEqual(*pos.th.stopLoss)) {
			return true, *pos.th.stopLoss, ActionStopLoss
		}
	}
	if pos.th.takeProfit != nil {
		if (long && high.GreaterThanOrEqual(*pos.th.takeProfit)) || (!long && low.LessThanOrEqual(*pos.th.takeProfit)) {
			return true, *pos.th.takeProfit, ActionTakeProfit
		}
	}
	if s.Settings.PriceLevelModifiers.TrailingStopLoss != nil && pos.trailStop != nil {
		if (long && low.LessThanOrEqual(*pos.trailStop)) || (!long && high.GreaterThanOrEqual(*pos.trailStop)) {
			return true, *pos.trailStop, ActionTrailingStop
		}
	}
	return false, decimal.Zero, ActionNone
}

func unrealizedPnL(pos *openState, price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(pos.entryPrice)
	if pos.side == ledger.SideSell {
		diff = diff.Neg()
	}
	return pos.units.Mul(diff).Sub(pos.entryFee)
}

func returnsOf(pnl decimal.Decimal, pos *openState) decimal.Decimal {
	notional := pos.units.Mul(pos.entryPrice)
	if notional.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(notional)
}

// closeAt realizes pnl = units*(close-open) - open_fee - close_fee (sign
// flipped for shorts, per spec §3's invariant) and returns margin plus pnl
// to balance.
func (s *Simulator) closeAt(pos *openState, price, balance decimal.Decimal) (pnl, fee, newBalance decimal.Decimal) {
	notional := pos.units.Mul(price)
	closeFee := notional.Mul(s.Symbol.TakerFeeRate)
	diff := price.Sub(pos.entryPrice)
	if pos.side == ledger.SideSell {
		diff = diff.Neg()
	}
	pnl = pos.units.Mul(diff).Sub(pos.entryFee).Sub(closeFee)
	margin := pos.units.Mul(pos.entryPrice).Div(s.Settings.Leverage)
	newBalance = balance.Add(margin).Add(pnl)
	return pnl, closeFee, newBalance
}

// rewind implements the tail-rewind post-processing of spec §4.4: if the
// window ends in an open position, walk back to the most recent flat bar
// and zero everything after it.
func rewind(results []BarResult, table *market.TradingTable, symbol string) {
	n := len(results)
	if n == 0 || results[n-1].Position == PositionFlat {
		return
	}
	flatIdx := -1
	for i := n - 1; i >= 0; i-- {
		if results[i].Position == PositionFlat {
			flatIdx = i
			break
		}
	}
	if flatIdx < 0 {
		return
	}
	flatBalance := results[flatIdx].Balance
	for i := flatIdx + 1; i < n; i++ {
		results[i] = BarResult{
			Fee: decimal.Zero, Units: decimal.Zero, PnL: decimal.Zero,
			Returns: decimal.Zero, Balance: flatBalance, Position: PositionFlat,
			Action: ActionKeepPosition,
		}
	}
}
