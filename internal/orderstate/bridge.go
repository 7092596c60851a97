// FILE: internal/orderstate/bridge.go
// ReduceSignal collapses one bar's six 0/1 signal columns (spec §4.3) into
// the single dominant SignalKind Machine.Apply expects. The pipeline itself
// intentionally never decides "open" vs "close" vs "revert" (see
// pipeline/signal.go's doc comment) — that decision depends on the current
// ledger state, which only this package and the Reconciliation Bus know.
package orderstate

import (
	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
)

// ReduceSignal reads the table's tail row signal columns and
// reduces them to one SignalKind, given the current trade (nil if flat) and
// whether signals_revert_opposite is enabled.
func ReduceSignal(t *market.TradingTable, trade *ledger.Trade, revertOpposite bool) SignalKind {
	i := t.Len() - 1
	if i < 0 {
		return SignalNone
	}
	goLong := t.At("go_long", i) == 1
	goShort := t.At("go_short", i) == 1
	closeLong := t.At("close_long", i) == 1
	closeShort := t.At("close_short", i) == 1
	closePosition := t.At("close_position", i) == 1
	revertPosition := t.At("revert_position", i) == 1

	if closePosition {
		return SignalClosePosition
	}
	if revertPosition {
		return SignalRevertPosition
	}

	flat := trade == nil
	if flat {
		if goLong {
			return SignalGoLong
		}
		if goShort {
			return SignalGoShort
		}
		return SignalNone
	}

	openSide := trade.OpenOrder.Side
	opposite := (openSide == ledger.SideBuy && goShort) || (openSide == ledger.SideSell && goLong)
	matchingClose := (openSide == ledger.SideBuy && closeLong) || (openSide == ledger.SideSell && closeShort)

	if opposite {
		if revertOpposite {
			return SignalRevertPosition
		}
		if openSide == ledger.SideBuy {
			return SignalCloseLong
		}
		return SignalCloseShort
	}
	if matchingClose {
		if openSide == ledger.SideBuy {
			return SignalCloseLong
		}
		return SignalCloseShort
	}
	return SignalNone
}
