// FILE: internal/orderstate/machine.go
// Package orderstate implements spec §4.5: the table-driven Signal->Order
// state machine, keyed by the ledger's current Trade.Status() and the
// signal kind emitted on bar close. Grounded on the teacher's step.go open/
// close/amend control flow and on original_source/src/trader/modules/
// trader.rs, whose TradeStatus::PartiallyOpen branch resolves the
// PartiallyOpen Open Question documented in DESIGN.md.
package orderstate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/broker"
	"github.com/chidi150c/tradekernel/internal/kerrors"
	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/metrics"
)

// SignalKind is the latest non-Keep signal emitted by the pipeline for one
// bar, reduced from the table's six 0/1 columns into the single dominant
// intent the state machine acts on.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalGoLong
	SignalGoShort
	SignalCloseLong
	SignalCloseShort
	SignalClosePosition
	SignalRevertPosition
)

func (k SignalKind) side() ledger.Side {
	switch k {
	case SignalGoLong, SignalCloseShort:
		return ledger.SideBuy
	case SignalGoShort, SignalCloseLong:
		return ledger.SideSell
	default:
		return ledger.SideNil
	}
}

func (k SignalKind) String() string {
	switch k {
	case SignalGoLong:
		return "go_long"
	case SignalGoShort:
		return "go_short"
	case SignalCloseLong:
		return "close_long"
	case SignalCloseShort:
		return "close_short"
	case SignalClosePosition:
		return "close_position"
	case SignalRevertPosition:
		return "revert_position"
	default:
		return "none"
	}
}

func (k SignalKind) isOpen() bool  { return k == SignalGoLong || k == SignalGoShort }
func (k SignalKind) isClose() bool {
	return k == SignalCloseLong || k == SignalCloseShort || k == SignalClosePosition || k == SignalRevertPosition
}

// Machine dispatches signals to the Trader capability per the state table
// of spec §4.5. It holds no state of its own beyond its dependencies — the
// Reconciler remains the sole owner of the ledger (spec §9).
type Machine struct {
	Trader   broker.Trader
	Settings ledger.TradingSettings
}

// Apply runs the state table for one (currentTrade, signal) pair. trade may
// be nil (Empty slot). referencePrice is the latest known price, used for
// sizing and try_close calls. availableBalance is the account's current
// available balance (spec §4.5/§4.4), consulted only on transitions that
// open a new position. It returns the trade that should replace the
// ledger's current_trade, or nil if the slot is now empty.
func (m *Machine) Apply(ctx context.Context, trade *ledger.Trade, signal SignalKind, referencePrice, availableBalance decimal.Decimal) (*ledger.Trade, error) {
	if signal == SignalNone {
		return trade, nil
	}
	metrics.IncDecision(signal.String())

	from := "empty"
	if trade != nil {
		from = trade.Status().String()
	}

	next, err := m.apply(ctx, trade, signal, referencePrice, availableBalance)
	if err != nil {
		return next, err
	}
	to := "empty"
	if next != nil {
		to = next.Status().String()
	}
	metrics.IncTransition(from, to)
	return next, nil
}

func (m *Machine) apply(ctx context.Context, trade *ledger.Trade, signal SignalKind, referencePrice, availableBalance decimal.Decimal) (*ledger.Trade, error) {
	if trade == nil {
		return m.transitionEmpty(ctx, signal, referencePrice, availableBalance)
	}

	switch trade.Status() {
	case ledger.StatusNew:
		return m.transitionNew(ctx, trade, signal, referencePrice, availableBalance)
	case ledger.StatusPartiallyOpen:
		return m.transitionPartiallyOpen(ctx, trade, signal, referencePrice)
	case ledger.StatusOpen, ledger.StatusPartiallyClosed:
		return m.transitionOpenOrPartiallyClosed(ctx, trade, signal, referencePrice)
	case ledger.StatusPendingCloseOrder:
		return trade, nil // ignore: close is in flight
	case ledger.StatusClosed, ledger.StatusCancelled:
		// mark slot empty and pass the signal through the Empty rules.
		return m.transitionEmpty(ctx, signal, referencePrice, availableBalance)
	default:
		return nil, kerrors.State("orderstate.Apply", fmt.Errorf("unhandled trade status %v", trade.Status()))
	}
}

// sizeOpenQuoteAmount mirrors the benchmark simulator's leveraged,
// fee-adjusted cost formula (internal/benchmark/simulator.go's open) so the
// live and benchmark paths agree on sizing for the same (balance, leverage,
// fee, allocation_pct) inputs: notional = available*allocation_pct*leverage
// / (1 + 2*fee*leverage +/- fee).
func (m *Machine) sizeOpenQuoteAmount(side ledger.Side, availableBalance decimal.Decimal) decimal.Decimal {
	leverage := m.Settings.Leverage
	taker, _ := m.Trader.FeeFor(ledger.OrderTypeMarket)
	signedFee := taker
	if side == ledger.SideSell {
		signedFee = taker.Neg()
	}
	denom := decimal.NewFromInt(1).Add(decimal.NewFromInt(2).Mul(taker).Mul(leverage)).Add(signedFee)
	if denom.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	allocated := availableBalance.Mul(m.Settings.AllocationPercentage)
	return allocated.Mul(leverage).Div(denom)
}

// transitionEmpty: Empty + go_long/go_short -> place opening order sized
// allocation_pct * available, leveraged and fee-adjusted per spec §4.4/§4.5.
func (m *Machine) transitionEmpty(ctx context.Context, signal SignalKind, referencePrice, availableBalance decimal.Decimal) (*ledger.Trade, error) {
	if !signal.isOpen() {
		return nil, nil
	}
	quoteAmount := m.sizeOpenQuoteAmount(signal.side(), availableBalance)
	if quoteAmount.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	order, err := m.Trader.OpenOrder(ctx, signal.side(), quoteAmount, referencePrice)
	if err != nil {
		return nil, kerrors.Network("orderstate.transitionEmpty.OpenOrder", err)
	}
	return &ledger.Trade{OpenOrder: order}, nil
}

// transitionNew: New(no execs) + close-side-same-direction -> cancel.
// New + opposite go_* -> cancel then reopen opposite with identical sizing.
func (m *Machine) transitionNew(ctx context.Context, trade *ledger.Trade, signal SignalKind, referencePrice, availableBalance decimal.Decimal) (*ledger.Trade, error) {
	openSide := trade.OpenOrder.Side
	sameDirectionClose := (openSide == ledger.SideBuy && signal == SignalCloseLong) || (openSide == ledger.SideSell && signal == SignalCloseShort)
	oppositeOpen := signal.isOpen() && signal.side() != openSide

	if !sameDirectionClose && !oppositeOpen {
		return trade, nil
	}
	ok, err := m.Trader.CancelOrder(ctx, trade.OpenOrder.ID)
	if err != nil {
		return nil, kerrors.Network("orderstate.transitionNew.CancelOrder", err)
	}
	if !ok {
		return nil, kerrors.State("orderstate.transitionNew", fmt.Errorf("cancel_order returned false for %s", trade.OpenOrder.ID))
	}
	if sameDirectionClose {
		return nil, nil
	}
	return m.transitionEmpty(ctx, signal, referencePrice, availableBalance)
}

// transitionPartiallyOpen: any close-or-opposite signal -> amend the open
// order's remaining units down to executed-so-far (freezing the fill), then
// try_close at last price. See DESIGN.md for the resolved Open Question on
// reverse-open sizing.
func (m *Machine) transitionPartiallyOpen(ctx context.Context, trade *ledger.Trade, signal SignalKind, referencePrice decimal.Decimal) (*ledger.Trade, error) {
	openSide := trade.OpenOrder.Side
	closeMatching := (openSide == ledger.SideBuy && signal == SignalCloseLong) || (openSide == ledger.SideSell && signal == SignalCloseShort)
	opposite := signal.isOpen() && signal.side() != openSide
	generic := signal == SignalClosePosition || signal == SignalRevertPosition
	if !closeMatching && !opposite && !generic {
		return trade, nil
	}

	executed := trade.OpenOrder.ExecutedQuantity()
	ok, err := m.Trader.AmendOrder(ctx, trade.OpenOrder.ID, &executed, nil, nil, nil)
	if err != nil {
		return nil, kerrors.Network("orderstate.transitionPartiallyOpen.AmendOrder", err)
	}
	if !ok {
		return nil, kerrors.State("orderstate.transitionPartiallyOpen", fmt.Errorf("amend_order returned false for %s", trade.OpenOrder.ID))
	}
	trade.OpenOrder.Units = executed

	closeOrder, err := m.Trader.TryClosePosition(ctx, trade, referencePrice)
	if err != nil {
		return nil, kerrors.Network("orderstate.transitionPartiallyOpen.TryClosePosition", err)
	}
	trade.CloseOrder = closeOrder
	return trade, nil
	// Note: the opposite-side reopen is NOT issued here. It is triggered by
	// the Closed -> Empty rule once Reconciliation confirms the close, so it
	// sizes against the post-close balance (the resolved Open Question).
}

// transitionOpenOrPartiallyClosed: close-side matching direction,
// close_position, or revert_position -> try_close at last price.
func (m *Machine) transitionOpenOrPartiallyClosed(ctx context.Context, trade *ledger.Trade, signal SignalKind, referencePrice decimal.Decimal) (*ledger.Trade, error) {
	openSide := trade.OpenOrder.Side
	matching := (openSide == ledger.SideBuy && signal == SignalCloseLong) || (openSide == ledger.SideSell && signal == SignalCloseShort)
	generic := signal == SignalClosePosition || signal == SignalRevertPosition
	if !matching && !generic {
		return trade, nil
	}
	closeOrder, err := m.Trader.TryClosePosition(ctx, trade, referencePrice)
	if err != nil {
		return nil, kerrors.Network("orderstate.transitionOpenOrPartiallyClosed.TryClosePosition", err)
	}
	trade.CloseOrder = closeOrder
	return trade, nil
}
