// FILE: internal/reconcile/bus.go
package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chidi150c/tradekernel/internal/kerrors"
	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
	"github.com/chidi150c/tradekernel/internal/metrics"
)

// Resyncer is the subset of the Trader capability the REST fallback needs.
// Defined here (rather than importing internal/broker) to avoid a
// broker<->reconcile import cycle, since broker.Trader's SubscribeAccount
// already returns a <-chan Event.
type Resyncer interface {
	FetchBalance(ctx context.Context) (ledger.Balance, error)
	FetchHistoryOrder(ctx context.Context, uuid string) (*ledger.Order, error)
	FetchExecutions(ctx context.Context, orderID string) ([]ledger.Execution, error)
}

// Bus is the sole owner of the ledger's current trade, the current balance,
// and the temp_executions buffer, per spec §9's cyclic-ownership note. It
// runs no goroutine of its own: every method takes mu, and the Supervisor
// calls Apply from its account-stream goroutine and OnBarClose/SetTrade from
// its data-stream goroutine.
type Bus struct {
	mu             sync.Mutex
	trade          *ledger.Trade
	balance        ledger.Balance
	tempExecutions []ledger.Execution
	wsErrorAt      *time.Time

	resync Resyncer
	table  *market.TradingTable // trailing row decorated on bar close
}

// NewBus constructs a Bus against a REST resync capability and the shared
// decorated table.
func NewBus(resync Resyncer, table *market.TradingTable) *Bus {
	return &Bus{resync: resync, table: table}
}

// CurrentTrade returns a snapshot of the current trade pointer. Callers in
// other goroutines must not mutate the returned value.
func (b *Bus) CurrentTrade() *ledger.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trade
}

// SetTrade installs a new current trade, e.g. after the order-state machine
// opens or transitions one.
func (b *Bus) SetTrade(t *ledger.Trade) {
	b.mu.Lock()
	b.trade = t
	b.mu.Unlock()
}

// Balance returns the last-known balance snapshot.
func (b *Bus) Balance() ledger.Balance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// Apply processes one inbound account event, per spec §4.6.
func (b *Bus) Apply(ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev.Kind {
	case EventBalance:
		if ev.Balance == nil {
			return kerrors.Protocol("reconcile.Apply", errNilBalance)
		}
		// Balance updates are monotone in their embedded timestamp (spec §5).
		if !ev.Balance.Timestamp.Before(b.balance.Timestamp) {
			b.balance = *ev.Balance
		}
		return nil

	case EventOrderUpdate:
		return b.applyOrderUpdate(ev)

	case EventOrderStop:
		return b.applyOrderStop(ev)

	case EventOrderCancel:
		return b.applyOrderCancel(ev)

	case EventExecutions:
		return b.applyExecutions(ev.Executions)

	default:
		return kerrors.Protocol("reconcile.Apply", errUnknownEventKind)
	}
}

// applyOrderUpdate merges fields/executions into the ledger's current
// order (open or close), grounded on orderstore.go's
// UpdateOrderFromExecReport merge-by-non-empty-field idiom, then drains any
// buffered temp_executions matching this order.
func (b *Bus) applyOrderUpdate(ev Event) error {
	order := b.orderFor(ev.OrderUUID)
	if order == nil {
		return kerrors.State("reconcile.applyOrderUpdate", errNoMatchingOrder)
	}
	if ev.Order != nil {
		mergeFields(order, ev.Order)
	}
	b.drainTempExecutionsLocked(order)
	order.Recompute()
	return nil
}

// applyOrderStop marks the order Stopped{SL,TP,BR} and closes the trade.
func (b *Bus) applyOrderStop(ev Event) error {
	order := b.orderFor(ev.OrderUUID)
	if order == nil {
		return kerrors.State("reconcile.applyOrderStop", errNoMatchingOrder)
	}
	order.Status = ev.StopStatus
	b.drainTempExecutionsLocked(order)
	return nil
}

// applyOrderCancel marks the order cancelled; if it is the open order, the
// trade transitions to Cancelled (derived automatically by Trade.Status()).
func (b *Bus) applyOrderCancel(ev Event) error {
	order := b.orderFor(ev.OrderUUID)
	if order == nil {
		return kerrors.State("reconcile.applyOrderCancel", errNoMatchingOrder)
	}
	order.Status = ledger.OrderStatusCancelled
	return nil
}

// applyExecutions handles the "execution before order update" race of spec
// §4.6/scenario E: each execution is applied to its order if known, idempotent
// by execution.id; otherwise it is buffered in temp_executions.
func (b *Bus) applyExecutions(execs []ledger.Execution) error {
	for _, e := range execs {
		order := b.orderFor(e.OrderUUID)
		if order == nil {
			b.tempExecutions = append(b.tempExecutions, e)
			continue
		}
		order.MergeExecution(e)
	}
	metrics.SetExecutionQueueDepth(len(b.tempExecutions))
	return nil
}

func (b *Bus) orderFor(uuid string) *ledger.Order {
	if b.trade == nil {
		return nil
	}
	if b.trade.OpenOrder != nil && b.trade.OpenOrder.UUID == uuid {
		return b.trade.OpenOrder
	}
	if b.trade.CloseOrder != nil && b.trade.CloseOrder.UUID == uuid {
		return b.trade.CloseOrder
	}
	return nil
}

// drainTempExecutionsLocked moves any buffered executions matching order
// into it, applied exactly once (spec §8 property 2), keyed by execution.id.
func (b *Bus) drainTempExecutionsLocked(order *ledger.Order) {
	remaining := b.tempExecutions[:0]
	for _, e := range b.tempExecutions {
		if e.OrderUUID == order.UUID {
			order.MergeExecution(e)
		} else {
			remaining = append(remaining, e)
		}
	}
	b.tempExecutions = remaining
	metrics.SetExecutionQueueDepth(len(b.tempExecutions))
}

// mergeFields copies non-empty/non-zero fields from src into dst, the
// teacher-adjacent UpdateOrderFromExecReport pattern generalized from FIX
// string fields to this kernel's typed Order.
func mergeFields(dst, src *ledger.Order) {
	if src.Status != 0 || dst.Status == ledger.OrderStatusNew {
		dst.Status = src.Status
	}
	if !src.Price.IsZero() {
		dst.Price = src.Price
	}
	if src.StopLossPrice != nil {
		dst.StopLossPrice = src.StopLossPrice
	}
	if src.TakeProfitPrice != nil {
		dst.TakeProfitPrice = src.TakeProfitPrice
	}
	if !src.UpdatedAt.IsZero() {
		dst.UpdatedAt = src.UpdatedAt
	}
	for _, e := range src.Executions {
		dst.MergeExecution(e)
	}
}

// NoteWebsocketError records the error timestamp; the next OnBarClose call
// will trigger a REST resync per spec §4.6's faulty-socket fallback.
func (b *Bus) NoteWebsocketError(at time.Time) {
	b.mu.Lock()
	b.wsErrorAt = &at
	b.mu.Unlock()
}

// OnBarClose is invoked by the BarProcessor on every new bar. If a
// websocket error was recorded, it performs a REST resync first; then it
// drains any remaining temp_executions against the current trade and
// decorates the table's trailing row with the current balance, position
// (1 long, -1 short, otherwise 0) and pnl. No fee, units, returns or action
// columns are written.
func (b *Bus) OnBarClose(ctx context.Context, rowIndex int) error {
	b.mu.Lock()
	needsResync := b.wsErrorAt != nil
	b.wsErrorAt = nil
	b.mu.Unlock()

	if needsResync {
		metrics.IncReconcileResync()
		if err := b.resyncREST(ctx); err != nil {
			return kerrors.Network("reconcile.OnBarClose.resync", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.trade != nil {
		if b.trade.OpenOrder != nil {
			b.drainTempExecutionsLocked(b.trade.OpenOrder)
		}
		if b.trade.CloseOrder != nil {
			b.drainTempExecutionsLocked(b.trade.CloseOrder)
		}
	}
	return b.decorateTailLocked(rowIndex)
}

// resyncREST fetches current balance and, for any in-flight UUIDs, the
// latest history order and its executions — idempotent, duplicate
// executions suppressed by id via MergeExecution.
func (b *Bus) resyncREST(ctx context.Context) error {
	bal, err := b.resync.FetchBalance(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if bal.Timestamp.After(b.balance.Timestamp) {
		b.balance = bal
	}
	trade := b.trade
	b.mu.Unlock()

	if trade == nil {
		return nil
	}
	for _, order := range []*ledger.Order{trade.OpenOrder, trade.CloseOrder} {
		if order == nil {
			continue
		}
		fresh, err := b.resync.FetchHistoryOrder(ctx, order.UUID)
		if err != nil {
			return err
		}
		execs, err := b.resync.FetchExecutions(ctx, order.ID)
		if err != nil {
			return err
		}
		b.mu.Lock()
		if fresh != nil {
			mergeFields(order, fresh)
		}
		for _, e := range execs {
			order.MergeExecution(e)
		}
		b.mu.Unlock()
	}
	log.Printf("[INFO] reconcile: REST resync complete trade=%v", trade.OpenOrder.UUID)
	return nil
}

func (b *Bus) decorateTailLocked(rowIndex int) error {
	if b.table == nil || rowIndex < 0 || rowIndex >= b.table.Len() {
		return nil
	}
	ensureColumn(b.table, "balance")
	ensureColumn(b.table, "position")
	ensureColumn(b.table, "pnl")

	bal, _ := b.balance.WalletBalance.Float64()
	_ = b.table.SetTailValue("balance", bal)

	pos := 0.0
	pnl := 0.0
	if b.trade != nil {
		switch b.trade.Status() {
		case ledger.StatusOpen, ledger.StatusPartiallyOpen, ledger.StatusPartiallyClosed, ledger.StatusPendingCloseOrder:
			if b.trade.OpenOrder.Side == ledger.SideBuy {
				pos = 1
			} else {
				pos = -1
			}
			pnl64, _ := b.trade.PnL().Float64()
			pnl = pnl64
		}
	}
	_ = b.table.SetTailValue("position", pos)
	_ = b.table.SetTailValue("pnl", pnl)
	return nil
}

func ensureColumn(t *market.TradingTable, name string) {
	if _, ok := t.Columns[name]; !ok {
		col := make(market.Column, t.Len())
		t.Columns[name] = col
	}
}
