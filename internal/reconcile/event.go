// FILE: internal/reconcile/event.go
// Package reconcile implements spec §4.6: the Reconciliation Bus that
// merges inbound balance/order/execution events with a periodic REST
// fallback. Grounded on the teacher's trader.go:RehydratePending (resync on
// restart) and gurre-prime-fix-md-go/fixclient/orderstore.go's
// UpdateOrderFromExecReport merge-by-non-empty-field pattern (reference
// only).
package reconcile

import (
	"time"

	"github.com/chidi150c/tradekernel/internal/ledger"
)

// EventKind distinguishes the three inbound stream types of spec §4.6.
type EventKind int

const (
	EventBalance EventKind = iota
	EventOrderUpdate
	EventOrderStop
	EventOrderCancel
	EventExecutions
)

// Event is one message from the Trader capability's account-event stream.
type Event struct {
	Kind       EventKind
	Balance    *ledger.Balance
	OrderUUID  string
	Order      *ledger.Order        // for Update/Stop/Cancel: fields to merge
	StopStatus ledger.OrderStatus   // for Stop: one of StoppedSL/StoppedTP/StoppedBR
	Executions []ledger.Execution   // for Executions
	ReceivedAt time.Time
}
