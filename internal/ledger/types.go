// FILE: internal/ledger/types.go
// Package ledger holds the canonical single-trade data model: Order,
// Execution, Trade and its derived Status, Balance, and TradingSettings.
// Shape grounded on the teacher's broker.go PlacedOrder/Fill pair and on
// gurre-prime-fix-md-go/fixclient/orderstore.go's Order/ExecutionReport
// merge pattern (used as reference only, not the teacher).
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side int

const (
	SideNil Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "nil"
	}
}

// Opposite returns the other trading side; SideNil maps to itself.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNil
	}
}

// OrderType distinguishes market/limit/stop orders.
type OrderType int

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeStopLoss
	OrderTypeTakeProfit
)

// OrderStatus is the exchange-reported lifecycle state of one order.
type OrderStatus int

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusPartiallyClosed
	OrderStatusClosed
	OrderStatusCancelled
	OrderStatusStoppedSL
	OrderStatusStoppedTP
	OrderStatusStoppedBR
)

// Execution is one fill against an order.
type Execution struct {
	ID        string          `json:"id"`
	OrderUUID string          `json:"order_uuid"`
	Price     decimal.Decimal `json:"price"`
	Units     decimal.Decimal `json:"units"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// Order is one open or close order belonging to a Trade.
type Order struct {
	ID               string          `json:"id"`
	UUID             string          `json:"uuid"`
	Side             Side            `json:"side"`
	Type             OrderType       `json:"type"`
	Units            decimal.Decimal `json:"units"`
	Price            decimal.Decimal `json:"price"`
	AvgPrice         decimal.Decimal `json:"avg_price"`
	Status           OrderStatus     `json:"status"`
	IsStop           bool            `json:"is_stop"`
	IsClose          bool            `json:"is_close"`
	Executions       []Execution     `json:"executions"`
	StopLossPrice    *decimal.Decimal `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  *decimal.Decimal `json:"take_profit_price,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ExecutedQuantity sums the units of all executions recorded on this order.
func (o *Order) ExecutedQuantity() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range o.Executions {
		sum = sum.Add(e.Units)
	}
	return sum
}

// TotalFee sums the fee of all executions recorded on this order.
func (o *Order) TotalFee() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range o.Executions {
		sum = sum.Add(e.Fee)
	}
	return sum
}

// Recompute derives AvgPrice and Status from the current Executions and
// Units, per spec §3's invariant
// "order.avg_price = Σ(exec.price·exec.units) / Σ(exec.units)".
func (o *Order) Recompute() {
	qty := o.ExecutedQuantity()
	if qty.IsPositive() {
		notional := decimal.Zero
		for _, e := range o.Executions {
			notional = notional.Add(e.Price.Mul(e.Units))
		}
		o.AvgPrice = notional.Div(qty)
	}
	switch {
	case qty.IsZero():
		if o.Status != OrderStatusCancelled && o.Status != OrderStatusStoppedSL &&
			o.Status != OrderStatusStoppedTP && o.Status != OrderStatusStoppedBR {
			o.Status = OrderStatusNew
		}
	case qty.LessThan(o.Units):
		if o.IsClose {
			o.Status = OrderStatusPartiallyClosed
		} else {
			o.Status = OrderStatusPartiallyFilled
		}
	default:
		if o.IsClose {
			o.Status = OrderStatusClosed
		} else {
			o.Status = OrderStatusFilled
		}
	}
}

// MergeExecution appends an execution if its ID is not already present
// (idempotent, keyed by execution.id per spec §5/§8 property 2), then
// recomputes AvgPrice/Status.
func (o *Order) MergeExecution(e Execution) (applied bool) {
	for _, existing := range o.Executions {
		if existing.ID == e.ID {
			return false
		}
	}
	o.Executions = append(o.Executions, e)
	o.UpdatedAt = e.Timestamp
	o.Recompute()
	return true
}

// Status is the derived lifecycle state of a Trade.
type Status int

const (
	StatusNew Status = iota
	StatusPartiallyOpen
	StatusOpen
	StatusPendingCloseOrder
	StatusPartiallyClosed
	StatusClosed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusPartiallyOpen:
		return "PartiallyOpen"
	case StatusOpen:
		return "Open"
	case StatusPendingCloseOrder:
		return "PendingCloseOrder"
	case StatusPartiallyClosed:
		return "PartiallyClosed"
	case StatusClosed:
		return "Closed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Trade is the single in-flight (or just-settled) position.
type Trade struct {
	ID         string `json:"id"`
	OpenOrder  *Order `json:"open_order"`
	CloseOrder *Order `json:"close_order,omitempty"`
}

// Status derives the trade's lifecycle status from its orders, per spec §3.
func (t *Trade) Status() Status {
	if t.OpenOrder == nil {
		return StatusCancelled
	}
	switch t.OpenOrder.Status {
	case OrderStatusCancelled:
		return StatusCancelled
	case OrderStatusNew:
		return StatusNew
	case OrderStatusPartiallyFilled:
		return StatusPartiallyOpen
	}
	if t.CloseOrder == nil {
		return StatusOpen
	}
	switch t.CloseOrder.Status {
	case OrderStatusNew:
		return StatusPendingCloseOrder
	case OrderStatusPartiallyClosed:
		return StatusPartiallyClosed
	case OrderStatusClosed, OrderStatusStoppedSL, OrderStatusStoppedTP, OrderStatusStoppedBR:
		return StatusClosed
	case OrderStatusCancelled:
		return StatusOpen
	default:
		return StatusOpen
	}
}

// PnL computes realized P&L for a closed trade, per spec §3:
// long: units*(close_avg - open_avg) - open_fee - close_fee; symmetric short.
func (t *Trade) PnL() decimal.Decimal {
	if t.OpenOrder == nil || t.CloseOrder == nil {
		return decimal.Zero
	}
	units := t.CloseOrder.ExecutedQuantity()
	diff := t.CloseOrder.AvgPrice.Sub(t.OpenOrder.AvgPrice)
	if t.OpenOrder.Side == SideSell {
		diff = diff.Neg()
	}
	gross := units.Mul(diff)
	return gross.Sub(t.OpenOrder.TotalFee()).Sub(t.CloseOrder.TotalFee())
}

// Balance is the account's wallet snapshot.
type Balance struct {
	WalletBalance        decimal.Decimal `json:"wallet_balance"`
	AvailableToWithdraw  decimal.Decimal `json:"available_to_withdraw"`
	Timestamp            time.Time       `json:"timestamp"`
}

// PositionLock is the configured behavior for re-entering after a loss/fee.
type PositionLock int

const (
	PositionLockNone PositionLock = iota
	PositionLockFee
	PositionLockLoss
)

// PriceLevelModifiers holds the optional SL/TP/TSL offsets, expressed as
// fractional distances from entry price (e.g. 0.02 == 2%).
type PriceLevelModifiers struct {
	StopLoss          *decimal.Decimal `json:"sl,omitempty"`
	TakeProfit        *decimal.Decimal `json:"tp,omitempty"`
	TrailingStopLoss  *decimal.Decimal `json:"tsl,omitempty"`
}

// TradingSettings configures sizing, leverage, and exit behavior.
type TradingSettings struct {
	Leverage              decimal.Decimal     `json:"leverage"`
	AllocationPercentage  decimal.Decimal     `json:"allocation_percentage"`
	PriceLevelModifiers   PriceLevelModifiers `json:"price_level_modifiers"`
	SignalsRevertOpposite bool                `json:"signals_revert_opposite"`
	PositionLock          PositionLock        `json:"position_lock"`
}
