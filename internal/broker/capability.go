// FILE: internal/broker/capability.go
// Package broker models the two external collaborators of spec §6 as Go
// interfaces — "capability interfaces with a variant dispatcher, not deep
// inheritance" per spec §9 — grounded on the teacher's broker.go:Broker
// interface, split into DataProvider (bar-stream side) and Trader
// (order/account side) and extended with the websocket subscriptions and
// trading-settings/contract lookups spec §6 requires that the teacher's
// REST-only Broker never needed.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
	"github.com/chidi150c/tradekernel/internal/reconcile"
)

// DataProvider is consumed by the Bar Clock / Bootstrap (spec §4.1/§4.2).
type DataProvider interface {
	FetchHistory(ctx context.Context, symbol string, startMS, endMS int64, limit int) ([]market.TickData, error)
	SubscribeTicks(ctx context.Context, symbols []string) (<-chan market.TickData, error)
	ReconnectIntervalSeconds() int
}

// Trader is consumed by the Signal->Order State Machine and Reconciliation
// Bus (spec §4.5/§4.6).
type Trader interface {
	OpenOrder(ctx context.Context, side ledger.Side, quoteAmount, referencePrice decimal.Decimal) (*ledger.Order, error)
	AmendOrder(ctx context.Context, id string, units, price, sl, tp *decimal.Decimal) (bool, error)
	TryClosePosition(ctx context.Context, trade *ledger.Trade, referencePrice decimal.Decimal) (*ledger.Order, error)
	CancelOrder(ctx context.Context, id string) (bool, error)
	SetLeverage(ctx context.Context, leverage decimal.Decimal) (bool, error)

	FetchBalance(ctx context.Context) (ledger.Balance, error)
	FetchHistoryOrder(ctx context.Context, id string) (*ledger.Order, error)
	FetchCurrentOrder(ctx context.Context, id string) (*ledger.Order, error)
	FetchTradeState(ctx context.Context) (*ledger.Trade, error)
	FetchCurrentPosition(ctx context.Context) (*ledger.Trade, error)
	FetchExecutions(ctx context.Context, orderID string) ([]ledger.Execution, error)

	SubscribeAccount(ctx context.Context) (<-chan reconcile.Event, error)
	PingIntervalSeconds() int

	GetContracts(ctx context.Context) (map[string]market.Symbol, error)
	GetTradingSettings(ctx context.Context) (ledger.TradingSettings, error)
	FeeFor(orderType ledger.OrderType) (taker, maker decimal.Decimal)
}
