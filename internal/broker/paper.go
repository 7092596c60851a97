// FILE: internal/broker/paper.go
// PaperTrader/PaperData simulate execution using the latest known price, for
// dry runs and the Benchmark Simulator's live counterpart — no external
// dependencies, orders never touch an exchange. Grounded on the teacher's
// broker_paper.go:PaperBroker, generalized from a single quote-sized market
// order to the full Trader capability (amend/close/stop/executions) and from
// a single product to the DataProvider capability over N symbols.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/kerrors"
	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
	"github.com/chidi150c/tradekernel/internal/metrics"
	"github.com/chidi150c/tradekernel/internal/reconcile"
)

// PaperData serves history and tick subscriptions from an in-memory
// pre-loaded series — the paper-mode analogue of a DataProvider, fed by the
// same CSV/bridge fixtures a backtest run already has on disk.
type PaperData struct {
	mu   sync.Mutex
	bars map[string][]market.TickData
}

// NewPaperData constructs an empty PaperData; Load populates it per symbol.
func NewPaperData() *PaperData { return &PaperData{bars: make(map[string][]market.TickData)} }

// Load installs (or replaces) the full tick history for one symbol.
func (p *PaperData) Load(symbol string, ticks []market.TickData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = ticks
}

func (p *PaperData) FetchHistory(ctx context.Context, symbol string, startMS, endMS int64, limit int) ([]market.TickData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.bars[symbol]
	start := startMS / 1000
	end := endMS / 1000
	out := make([]market.TickData, 0, limit)
	for _, t := range all {
		if t.StartTime >= start && t.StartTime <= end {
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// SubscribeTicks replays the loaded series once at wall-clock speed-up,
// closing the channel when exhausted; paper mode has no live feed.
func (p *PaperData) SubscribeTicks(ctx context.Context, symbols []string) (<-chan market.TickData, error) {
	ch := make(chan market.TickData, 64)
	go func() {
		defer close(ch)
		p.mu.Lock()
		merged := make([]market.TickData, 0)
		for _, s := range symbols {
			merged = append(merged, p.bars[s]...)
		}
		p.mu.Unlock()
		for _, t := range merged {
			select {
			case <-ctx.Done():
				return
			case ch <- t:
			}
		}
	}()
	return ch, nil
}

func (p *PaperData) ReconnectIntervalSeconds() int { return 0 }

// PaperTrader fills every order immediately, in full, at the referencePrice
// the caller passes to OpenOrder or TryClosePosition.
type PaperTrader struct {
	mu       sync.Mutex
	price    map[string]decimal.Decimal
	balance  ledger.Balance
	symbols  map[string]market.Symbol
	settings ledger.TradingSettings
	events   chan reconcile.Event
}

// NewPaperTrader constructs a PaperTrader seeded with a starting balance,
// contract table, and trading settings — normally sourced from config.
func NewPaperTrader(startingBalance decimal.Decimal, symbols map[string]market.Symbol, settings ledger.TradingSettings) *PaperTrader {
	return &PaperTrader{
		price:    make(map[string]decimal.Decimal),
		balance:  ledger.Balance{WalletBalance: startingBalance, AvailableToWithdraw: startingBalance, Timestamp: time.Now().UTC()},
		symbols:  symbols,
		settings: settings,
		events:   make(chan reconcile.Event, 64),
	}
}

// SetPrice updates the last-known reference price for a symbol, normally
// called by the BarProcessor on every committed bar.
func (p *PaperTrader) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	p.price[symbol] = price
	p.mu.Unlock()
}

func (p *PaperTrader) lastPrice(symbol string) decimal.Decimal {
	if v, ok := p.price[symbol]; ok {
		return v
	}
	return decimal.NewFromInt(1)
}

func (p *PaperTrader) OpenOrder(ctx context.Context, side ledger.Side, quoteAmount, referencePrice decimal.Decimal) (*ledger.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if quoteAmount.IsZero() || quoteAmount.IsNegative() {
		return nil, kerrors.Config("PaperTrader.OpenOrder", errNonPositiveAmount)
	}
	units := quoteAmount.Div(referencePrice)
	id := uuid.New().String()
	now := time.Now().UTC()
	order := &ledger.Order{
		ID: id, UUID: id, Side: side, Type: ledger.OrderTypeMarket,
		Units: units, CreatedAt: now, UpdatedAt: now,
	}
	fee := units.Mul(referencePrice).Mul(p.feeRate())
	order.MergeExecution(ledger.Execution{ID: uuid.New().String(), OrderUUID: id, Price: referencePrice, Units: units, Fee: fee, Timestamp: now})
	p.emit(reconcile.Event{Kind: reconcile.EventOrderUpdate, OrderUUID: id, Order: order, ReceivedAt: now})
	metrics.IncOrder("paper", side.String())
	return order, nil
}

func (p *PaperTrader) AmendOrder(ctx context.Context, id string, units, price, sl, tp *decimal.Decimal) (bool, error) {
	return true, nil
}

func (p *PaperTrader) TryClosePosition(ctx context.Context, trade *ledger.Trade, referencePrice decimal.Decimal) (*ledger.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if trade == nil || trade.OpenOrder == nil {
		return nil, kerrors.State("PaperTrader.TryClosePosition", errNoOpenOrder)
	}
	units := trade.OpenOrder.ExecutedQuantity()
	id := uuid.New().String()
	now := time.Now().UTC()
	order := &ledger.Order{
		ID: id, UUID: id, Side: trade.OpenOrder.Side.Opposite(), Type: ledger.OrderTypeMarket,
		Units: units, IsClose: true, CreatedAt: now, UpdatedAt: now,
	}
	fee := units.Mul(referencePrice).Mul(p.feeRate())
	order.MergeExecution(ledger.Execution{ID: uuid.New().String(), OrderUUID: id, Price: referencePrice, Units: units, Fee: fee, Timestamp: now})

	diff := referencePrice.Sub(trade.OpenOrder.AvgPrice)
	if trade.OpenOrder.Side == ledger.SideSell {
		diff = diff.Neg()
	}
	pnl := units.Mul(diff).Sub(trade.OpenOrder.TotalFee()).Sub(fee)
	margin := units.Mul(trade.OpenOrder.AvgPrice).Div(p.settings.Leverage)
	p.balance.WalletBalance = p.balance.WalletBalance.Add(margin).Add(pnl)
	p.balance.AvailableToWithdraw = p.balance.WalletBalance
	p.balance.Timestamp = now
	p.emit(reconcile.Event{Kind: reconcile.EventBalance, Balance: &p.balance, ReceivedAt: now})
	p.emit(reconcile.Event{Kind: reconcile.EventOrderUpdate, OrderUUID: id, Order: order, ReceivedAt: now})

	walletBal, _ := p.balance.WalletBalance.Float64()
	metrics.SetEquity(walletBal)
	result := "loss"
	if pnl.IsPositive() {
		result = "win"
	}
	metrics.IncTrade(result)
	metrics.IncExit("signal", trade.OpenOrder.Side.String())
	return order, nil
}

func (p *PaperTrader) CancelOrder(ctx context.Context, id string) (bool, error) { return true, nil }

func (p *PaperTrader) SetLeverage(ctx context.Context, leverage decimal.Decimal) (bool, error) {
	p.mu.Lock()
	p.settings.Leverage = leverage
	p.mu.Unlock()
	return true, nil
}

func (p *PaperTrader) FetchBalance(ctx context.Context) (ledger.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperTrader) FetchHistoryOrder(ctx context.Context, id string) (*ledger.Order, error) {
	return nil, kerrors.Capacity("PaperTrader.FetchHistoryOrder", errUnsupportedInPaper)
}

func (p *PaperTrader) FetchCurrentOrder(ctx context.Context, id string) (*ledger.Order, error) {
	return nil, kerrors.Capacity("PaperTrader.FetchCurrentOrder", errUnsupportedInPaper)
}

func (p *PaperTrader) FetchTradeState(ctx context.Context) (*ledger.Trade, error) {
	return nil, kerrors.Capacity("PaperTrader.FetchTradeState", errUnsupportedInPaper)
}

func (p *PaperTrader) FetchCurrentPosition(ctx context.Context) (*ledger.Trade, error) {
	return nil, kerrors.Capacity("PaperTrader.FetchCurrentPosition", errUnsupportedInPaper)
}

func (p *PaperTrader) FetchExecutions(ctx context.Context, orderID string) ([]ledger.Execution, error) {
	return nil, nil
}

func (p *PaperTrader) SubscribeAccount(ctx context.Context) (<-chan reconcile.Event, error) {
	return p.events, nil
}

func (p *PaperTrader) PingIntervalSeconds() int { return 0 }

func (p *PaperTrader) GetContracts(ctx context.Context) (map[string]market.Symbol, error) {
	return p.symbols, nil
}

func (p *PaperTrader) GetTradingSettings(ctx context.Context) (ledger.TradingSettings, error) {
	return p.settings, nil
}

func (p *PaperTrader) FeeFor(orderType ledger.OrderType) (taker, maker decimal.Decimal) {
	rate := p.feeRate()
	return rate, rate
}

func (p *PaperTrader) feeRate() decimal.Decimal {
	for _, s := range p.symbols {
		return s.TakerFeeRate
	}
	return decimal.NewFromFloat(0.0006)
}

func (p *PaperTrader) emit(ev reconcile.Event) {
	select {
	case p.events <- ev:
	default:
	}
}
