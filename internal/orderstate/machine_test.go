// FILE: internal/orderstate/machine_test.go
package orderstate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/benchmark"
	"github.com/chidi150c/tradekernel/internal/broker"
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

func newMachine() (*Machine, *broker.PaperTrader) {
	sym := market.Symbol{
		Name: "X", MinimumOrderSize: decimal.Zero, MaximumOrderSize: d("1000000"),
		QuantityPrecision: 8, PricePrecision: 2, MaxLeverage: d("10"),
		TakerFeeRate: d("0.001"), MakerFeeRate: d("0.001"),
	}
	settings := ledger.TradingSettings{
		Leverage: d("1"), AllocationPercentage: d("0.25"),
	}
	trader := broker.NewPaperTrader(d("10000"), map[string]market.Symbol{"X": sym}, settings)
	trader.SetPrice("X", d("100"))
	return &Machine{Trader: trader, Settings: settings}, trader
}

// available is the balance plumbed to every Apply call below, standing in
// for Bus.Balance().AvailableToWithdraw in the live path.
var available = d("10000")

func TestMachineEmptyOpensOnGoLong(t *testing.T) {
	m, _ := newMachine()
	trade, err := m.Apply(context.Background(), nil, SignalGoLong, d("100"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if trade == nil || trade.OpenOrder == nil {
		t.Fatal("expected a new trade with an open order")
	}
	if trade.OpenOrder.Side != ledger.SideBuy {
		t.Fatalf("open order side = %v, want Buy", trade.OpenOrder.Side)
	}
}

func TestMachineEmptyIgnoresNonOpenSignal(t *testing.T) {
	m, _ := newMachine()
	trade, err := m.Apply(context.Background(), nil, SignalCloseLong, d("100"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if trade != nil {
		t.Fatalf("expected nil trade (still empty), got %+v", trade)
	}
}

func newOrder(side ledger.Side, status ledger.OrderStatus, units decimal.Decimal) *ledger.Order {
	return &ledger.Order{ID: "o1", UUID: "o1", Side: side, Units: units, Status: status, CreatedAt: time.Now(), UpdatedAt: time.Now()}
}

// Trade.New + close-side-same-direction -> cancel the opening order,
// leaving the slot empty.
func TestMachineNewCancelsOnSameDirectionClose(t *testing.T) {
	m, _ := newMachine()
	trade := &ledger.Trade{OpenOrder: newOrder(ledger.SideBuy, ledger.OrderStatusNew, d("10"))}
	if got := trade.Status(); got != ledger.StatusNew {
		t.Fatalf("precondition: trade status = %v, want New", got)
	}
	next, err := m.Apply(context.Background(), trade, SignalCloseLong, d("100"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil (empty slot) after cancelling a New trade, got %+v", next)
	}
}

// Trade.New + opposite go_* -> cancel then reopen on the other side.
func TestMachineNewReopensOppositeOnOppositeSignal(t *testing.T) {
	m, _ := newMachine()
	trade := &ledger.Trade{OpenOrder: newOrder(ledger.SideBuy, ledger.OrderStatusNew, d("10"))}
	next, err := m.Apply(context.Background(), trade, SignalGoShort, d("100"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if next == nil || next.OpenOrder == nil {
		t.Fatal("expected a new opposite trade")
	}
	if next.OpenOrder.Side != ledger.SideSell {
		t.Fatalf("reopened order side = %v, want Sell", next.OpenOrder.Side)
	}
}

// amendSpy wraps *broker.PaperTrader and records the arguments its
// AmendOrder actually receives, since PaperTrader's own AmendOrder is an
// unconditional no-op that never observes them.
type amendSpy struct {
	*broker.PaperTrader
	gotUnits *decimal.Decimal
}

func (a *amendSpy) AmendOrder(ctx context.Context, id string, units, price, sl, tp *decimal.Decimal) (bool, error) {
	a.gotUnits = units
	return true, nil
}

// Trade.PartiallyOpen + any close/opposite -> amend remaining units down to
// executed-so-far, then try_close.
func TestMachinePartiallyOpenAmendsThenTriesClose(t *testing.T) {
	_, trader := newMachine()
	spy := &amendSpy{PaperTrader: trader}
	m := &Machine{Trader: spy, Settings: ledger.TradingSettings{Leverage: d("1"), AllocationPercentage: d("0.25")}}

	open := newOrder(ledger.SideBuy, ledger.OrderStatusPartiallyFilled, d("10"))
	open.AvgPrice = d("100")
	open.Executions = []ledger.Execution{{ID: "e1", Price: d("100"), Units: d("4"), Fee: d("0.1")}}
	trade := &ledger.Trade{OpenOrder: open}
	if got := trade.Status(); got != ledger.StatusPartiallyOpen {
		t.Fatalf("precondition: trade status = %v, want PartiallyOpen", got)
	}

	next, err := m.Apply(context.Background(), trade, SignalCloseLong, d("105"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if next == nil {
		t.Fatal("expected the trade to survive with a close order attached")
	}
	if spy.gotUnits == nil || !spy.gotUnits.Equal(d("4")) {
		t.Fatalf("AmendOrder received units = %v, want the order frozen at executed-so-far (4)", spy.gotUnits)
	}
	if !next.OpenOrder.Units.Equal(d("4")) {
		t.Fatalf("open order units after amend = %s, want frozen at executed qty 4", next.OpenOrder.Units)
	}
	if next.CloseOrder == nil {
		t.Fatal("expected a close order from try_close_position")
	}
}

// Trade.Open + matching close-side signal -> try_close.
func TestMachineOpenTriesCloseOnMatchingSignal(t *testing.T) {
	m, _ := newMachine()
	open := newOrder(ledger.SideBuy, ledger.OrderStatusFilled, d("10"))
	open.AvgPrice = d("100")
	open.Executions = []ledger.Execution{{ID: "e1", Price: d("100"), Units: d("10"), Fee: d("0.1")}}
	trade := &ledger.Trade{OpenOrder: open}
	if got := trade.Status(); got != ledger.StatusOpen {
		t.Fatalf("precondition: trade status = %v, want Open", got)
	}

	next, err := m.Apply(context.Background(), trade, SignalCloseLong, d("110"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if next == nil || next.CloseOrder == nil {
		t.Fatal("expected a close order to be attached")
	}
}

// Trade.Open ignores a non-matching close signal (close_short on a long).
func TestMachineOpenIgnoresNonMatchingClose(t *testing.T) {
	m, _ := newMachine()
	open := newOrder(ledger.SideBuy, ledger.OrderStatusFilled, d("10"))
	open.Executions = []ledger.Execution{{ID: "e1", Price: d("100"), Units: d("10")}}
	trade := &ledger.Trade{OpenOrder: open}

	next, err := m.Apply(context.Background(), trade, SignalCloseShort, d("110"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if next.CloseOrder != nil {
		t.Fatal("close_short must not close a long position")
	}
}

// Trade.PendingCloseOrder -> ignore every signal; the trade is returned
// unchanged since the close is already in flight.
func TestMachinePendingCloseOrderIgnoresSignals(t *testing.T) {
	m, _ := newMachine()
	open := newOrder(ledger.SideBuy, ledger.OrderStatusFilled, d("10"))
	open.Executions = []ledger.Execution{{ID: "e1", Units: d("10")}}
	closeOrder := newOrder(ledger.SideSell, ledger.OrderStatusNew, d("10"))
	closeOrder.IsClose = true
	trade := &ledger.Trade{OpenOrder: open, CloseOrder: closeOrder}
	if got := trade.Status(); got != ledger.StatusPendingCloseOrder {
		t.Fatalf("precondition: trade status = %v, want PendingCloseOrder", got)
	}

	next, err := m.Apply(context.Background(), trade, SignalClosePosition, d("100"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if next != trade {
		t.Fatal("PendingCloseOrder must ignore the signal and return the same trade")
	}
}

// Trade.Closed -> treated as Empty and re-evaluated against the Empty rules.
func TestMachineClosedFallsThroughToEmpty(t *testing.T) {
	m, _ := newMachine()
	open := newOrder(ledger.SideBuy, ledger.OrderStatusFilled, d("10"))
	open.Executions = []ledger.Execution{{ID: "e1", Units: d("10")}}
	closeOrder := newOrder(ledger.SideSell, ledger.OrderStatusClosed, d("10"))
	closeOrder.IsClose = true
	closeOrder.Executions = []ledger.Execution{{ID: "c1", Units: d("10")}}
	trade := &ledger.Trade{OpenOrder: open, CloseOrder: closeOrder}
	if got := trade.Status(); got != ledger.StatusClosed {
		t.Fatalf("precondition: trade status = %v, want Closed", got)
	}

	next, err := m.Apply(context.Background(), trade, SignalGoShort, d("100"), available)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if next == nil || next.OpenOrder.Side != ledger.SideSell {
		t.Fatal("Closed trade + go_short must fall through to the Empty rule and open a new short")
	}
}

// The live open-sizing formula (Machine.sizeOpenQuoteAmount) must agree with
// the benchmark simulator's leveraged, fee-adjusted cost formula for the
// same (balance, leverage, fee, allocation_pct, price) inputs, per spec
// §4.5's requirement that the live path use the same sizing as the
// benchmark.
func TestMachineOpenSizingAgreesWithBenchmarkSimulator(t *testing.T) {
	sym := market.Symbol{
		Name: "X", MinimumOrderSize: decimal.Zero, MaximumOrderSize: d("1000000000"),
		QuantityPrecision: 8, PricePrecision: 2, MaxLeverage: d("20"),
		TakerFeeRate: d("0.001"), MakerFeeRate: d("0.001"),
	}
	settings := ledger.TradingSettings{Leverage: d("3"), AllocationPercentage: d("0.4")}
	balance := d("10000")
	price := d("100")

	trader := broker.NewPaperTrader(balance, map[string]market.Symbol{"X": sym}, settings)
	trader.SetPrice("X", price)
	m := &Machine{Trader: trader, Settings: settings}

	trade, err := m.Apply(context.Background(), nil, SignalGoLong, price, balance)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if trade == nil || trade.OpenOrder == nil {
		t.Fatal("expected an opened trade")
	}
	liveNotional := trade.OpenOrder.Units.Mul(price)

	table := market.NewTradingTable(market.OneMinute)
	for i, p := range []float64{100, 100} {
		bar := market.Bar{
			StartTime: int64(i) * market.OneMinute.Seconds(),
			Symbols:   map[string]market.OHLC{"X": {Open: p, High: p, Low: p, Close: p}},
		}
		if err := table.Append(bar); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	_ = table.SetColumn("go_long", market.Column{1, 0})
	_ = table.SetColumn("go_short", market.Column{0, 0})
	_ = table.SetColumn("close_long", market.Column{0, 0})
	_ = table.SetColumn("close_short", market.Column{0, 0})
	_ = table.SetColumn("close_position", market.Column{0, 0})
	_ = table.SetColumn("revert_position", market.Column{0, 0})

	sim := &benchmark.Simulator{Settings: settings, Symbol: sym}
	results, err := sim.Run(table, "X", balance)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	benchNotional := results[1].Units.Mul(price)

	diff := liveNotional.Sub(benchNotional).Abs()
	if diff.GreaterThan(d("0.01")) {
		t.Fatalf("live notional = %s, benchmark notional = %s, want exact agreement (diff %s)", liveNotional, benchNotional, diff)
	}
}

func TestReduceSignalFlatPicksDirectionalOpen(t *testing.T) {
	tbl := market.NewTradingTable(market.OneMinute)
	_ = tbl.Append(market.Bar{StartTime: 60})
	_ = tbl.SetColumn("go_long", market.Column{1})
	_ = tbl.SetColumn("go_short", market.Column{0})
	_ = tbl.SetColumn("close_long", market.Column{0})
	_ = tbl.SetColumn("close_short", market.Column{0})
	_ = tbl.SetColumn("close_position", market.Column{0})
	_ = tbl.SetColumn("revert_position", market.Column{0})

	if got := ReduceSignal(tbl, nil, false); got != SignalGoLong {
		t.Fatalf("ReduceSignal = %v, want SignalGoLong", got)
	}
}

func TestReduceSignalOppositeWithRevertFlag(t *testing.T) {
	tbl := market.NewTradingTable(market.OneMinute)
	_ = tbl.Append(market.Bar{StartTime: 60})
	_ = tbl.SetColumn("go_long", market.Column{0})
	_ = tbl.SetColumn("go_short", market.Column{1})
	_ = tbl.SetColumn("close_long", market.Column{0})
	_ = tbl.SetColumn("close_short", market.Column{0})
	_ = tbl.SetColumn("close_position", market.Column{0})
	_ = tbl.SetColumn("revert_position", market.Column{0})

	longTrade := &ledger.Trade{OpenOrder: &ledger.Order{Side: ledger.SideBuy}}

	if got := ReduceSignal(tbl, longTrade, true); got != SignalRevertPosition {
		t.Fatalf("ReduceSignal with revertOpposite=true = %v, want SignalRevertPosition", got)
	}
	if got := ReduceSignal(tbl, longTrade, false); got != SignalCloseLong {
		t.Fatalf("ReduceSignal with revertOpposite=false = %v, want SignalCloseLong", got)
	}
}
