// FILE: internal/broker/rest_bridge_test.go
package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
)

func decimalD(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestParseFHandlesStringsAndNumbers(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{float64(12.5), 12.5},
		{"12.5", 12.5},
		{"not-a-number", 0},
		{nil, 0},
	}
	for _, c := range cases {
		if got := parseF(c.in); got != c.want {
			t.Fatalf("parseF(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseStartHandlesUnixSecondsAndRFC3339(t *testing.T) {
	if got := parseStart(float64(1700000000)); got != 1700000000 {
		t.Fatalf("parseStart(float64) = %d, want 1700000000", got)
	}
	if got := parseStart("1700000000"); got != 1700000000 {
		t.Fatalf("parseStart(numeric string) = %d, want 1700000000", got)
	}
	if got := parseStart("2023-11-14T22:13:20Z"); got != 1700000000 {
		t.Fatalf("parseStart(RFC3339) = %d, want 1700000000", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("firstNonEmpty = %q, want x", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("firstNonEmpty of all-empty = %q, want empty", got)
	}
}

func newTestBridge(t *testing.T, handler http.HandlerFunc) (*RESTBridge, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	b := NewRESTBridge(srv.URL, "ws://"+srv.Listener.Addr().String(), nil)
	return b, srv
}

func TestRESTBridgeFetchHistoryDecodesCandles(t *testing.T) {
	b, srv := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/candles" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]candleRow{
			{Start: float64(1700000000), Open: "100", High: "101", Low: "99", Close: "100.5", Volume: "10"},
		})
	})
	defer srv.Close()

	ticks, err := b.FetchHistory(context.Background(), "BTC-USD", 1700000000000, 1700000060000, 10)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("len(ticks) = %d, want 1", len(ticks))
	}
	if ticks[0].Close != 100.5 {
		t.Fatalf("ticks[0].Close = %v, want 100.5", ticks[0].Close)
	}
}

func TestRESTBridgeFetchBalanceDecodesDecimals(t *testing.T) {
	b, srv := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"wallet_balance":"1000.50","available_to_withdraw":"950.25"}`))
	})
	defer srv.Close()

	bal, err := b.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("FetchBalance: %v", err)
	}
	if !bal.WalletBalance.Equal(decimalD("1000.50")) {
		t.Fatalf("WalletBalance = %s, want 1000.50", bal.WalletBalance)
	}
}

func TestRESTBridgeOpenOrderMergesExecution(t *testing.T) {
	b, srv := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/order/market" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"order_id":"abc","avg_price":"100","filled_base":"2"}`))
	})
	defer srv.Close()

	order, err := b.OpenOrder(context.Background(), ledger.SideBuy, decimalD("200"), decimalD("100"))
	if err != nil {
		t.Fatalf("OpenOrder: %v", err)
	}
	if order.ID != "abc" {
		t.Fatalf("order.ID = %s, want abc", order.ID)
	}
	if len(order.Executions) != 1 {
		t.Fatalf("executions = %d, want 1", len(order.Executions))
	}
}

func TestRESTBridgeFetchHistoryOrderReturnsNilOn404(t *testing.T) {
	b, srv := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	order, err := b.FetchHistoryOrder(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FetchHistoryOrder: %v", err)
	}
	if order != nil {
		t.Fatalf("expected nil order on 404, got %+v", order)
	}
}

func TestRESTBridgeGetContractsCaches(t *testing.T) {
	calls := 0
	b, srv := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]market.Symbol{"X": {Name: "X"}})
	})
	defer srv.Close()

	if _, err := b.GetContracts(context.Background()); err != nil {
		t.Fatalf("GetContracts (1st): %v", err)
	}
	if _, err := b.GetContracts(context.Background()); err != nil {
		t.Fatalf("GetContracts (2nd): %v", err)
	}
	if calls != 1 {
		t.Fatalf("sidecar calls = %d, want 1 (second call served from cache)", calls)
	}
}

func TestRESTBridgeFeeForFallsBackWithoutContracts(t *testing.T) {
	b := NewRESTBridge("http://127.0.0.1:0", "", nil)
	taker, maker := b.FeeFor(ledger.OrderTypeMarket)
	if !taker.IsPositive() || !maker.IsPositive() {
		t.Fatalf("expected positive fallback fee rates, got taker=%s maker=%s", taker, maker)
	}
}
