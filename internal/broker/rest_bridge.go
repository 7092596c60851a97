// FILE: internal/broker/rest_bridge.go
// RESTBridge talks to an exchange-fronting HTTP sidecar, the same shape as
// the teacher's broker_bridge.go:BridgeBroker — but built on
// hashicorp/go-retryablehttp instead of a bare *http.Client, so transient
// 5xx/connection-reset responses are retried with backoff before the
// Supervisor's own reconnect policy ever has to engage, and on
// gorilla/websocket for the streaming endpoints the teacher's REST-only
// broker never needed.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/kerrors"
	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
	"github.com/chidi150c/tradekernel/internal/metrics"
	"github.com/chidi150c/tradekernel/internal/reconcile"
)

// RESTBridge implements both DataProvider and Trader against one sidecar
// base URL, matching the teacher's single-struct-two-concerns BridgeBroker.
type RESTBridge struct {
	base       string
	hc         *retryablehttp.Client
	wsDialer   *websocket.Dialer
	wsBase     string
	auth       *JWTAuthTransport
	settings   ledger.TradingSettings
	symbols    map[string]market.Symbol
	reconnectS int
	pingS      int
}

// NewRESTBridge builds a bridge client. wsBase is the websocket origin (e.g.
// "wss://host/stream"); auth may be nil for unauthenticated sidecars.
func NewRESTBridge(base, wsBase string, auth *JWTAuthTransport) *RESTBridge {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	cl := retryablehttp.NewClient()
	cl.RetryMax = 4
	cl.RetryWaitMin = 200 * time.Millisecond
	cl.RetryWaitMax = 5 * time.Second
	cl.Logger = nil
	cl.HTTPClient.Timeout = 15 * time.Second

	return &RESTBridge{
		base:       base,
		hc:         cl,
		wsDialer:   websocket.DefaultDialer,
		wsBase:     wsBase,
		auth:       auth,
		reconnectS: 5,
		pingS:      15,
	}
}

// SetContracts/SetTradingSettings let the Supervisor seed the bridge's
// locally-cached contract table and settings after GetContracts/
// GetTradingSettings is first fetched from the sidecar.
func (r *RESTBridge) SetContracts(m map[string]market.Symbol)          { r.symbols = m }
func (r *RESTBridge) SetTradingSettings(s ledger.TradingSettings)      { r.settings = s }

func (r *RESTBridge) ReconnectIntervalSeconds() int { return r.reconnectS }
func (r *RESTBridge) PingIntervalSeconds() int      { return r.pingS }

// --- DataProvider ---

type candleRow struct {
	Start  any `json:"start"`
	Open   any `json:"open"`
	High   any `json:"high"`
	Low    any `json:"low"`
	Close  any `json:"close"`
	Volume any `json:"volume"`
}

func parseF(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func parseStart(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		if sec, err := strconv.ParseInt(t, 10, 64); err == nil {
			return sec
		}
		if tt, err := time.Parse(time.RFC3339, t); err == nil {
			return tt.Unix()
		}
	}
	return 0
}

func (r *RESTBridge) FetchHistory(ctx context.Context, symbol string, startMS, endMS int64, limit int) ([]market.TickData, error) {
	if limit <= 0 {
		limit = 300
	}
	q := url.Values{}
	q.Set("product_id", symbol)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("start", strconv.FormatInt(startMS/1000, 10))
	q.Set("end", strconv.FormatInt(endMS/1000, 10))
	u := fmt.Sprintf("%s/candles?%s", r.base, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.FetchHistory", err)
	}
	res, err := r.do(req)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.FetchHistory", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return nil, kerrors.Network("RESTBridge.FetchHistory", fmt.Errorf("candles %d: %s", res.StatusCode, string(b)))
	}
	var rows []candleRow
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, kerrors.Protocol("RESTBridge.FetchHistory", err)
	}
	out := make([]market.TickData, 0, len(rows))
	for _, row := range rows {
		out = append(out, market.TickData{
			Symbol:    symbol,
			StartTime: parseStart(row.Start),
			Open:      parseF(row.Open),
			High:      parseF(row.High),
			Low:       parseF(row.Low),
			Close:     parseF(row.Close),
			Volume:    parseF(row.Volume),
		})
	}
	return out, nil
}

// SubscribeTicks dials the sidecar's ticker websocket and decodes one
// TickData per message; the caller (BarProcessor) is responsible for
// calling NoteWebsocketError on the Reconciliation Bus if the channel closes
// unexpectedly, per spec §4.6's faulty-socket fallback.
func (r *RESTBridge) SubscribeTicks(ctx context.Context, symbols []string) (<-chan market.TickData, error) {
	u := fmt.Sprintf("%s/ticks?symbols=%s", r.wsBase, strings.Join(symbols, ","))
	conn, _, err := r.wsDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.SubscribeTicks", err)
	}
	out := make(chan market.TickData, 256)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var tick market.TickData
			if err := conn.ReadJSON(&tick); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- tick:
			}
		}
	}()
	return out, nil
}

// --- Trader ---

func (r *RESTBridge) do(req *retryablehttp.Request) (*http.Response, error) {
	if r.auth != nil {
		if err := r.auth.Sign(req.Request); err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", "tradekernel/bridge")
	return r.hc.Do(req)
}

func (r *RESTBridge) postJSON(ctx context.Context, path string, body any, out any) error {
	bs, _ := json.Marshal(body)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(bs))
	if err != nil {
		return kerrors.Network("RESTBridge.postJSON", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := r.do(req)
	if err != nil {
		return kerrors.Network("RESTBridge.postJSON", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return kerrors.Network("RESTBridge.postJSON", fmt.Errorf("%s %d: %s", path, res.StatusCode, string(b)))
	}
	if out != nil {
		return json.Unmarshal(b, out)
	}
	return nil
}

func (r *RESTBridge) OpenOrder(ctx context.Context, side ledger.Side, quoteAmount, referencePrice decimal.Decimal) (*ledger.Order, error) {
	var resp struct {
		OrderID  string `json:"order_id"`
		AvgPrice string `json:"avg_price"`
		Filled   string `json:"filled_base"`
	}
	body := map[string]any{"side": side.String(), "quote_size": quoteAmount.String()}
	if err := r.postJSON(ctx, "/order/market", body, &resp); err != nil {
		return nil, err
	}
	price, _ := decimal.NewFromString(resp.AvgPrice)
	units, _ := decimal.NewFromString(resp.Filled)
	id := firstNonEmpty(resp.OrderID, uuid.New().String())
	now := time.Now().UTC()
	order := &ledger.Order{ID: id, UUID: id, Side: side, Type: ledger.OrderTypeMarket, Units: units, CreatedAt: now, UpdatedAt: now}
	if units.IsPositive() {
		order.MergeExecution(ledger.Execution{ID: uuid.New().String(), OrderUUID: id, Price: price, Units: units, Timestamp: now})
	}
	metrics.IncOrder("live", side.String())
	return order, nil
}

func (r *RESTBridge) AmendOrder(ctx context.Context, id string, units, price, sl, tp *decimal.Decimal) (bool, error) {
	body := map[string]any{"order_id": id}
	if units != nil {
		body["units"] = units.String()
	}
	if price != nil {
		body["price"] = price.String()
	}
	if sl != nil {
		body["stop_loss"] = sl.String()
	}
	if tp != nil {
		body["take_profit"] = tp.String()
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := r.postJSON(ctx, "/order/amend", body, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (r *RESTBridge) TryClosePosition(ctx context.Context, trade *ledger.Trade, referencePrice decimal.Decimal) (*ledger.Order, error) {
	side := trade.OpenOrder.Side.Opposite()
	units := trade.OpenOrder.ExecutedQuantity()
	var resp struct {
		OrderID  string `json:"order_id"`
		AvgPrice string `json:"avg_price"`
		Filled   string `json:"filled_base"`
	}
	body := map[string]any{"side": side.String(), "base_size": units.String()}
	if err := r.postJSON(ctx, "/order/close", body, &resp); err != nil {
		return nil, err
	}
	price, _ := decimal.NewFromString(resp.AvgPrice)
	filled, _ := decimal.NewFromString(resp.Filled)
	id := firstNonEmpty(resp.OrderID, uuid.New().String())
	now := time.Now().UTC()
	order := &ledger.Order{ID: id, UUID: id, Side: side, Type: ledger.OrderTypeMarket, Units: units, IsClose: true, CreatedAt: now, UpdatedAt: now}
	if filled.IsPositive() {
		order.MergeExecution(ledger.Execution{ID: uuid.New().String(), OrderUUID: id, Price: price, Units: filled, Timestamp: now})
	}
	metrics.IncExit("signal", side.String())
	return order, nil
}

func (r *RESTBridge) CancelOrder(ctx context.Context, id string) (bool, error) {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := r.postJSON(ctx, "/order/cancel", map[string]any{"order_id": id}, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (r *RESTBridge) SetLeverage(ctx context.Context, leverage decimal.Decimal) (bool, error) {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := r.postJSON(ctx, "/account/leverage", map[string]any{"leverage": leverage.String()}, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

func (r *RESTBridge) FetchBalance(ctx context.Context) (ledger.Balance, error) {
	u := r.base + "/account/balance"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ledger.Balance{}, kerrors.Network("RESTBridge.FetchBalance", err)
	}
	res, err := r.do(req)
	if err != nil {
		return ledger.Balance{}, kerrors.Network("RESTBridge.FetchBalance", err)
	}
	defer res.Body.Close()
	var resp struct {
		Wallet    string `json:"wallet_balance"`
		Available string `json:"available_to_withdraw"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return ledger.Balance{}, kerrors.Protocol("RESTBridge.FetchBalance", err)
	}
	wallet, _ := decimal.NewFromString(resp.Wallet)
	avail, _ := decimal.NewFromString(resp.Available)
	return ledger.Balance{WalletBalance: wallet, AvailableToWithdraw: avail, Timestamp: time.Now().UTC()}, nil
}

func (r *RESTBridge) FetchHistoryOrder(ctx context.Context, id string) (*ledger.Order, error) {
	return r.fetchOrder(ctx, "/order/history/"+url.PathEscape(id))
}

func (r *RESTBridge) FetchCurrentOrder(ctx context.Context, id string) (*ledger.Order, error) {
	return r.fetchOrder(ctx, "/order/current/"+url.PathEscape(id))
}

func (r *RESTBridge) fetchOrder(ctx context.Context, path string) (*ledger.Order, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.base+path, nil)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.fetchOrder", err)
	}
	res, err := r.do(req)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.fetchOrder", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	var order ledger.Order
	if err := json.NewDecoder(res.Body).Decode(&order); err != nil {
		return nil, kerrors.Protocol("RESTBridge.fetchOrder", err)
	}
	return &order, nil
}

func (r *RESTBridge) FetchTradeState(ctx context.Context) (*ledger.Trade, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.base+"/trade/state", nil)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.FetchTradeState", err)
	}
	res, err := r.do(req)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.FetchTradeState", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	var trade ledger.Trade
	if err := json.NewDecoder(res.Body).Decode(&trade); err != nil {
		return nil, kerrors.Protocol("RESTBridge.FetchTradeState", err)
	}
	return &trade, nil
}

func (r *RESTBridge) FetchCurrentPosition(ctx context.Context) (*ledger.Trade, error) {
	return r.FetchTradeState(ctx)
}

func (r *RESTBridge) FetchExecutions(ctx context.Context, orderID string) ([]ledger.Execution, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.base+"/order/"+url.PathEscape(orderID)+"/executions", nil)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.FetchExecutions", err)
	}
	res, err := r.do(req)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.FetchExecutions", err)
	}
	defer res.Body.Close()
	var execs []ledger.Execution
	if err := json.NewDecoder(res.Body).Decode(&execs); err != nil {
		return nil, kerrors.Protocol("RESTBridge.FetchExecutions", err)
	}
	return execs, nil
}

// SubscribeAccount dials the sidecar's account-events websocket and decodes
// each message into a reconcile.Event by its "kind" discriminator field.
func (r *RESTBridge) SubscribeAccount(ctx context.Context) (<-chan reconcile.Event, error) {
	conn, _, err := r.wsDialer.DialContext(ctx, r.wsBase+"/account", nil)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.SubscribeAccount", err)
	}
	out := make(chan reconcile.Event, 256)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var raw struct {
				Kind       string              `json:"kind"`
				Balance    *ledger.Balance     `json:"balance,omitempty"`
				OrderUUID  string              `json:"order_uuid,omitempty"`
				Order      *ledger.Order       `json:"order,omitempty"`
				StopStatus int                 `json:"stop_status,omitempty"`
				Executions []ledger.Execution  `json:"executions,omitempty"`
			}
			if err := conn.ReadJSON(&raw); err != nil {
				return
			}
			ev := reconcile.Event{OrderUUID: raw.OrderUUID, Balance: raw.Balance, Order: raw.Order,
				StopStatus: ledger.OrderStatus(raw.StopStatus), Executions: raw.Executions, ReceivedAt: time.Now().UTC()}
			switch raw.Kind {
			case "balance":
				ev.Kind = reconcile.EventBalance
			case "order_update":
				ev.Kind = reconcile.EventOrderUpdate
			case "order_stop":
				ev.Kind = reconcile.EventOrderStop
			case "order_cancel":
				ev.Kind = reconcile.EventOrderCancel
			case "executions":
				ev.Kind = reconcile.EventExecutions
			default:
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}()
	return out, nil
}

func (r *RESTBridge) GetContracts(ctx context.Context) (map[string]market.Symbol, error) {
	if r.symbols != nil {
		return r.symbols, nil
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.base+"/contracts", nil)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.GetContracts", err)
	}
	res, err := r.do(req)
	if err != nil {
		return nil, kerrors.Network("RESTBridge.GetContracts", err)
	}
	defer res.Body.Close()
	var out map[string]market.Symbol
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, kerrors.Protocol("RESTBridge.GetContracts", err)
	}
	r.symbols = out
	return out, nil
}

func (r *RESTBridge) GetTradingSettings(ctx context.Context) (ledger.TradingSettings, error) {
	return r.settings, nil
}

func (r *RESTBridge) FeeFor(orderType ledger.OrderType) (taker, maker decimal.Decimal) {
	for _, s := range r.symbols {
		return s.TakerFeeRate, s.MakerFeeRate
	}
	return decimal.NewFromFloat(0.0006), decimal.NewFromFloat(0.0002)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
