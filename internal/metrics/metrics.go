// FILE: internal/metrics/metrics.go
// Package metrics exposes kernel observability as Prometheus series, same
// package-level-vars-plus-init()-registration shape as the teacher's
// metrics.go, extended with series for this kernel's own concerns: bar
// commit latency, ledger state transitions, reconciliation resyncs, and
// execution queue depth, none of which the teacher's single-product spot
// bot needed to track.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradekernel_orders_total", Help: "Orders placed"},
		[]string{"mode", "side"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradekernel_decisions_total", Help: "Signal decisions taken"},
		[]string{"signal"},
	)

	EquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradekernel_equity_usd", Help: "Current wallet balance"},
	)

	ExitReasonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradekernel_exit_reasons_total", Help: "Exits split by reason and side"},
		[]string{"reason", "side"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradekernel_trades_total", Help: "Trades counted by result (open|win|loss)"},
		[]string{"result"},
	)

	// BarCommitLatencySeconds tracks how long one Bar Clock boundary-cross
	// commit + pipeline Update + reconcile decorate took end-to-end.
	BarCommitLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradekernel_bar_commit_latency_seconds",
			Help:    "Time to commit one bar and run the pipeline/reconcile decorate pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// OrderTransitionsTotal counts ledger.Trade state-machine transitions by
	// (from, to) status pair, the kernel's equivalent of the teacher's
	// bot_trades_total but granular to every edge of the state table.
	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradekernel_order_transitions_total", Help: "Trade status transitions"},
		[]string{"from", "to"},
	)

	// ReconcileResyncTotal counts REST fallback resyncs triggered by a
	// websocket error, per spec §4.6.
	ReconcileResyncTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tradekernel_reconcile_resync_total", Help: "REST resyncs triggered after a websocket error"},
	)

	// ExecutionQueueDepth reports the Reconciliation Bus's temp_executions
	// buffer length after each Apply, a leading indicator for the
	// KindCapacity forced-reconnect policy of spec §7.
	ExecutionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tradekernel_execution_queue_depth", Help: "Buffered executions awaiting a matching order"},
	)

	// SupervisorReconnectsTotal counts Supervisor-driven reconnects by task.
	SupervisorReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradekernel_supervisor_reconnects_total", Help: "Reconnects performed by the supervisor"},
		[]string{"task"},
	)

	// BenchmarkRunsTotal counts Benchmark Simulator invocations.
	BenchmarkRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tradekernel_benchmark_runs_total", Help: "Benchmark simulator runs performed"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersTotal, DecisionsTotal, EquityUSD, ExitReasonsTotal, TradesTotal,
		BarCommitLatencySeconds, OrderTransitionsTotal, ReconcileResyncTotal,
		ExecutionQueueDepth, SupervisorReconnectsTotal, BenchmarkRunsTotal,
	)
}

// SetEquity reports the latest wallet balance.
func SetEquity(v float64) { EquityUSD.Set(v) }

// IncOrder counts an order placement by mode (paper|live) and side.
func IncOrder(mode, side string) { OrdersTotal.WithLabelValues(mode, side).Inc() }

// IncDecision counts a signal decision.
func IncDecision(signal string) { DecisionsTotal.WithLabelValues(signal).Inc() }

// IncExit counts a position exit by reason and side.
func IncExit(reason, side string) { ExitReasonsTotal.WithLabelValues(reason, side).Inc() }

// IncTrade counts a completed trade by result.
func IncTrade(result string) { TradesTotal.WithLabelValues(result).Inc() }

// IncTransition counts one ledger.Trade status edge.
func IncTransition(from, to string) { OrderTransitionsTotal.WithLabelValues(from, to).Inc() }

// IncReconcileResync counts one REST fallback resync.
func IncReconcileResync() { ReconcileResyncTotal.Inc() }

// SetExecutionQueueDepth reports the current temp_executions buffer length.
func SetExecutionQueueDepth(n int) { ExecutionQueueDepth.Set(float64(n)) }

// IncSupervisorReconnect counts a reconnect performed for the named task.
func IncSupervisorReconnect(task string) { SupervisorReconnectsTotal.WithLabelValues(task).Inc() }

// IncBenchmarkRun counts one benchmark simulator invocation.
func IncBenchmarkRun() { BenchmarkRunsTotal.Inc() }
