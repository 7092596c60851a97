// FILE: internal/metrics/metrics_test.go
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncOrderIncrementsLabeledCounter(t *testing.T) {
	before := testutil.ToFloat64(OrdersTotal.WithLabelValues("paper", "buy"))
	IncOrder("paper", "buy")
	after := testutil.ToFloat64(OrdersTotal.WithLabelValues("paper", "buy"))
	assert.Equal(t, before+1, after, "OrdersTotal{paper,buy}")
}

func TestSetEquityReportsGaugeValue(t *testing.T) {
	SetEquity(12345.67)
	assert.Equal(t, 12345.67, testutil.ToFloat64(EquityUSD))
}

func TestIncTransitionIncrementsFromToPair(t *testing.T) {
	before := testutil.ToFloat64(OrderTransitionsTotal.WithLabelValues("Open", "Closed"))
	IncTransition("Open", "Closed")
	after := testutil.ToFloat64(OrderTransitionsTotal.WithLabelValues("Open", "Closed"))
	if after != before+1 {
		t.Fatalf("OrderTransitionsTotal{Open,Closed} = %v, want %v", after, before+1)
	}
}

func TestSetExecutionQueueDepthReportsGauge(t *testing.T) {
	SetExecutionQueueDepth(3)
	if got := testutil.ToFloat64(ExecutionQueueDepth); got != 3 {
		t.Fatalf("ExecutionQueueDepth = %v, want 3", got)
	}
	SetExecutionQueueDepth(0)
	if got := testutil.ToFloat64(ExecutionQueueDepth); got != 0 {
		t.Fatalf("ExecutionQueueDepth = %v, want 0", got)
	}
}

func TestIncReconcileResyncIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(ReconcileResyncTotal)
	IncReconcileResync()
	after := testutil.ToFloat64(ReconcileResyncTotal)
	if after != before+1 {
		t.Fatalf("ReconcileResyncTotal = %v, want %v", after, before+1)
	}
}

func TestIncSupervisorReconnectIncrementsLabeledCounter(t *testing.T) {
	before := testutil.ToFloat64(SupervisorReconnectsTotal.WithLabelValues("bar_clock"))
	IncSupervisorReconnect("bar_clock")
	after := testutil.ToFloat64(SupervisorReconnectsTotal.WithLabelValues("bar_clock"))
	if after != before+1 {
		t.Fatalf("SupervisorReconnectsTotal{bar_clock} = %v, want %v", after, before+1)
	}
}
