package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	m.Signal("LONG_ENTRY", "opened")
	m.OrderAttempt(true)
	m.Order("BUY", true, time.Millisecond)
	m.Tick(1, time.Millisecond)
	m.FetchFailure("price")
	m.Tightened("ETHUSDT")
	m.ForcedExit("ETHUSDT", "stop_loss")
}

func TestMetricsCount(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Signal("LONG_ENTRY", "opened")
	m.OrderAttempt(false)
	m.OrderAttempt(true)
	m.Order("BUY", true, 120*time.Millisecond)
	m.Tick(2, 5*time.Millisecond)
	m.ForcedExit("ETHUSDT", "trailing")

	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("LONG_ENTRY", "opened")); got != 1 {
		t.Fatalf("signals=%v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.OrderAttempts.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed attempts=%v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.OrdersTotal.WithLabelValues("BUY", "ok")); got != 1 {
		t.Fatalf("orders ok=%v, expected 1", got)
	}
	if got := testutil.ToFloat64(m.ActivePositions); got != 2 {
		t.Fatalf("active=%v, expected 2", got)
	}
	if got := testutil.ToFloat64(m.ForcedExits.WithLabelValues("ETHUSDT", "trailing")); got != 1 {
		t.Fatalf("forced exits=%v, expected 1", got)
	}
}
