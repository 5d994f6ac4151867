// Package metrics exposes the Prometheus collectors shared by the
// dispatcher, the order executor and the trailing monitor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tvbot"

// Metrics holds the Prometheus collectors of the bot. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SignalsTotal     *prometheus.CounterVec
	OrdersTotal      *prometheus.CounterVec
	OrderAttempts    *prometheus.CounterVec
	OrderLatency     *prometheus.HistogramVec
	TicksTotal       prometheus.Counter
	TickDuration     prometheus.Histogram
	FetchFailures    *prometheus.CounterVec
	ThresholdUpdates *prometheus.CounterVec
	ForcedExits      *prometheus.CounterVec
	ActivePositions  prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SignalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "signals_total",
			Help:      "Webhook signals by signal and outcome",
		}, []string{"signal", "result"}),
		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "submitted_total",
			Help:      "Order submissions by side and final outcome",
		}, []string{"side", "outcome"}),
		OrderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "attempts_total",
			Help:      "Individual signed order attempts by outcome",
		}, []string{"outcome"}),
		OrderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "latency_ms",
			Help:      "Time from first attempt to final outcome in milliseconds",
			Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000, 10000},
		}, []string{"side"}),
		TicksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Completed monitor ticks",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_duration_ms",
			Help:      "Monitor tick duration in milliseconds",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "fetch_failures_total",
			Help:      "Failed market data fetches by operation",
		}, []string{"op"}),
		ThresholdUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "threshold_updates_total",
			Help:      "Threshold tightenings by symbol",
		}, []string{"symbol"}),
		ForcedExits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "forced_exits_total",
			Help:      "Positions force-closed by the monitor by breach type",
		}, []string{"symbol", "reason"}),
		ActivePositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "active_positions",
			Help:      "Active positions seen on the last tick",
		}),
	}
}

// Signal counts one webhook signal with its dispatch result.
func (m *Metrics) Signal(signal, result string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(signal, result).Inc()
}

// OrderAttempt counts a single signed order request.
func (m *Metrics) OrderAttempt(ok bool) {
	if m == nil {
		return
	}
	m.OrderAttempts.WithLabelValues(outcome(ok)).Inc()
}

// Order records the final outcome of a submission and the time spent
// across all of its attempts.
func (m *Metrics) Order(side string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(side, outcome(ok)).Inc()
	m.OrderLatency.WithLabelValues(side).Observe(float64(took.Milliseconds()))
}

// Tick records a finished monitor pass over active positions.
func (m *Metrics) Tick(active int, took time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(float64(took.Milliseconds()))
	m.ActivePositions.Set(float64(active))
}

// FetchFailure counts a failed market data call; op is "price" or "atr".
func (m *Metrics) FetchFailure(op string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(op).Inc()
}

// Tightened counts a stop or trail moved toward the price.
func (m *Metrics) Tightened(symbol string) {
	if m == nil {
		return
	}
	m.ThresholdUpdates.WithLabelValues(symbol).Inc()
}

// ForcedExit counts a position closed by the monitor on a breach.
func (m *Metrics) ForcedExit(symbol, reason string) {
	if m == nil {
		return
	}
	m.ForcedExits.WithLabelValues(symbol, reason).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
