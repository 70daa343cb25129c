// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// DefaultNamespace prefixes every collector the server registers.
	DefaultNamespace = "custom_orders"
	// MetricsSubsystem is shared by the ledger and sweeper metrics.
	MetricsSubsystem = "broadcast"
	// BridgeSubsystem is used by the outbox relay and the delivery worker.
	BridgeSubsystem = "bridge"
	// HTTPSubsystem is used by the request middleware.
	HTTPSubsystem = "http"
)

type Metrics struct {
	// Broadcasts created.
	BroadcastsCreated prometheus.Counter
	// Broadcasts that reached a terminal status, by status.
	BroadcastsClosed *prometheus.CounterVec
	// Quotes accepted from merchants.
	QuotesSubmitted prometheus.Counter
	// Approval attempts by outcome: won, race_lost, stale_quote, invalid_state.
	Approvals *prometheus.CounterVec
	// Entities moved by the sweeper, by kind.
	SweepTransitions *prometheus.CounterVec
	SweepDuration    prometheus.Histogram

	// Outbox deliveries by event type and result.
	BridgeDeliveries *prometheus.CounterVec
	// Events given up after the last attempt.
	BridgeFailures prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// PrometheusMetrics registers every collector on reg.
func PrometheusMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BroadcastsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "created_total",
			Help:      "Number of broadcasts created.",
		}),
		BroadcastsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "closed_total",
			Help:      "Number of broadcasts that reached a terminal status.",
		}, []string{"status"}),
		QuotesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "quotes_submitted_total",
			Help:      "Number of merchant quotes accepted.",
		}),
		Approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "approvals_total",
			Help:      "Approval attempts by outcome.",
		}, []string{"outcome"}),
		SweepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sweep_transitions_total",
			Help:      "Entities expired by the deadline sweeper.",
		}, []string{"kind"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one sweeper pass.",
			Buckets:   []float64{.005, .02, .1, .5, 1, 5, 15},
		}),
		BridgeDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: BridgeSubsystem,
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts by event type and result.",
		}, []string{"event_type", "result"}),
		BridgeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: BridgeSubsystem,
			Name:      "failed_events_total",
			Help:      "Events marked failed after exhausting their attempts.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: HTTPSubsystem,
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: HTTPSubsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NopMetrics returns collectors that are not exported anywhere.
func NopMetrics() *Metrics {
	return PrometheusMetrics("nop", prometheus.NewRegistry())
}
