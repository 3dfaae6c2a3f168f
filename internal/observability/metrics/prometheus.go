// Package metrics provides Prometheus metrics for the subscription tracker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	SubscriptionsCreated prometheus.Counter
	SubscriptionsDeleted prometheus.Counter
	TransitionsApplied   *prometheus.CounterVec
	TransitionsRejected  prometheus.Counter
	LogEntriesAppended   prometheus.Counter
	RequestDuration      prometheus.Histogram
	BoardSubscriptions   prometheus.Gauge
	SnapshotsApplied     prometheus.Counter
	OutboxPending        prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in services and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubscriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_created_total",
			Help: "Total subscriptions created",
		}),
		SubscriptionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_deleted_total",
			Help: "Total subscriptions deleted",
		}),
		TransitionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_transitions_total",
			Help: "Fulfillment transitions applied, by target status",
		}, []string{"status"}),
		TransitionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_transitions_rejected_total",
			Help: "Transitions rejected for unknown keys or invalid input",
		}),
		LogEntriesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "communication_log_entries_total",
			Help: "Communication log entries appended",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subscription_request_duration_seconds",
			Help:    "Subscription API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		BoardSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "board_subscriptions",
			Help: "Subscriptions currently on the board",
		}),
		SnapshotsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_snapshots_applied_total",
			Help: "Snapshot records applied to the board",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.SubscriptionsCreated,
		m.SubscriptionsDeleted,
		m.TransitionsApplied,
		m.TransitionsRejected,
		m.LogEntriesAppended,
		m.RequestDuration,
		m.BoardSubscriptions,
		m.SnapshotsApplied,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
