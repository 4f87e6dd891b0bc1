// Package observability provides logging, Prometheus metrics and
// OpenTelemetry tracing for the memory map backend.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. Each instance
// owns its registry so tests can create as many as they like. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsPublished     prometheus.Counter
	SnapshotSize           prometheus.Gauge
	SubscriptionErrors     prometheus.Counter
	Resubscribes           prometheus.Counter
	GeocodeRequests        *prometheus.CounterVec
	GeocodeDuration        prometheus.Histogram
	AnniversaryNotified    prometheus.Counter
	BudgetErrors           *prometheus.CounterVec
	MarkerOperations       *prometheus.CounterVec
	DraftCommits           *prometheus.CounterVec
	ActiveSessions         prometheus.Gauge
	NotificationDeliveries *prometheus.CounterVec
}

// NewMetrics creates the metric set under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Snapshots published to consumers",
		}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_size",
			Help:      "Number of memories in the most recent snapshot",
		}),
		SubscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_errors_total",
			Help:      "Errors reported by remote subscriptions",
		}),
		Resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resubscribes_total",
			Help:      "Remote subscriptions reopened after an error",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocode lookups by outcome",
		}, []string{"outcome"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_duration_seconds",
			Help:      "Reverse geocode lookup latency",
			Buckets:   prometheus.DefBuckets,
		}),
		AnniversaryNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anniversary_notifications_total",
			Help:      "Anniversary reminders emitted",
		}),
		BudgetErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_errors_total",
			Help:      "Notification budget persistence errors",
		}, []string{"op"}),
		MarkerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marker_operations_total",
			Help:      "Marker adds and removes sent to render surfaces",
		}, []string{"op"}),
		DraftCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_commits_total",
			Help:      "Draft commit attempts by result",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open user sessions",
		}),
		NotificationDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_deliveries_total",
			Help:      "Notification deliveries by sink and status",
		}, []string{"sink", "status"}),
	}

	m.registry.MustRegister(
		m.SnapshotsPublished,
		m.SnapshotSize,
		m.SubscriptionErrors,
		m.Resubscribes,
		m.GeocodeRequests,
		m.GeocodeDuration,
		m.AnniversaryNotified,
		m.BudgetErrors,
		m.MarkerOperations,
		m.DraftCommits,
		m.ActiveSessions,
		m.NotificationDeliveries,
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSnapshot(size int) {
	if m == nil {
		return
	}
	m.SnapshotsPublished.Inc()
	m.SnapshotSize.Set(float64(size))
}

func (m *Metrics) RecordSubscriptionError() {
	if m == nil {
		return
	}
	m.SubscriptionErrors.Inc()
}

func (m *Metrics) RecordResubscribe() {
	if m == nil {
		return
	}
	m.Resubscribes.Inc()
}

func (m *Metrics) RecordGeocode(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GeocodeRequests.WithLabelValues(outcome).Inc()
	m.GeocodeDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordAnniversary() {
	if m == nil {
		return
	}
	m.AnniversaryNotified.Inc()
}

func (m *Metrics) RecordBudgetError(op string) {
	if m == nil {
		return
	}
	m.BudgetErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordMarkers(adds, removes int) {
	if m == nil {
		return
	}
	m.MarkerOperations.WithLabelValues("add").Add(float64(adds))
	m.MarkerOperations.WithLabelValues("remove").Add(float64(removes))
}

func (m *Metrics) RecordCommit(result string) {
	if m == nil {
		return
	}
	m.DraftCommits.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) RecordDelivery(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NotificationDeliveries.WithLabelValues(sink, status).Inc()
}
