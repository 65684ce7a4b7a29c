// Package metrics exposes the Prometheus instrumentation for the book
// pipeline. A nil *Metrics is a valid no-op sink, so callers never have
// to guard their observation calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// Metrics owns the registry and the collectors for book ingestion,
// stream health, and simulations.
type Metrics struct {
	registry *prometheus.Registry

	booksApplied    *prometheus.CounterVec
	booksRejected   *prometheus.CounterVec
	snapshotFetches *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	feedUp          *prometheus.GaugeVec
	subscriptions   *prometheus.GaugeVec
	simulations     *prometheus.CounterVec
	simDuration     prometheus.Histogram
}

// New creates the collector set under the given namespace and registers
// it, together with the standard Go and process collectors, on a fresh
// registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		booksApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_applied_total",
			Help:      "Orderbooks accepted into the store",
		}, []string{"venue"}),

		booksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_rejected_total",
			Help:      "Orderbooks dropped before the store, by reason",
		}, []string{"venue", "reason"}),

		snapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fetches_total",
			Help:      "REST snapshot fetches, by outcome",
		}, []string{"venue", "outcome"}),

		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Stream reconnect attempts",
		}, []string{"venue"}),

		feedUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_up",
			Help:      "Whether the venue stream is connected (1) or not (0)",
		}, []string{"venue"}),

		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Active stream subscriptions",
		}, []string{"venue"}),

		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Order simulations run, by venue and order type",
		}, []string{"venue", "order_type"}),

		simDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Wall time of a simulation including its timing delay",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 10, 30, 60},
		}),
	}

	m.registry.MustRegister(
		m.booksApplied,
		m.booksRejected,
		m.snapshotFetches,
		m.reconnects,
		m.feedUp,
		m.subscriptions,
		m.simulations,
		m.simDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BookApplied records an orderbook accepted into the store.
func (m *Metrics) BookApplied(venue domain.Venue) {
	if m == nil {
		return
	}
	m.booksApplied.WithLabelValues(string(venue)).Inc()
}

// BookRejected records an orderbook dropped before the store.
func (m *Metrics) BookRejected(venue domain.Venue, reason string) {
	if m == nil {
		return
	}
	m.booksRejected.WithLabelValues(string(venue), reason).Inc()
}

// SnapshotFetched records one REST snapshot fetch.
func (m *Metrics) SnapshotFetched(venue domain.Venue, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.snapshotFetches.WithLabelValues(string(venue), outcome).Inc()
}

// Reconnect records one stream reconnect attempt.
func (m *Metrics) Reconnect(venue domain.Venue) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(string(venue)).Inc()
}

// SetFeedUp flags the venue stream as connected or not.
func (m *Metrics) SetFeedUp(venue domain.Venue, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	m.feedUp.WithLabelValues(string(venue)).Set(v)
}

// SetSubscriptions records the number of active subscriptions on a venue.
func (m *Metrics) SetSubscriptions(venue domain.Venue, n int) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(string(venue)).Set(float64(n))
}

// SimulationRun records one completed simulation and its wall time.
func (m *Metrics) SimulationRun(venue domain.Venue, orderType domain.OrderType, seconds float64) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(string(venue), string(orderType)).Inc()
	m.simDuration.Observe(seconds)
}
