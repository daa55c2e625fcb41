// Package metrics exposes Prometheus instrumentation for the observer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fxobserver"

// Metrics bundles the observer's Prometheus collectors on a private
// registry, so tests never collide on global state.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal         prometheus.Counter
	FetchErrorsTotal    prometheus.Counter
	AlertsFiredTotal    *prometheus.CounterVec
	PointsArchivedTotal prometheus.Counter
	MarketOpen          prometheus.Gauge
	SnapshotPairs       prometheus.Gauge
	CycleDuration       prometheus.Histogram
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Observation cycles executed while the market was open.",
		}),
		FetchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Snapshot fetch failures.",
		}),
		AlertsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alert notifications attempted, by channel.",
		}, []string{"channel"}),
		PointsArchivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_points_archived_total",
			Help:      "Price points flushed to PostgreSQL.",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_open",
			Help:      "Whether the forex market is currently open (1) or closed (0).",
		}),
		SnapshotPairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_pairs",
			Help:      "Quotes carried by the most recent snapshot.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "End-to-end duration of one observation cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.FetchErrorsTotal,
		m.AlertsFiredTotal,
		m.PointsArchivedTotal,
		m.MarketOpen,
		m.SnapshotPairs,
		m.CycleDuration,
	)
	return m
}

// RegisterSubscriberGauge exposes the live subscriber count.
func (m *Metrics) RegisterSubscriberGauge(count func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_subscribers",
		Help:      "Subscribers currently attached to the snapshot hub.",
	}, count))
}

// SetMarketOpen flips the market state gauge.
func (m *Metrics) SetMarketOpen(open bool) {
	if open {
		m.MarketOpen.Set(1)
		return
	}
	m.MarketOpen.Set(0)
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
