package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// extraction engine. They are served over /metrics in watch mode.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	PagesFetched        prometheus.Counter
	EventsEmitted       prometheus.Counter
	SinkWriteErrors     prometheus.Counter
	RunDuration         prometheus.Histogram
	CheckpointTimestamp prometheus.Gauge
	WatchActive         prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RunsTotal,
		m.PagesFetched,
		m.EventsEmitted,
		m.SinkWriteErrors,
		m.RunDuration,
		m.CheckpointTimestamp,
		m.WatchActive,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "code42",
			Name:      "runs_total",
			Help:      "Total extraction runs by outcome.",
		}, []string{"status"}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "code42",
			Name:      "pages_fetched_total",
			Help:      "Total result pages fetched from the event API.",
		}),
		EventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "code42",
			Name:      "events_emitted_total",
			Help:      "Total events delivered to all configured sinks.",
		}),
		SinkWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "code42",
			Name:      "sink_write_errors_total",
			Help:      "Total sink write failures.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "code42",
			Name:      "run_duration_seconds",
			Help:      "Duration of one full extraction run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		CheckpointTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "code42",
			Name:      "checkpoint_timestamp_ms",
			Help:      "Most recently persisted cursor value, epoch milliseconds.",
		}),
		WatchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "code42",
			Name:      "watch_active",
			Help:      "1 when watch mode is polling, 0 otherwise.",
		}),
	}
}
