package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_norm"

// Metrics holds the Prometheus counters, histograms, and gauges for the normalization run.
type Metrics struct {
	RecordsRead         prometheus.Counter
	RecordsNormalized   prometheus.Counter
	RecordsDropped      *prometheus.CounterVec // labels: reason={unparseable_date,malformed_row}
	RecordsUnclassified prometheus.Counter
	DamagesMissing      prometheus.Counter
	PipelineRunning     prometheus.Gauge

	RunDuration      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge

	// Classifier cache metrics.
	ClassifierCache *prometheus.CounterVec // labels: result={hit,miss}

	// Sink metrics.
	RecordsLoaded *prometheus.CounterVec // labels: sink
	LoadErrors    *prometheus.CounterVec // labels: sink
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Total event rows read from the source.",
		}),
		RecordsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_normalized_total",
			Help:      "Total records classified into a canonical category.",
		}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Rows dropped before normalization, by reason.",
		}, []string{"reason"}),
		RecordsUnclassified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_unclassified_total",
			Help:      "Records whose event type matched no rule.",
		}),
		DamagesMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "damages_missing_total",
			Help:      "Classified records whose adjusted damages could not be determined.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-normalize-aggregate-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		ClassifierCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_cache_total",
			Help:      "Classifier cache lookups by result.",
		}, []string{"result"}),
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Classified records written, by sink.",
		}, []string{"sink"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Sink load failures, by sink.",
		}, []string{"sink"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsRead,
		m.RecordsNormalized,
		m.RecordsDropped,
		m.RecordsUnclassified,
		m.DamagesMissing,
		m.PipelineRunning,
		m.RunDuration,
		m.LastRunTimestamp,
		m.ClassifierCache,
		m.RecordsLoaded,
		m.LoadErrors,
	}
}
