package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "traffic_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the congestion pipeline.
type Metrics struct {
	RunsTotal             *prometheus.CounterVec // labels: source={live,synthetic}
	FallbacksTotal        *prometheus.CounterVec // labels: reason={forced,disabled,error,empty}
	ObservationsIngested  prometheus.Counter
	ObservationsDiscarded prometheus.Counter
	ObservationsUnmatched prometheus.Counter
	SegmentsClassified    *prometheus.CounterVec // labels: level={low,medium,high,unknown}
	RunDuration           prometheus.Histogram
	PublishErrors         *prometheus.CounterVec // labels: sink
	PipelineRunning       prometheus.Gauge

	// Live feed metrics.
	FeedRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	FeedCache       *prometheus.CounterVec // labels: result={hit,miss}
	FeedAPIDuration prometheus.Histogram

	// Road network metrics.
	NetworkSegments  prometheus.Gauge
	NetworkRefreshes *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by observation source.",
		}, []string{"source"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Runs that fell back to synthetic observations, by reason.",
		}, []string{"reason"}),
		ObservationsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_ingested_total",
			Help:      "Total observations entering the matcher.",
		}),
		ObservationsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_discarded_total",
			Help:      "Observations dropped for an invalid location.",
		}),
		ObservationsUnmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_unmatched_total",
			Help:      "Observations with no road segment within the match distance.",
		}),
		SegmentsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_classified_total",
			Help:      "Classified segments by congestion level.",
		}, []string{"level"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-match-classify-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed publish attempts by sink.",
		}, []string{"sink"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Live feed requests by outcome.",
		}, []string{"outcome"}),
		FeedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_cache_total",
			Help:      "Live feed cache lookups by result.",
		}, []string{"result"}),
		FeedAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_api_duration_seconds",
			Help:      "Live feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		NetworkSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_segments",
			Help:      "Road segments in the published network snapshot.",
		}),
		NetworkRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_refresh_total",
			Help:      "Road network reloads by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.FallbacksTotal,
		m.ObservationsIngested,
		m.ObservationsDiscarded,
		m.ObservationsUnmatched,
		m.SegmentsClassified,
		m.RunDuration,
		m.PublishErrors,
		m.PipelineRunning,
		m.FeedRequests,
		m.FeedCache,
		m.FeedAPIDuration,
		m.NetworkSegments,
		m.NetworkRefreshes,
	}
}
