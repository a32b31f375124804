package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion and identity pipeline.
type Metrics struct {
	PollsTotal       *prometheus.CounterVec // labels: outcome={success,error,skipped}
	PollDuration     prometheus.Histogram
	PipelineRunning  prometheus.Gauge
	PointsTracked    prometheus.Gauge
	PointsDropped    prometheus.Counter
	IdentitiesMinted prometheus.Counter
	IdentityMatches  prometheus.Counter

	// Fetcher metrics.
	BucketAttempts *prometheus.CounterVec // labels: outcome={success,failure}
	SnapshotSource *prometheus.CounterVec // labels: source={upstream,cache}

	// Publisher metrics.
	SnapshotsPublished prometheus.Counter
	PublishErrors      prometheus.Counter

	// Context lookup metrics.
	ContextLookups *prometheus.CounterVec // labels: outcome={success,error}
	ContextCache   *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PollsTotal,
		m.PollDuration,
		m.PipelineRunning,
		m.PointsTracked,
		m.PointsDropped,
		m.IdentitiesMinted,
		m.IdentityMatches,
		m.BucketAttempts,
		m.SnapshotSource,
		m.SnapshotsPublished,
		m.PublishErrors,
		m.ContextLookups,
		m.ContextCache,
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
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "polls_total",
			Help:      "Poll cycles by outcome (skipped = overlap guard).",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "constellation",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-track cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "constellation",
			Name:      "pipeline_running",
			Help:      "1 when the polling loop is active, 0 when shut down.",
		}),
		PointsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "constellation",
			Name:      "points_tracked",
			Help:      "Points in the most recent successful poll.",
		}),
		PointsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "points_dropped_total",
			Help:      "Malformed points dropped during normalization.",
		}),
		IdentitiesMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "identities_minted_total",
			Help:      "Fresh identifiers assigned to unmatched points.",
		}),
		IdentityMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "identity_matches_total",
			Help:      "Points matched to a previous poll's identifier.",
		}),
		BucketAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "bucket_attempts_total",
			Help:      "Upstream hour-bucket fetch attempts by outcome.",
		}, []string{"outcome"}),
		SnapshotSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "snapshot_source_total",
			Help:      "Snapshots served by source (upstream or cache fallback).",
		}, []string{"source"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "snapshots_published_total",
			Help:      "Tracked snapshots published to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "publish_errors_total",
			Help:      "Failed snapshot publish attempts.",
		}),
		ContextLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "context_lookups_total",
			Help:      "Local context lookups by outcome.",
		}, []string{"outcome"}),
		ContextCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "constellation",
			Name:      "context_cache_total",
			Help:      "Local context cache lookups by result.",
		}, []string{"result"}),
	}
}
