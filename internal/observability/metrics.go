package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "training_dashboard"

var (
	ComplianceResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compliance",
		Name:      "results_total",
		Help:      "Compliance results computed, by interval evidence source.",
	}, []string{"source"})

	ComplianceScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "compliance",
		Name:      "score",
		Help:      "Distribution of final compliance scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	EvidenceFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compliance",
		Name:      "evidence_fetch_failures_total",
		Help:      "Lap or stream lookups that failed and were skipped.",
	}, []string{"kind"})

	MatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matcher",
		Name:      "assignments_total",
		Help:      "Workout assignments by outcome (manual, matched, unmatched).",
	}, []string{"outcome"})

	QueueProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "queue_items_total",
		Help:      "Activity queue items handled, by result.",
	}, []string{"result"})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed activity sync.",
	})
)

func init() {
	prometheus.MustRegister(
		ComplianceResults,
		ComplianceScores,
		EvidenceFetchFailures,
		MatchOutcomes,
		QueueProcessed,
		lastSyncGauge,
	)
}

// RecordCompliance counts one result. An empty source means no interval evidence was used.
func RecordCompliance(source string, score int) {
	if source == "" {
		source = "none"
	}
	ComplianceResults.WithLabelValues(source).Inc()
	ComplianceScores.Observe(float64(score))
}

func RecordSync(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}
