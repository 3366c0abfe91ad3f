// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection metrics
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentry_detections_total",
			Help: "Total number of detections by outcome",
		},
		[]string{"status"}, // anomalous, normal, no_comparable_data, embed_error, search_error
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logsentry_detection_duration_seconds",
			Help:    "Detection latency in seconds, embedding included",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	AnomalyScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logsentry_anomaly_score",
			Help:    "Distribution of anomaly scores",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21),
		},
	)

	// Calibration metrics
	CalibrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentry_calibrations_total",
			Help: "Total number of calibration runs by outcome",
		},
		[]string{"status"}, // success, unavailable
	)

	CalibrationSamples = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logsentry_calibration_samples",
			Help: "Sample counts of the last calibration run",
		},
		[]string{"kind"}, // sampled, scored, skipped
	)

	Threshold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logsentry_threshold",
			Help: "Active anomaly threshold",
		},
		[]string{"source"},
	)

	// Embedding metrics
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsentry_embedding_requests_total",
			Help: "Total number of embedding provider requests",
		},
		[]string{"provider", "status"},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logsentry_embedding_cache_hits_total",
			Help: "Embedding cache hits",
		},
	)

	// Baseline and rule metrics
	BaselineEntriesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logsentry_baseline_entries_ingested_total",
			Help: "Baseline entries added or replaced",
		},
	)

	RuleHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logsentry_rule_hits_total",
			Help: "IOC substring matches found by the rule layer",
		},
	)
)

// SetThreshold records the active threshold under its source label, clearing the other sources.
func SetThreshold(value float64, source string) {
	Threshold.Reset()
	Threshold.WithLabelValues(source).Set(value)
}
