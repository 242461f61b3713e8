// Package metrics exposes Prometheus collectors for the telemetry pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion gate
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_records_total",
			Help: "Telemetry records processed by the gate, by kind and status",
		},
		[]string{"kind", "status"},
	)

	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_rejections_total",
			Help: "Rejected batch items by reason code",
		},
		[]string{"reason"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_rate_limit_hits_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		},
		[]string{"tenant"},
	)

	// Quality engine
	QualityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devpulse_quality_overall_score",
			Help:    "Distribution of overall quality scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_anomalies_total",
			Help: "Detected anomalies by type and severity",
		},
		[]string{"type", "severity"},
	)

	// Aggregator
	BucketsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_aggregator_buckets_active",
			Help: "Open aggregation buckets currently held in memory",
		},
	)

	BucketsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devpulse_aggregator_buckets_evicted_total",
			Help: "Buckets force-sealed early under memory pressure",
		},
	)

	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_aggregator_flushes_total",
			Help: "Bucket flush attempts by outcome",
		},
		[]string{"outcome"},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devpulse_aggregator_flush_duration_seconds",
			Help:    "Duration of durable rollup writes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Dead-letter store
	DeadLetterDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_deadletter_depth",
			Help: "Entries currently held in the dead-letter store",
		},
	)

	DeadLetterDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devpulse_deadletter_dropped_total",
			Help: "Entries evicted from the dead-letter store under capacity pressure",
		},
	)

	// Log publication
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_publish_errors_total",
			Help: "Failed stream publish attempts by stream",
		},
		[]string{"stream"},
	)
)

// FlushOutcome label values.
const (
	OutcomeFlushed      = "flushed"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
)
