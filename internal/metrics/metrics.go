package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task routing metrics
var (
	TasksConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_pipeline_tasks_consumed_total",
			Help: "Total number of task messages consumed, by type",
		},
		[]string{"type"},
	)

	TasksCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_pipeline_tasks_committed_total",
			Help: "Total number of task offsets committed, by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: ok, skipped, failed
	)

	TasksDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_pipeline_tasks_dropped_total",
			Help: "Total number of malformed task messages dropped",
		},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_pipeline_task_duration_seconds",
			Help:    "Task handling duration in seconds, by type",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"type"},
	)
)

// Chunk processing metrics
var (
	ChunksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_pipeline_chunks_processed_total",
			Help: "Total number of chunks transcoded successfully, by resolution",
		},
		[]string{"resolution"},
	)

	ChunkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_pipeline_chunk_failures_total",
			Help: "Total number of chunk transcodes that failed, by resolution",
		},
		[]string{"resolution"},
	)

	ChunkCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_pipeline_chunk_cancellations_total",
			Help: "Total number of chunk transcodes aborted by cancellation",
		},
	)

	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_pipeline_encode_duration_seconds",
			Help:    "ffmpeg subprocess duration in seconds, by operation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"operation"}, // split, transcode
	)
)

// Pipeline lifecycle metrics
var (
	VideosSplitTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_pipeline_videos_split_total",
			Help: "Total number of source videos split into chunks",
		},
	)

	ResolutionsMergedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_pipeline_resolutions_merged_total",
			Help: "Total number of resolution playlists assembled",
		},
		[]string{"resolution"},
	)

	VideosFinalizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_pipeline_videos_finalized_total",
			Help: "Total number of master playlist finalizations",
		},
	)

	CancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_pipeline_cancellations_total",
			Help: "Total number of cancellation requests accepted",
		},
	)
)

// Consumer pool metrics
var (
	ActiveConsumers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_pipeline_active_consumers",
			Help: "Number of live broker consumers, by pool",
		},
		[]string{"pool"},
	)

	ConsumerLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_pipeline_consumer_lag",
			Help: "Estimated consumer group lag in messages, by topic",
		},
		[]string{"topic"},
	)

	ConsumerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_pipeline_consumer_errors_total",
			Help: "Total number of consumer handler errors, by pool",
		},
		[]string{"pool"},
	)
)

// Dedup metrics
var (
	DedupInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_pipeline_dedup_in_flight",
			Help: "Number of uploads currently tracked by the dedup registry",
		},
	)

	DedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_pipeline_dedup_hits_total",
			Help: "Total number of duplicate uploads suppressed",
		},
	)
)
