// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediaextract"

var (
	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// PipelineStagesTotal tracks worker pipeline stage outcomes.
	// Labels:
	//   - stage: acquire, normalize, extract, timelapse, collect
	//   - status: success, error
	PipelineStagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stages_total",
			Help:      "Total number of pipeline stage executions",
		},
		[]string{"stage", "status"},
	)

	// PipelineStageDuration observes how long each pipeline stage takes.
	// Extraction and acquisition routinely run for minutes, hence the
	// wide bucket range.
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"stage"},
	)

	// FFmpegInvocationsTotal tracks external transcoder runs.
	// Labels:
	//   - status: success, error
	FFmpegInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ffmpeg_invocations_total",
			Help:      "Total number of ffmpeg invocations",
		},
		[]string{"status"},
	)

	// JobsTotal tracks terminal job outcomes.
	// Labels:
	//   - status: ready, failed
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of completed media jobs",
		},
		[]string{"status"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// Pipeline stage constants.
const (
	StageAcquire   = "acquire"
	StageNormalize = "normalize"
	StageExtract   = "extract"
	StageTimelapse = "timelapse"
	StageCollect   = "collect"
)

// Stage and invocation status constants.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Job outcome constants.
const (
	JobOutcomeReady  = "ready"
	JobOutcomeFailed = "failed"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
