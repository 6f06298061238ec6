package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/infrastructure/cache"
	"github.com/stephane1109/mediaextract/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// CachedJobServiceConfig holds configuration for CachedJobService.
type CachedJobServiceConfig struct {
	// CacheTTL is the TTL for cached job metadata.
	CacheTTL time.Duration
}

// DefaultCachedJobServiceConfig returns the default configuration.
func DefaultCachedJobServiceConfig() CachedJobServiceConfig {
	return CachedJobServiceConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// cachedJobService wraps JobService with caching capabilities.
// It implements the decorator pattern to add caching without modifying the original service.
type cachedJobService struct {
	delegate JobService
	cache    cache.JobCache
	sfGroup  singleflight.Group

	cacheTTL time.Duration
}

// NewCachedJobService creates a new CachedJobService wrapping the provided JobService.
func NewCachedJobService(
	delegate JobService,
	jobCache cache.JobCache,
	cfg CachedJobServiceConfig,
) JobService {
	return &cachedJobService{
		delegate: delegate,
		cache:    jobCache,
		cacheTTL: cfg.CacheTTL,
	}
}

// CreateJob delegates to the underlying service.
// No caching for create operations - the job is immediately returned.
func (s *cachedJobService) CreateJob(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error) {
	return s.delegate.CreateJob(ctx, input)
}

// TriggerProcess invalidates the cache and delegates to the underlying service.
// Cache invalidation happens before processing to ensure stale data is not served
// during the transition to PROCESSING status.
func (s *cachedJobService) TriggerProcess(ctx context.Context, jobID uuid.UUID) error {
	// Invalidate cache before triggering process
	// This ensures the next GetJob call fetches fresh data
	if err := s.cache.Delete(ctx, jobID); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		// Log but don't fail - cache invalidation failure is non-critical
		slog.Warn("failed to invalidate cache on trigger process",
			"job_id", jobID,
			"error", err,
		)
	} else {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	}

	return s.delegate.TriggerProcess(ctx, jobID)
}

// GetJob retrieves job information with caching.
// Uses singleflight to prevent cache stampede on concurrent requests for the same job.
func (s *cachedJobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error) {
	// Use singleflight to coalesce concurrent requests
	key := jobID.String()
	result, err, shared := s.sfGroup.Do(key, func() (any, error) {
		return s.getJobWithCache(ctx, jobID)
	})

	// Record singleflight metrics
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	return result.(*model.MediaJob), nil
}

// GetBundleDownloadURL delegates to the underlying service.
// Presigned URLs expire and must never be served from cache.
func (s *cachedJobService) GetBundleDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	return s.delegate.GetBundleDownloadURL(ctx, jobID)
}

// getJobWithCache implements the cache-aside pattern.
func (s *cachedJobService) getJobWithCache(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error) {
	// Try cache first
	job, err := s.cache.Get(ctx, jobID)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		// Log cache error but continue to database
		slog.Warn("cache get failed, falling back to database",
			"job_id", jobID,
			"error", err,
		)
	}

	if job != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
		return job, nil // Cache hit
	}
	if err == nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
	}

	// Cache miss - fetch from database
	job, err = s.delegate.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	// Store in cache (async-safe: errors logged but not propagated)
	if err := s.cache.Set(ctx, job, s.cacheTTL); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		slog.Warn("failed to cache job",
			"job_id", jobID,
			"error", err,
		)
	} else {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	}

	return job, nil
}

// InvalidateCache removes a job from the cache.
// This is exposed for use by the worker when job status changes.
func (s *cachedJobService) InvalidateCache(ctx context.Context, jobID uuid.UUID) error {
	return s.cache.Delete(ctx, jobID)
}
