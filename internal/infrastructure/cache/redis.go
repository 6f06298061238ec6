package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stephane1109/mediaextract/internal/domain/model"
)

const (
	// jobCacheKeyPrefix is the prefix for job cache keys in Redis.
	jobCacheKeyPrefix = "job:"
)

// jobJSON is the JSON representation of a MediaJob for caching.
// Using explicit struct avoids coupling to domain model's JSON tags.
type jobJSON struct {
	ID            string   `json:"id"`
	SourceType    string   `json:"source_type"`
	SourceURL     string   `json:"source_url"`
	SourceKey     string   `json:"source_key"`
	Quality       string   `json:"quality"`
	IntervalStart *int     `json:"interval_start,omitempty"`
	IntervalEnd   *int     `json:"interval_end,omitempty"`
	Kinds         []string `json:"kinds"`
	TimelapseFPS  *int     `json:"timelapse_fps,omitempty"`
	MotionOverlay bool     `json:"motion_overlay,omitempty"`
	BaseID        string   `json:"base_id"`
	BundleKey     string   `json:"bundle_key"`
	Status        string   `json:"status"`
	Error         string   `json:"error"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// RedisJobCache implements JobCache using Redis as the backing store.
type RedisJobCache struct {
	client *redis.Client
}

// NewRedisJobCache creates a new Redis-backed job cache.
func NewRedisJobCache(client *redis.Client) *RedisJobCache {
	return &RedisJobCache{
		client: client,
	}
}

// Get retrieves a job from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisJobCache) Get(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error) {
	key := c.buildKey(jobID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	job, err := c.deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize job: %w", err)
	}

	return job, nil
}

// Set stores a job in Redis cache with the specified TTL.
func (c *RedisJobCache) Set(ctx context.Context, job *model.MediaJob, ttl time.Duration) error {
	key := c.buildKey(job.ID)

	data, err := c.serialize(job)
	if err != nil {
		return fmt.Errorf("serialize job: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a job from Redis cache.
func (c *RedisJobCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	key := c.buildKey(jobID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// buildKey constructs the Redis key for a job.
func (c *RedisJobCache) buildKey(jobID uuid.UUID) string {
	return jobCacheKeyPrefix + jobID.String()
}

// serialize converts a MediaJob to JSON bytes.
func (c *RedisJobCache) serialize(job *model.MediaJob) ([]byte, error) {
	v := jobJSON{
		ID:         job.ID.String(),
		SourceType: string(job.SourceType),
		SourceURL:  job.SourceURL,
		SourceKey:  job.SourceKey,
		Quality:    string(job.Quality),
		Kinds:      job.Kinds.Names(),
		BaseID:     job.BaseID,
		BundleKey:  job.BundleKey,
		Status:     string(job.Status),
		Error:      job.Error,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if job.Interval != nil {
		v.IntervalStart = &job.Interval.Start
		v.IntervalEnd = &job.Interval.End
	}
	if job.Timelapse != nil {
		v.TimelapseFPS = &job.Timelapse.TargetFPS
		v.MotionOverlay = job.Timelapse.MotionOverlay
	}
	return json.Marshal(v)
}

// deserialize converts JSON bytes to a MediaJob.
func (c *RedisJobCache) deserialize(data []byte) (*model.MediaJob, error) {
	var v jobJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	kinds, err := model.ParseKindSet(v.Kinds)
	if err != nil {
		return nil, fmt.Errorf("parse kinds: %w", err)
	}

	job := &model.MediaJob{
		ID:         id,
		SourceType: model.SourceType(v.SourceType),
		SourceURL:  v.SourceURL,
		SourceKey:  v.SourceKey,
		Quality:    model.Quality(v.Quality),
		Kinds:      kinds,
		BaseID:     v.BaseID,
		BundleKey:  v.BundleKey,
		Status:     model.Status(v.Status),
		Error:      v.Error,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if v.IntervalStart != nil && v.IntervalEnd != nil {
		job.Interval = &model.Interval{Start: *v.IntervalStart, End: *v.IntervalEnd}
	}
	if v.TimelapseFPS != nil {
		job.Timelapse = &model.TimelapseSpec{TargetFPS: *v.TimelapseFPS, MotionOverlay: v.MotionOverlay}
	}

	return job, nil
}
