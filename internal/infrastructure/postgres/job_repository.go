package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/domain/repository"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepository implements repository.JobRepository using PostgreSQL.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository instance.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Create persists a new media job.
func (r *JobRepository) Create(ctx context.Context, job *model.MediaJob) error {
	const query = `
		INSERT INTO media_jobs (
			id, source_type, source_url, source_key, quality,
			interval_start, interval_end, kinds, timelapse_fps, timelapse_overlay,
			base_id, bundle_key, status, error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	start, end := intervalColumns(job.Interval)
	fps, overlay := timelapseColumns(job.Timelapse)

	_, err := r.db.Exec(ctx, query,
		job.ID,
		string(job.SourceType),
		nullString(job.SourceURL),
		nullString(job.SourceKey),
		string(job.Quality),
		start,
		end,
		nullString(strings.Join(job.Kinds.Names(), ",")),
		fps,
		overlay,
		nullString(job.BaseID),
		nullString(job.BundleKey),
		job.Status.String(),
		nullString(job.Error),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateJob
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its unique identifier.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MediaJob, error) {
	const query = `
		SELECT id, source_type, source_url, source_key, quality,
		       interval_start, interval_end, kinds, timelapse_fps, timelapse_overlay,
		       base_id, bundle_key, status, error, created_at, updated_at
		FROM media_jobs
		WHERE id = $1
	`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}

	return job, nil
}

// Update persists changes to an existing job.
func (r *JobRepository) Update(ctx context.Context, job *model.MediaJob) error {
	const query = `
		UPDATE media_jobs
		SET status = $2, base_id = $3, bundle_key = $4, error = $5, updated_at = $6
		WHERE id = $1
	`

	job.UpdatedAt = time.Now()

	tag, err := r.db.Exec(ctx, query,
		job.ID,
		job.Status.String(),
		nullString(job.BaseID),
		nullString(job.BundleKey),
		nullString(job.Error),
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}

	return nil
}

// UpdateStatus updates only the status field of a job.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	const query = `
		UPDATE media_jobs
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, status.String(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}

	return nil
}

// scanJob scans a single row into a MediaJob model.
func scanJob(row pgx.Row) (*model.MediaJob, error) {
	var (
		job        model.MediaJob
		sourceType string
		quality    string
		status     string
		sourceURL  *string
		sourceKey  *string
		start      *int
		end        *int
		kinds      *string
		fps        *int
		overlay    *bool
		baseID     *string
		bundleKey  *string
		jobErr     *string
	)

	err := row.Scan(
		&job.ID,
		&sourceType,
		&sourceURL,
		&sourceKey,
		&quality,
		&start,
		&end,
		&kinds,
		&fps,
		&overlay,
		&baseID,
		&bundleKey,
		&status,
		&jobErr,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.SourceType = model.SourceType(sourceType)
	job.Quality = model.Quality(quality)
	job.Status = model.Status(status)
	job.SourceURL = derefString(sourceURL)
	job.SourceKey = derefString(sourceKey)
	job.BaseID = derefString(baseID)
	job.BundleKey = derefString(bundleKey)
	job.Error = derefString(jobErr)

	if start != nil && end != nil {
		job.Interval = &model.Interval{Start: *start, End: *end}
	}
	if fps != nil {
		spec := model.TimelapseSpec{TargetFPS: *fps}
		if overlay != nil {
			spec.MotionOverlay = *overlay
		}
		job.Timelapse = &spec
	}
	if kinds != nil && *kinds != "" {
		set, err := model.ParseKindSet(strings.Split(*kinds, ","))
		if err != nil {
			return nil, fmt.Errorf("stored kinds are invalid: %w", err)
		}
		job.Kinds = set
	} else {
		job.Kinds = model.KindSet{}
	}

	return &job, nil
}

// intervalColumns splits an optional interval into nullable columns.
func intervalColumns(iv *model.Interval) (start, end *int) {
	if iv == nil {
		return nil, nil
	}
	return &iv.Start, &iv.End
}

// timelapseColumns splits an optional timelapse spec into nullable columns.
func timelapseColumns(tl *model.TimelapseSpec) (fps *int, overlay *bool) {
	if tl == nil {
		return nil, nil
	}
	return &tl.TargetFPS, &tl.MotionOverlay
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compile-time verification that JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)
