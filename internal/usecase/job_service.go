package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/domain/repository"
)

var (
	// ErrJobAlreadyCompleted is returned when attempting to process a job that has already completed.
	ErrJobAlreadyCompleted = errors.New("job processing has already completed")

	// ErrBundleNotReady is returned when requesting the bundle of a job that has not finished.
	ErrBundleNotReady = errors.New("job bundle is not ready")
)

// CreateJobInput contains the input parameters for creating a media job.
// Exactly one of SourceURL or UploadFileName must be set.
type CreateJobInput struct {
	SourceURL      string
	UploadFileName string
	Quality        model.Quality
	Interval       *model.Interval
	Kinds          model.KindSet
	Timelapse      *model.TimelapseSpec
}

// CreateJobOutput contains the result of creating a media job.
// UploadURL is only set for upload jobs; the client PUTs the source file
// there before triggering processing.
type CreateJobOutput struct {
	Job       *model.MediaJob
	UploadURL string
}

// JobService defines the interface for media job business logic operations.
type JobService interface {
	// CreateJob creates job metadata. For upload jobs it also returns a
	// presigned upload URL for the source file.
	CreateJob(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error)

	// TriggerProcess initiates the extraction pipeline for a job.
	// This operation is idempotent - calling it on an already processing job returns nil.
	TriggerProcess(ctx context.Context, jobID uuid.UUID) error

	// GetJob retrieves job information by ID.
	GetJob(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error)

	// GetBundleDownloadURL returns a presigned URL for the result bundle of
	// a READY job.
	GetBundleDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error)
}

// JobServiceConfig holds configuration for JobService.
type JobServiceConfig struct {
	UploadURLExpiry   time.Duration
	DownloadURLExpiry time.Duration
}

// DefaultJobServiceConfig returns the default configuration.
func DefaultJobServiceConfig() JobServiceConfig {
	return JobServiceConfig{
		UploadURLExpiry:   15 * time.Minute,
		DownloadURLExpiry: 1 * time.Hour,
	}
}

type jobService struct {
	repo    repository.JobRepository
	storage repository.ObjectStorage
	queue   repository.MessageQueue

	uploadURLExpiry   time.Duration
	downloadURLExpiry time.Duration
}

// NewJobService creates a new JobService instance.
func NewJobService(
	repo repository.JobRepository,
	storage repository.ObjectStorage,
	queue repository.MessageQueue,
	cfg JobServiceConfig,
) JobService {
	return &jobService{
		repo:              repo,
		storage:           storage,
		queue:             queue,
		uploadURLExpiry:   cfg.UploadURLExpiry,
		downloadURLExpiry: cfg.DownloadURLExpiry,
	}
}

// CreateJob creates job metadata and, for upload jobs, a presigned upload URL.
func (s *jobService) CreateJob(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error) {
	if input.SourceURL != "" {
		return s.createURLJob(ctx, input)
	}
	return s.createUploadJob(ctx, input)
}

func (s *jobService) createURLJob(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error) {
	job, err := model.NewURLJob(input.SourceURL, input.Quality, input.Interval, input.Kinds, input.Timelapse)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return &CreateJobOutput{Job: job}, nil
}

func (s *jobService) createUploadJob(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error) {
	if input.UploadFileName == "" {
		return nil, model.ErrMissingSource
	}

	// The key is derived before the job exists, so a placeholder job is
	// built first to obtain the ID the key embeds.
	job, err := model.NewUploadJob("pending", input.Quality, input.Interval, input.Kinds, input.Timelapse)
	if err != nil {
		return nil, err
	}
	job.SourceKey = s.generateSourceKey(job.ID)

	uploadURL, err := s.storage.GeneratePresignedUploadURL(ctx, job.SourceKey, s.uploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("generate presigned upload URL: %w", err)
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return &CreateJobOutput{
		Job:       job,
		UploadURL: uploadURL,
	}, nil
}

// TriggerProcess initiates async extraction for a job.
// Idempotency: returns nil if the job is already processing.
func (s *jobService) TriggerProcess(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == model.StatusProcessing {
		return nil
	}

	if job.Status == model.StatusReady || job.Status == model.StatusFailed {
		return ErrJobAlreadyCompleted
	}

	if err := job.TransitionTo(model.StatusProcessing); err != nil {
		return err
	}

	// Only the status changed; the narrower write avoids clobbering fields
	// the worker may already be filling in.
	if err := s.repo.UpdateStatus(ctx, job.ID, job.Status); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	task := repository.ExtractTask{
		JobID: job.ID,
	}

	if err := s.queue.PublishExtractTask(ctx, task); err != nil {
		return fmt.Errorf("publish extract task: %w", err)
	}

	return nil
}

// GetJob retrieves job information by ID.
func (s *jobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error) {
	return s.repo.GetByID(ctx, jobID)
}

// GetBundleDownloadURL returns a presigned URL for the result bundle.
// Only READY jobs have a bundle.
func (s *jobService) GetBundleDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}

	if !job.IsReady() || job.BundleKey == "" {
		return "", ErrBundleNotReady
	}

	url, err := s.storage.GeneratePresignedDownloadURL(ctx, job.BundleKey, s.downloadURLExpiry)
	if err != nil {
		return "", fmt.Errorf("generate presigned download URL: %w", err)
	}

	return url, nil
}

// generateSourceKey creates the storage key for uploaded source files.
// Format: uploads/{job_id}/source.mp4
func (s *jobService) generateSourceKey(jobID uuid.UUID) string {
	return path.Join("uploads", jobID.String(), "source.mp4")
}
