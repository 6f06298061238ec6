package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stephane1109/mediaextract/internal/acquire"
	"github.com/stephane1109/mediaextract/internal/collect"
	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/domain/repository"
	"github.com/stephane1109/mediaextract/internal/extract"
	"github.com/stephane1109/mediaextract/internal/infrastructure/metrics"
	"github.com/stephane1109/mediaextract/internal/naming"
	"github.com/stephane1109/mediaextract/internal/normalize"
	"github.com/stephane1109/mediaextract/internal/timelapse"
	"github.com/stephane1109/mediaextract/internal/transcoder"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts before marking a job as failed.
	DefaultMaxRetries = 3
)

// ExtractServiceConfig holds configuration for ExtractService.
type ExtractServiceConfig struct {
	// TempDir is the base directory for per-job work directories.
	TempDir string
	// MaxRetries is the maximum number of retry attempts before marking the job as failed.
	MaxRetries int
	// CookieFile is an optional browser-exported cookies.txt passed to the
	// download tool for age or region restricted sources.
	CookieFile string
}

// DefaultExtractServiceConfig returns the default configuration.
func DefaultExtractServiceConfig() ExtractServiceConfig {
	return ExtractServiceConfig{
		TempDir:    os.TempDir(),
		MaxRetries: DefaultMaxRetries,
	}
}

// ExtractService defines the interface for worker-side pipeline processing.
type ExtractService interface {
	// ProcessTask handles an extraction task from the message queue.
	// Returns nil on success or permanent failure (max retries exceeded).
	// Returns error for transient failures that should trigger a retry.
	ProcessTask(ctx context.Context, task repository.ExtractTask) error
}

// The pipeline stages are bound to a per-job work directory, so the service
// holds constructors rather than instances.
type sourceAcquirer interface {
	Acquire(ctx context.Context, req acquire.Request) (*acquire.Result, error)
}

type mediaNormalizer interface {
	Normalize(ctx context.Context, sourcePath, baseID string, quality model.Quality, interval *model.Interval) (string, error)
}

type artifactExtractor interface {
	Extract(ctx context.Context, videoPath string, interval *model.Interval, kinds model.KindSet, baseID string) error
}

type timelapseGenerator interface {
	Generate(ctx context.Context, videoPath, baseID, sourceID string, spec model.TimelapseSpec, interval *model.Interval) (*timelapse.Result, error)
}

type bundleCollector interface {
	Collect(ctx context.Context, jobID, baseID string) (string, error)
}

type extractService struct {
	repo    repository.JobRepository
	storage repository.ObjectStorage

	newAcquirer   func(workDir string) sourceAcquirer
	newNormalizer func(workDir string) mediaNormalizer
	newExtractor  func(workDir string) artifactExtractor
	newTimelapse  func(workDir string) timelapseGenerator
	newCollector  func(workDir string) bundleCollector

	tempDir    string
	maxRetries int
	cookieFile string
}

// NewExtractService creates a new ExtractService instance. The runner and
// download tool are shared; every task gets stage instances bound to its own
// work directory.
func NewExtractService(
	repo repository.JobRepository,
	storage repository.ObjectStorage,
	runner transcoder.Runner,
	tool acquire.DownloadTool,
	cfg ExtractServiceConfig,
) ExtractService {
	return &extractService{
		repo:    repo,
		storage: storage,
		newAcquirer: func(workDir string) sourceAcquirer {
			return acquire.NewAcquirer(tool, workDir)
		},
		newNormalizer: func(workDir string) mediaNormalizer {
			return normalize.NewNormalizer(runner, workDir)
		},
		newExtractor: func(workDir string) artifactExtractor {
			return extract.NewExtractor(runner, workDir)
		},
		newTimelapse: func(workDir string) timelapseGenerator {
			return timelapse.NewEngine(runner, workDir)
		},
		newCollector: func(workDir string) bundleCollector {
			return collect.NewCollector(storage, workDir)
		},
		tempDir:    cfg.TempDir,
		maxRetries: cfg.MaxRetries,
		cookieFile: cfg.CookieFile,
	}
}

// ProcessTask handles an extraction task.
// It obtains the source video, normalizes it, produces the requested
// artifacts, bundles them, and updates the job status in the database.
func (s *extractService) ProcessTask(ctx context.Context, task repository.ExtractTask) error {
	// Check if max retries exceeded - mark as failed and return nil (ack the message)
	if task.RetryCount >= s.maxRetries {
		if err := s.markJobFailed(ctx, task.JobID, "processing retries exhausted"); err != nil {
			slog.Error("failed to mark job as failed",
				"job_id", task.JobID,
				"retry_count", task.RetryCount,
				"error", err,
			)
		}
		return nil
	}

	// The task carries only the job ID; the job row is authoritative.
	job, err := s.repo.GetByID(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			slog.Warn("dropping task for unknown job", "job_id", task.JobID)
			return nil
		}
		return fmt.Errorf("get job: %w", err)
	}

	// A stale redelivery after completion must not rerun the pipeline.
	if job.Status != model.StatusProcessing {
		slog.Info("skipping task for job not in processing state",
			"job_id", job.ID,
			"status", job.Status,
		)
		return nil
	}

	workDir, err := s.createWorkDir(job.ID)
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer s.cleanup(workDir)

	if err := s.runPipeline(ctx, job, workDir); err != nil {
		return err
	}

	return nil
}

// runPipeline executes the sequential stages for one job inside workDir.
// Stage failures are surfaced as errors so the queue retry loop handles
// transient conditions; the final retry marks the job FAILED.
func (s *extractService) runPipeline(ctx context.Context, job *model.MediaJob, workDir string) error {
	sourcePath, baseID, sourceID, err := s.obtainSource(ctx, job, workDir)
	if err != nil {
		return fmt.Errorf("acquire source: %w", err)
	}

	// Persist the artifact prefix early so failed jobs still show what the
	// source resolved to.
	job.SetBaseID(baseID)
	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("record base id: %w", err)
	}

	normalized, err := s.runNormalize(ctx, workDir, sourcePath, baseID, job)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	if !job.Kinds.IsEmpty() {
		if err := s.runExtract(ctx, workDir, normalized, baseID, job); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	}

	if job.Timelapse != nil {
		if err := s.runTimelapse(ctx, workDir, normalized, baseID, sourceID, job); err != nil {
			return fmt.Errorf("timelapse: %w", err)
		}
	}

	bundleKey, err := s.runCollect(ctx, workDir, job.ID.String(), baseID)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	if err := s.markJobReady(ctx, job.ID, baseID, bundleKey); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	return nil
}

// obtainSource resolves the local source file for the job. URL jobs run the
// download fallback loop; upload jobs fetch the client-uploaded object.
// Returns the local path, the artifact BaseID and the identity the timelapse
// job key derives from.
func (s *extractService) obtainSource(ctx context.Context, job *model.MediaJob, workDir string) (string, string, string, error) {
	if job.SourceType == model.SourceURL {
		done := stageTimer(metrics.StageAcquire)
		result, err := s.newAcquirer(workDir).Acquire(ctx, acquire.Request{
			URL:        job.SourceURL,
			CookieFile: s.cookieFile,
			Interval:   job.Interval,
		})
		done(err)
		if err != nil {
			return "", "", "", err
		}
		return result.SourcePath, result.BaseID, result.Meta.ID, nil
	}

	done := stageTimer(metrics.StageAcquire)
	localPath, err := s.downloadSource(ctx, job.SourceKey, workDir)
	done(err)
	if err != nil {
		return "", "", "", err
	}

	stem := strings.TrimSuffix(filepath.Base(job.SourceKey), filepath.Ext(job.SourceKey))
	baseID := naming.ShortID(job.ID.String(), stem)
	return localPath, baseID, job.ID.String(), nil
}

func (s *extractService) runNormalize(ctx context.Context, workDir, sourcePath, baseID string, job *model.MediaJob) (string, error) {
	done := stageTimer(metrics.StageNormalize)
	normalized, err := s.newNormalizer(workDir).Normalize(ctx, sourcePath, baseID, job.Quality, job.Interval)
	done(err)
	return normalized, err
}

func (s *extractService) runExtract(ctx context.Context, workDir, videoPath, baseID string, job *model.MediaJob) error {
	done := stageTimer(metrics.StageExtract)
	err := s.newExtractor(workDir).Extract(ctx, videoPath, job.Interval, job.Kinds, baseID)
	done(err)
	return err
}

func (s *extractService) runTimelapse(ctx context.Context, workDir, videoPath, baseID, sourceID string, job *model.MediaJob) error {
	done := stageTimer(metrics.StageTimelapse)
	result, err := s.newTimelapse(workDir).Generate(ctx, videoPath, baseID, sourceID, *job.Timelapse, job.Interval)
	done(err)
	if err != nil {
		return err
	}
	if !result.Reencoded {
		slog.Warn("timelapse delivered as raw assembly",
			"job_id", job.ID,
			"video_path", result.VideoPath,
		)
	}
	return nil
}

func (s *extractService) runCollect(ctx context.Context, workDir, jobID, baseID string) (string, error) {
	done := stageTimer(metrics.StageCollect)
	key, err := s.newCollector(workDir).Collect(ctx, jobID, baseID)
	done(err)
	return key, err
}

// createWorkDir creates a temporary directory for processing a specific job.
func (s *extractService) createWorkDir(jobID uuid.UUID) (string, error) {
	workDir := filepath.Join(s.tempDir, "mediaextract", jobID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	return workDir, nil
}

// cleanup removes the temporary working directory.
func (s *extractService) cleanup(workDir string) {
	_ = os.RemoveAll(workDir)
}

// downloadSource fetches the client-uploaded object to a local file.
func (s *extractService) downloadSource(ctx context.Context, key, workDir string) (string, error) {
	reader, err := s.storage.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("storage download: %w", err)
	}
	defer func() { _ = reader.Close() }()

	filename := filepath.Base(key)
	if filename == "." || filename == "/" {
		filename = "source.mp4"
	}

	localPath := filepath.Join(workDir, filename)
	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local file: %w", err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("copy to local file: %w", err)
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close local file: %w", err)
	}

	return localPath, nil
}

// markJobReady updates the job status to READY with the bundle location.
func (s *extractService) markJobReady(ctx context.Context, jobID uuid.UUID, baseID, bundleKey string) error {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	// Only transition if still in PROCESSING state
	if job.Status != model.StatusProcessing {
		return nil
	}

	job.SetBaseID(baseID)
	job.SetBundleKey(bundleKey)
	if err := job.TransitionTo(model.StatusReady); err != nil {
		return fmt.Errorf("transition to ready: %w", err)
	}

	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	metrics.JobsTotal.WithLabelValues(metrics.JobOutcomeReady).Inc()
	return nil
}

// markJobFailed updates the job status to FAILED with a user-facing message.
func (s *extractService) markJobFailed(ctx context.Context, jobID uuid.UUID, msg string) error {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	// Only transition if in PROCESSING state
	if job.Status != model.StatusProcessing {
		return nil
	}

	job.SetError(msg)
	if err := job.TransitionTo(model.StatusFailed); err != nil {
		return fmt.Errorf("transition to failed: %w", err)
	}

	if err := s.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	metrics.JobsTotal.WithLabelValues(metrics.JobOutcomeFailed).Inc()
	return nil
}

// stageTimer records the outcome counter and duration for one pipeline stage.
func stageTimer(stage string) func(err error) {
	start := time.Now()
	return func(err error) {
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
		}
		metrics.PipelineStagesTotal.WithLabelValues(stage, status).Inc()
		metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
