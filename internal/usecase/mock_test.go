package usecase

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stephane1109/mediaextract/internal/acquire"
	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/domain/repository"
	"github.com/stephane1109/mediaextract/internal/timelapse"
)

// mockJobRepository provides a configurable mock for JobRepository.
type mockJobRepository struct {
	createFn       func(ctx context.Context, job *model.MediaJob) error
	getByIDFn      func(ctx context.Context, id uuid.UUID) (*model.MediaJob, error)
	updateFn       func(ctx context.Context, job *model.MediaJob) error
	updateStatusFn func(ctx context.Context, id uuid.UUID, status model.Status) error
}

func (m *mockJobRepository) Create(ctx context.Context, job *model.MediaJob) error {
	if m.createFn != nil {
		return m.createFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MediaJob, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockJobRepository) Update(ctx context.Context, job *model.MediaJob) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	generatePresignedUploadURLFn   func(ctx context.Context, key string, expiry time.Duration) (string, error)
	generatePresignedDownloadURLFn func(ctx context.Context, key string, expiry time.Duration) (string, error)
	uploadFn                       func(ctx context.Context, key string, reader io.Reader, contentType string) error
	downloadFn                     func(ctx context.Context, key string) (io.ReadCloser, error)
	deleteFn                       func(ctx context.Context, key string) error
	existsFn                       func(ctx context.Context, key string) (bool, error)
}

func (m *mockObjectStorage) GeneratePresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedUploadURLFn != nil {
		return m.generatePresignedUploadURLFn(ctx, key, expiry)
	}
	return "http://example.com/upload", nil
}

func (m *mockObjectStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedDownloadURLFn != nil {
		return m.generatePresignedDownloadURLFn(ctx, key, expiry)
	}
	return "http://example.com/download", nil
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, contentType)
	}
	return nil
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, key)
	}
	return nil, nil
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishExtractTaskFn  func(ctx context.Context, task repository.ExtractTask) error
	consumeExtractTasksFn func(ctx context.Context, handler func(task repository.ExtractTask) error) error
}

func (m *mockMessageQueue) PublishExtractTask(ctx context.Context, task repository.ExtractTask) error {
	if m.publishExtractTaskFn != nil {
		return m.publishExtractTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeExtractTasks(ctx context.Context, handler func(task repository.ExtractTask) error) error {
	if m.consumeExtractTasksFn != nil {
		return m.consumeExtractTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// Pipeline stage mocks for the worker service tests.

type mockAcquirer struct {
	acquireFn func(ctx context.Context, req acquire.Request) (*acquire.Result, error)
}

func (m *mockAcquirer) Acquire(ctx context.Context, req acquire.Request) (*acquire.Result, error) {
	if m.acquireFn != nil {
		return m.acquireFn(ctx, req)
	}
	return &acquire.Result{SourcePath: "/tmp/src.mp4", BaseID: "abc_clip"}, nil
}

type mockNormalizer struct {
	normalizeFn func(ctx context.Context, sourcePath, baseID string, quality model.Quality, interval *model.Interval) (string, error)
}

func (m *mockNormalizer) Normalize(ctx context.Context, sourcePath, baseID string, quality model.Quality, interval *model.Interval) (string, error) {
	if m.normalizeFn != nil {
		return m.normalizeFn(ctx, sourcePath, baseID, quality, interval)
	}
	return "/tmp/abc_clip.mp4", nil
}

type mockExtractor struct {
	extractFn func(ctx context.Context, videoPath string, interval *model.Interval, kinds model.KindSet, baseID string) error
}

func (m *mockExtractor) Extract(ctx context.Context, videoPath string, interval *model.Interval, kinds model.KindSet, baseID string) error {
	if m.extractFn != nil {
		return m.extractFn(ctx, videoPath, interval, kinds, baseID)
	}
	return nil
}

type mockTimelapseEngine struct {
	generateFn func(ctx context.Context, videoPath, baseID, sourceID string, spec model.TimelapseSpec, interval *model.Interval) (*timelapse.Result, error)
}

func (m *mockTimelapseEngine) Generate(ctx context.Context, videoPath, baseID, sourceID string, spec model.TimelapseSpec, interval *model.Interval) (*timelapse.Result, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, videoPath, baseID, sourceID, spec, interval)
	}
	return &timelapse.Result{VideoPath: "/tmp/abc_clip_timelapse_12fps.mp4", FrameCount: 10, Reencoded: true}, nil
}

type mockCollector struct {
	collectFn func(ctx context.Context, jobID, baseID string) (string, error)
}

func (m *mockCollector) Collect(ctx context.Context, jobID, baseID string) (string, error) {
	if m.collectFn != nil {
		return m.collectFn(ctx, jobID, baseID)
	}
	return "bundles/job/resultats_abc_clip.zip", nil
}
