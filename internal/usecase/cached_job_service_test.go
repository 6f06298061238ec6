package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stephane1109/mediaextract/internal/domain/model"
)

// mockJobService is a mock implementation of JobService for testing.
type mockJobService struct {
	createJobFn            func(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error)
	triggerProcessFn       func(ctx context.Context, jobID uuid.UUID) error
	getJobFn               func(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error)
	getBundleDownloadURLFn func(ctx context.Context, jobID uuid.UUID) (string, error)
	getJobCount            atomic.Int32
}

func (m *mockJobService) CreateJob(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error) {
	if m.createJobFn != nil {
		return m.createJobFn(ctx, input)
	}
	return nil, nil
}

func (m *mockJobService) TriggerProcess(ctx context.Context, jobID uuid.UUID) error {
	if m.triggerProcessFn != nil {
		return m.triggerProcessFn(ctx, jobID)
	}
	return nil
}

func (m *mockJobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error) {
	m.getJobCount.Add(1)
	if m.getJobFn != nil {
		return m.getJobFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockJobService) GetBundleDownloadURL(ctx context.Context, jobID uuid.UUID) (string, error) {
	if m.getBundleDownloadURLFn != nil {
		return m.getBundleDownloadURLFn(ctx, jobID)
	}
	return "", nil
}

// mockJobCache is a mock implementation of cache.JobCache for testing.
type mockJobCache struct {
	mu       sync.RWMutex
	data     map[uuid.UUID]*model.MediaJob
	getFn    func(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error)
	setFn    func(ctx context.Context, job *model.MediaJob, ttl time.Duration) error
	deleteFn func(ctx context.Context, jobID uuid.UUID) error
}

func newMockJobCache() *mockJobCache {
	return &mockJobCache{
		data: make(map[uuid.UUID]*model.MediaJob),
	}
}

func (m *mockJobCache) Get(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error) {
	if m.getFn != nil {
		return m.getFn(ctx, jobID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[jobID], nil
}

func (m *mockJobCache) Set(ctx context.Context, job *model.MediaJob, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, job, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[job.ID] = job
	return nil
}

func (m *mockJobCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, jobID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, jobID)
	return nil
}

func TestCachedJobService_GetJob_CacheHit(t *testing.T) {
	job := pendingJob(t)
	job.Status = model.StatusProcessing

	mockSvc := &mockJobService{}
	mockCache := newMockJobCache()

	// Pre-populate cache
	mockCache.data[job.ID] = job

	svc := NewCachedJobService(mockSvc, mockCache, DefaultCachedJobServiceConfig())

	got, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}

	if got.ID != job.ID {
		t.Errorf("ID = %v, want %v", got.ID, job.ID)
	}

	// Verify delegate was NOT called (cache hit)
	if mockSvc.getJobCount.Load() != 0 {
		t.Errorf("delegate GetJob called %d times, want 0", mockSvc.getJobCount.Load())
	}
}

func TestCachedJobService_GetJob_CacheMiss(t *testing.T) {
	job := pendingJob(t)

	mockSvc := &mockJobService{
		getJobFn: func(ctx context.Context, id uuid.UUID) (*model.MediaJob, error) {
			return job, nil
		},
	}
	mockCache := newMockJobCache()

	svc := NewCachedJobService(mockSvc, mockCache, DefaultCachedJobServiceConfig())

	got, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}

	if got.ID != job.ID {
		t.Errorf("ID = %v, want %v", got.ID, job.ID)
	}

	// Verify delegate was called (cache miss)
	if mockSvc.getJobCount.Load() != 1 {
		t.Errorf("delegate GetJob called %d times, want 1", mockSvc.getJobCount.Load())
	}

	// Verify job was cached
	if mockCache.data[job.ID] == nil {
		t.Error("job was not cached after cache miss")
	}
}

func TestCachedJobService_TriggerProcess_InvalidatesCache(t *testing.T) {
	job := pendingJob(t)

	mockSvc := &mockJobService{
		triggerProcessFn: func(ctx context.Context, id uuid.UUID) error {
			return nil
		},
	}
	mockCache := newMockJobCache()
	mockCache.data[job.ID] = job

	svc := NewCachedJobService(mockSvc, mockCache, DefaultCachedJobServiceConfig())

	err := svc.TriggerProcess(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TriggerProcess failed: %v", err)
	}

	// Verify cache was invalidated
	if mockCache.data[job.ID] != nil {
		t.Error("cache was not invalidated after TriggerProcess")
	}
}

func TestCachedJobService_GetJob_Singleflight(t *testing.T) {
	job := pendingJob(t)
	job.Status = model.StatusProcessing

	// Add delay to simulate slow DB query
	mockSvc := &mockJobService{
		getJobFn: func(ctx context.Context, id uuid.UUID) (*model.MediaJob, error) {
			time.Sleep(50 * time.Millisecond)
			return job, nil
		},
	}
	mockCache := newMockJobCache()

	svc := NewCachedJobService(mockSvc, mockCache, DefaultCachedJobServiceConfig())

	// Launch multiple concurrent requests
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetJob(context.Background(), job.ID)
			if err != nil {
				t.Errorf("GetJob failed: %v", err)
			}
		}()
	}

	wg.Wait()

	// Singleflight should coalesce requests - delegate should be called only once
	callCount := mockSvc.getJobCount.Load()
	if callCount != 1 {
		t.Errorf("delegate GetJob called %d times, want 1 (singleflight should coalesce)", callCount)
	}
}

func TestCachedJobService_GetJob_CacheErrorFallsBackToDB(t *testing.T) {
	job := pendingJob(t)

	mockSvc := &mockJobService{
		getJobFn: func(ctx context.Context, id uuid.UUID) (*model.MediaJob, error) {
			return job, nil
		},
	}
	mockCache := &mockJobCache{
		getFn: func(ctx context.Context, jobID uuid.UUID) (*model.MediaJob, error) {
			return nil, errors.New("redis connection error")
		},
		setFn: func(ctx context.Context, job *model.MediaJob, ttl time.Duration) error {
			return errors.New("redis connection error")
		},
	}

	svc := NewCachedJobService(mockSvc, mockCache, DefaultCachedJobServiceConfig())

	got, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob should not fail on cache error: %v", err)
	}

	if got.ID != job.ID {
		t.Errorf("ID = %v, want %v", got.ID, job.ID)
	}
}

func TestCachedJobService_CreateJob_Delegates(t *testing.T) {
	job := pendingJob(t)
	output := &CreateJobOutput{Job: job}

	mockSvc := &mockJobService{
		createJobFn: func(ctx context.Context, input CreateJobInput) (*CreateJobOutput, error) {
			return output, nil
		},
	}
	mockCache := newMockJobCache()

	svc := NewCachedJobService(mockSvc, mockCache, DefaultCachedJobServiceConfig())

	got, err := svc.CreateJob(context.Background(), CreateJobInput{
		SourceURL: job.SourceURL,
		Quality:   job.Quality,
		Kinds:     job.Kinds,
	})

	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if got.Job.ID != job.ID {
		t.Errorf("Job ID = %v, want %v", got.Job.ID, job.ID)
	}
}

func TestCachedJobService_GetBundleDownloadURL_NeverCached(t *testing.T) {
	job := pendingJob(t)
	job.Status = model.StatusReady
	job.BundleKey = "bundles/" + job.ID.String() + "/resultats_abc_clip.zip"

	var calls atomic.Int32
	mockSvc := &mockJobService{
		getBundleDownloadURLFn: func(ctx context.Context, jobID uuid.UUID) (string, error) {
			calls.Add(1)
			return "http://minio:9000/media/bundle?signature=xyz", nil
		},
	}
	mockCache := newMockJobCache()
	mockCache.data[job.ID] = job

	svc := NewCachedJobService(mockSvc, mockCache, DefaultCachedJobServiceConfig())

	for i := 0; i < 2; i++ {
		url, err := svc.GetBundleDownloadURL(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetBundleDownloadURL failed: %v", err)
		}
		if url == "" {
			t.Error("expected a presigned URL")
		}
	}

	// Presigned URLs expire, so every call must reach the delegate.
	if calls.Load() != 2 {
		t.Errorf("delegate called %d times, want 2", calls.Load())
	}
}
