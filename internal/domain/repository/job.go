package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/stephane1109/mediaextract/internal/domain/model"
)

// JobRepository defines the interface for media job persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type JobRepository interface {
	// Create persists a new media job.
	// Returns error if the job already exists or persistence fails.
	Create(ctx context.Context, job *model.MediaJob) error

	// GetByID retrieves a job by its unique identifier.
	// Returns nil and ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.MediaJob, error)

	// Update persists changes to an existing job.
	// Returns ErrJobNotFound if the job does not exist.
	Update(ctx context.Context, job *model.MediaJob) error

	// UpdateStatus updates only the status field of a job.
	// Returns ErrJobNotFound if the job does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error
}
