package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Repository persists transcription jobs. MemoryRepository serves a single
// process; SQLiteRepository keeps jobs across restarts.
type Repository interface {
	// Save inserts the job or replaces the stored copy with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound when no job has the given ID.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, oldest first.
	List(ctx context.Context) ([]*Job, error)

	// Delete returns ErrJobNotFound when no job has the given ID.
	Delete(ctx context.Context, id string) error
}
