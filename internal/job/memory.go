package job

import (
	"context"
	"slices"
	"strings"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps transcription jobs in a map for the lifetime of
// the process. Stored jobs are clones, so callers never share state with
// the repository. Set JOB_DB_PATH to keep jobs across restarts.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*Job)}
}

// Save stores a copy of job, replacing any earlier copy with the same ID.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()

	r.mu.Lock()
	r.jobs[snapshot.ID] = snapshot
	r.mu.Unlock()
	return nil
}

// FindByID returns a copy of the stored job.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	stored, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return stored.Clone(), nil
}

// List returns copies of all jobs, oldest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, stored := range r.jobs {
		jobs = append(jobs, stored.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(jobs, byCreation)
	return jobs, nil
}

// Delete drops the job with the given ID.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}

// byCreation orders jobs by creation time, then ID, matching the
// SQLite repository's ORDER BY.
func byCreation(a, b *Job) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
