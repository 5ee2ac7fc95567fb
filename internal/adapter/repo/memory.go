package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"musicgen/internal/domain"
)

// MemoryJobRepository keeps jobs in process memory. It backs tests and the
// database-less development mode.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryJobRepository returns an empty repository. now defaults to time.Now.
func NewMemoryJobRepository(now func() time.Time) *MemoryJobRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job), now: now}
}

func (r *MemoryJobRepository) Insert(_ context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("repo: job is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("repo: job %s already exists", job.ID)
	}
	stored := job.Clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	r.jobs[job.ID] = stored
	return nil
}

func (r *MemoryJobRepository) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryJobRepository) UpdateState(_ context.Context, jobID string, expected domain.JobState, fields domain.JobUpdate) (*domain.Job, error) {
	if fields.State != nil && !domain.CanTransition(expected, *fields.State) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrStateConflict, expected, *fields.State)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.State != expected {
		return nil, fmt.Errorf("%w: job %s is %s, not %s", domain.ErrStateConflict, jobID, job.State, expected)
	}
	if job.ProviderTaskID != "" {
		fields.ProviderTaskID = nil
	}
	fields.Apply(job)
	job.UpdatedAt = r.now()
	return job.Clone(), nil
}

func (r *MemoryJobRepository) FindPendingByRequester(_ context.Context, requesterID string) ([]domain.Job, error) {
	return r.filter(func(j *domain.Job) bool {
		return j.State == domain.JobStatePending && j.RequesterID == requesterID
	}), nil
}

func (r *MemoryJobRepository) FindStalePending(_ context.Context, olderThan time.Time) ([]domain.Job, error) {
	return r.filter(func(j *domain.Job) bool {
		return j.State == domain.JobStatePending && j.CreatedAt.Before(olderThan)
	}), nil
}

func (r *MemoryJobRepository) Delete(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jobs, jobID)
	return nil
}

func (r *MemoryJobRepository) filter(keep func(*domain.Job) bool) []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, *job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)
