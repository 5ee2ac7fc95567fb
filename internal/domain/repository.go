package domain

import (
	"context"
	"time"
)

// JobRepository persists generation jobs. It is the arbitration point for
// concurrent transitions: UpdateState only applies when the stored state still
// equals expected, and returns ErrStateConflict otherwise.
type JobRepository interface {
	Insert(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	UpdateState(ctx context.Context, jobID string, expected JobState, fields JobUpdate) (*Job, error)
	FindPendingByRequester(ctx context.Context, requesterID string) ([]Job, error)
	FindStalePending(ctx context.Context, olderThan time.Time) ([]Job, error)
	Delete(ctx context.Context, jobID string) error
}
