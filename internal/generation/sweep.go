package generation

import (
	"context"
	"errors"
	"fmt"

	"musicgen/internal/domain"
	"musicgen/internal/observability"
)

const staleMessage = "The request did not start in time. Please try again later."

// SweepStale fails every job that has stayed pending longer than the stale
// age and returns how many were reclaimed. Jobs that move on concurrently
// are skipped.
func (e *Engine) SweepStale(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.staleAge)
	stale, err := e.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("generation: find stale jobs: %w", err)
	}
	reclaimed := 0
	for _, job := range stale {
		updated, err := e.repo.UpdateState(ctx, job.ID, domain.JobStatePending, domain.JobUpdate{
			State:        domain.Ptr(domain.JobStateFailed),
			ErrorMessage: domain.Ptr(staleMessage),
		})
		if errors.Is(err, domain.ErrStateConflict) || errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return reclaimed, fmt.Errorf("generation: reclaim job %s: %w", job.ID, err)
		}
		reclaimed++
		observability.StaleJobsReclaimed.Inc()
		observability.ObserveTransition(string(updated.State), true, updated.CreatedAt)
		e.logger.Warn().
			Str("job_id", job.ID).
			Str("requester_id", job.RequesterID).
			Time("created_at", job.CreatedAt).
			Msg("generation: stale pending job reclaimed")
	}
	return reclaimed, nil
}
