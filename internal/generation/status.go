package generation

import (
	"context"
	"fmt"
	"strings"

	"musicgen/internal/domain"
)

// GetStatus returns the read model of a job. It never mutates state.
func (e *Engine) GetStatus(ctx context.Context, jobID string) (*domain.JobView, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	job, err := e.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return ViewOf(job), nil
}

// DeleteJob removes a job owned by requesterID. Anonymous jobs cannot be
// deleted through this path.
func (e *Engine) DeleteJob(ctx context.Context, jobID, requesterID string) error {
	requesterID = strings.TrimSpace(requesterID)
	job, err := e.repo.GetByID(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return err
	}
	if requesterID == "" || job.RequesterID != requesterID {
		return fmt.Errorf("%w: job %s belongs to another requester", domain.ErrForbidden, job.ID)
	}
	if err := e.repo.Delete(ctx, job.ID); err != nil {
		return err
	}
	e.logger.Info().Str("job_id", job.ID).Str("requester_id", requesterID).Msg("generation: job deleted")
	return nil
}

// ViewOf projects a job onto its public read model. The result URL is only
// exposed for completed jobs.
func ViewOf(job *domain.Job) *domain.JobView {
	view := &domain.JobView{
		ID:             job.ID,
		RequesterID:    job.RequesterID,
		State:          job.State,
		ProviderTaskID: job.ProviderTaskID,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if job.State == domain.JobStateCompleted {
		view.ResultURL = job.ResultURL
		view.Durable = job.DurableStorageRef != ""
		view.Title = job.ResultTitle
		view.Lyrics = job.ResultLyrics
		view.Description = job.ResultDescription
		view.DurationSeconds = job.ResultDurationSeconds
		view.Source = string(job.ResultSource)
	}
	return view
}
