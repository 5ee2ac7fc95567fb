package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"musicgen/internal/domain"
	"musicgen/internal/infra"
	"musicgen/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Insert stores a new job record.
func (r *JobRepositoryPG) Insert(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("repo: job is nil")
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertSongJob,
		job.ID,
		job.RequesterID,
		job.PromptText,
		job.StyleTag,
		job.Title,
		job.Lyrics,
		job.WantsInstrumental,
		job.WantsGeneratedLyrics,
		string(job.VoiceGender),
		job.TargetDurationSeconds,
		job.Locale,
		string(job.State),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectSongJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: get job %s: %w", jobID, err)
	}
	return job, nil
}

// UpdateState applies fields only while the stored state equals expected.
func (r *JobRepositoryPG) UpdateState(ctx context.Context, jobID string, expected domain.JobState, fields domain.JobUpdate) (*domain.Job, error) {
	if fields.State != nil && !domain.CanTransition(expected, *fields.State) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrStateConflict, expected, *fields.State)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateSongJobState,
		jobID,
		string(expected),
		enumArg(fields.State),
		fields.ProviderTaskID,
		fields.ResultURL,
		fields.DurableStorageRef,
		fields.ResultLyrics,
		fields.ResultTitle,
		fields.ResultDescription,
		fields.ResultDurationSeconds,
		enumArg(fields.ResultSource),
		fields.ErrorMessage,
	)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("repo: update job %s: %w", jobID, err)
	}
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QSongJobExists, jobID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("repo: update job %s: %w", jobID, err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, fmt.Errorf("%w: job %s is no longer %s", domain.ErrStateConflict, jobID, expected)
}

// FindPendingByRequester lists the requester's jobs still waiting for submission.
func (r *JobRepositoryPG) FindPendingByRequester(ctx context.Context, requesterID string) ([]domain.Job, error) {
	return r.list(ctx, sqlinline.QSelectPendingSongJobsByRequester, requesterID)
}

// FindStalePending lists pending jobs created before olderThan.
func (r *JobRepositoryPG) FindStalePending(ctx context.Context, olderThan time.Time) ([]domain.Job, error) {
	return r.list(ctx, sqlinline.QSelectStalePendingSongJobs, olderThan)
}

// Delete removes a job record.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteSongJob, jobID)
	if err != nil {
		return fmt.Errorf("repo: delete job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("repo: scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job          domain.Job
		voiceGender  string
		state        string
		resultSource string
	)
	if err := row.Scan(
		&job.ID,
		&job.RequesterID,
		&job.PromptText,
		&job.StyleTag,
		&job.Title,
		&job.Lyrics,
		&job.WantsInstrumental,
		&job.WantsGeneratedLyrics,
		&voiceGender,
		&job.TargetDurationSeconds,
		&job.Locale,
		&state,
		&job.ProviderTaskID,
		&job.ResultURL,
		&job.DurableStorageRef,
		&job.ResultLyrics,
		&job.ResultTitle,
		&job.ResultDescription,
		&job.ResultDurationSeconds,
		&resultSource,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.VoiceGender = domain.VoiceGender(voiceGender)
	job.State = domain.JobState(state)
	job.ResultSource = domain.ResultSource(resultSource)
	return &job, nil
}

func enumArg[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
