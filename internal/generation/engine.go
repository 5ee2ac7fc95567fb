package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"musicgen/internal/domain"
	"musicgen/internal/infra"
	"musicgen/internal/observability"
	"musicgen/internal/providers/lyrics"
	"musicgen/internal/providers/music"
)

// MusicProvider is the submit and poll side of the music provider.
type MusicProvider interface {
	Submit(ctx context.Context, req music.SubmitRequest) (string, error)
	WaitForAudio(ctx context.Context, taskID string, submittedAt time.Time) (music.Track, error)
}

// Options configures an Engine.
type Options struct {
	Repo     domain.JobRepository
	Music    MusicProvider
	Writer   lyrics.Writer
	Migrator *Migrator
	Logger   *infra.Logger

	// PlaceholderAudioURL is the audio served by timeout fallbacks. Empty
	// disables the fallback path.
	PlaceholderAudioURL string
	StalePendingAge     time.Duration

	Now   func() time.Time
	NewID func() string
}

// Engine owns the generation job lifecycle. Per-job state lives in the
// repository; the engine itself holds no lock while a job is in flight.
type Engine struct {
	repo           domain.JobRepository
	music          MusicProvider
	writer         lyrics.Writer
	migrator       *Migrator
	logger         *infra.Logger
	placeholderURL string
	staleAge       time.Duration
	now            func() time.Time
	newID          func() string

	admission keyedMutex
	wg        sync.WaitGroup
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Repo == nil {
		return nil, errors.New("generation: repository is required")
	}
	if opts.Music == nil {
		return nil, errors.New("generation: music provider is required")
	}
	writer := opts.Writer
	if writer == nil {
		writer = lyrics.NewStaticWriter()
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	staleAge := opts.StalePendingAge
	if staleAge <= 0 {
		staleAge = 5 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Engine{
		repo:           opts.Repo,
		music:          opts.Music,
		writer:         writer,
		migrator:       opts.Migrator,
		logger:         logger,
		placeholderURL: strings.TrimSpace(opts.PlaceholderAudioURL),
		staleAge:       staleAge,
		now:            now,
		newID:          newID,
		admission:      keyedMutex{locks: map[string]*keyedLock{}},
	}, nil
}

// CreateJob accepts a request and drives it to a terminal state before
// returning. A completed job carries the provider's transient URL; the
// durable storage migration continues in the background.
func (e *Engine) CreateJob(ctx context.Context, req domain.CreateRequest) (*domain.Job, error) {
	job, err := e.admit(ctx, req)
	if err != nil {
		return nil, err
	}
	observability.JobsCreated.WithLabelValues("sync").Inc()
	return e.run(ctx, job), nil
}

// StartJob accepts a request and returns the pending job at once; the
// pipeline runs on a detached goroutine that outlives ctx.
func (e *Engine) StartJob(ctx context.Context, req domain.CreateRequest) (*domain.Job, error) {
	job, err := e.admit(ctx, req)
	if err != nil {
		return nil, err
	}
	observability.JobsCreated.WithLabelValues("async").Inc()
	detached := context.WithoutCancel(ctx)
	e.spawn(job.ID, "pipeline", func() {
		e.run(detached, job.Clone())
	})
	return job, nil
}

// Wait blocks until background pipelines and migrations finish or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admit validates, sweeps stale jobs, enforces one pending job per requester
// and stores the new pending job.
func (e *Engine) admit(ctx context.Context, req domain.CreateRequest) (*domain.Job, error) {
	req, err := Validate(req)
	if err != nil {
		observability.JobsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	if _, err := e.SweepStale(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("generation: stale sweep failed")
	}

	if req.RequesterID != "" {
		unlock := e.admission.Lock(req.RequesterID)
		defer unlock()
		pending, err := e.repo.FindPendingByRequester(ctx, req.RequesterID)
		if err != nil {
			return nil, fmt.Errorf("generation: check pending jobs: %w", err)
		}
		if len(pending) > 0 {
			observability.JobsRejected.WithLabelValues("duplicate").Inc()
			return nil, fmt.Errorf("%w: job %s is still pending", domain.ErrDuplicateInFlight, pending[0].ID)
		}
	}

	now := e.now()
	job := &domain.Job{
		ID:                    e.newID(),
		RequesterID:           req.RequesterID,
		PromptText:            req.PromptText,
		StyleTag:              req.StyleTag,
		Title:                 req.Title,
		Lyrics:                req.Lyrics,
		WantsInstrumental:     req.WantsInstrumental,
		WantsGeneratedLyrics:  req.WantsGeneratedLyrics,
		VoiceGender:           req.VoiceGender,
		TargetDurationSeconds: req.TargetDurationSeconds,
		Locale:                req.Locale,
		State:                 domain.JobStatePending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.repo.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("generation: create job: %w", err)
	}
	observability.ObserveTransition(string(domain.JobStatePending), false, now)
	e.logger.Info().
		Str("job_id", job.ID).
		Str("requester_id", job.RequesterID).
		Bool("instrumental", job.WantsInstrumental).
		Msg("generation: job accepted")
	return job, nil
}

// run drives an admitted job through lyric drafting, submission and polling
// and returns its final record.
func (e *Engine) run(ctx context.Context, job *domain.Job) *domain.Job {
	store := context.WithoutCancel(ctx)
	log := e.logger.With().Str("job_id", job.ID).Str("requester_id", job.RequesterID).Logger()

	lyricsText, title := e.draftLyrics(ctx, job, &log)

	submittedAt := e.now()
	taskID, err := e.music.Submit(ctx, music.SubmitRequest{
		Prompt:       job.PromptText,
		StyleTag:     job.StyleTag,
		Lyrics:       lyricsText,
		Title:        title,
		Instrumental: job.WantsInstrumental,
		VoiceGender:  job.VoiceGender,
	})
	if err != nil {
		log.Warn().Err(err).Msg("generation: submission failed")
		return e.fail(store, job, domain.JobStatePending, err, &log)
	}

	processing, err := e.transition(store, job, domain.JobStatePending, domain.JobUpdate{
		State:          domain.Ptr(domain.JobStateProcessing),
		ProviderTaskID: domain.Ptr(taskID),
	}, &log)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("generation: job left pending before submission finished")
		return e.latest(store, job)
	}
	log = log.With().Str("task_id", taskID).Logger()

	track, err := e.music.WaitForAudio(ctx, taskID, submittedAt)
	switch {
	case err == nil:
		return e.complete(store, processing, track, lyricsText, title, &log)
	case errors.Is(err, domain.ErrProviderTimeout):
		return e.fallback(store, processing, err, &log)
	default:
		log.Warn().Err(err).Msg("generation: polling failed")
		return e.fail(store, processing, domain.JobStateProcessing, err, &log)
	}
}

func (e *Engine) draftLyrics(ctx context.Context, job *domain.Job, log *zerolog.Logger) (string, string) {
	lyricsText := strings.TrimSpace(job.Lyrics)
	title := job.Title
	if job.WantsInstrumental || !job.WantsGeneratedLyrics || lyricsText != "" {
		return lyricsText, title
	}
	draft, err := e.writer.DraftLyrics(ctx, lyrics.DraftRequest{
		PromptText: job.PromptText,
		StyleTag:   job.StyleTag,
		Title:      job.Title,
		Locale:     job.Locale,
	})
	if err != nil {
		log.Warn().Err(err).Msg("generation: lyric draft failed, provider will write lyrics")
		return "", title
	}
	if title == "" {
		title = draft.Title
	}
	log.Debug().Str("provider", draft.Provider).Int("chars", len(draft.Lyrics)).Msg("generation: lyrics drafted")
	return draft.Lyrics, title
}

func (e *Engine) complete(ctx context.Context, job *domain.Job, track music.Track, lyricsText, title string, log *zerolog.Logger) *domain.Job {
	completed, err := e.transition(ctx, job, domain.JobStateProcessing, domain.JobUpdate{
		State:                 domain.Ptr(domain.JobStateCompleted),
		ResultURL:             domain.Ptr(track.AudioURL),
		ResultLyrics:          domain.Ptr(firstNonEmpty(track.Lyrics, lyricsText)),
		ResultTitle:           domain.Ptr(firstNonEmpty(track.Title, title)),
		ResultDurationSeconds: domain.Ptr(track.DurationSeconds),
		ResultSource:          domain.Ptr(domain.ResultSourceProvider),
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("generation: could not record completed audio")
		return e.latest(ctx, job)
	}
	e.startMigration(completed)
	return completed
}

func (e *Engine) fallback(ctx context.Context, job *domain.Job, cause error, log *zerolog.Logger) *domain.Job {
	if e.placeholderURL == "" {
		observability.FallbacksUsed.WithLabelValues("disabled").Inc()
		return e.fail(ctx, job, domain.JobStateProcessing, cause, log)
	}
	desc, err := e.writer.DescribeTrack(ctx, lyrics.DescribeRequest{
		PromptText:      job.PromptText,
		StyleTag:        job.StyleTag,
		Title:           job.Title,
		Locale:          job.Locale,
		Instrumental:    job.WantsInstrumental,
		DurationSeconds: job.TargetDurationSeconds,
	})
	if err != nil {
		observability.FallbacksUsed.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("generation: fallback failed")
		return e.fail(ctx, job, domain.JobStateProcessing, cause, log)
	}
	observability.FallbacksUsed.WithLabelValues("ok").Inc()
	completed, err := e.transition(ctx, job, domain.JobStateProcessing, domain.JobUpdate{
		State:                 domain.Ptr(domain.JobStateCompleted),
		ResultURL:             domain.Ptr(e.placeholderURL),
		ResultTitle:           domain.Ptr(firstNonEmpty(desc.Title, job.Title)),
		ResultDescription:     domain.Ptr(desc.Description),
		ResultLyrics:          domain.Ptr(desc.Lyrics),
		ResultDurationSeconds: domain.Ptr(float64(job.TargetDurationSeconds)),
		ResultSource:          domain.Ptr(domain.ResultSourceFallback),
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("generation: could not record fallback result")
		return e.latest(ctx, job)
	}
	log.Info().Str("provider", desc.Provider).Msg("generation: completed with placeholder after timeout")
	return completed
}

func (e *Engine) fail(ctx context.Context, job *domain.Job, from domain.JobState, cause error, log *zerolog.Logger) *domain.Job {
	failed, err := e.transition(ctx, job, from, domain.JobUpdate{
		State:        domain.Ptr(domain.JobStateFailed),
		ErrorMessage: domain.Ptr(FailureMessage(cause)),
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("generation: could not record failure")
		return e.latest(ctx, job)
	}
	return failed
}

func (e *Engine) transition(ctx context.Context, job *domain.Job, from domain.JobState, update domain.JobUpdate, log *zerolog.Logger) (*domain.Job, error) {
	updated, err := e.repo.UpdateState(ctx, job.ID, from, update)
	if err != nil {
		return nil, err
	}
	if update.State != nil && *update.State != from {
		observability.ObserveTransition(string(updated.State), updated.State.Terminal(), updated.CreatedAt)
		log.Info().Str("from", string(from)).Str("state", string(updated.State)).Msg("generation: job transitioned")
	}
	return updated, nil
}

func (e *Engine) latest(ctx context.Context, job *domain.Job) *domain.Job {
	current, err := e.repo.GetByID(ctx, job.ID)
	if err != nil {
		return job
	}
	return current
}

func (e *Engine) startMigration(job *domain.Job) {
	if e.migrator == nil || job.ResultSource != domain.ResultSourceProvider {
		return
	}
	e.spawn(job.ID, "migration", func() {
		e.migrator.Run(job.Clone())
	})
}

// spawn runs fn on a tracked goroutine with its own panic boundary.
func (e *Engine) spawn(jobID, task string, fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Str("job_id", jobID).Str("task", task).Interface("panic", r).Msg("generation: background task panicked")
			}
		}()
		fn()
	}()
}

// FailureMessage is the user-facing text stored on failed jobs. It tells the
// caller whether to retry later or that the request itself was rejected.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderTimeout):
		return "The song took too long to generate. Please try again later."
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrProviderTransient):
		return "The music service is temporarily unavailable. Please try again later."
	case !domain.Retryable(err):
		return "The request was rejected by the music service. Please change the prompt and submit again."
	}
	return "Generation failed. Please try again later."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
