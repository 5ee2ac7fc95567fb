package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"musicgen/internal/domain"
	"musicgen/internal/providers/lyrics"
	"musicgen/internal/providers/music"
	"musicgen/internal/resilience"
)

func blockingSubmit(release <-chan struct{}) func(context.Context, music.SubmitRequest) (string, error) {
	return func(ctx context.Context, _ music.SubmitRequest) (string, error) {
		select {
		case <-release:
			return "T1", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func TestCreateJobReturnsTransientURLBeforeMigration(t *testing.T) {
	h := newHarness(t)
	h.store.gate = make(chan struct{})

	job, err := h.engine.CreateJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, job.State)
	require.Equal(t, "T1", job.ProviderTaskID)
	require.Equal(t, "https://provider.example.com/x.mp3", job.ResultURL)
	require.Empty(t, job.DurableStorageRef)
	require.Equal(t, 180.0, job.ResultDurationSeconds)
	require.Equal(t, domain.ResultSourceProvider, job.ResultSource)

	view, err := h.engine.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	require.False(t, view.Durable)
	require.Equal(t, "https://provider.example.com/x.mp3", view.ResultURL)

	close(h.store.gate)
	h.wait(t)

	view, err = h.engine.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, view.State)
	require.True(t, view.Durable)
	require.True(t, strings.HasPrefix(view.ResultURL, "https://cdn.musicgen.test/songs/"+job.ID+"/"), view.ResultURL)
	require.True(t, strings.HasSuffix(view.ResultURL, ".mp3"), view.ResultURL)
}

func TestCreateJobSubmitsInstrumentalWithoutLyrics(t *testing.T) {
	h := newHarness(t)
	req := lullaby("R1")
	req.Lyrics = "should be dropped"
	req.WantsGeneratedLyrics = true

	_, err := h.engine.CreateJob(context.Background(), req)
	require.NoError(t, err)

	submits := h.music.submitted()
	require.Len(t, submits, 1)
	require.True(t, submits[0].Instrumental)
	require.Empty(t, submits[0].Lyrics)
	require.Equal(t, "gentle piano lullaby", submits[0].Prompt)
}

func TestStartJobReturnsPendingAndFinishesInBackground(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.music.submitFn = blockingSubmit(release)

	job, err := h.engine.StartJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStatePending, job.State)

	close(release)
	h.wait(t)

	view, err := h.engine.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, view.State)
	require.True(t, view.Durable)
}

func TestStartJobOutlivesRequestContext(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.music.submitFn = blockingSubmit(release)

	ctx, cancel := context.WithCancel(context.Background())
	job, err := h.engine.StartJob(ctx, lullaby("R1"))
	require.NoError(t, err)
	cancel()
	close(release)
	h.wait(t)

	view, err := h.engine.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, view.State)
}

func TestDuplicatePendingRequestIsRejected(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.music.submitFn = blockingSubmit(release)
	ctx := context.Background()

	first, err := h.engine.StartJob(ctx, lullaby("R1"))
	require.NoError(t, err)

	_, err = h.engine.StartJob(ctx, lullaby("R1"))
	require.ErrorIs(t, err, domain.ErrDuplicateInFlight)
	require.Contains(t, err.Error(), first.ID)

	_, err = h.engine.CreateJob(ctx, lullaby("R1"))
	require.ErrorIs(t, err, domain.ErrDuplicateInFlight)

	_, err = h.engine.StartJob(ctx, lullaby("R2"))
	require.NoError(t, err, "other requesters are not blocked")

	_, err = h.engine.StartJob(ctx, lullaby(""))
	require.NoError(t, err)
	_, err = h.engine.StartJob(ctx, lullaby(""))
	require.NoError(t, err, "anonymous jobs are not deduplicated")

	close(release)
	h.wait(t)

	_, err = h.engine.StartJob(ctx, lullaby("R1"))
	require.NoError(t, err, "requester is unblocked once the job leaves pending")
	h.wait(t)
}

func TestConcurrentAdmissionAcceptsOneJobPerRequester(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.music.submitFn = blockingSubmit(release)

	var accepted, duplicates atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.StartJob(context.Background(), lullaby("R1"))
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, domain.ErrDuplicateInFlight):
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, accepted.Load())
	require.EqualValues(t, 15, duplicates.Load())

	close(release)
	h.wait(t)
}

func TestStalePendingJobIsReclaimedOnNextRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stuck := &domain.Job{
		ID:          "stuck",
		RequesterID: "R1",
		PromptText:  "old request",
		State:       domain.JobStatePending,
		CreatedAt:   h.clock.Now(),
	}
	require.NoError(t, h.repo.Insert(ctx, stuck))

	h.clock.Advance(4 * time.Minute)
	_, err := h.engine.CreateJob(ctx, lullaby("R1"))
	require.ErrorIs(t, err, domain.ErrDuplicateInFlight)

	h.clock.Advance(2 * time.Minute)
	job, err := h.engine.CreateJob(ctx, lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, job.State)

	old, err := h.repo.GetByID(ctx, "stuck")
	require.NoError(t, err)
	require.Equal(t, domain.JobStateFailed, old.State)
	require.Contains(t, old.ErrorMessage, "try again later")
}

func TestSweepStaleSkipsFreshJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.repo.Insert(ctx, &domain.Job{ID: "old", State: domain.JobStatePending, CreatedAt: h.clock.Now()}))
	h.clock.Advance(10 * time.Minute)
	require.NoError(t, h.repo.Insert(ctx, &domain.Job{ID: "new", State: domain.JobStatePending, CreatedAt: h.clock.Now()}))

	n, err := h.engine.SweepStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	fresh, err := h.repo.GetByID(ctx, "new")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatePending, fresh.State)
}

func TestReclaimedJobNeverReturnsToProcessing(t *testing.T) {
	h := newHarness(t)
	waited := false
	h.music.submitFn = func(ctx context.Context, _ music.SubmitRequest) (string, error) {
		h.clock.Advance(6 * time.Minute)
		n, err := h.engine.SweepStale(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		return "T9", nil
	}
	h.music.waitFn = func(context.Context, string) (music.Track, error) {
		waited = true
		return music.Track{}, errors.New("unexpected poll")
	}

	job, err := h.engine.CreateJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStateFailed, job.State)
	require.Empty(t, job.ProviderTaskID)
	require.Empty(t, job.ResultURL)
	require.False(t, waited)
}

func TestTerminalProviderErrorFailsWithoutRetry(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	var slept []time.Duration
	exec := resilience.NewExecutor(resilience.Options{
		Breaker: resilience.NewBreaker(resilience.BreakerOptions{}),
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	client, err := music.NewClient(music.Options{
		APIKey:   "bad-key",
		BaseURL:  "https://music.example.com/api/v1",
		Executor: exec,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Body:       io.NopCloser(strings.NewReader(`{"msg":"invalid api key"}`)),
				Request:    r,
			}, nil
		})},
	})
	require.NoError(t, err)
	h.engine.music = client

	job, err := h.engine.CreateJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStateFailed, job.State)
	require.Contains(t, job.ErrorMessage, "rejected")
	require.EqualValues(t, 1, calls.Load())
	require.Empty(t, slept)
	require.False(t, exec.Breaker().Open())
}

func TestExhaustedRetriesFailWithTryAgainLater(t *testing.T) {
	h := newHarness(t)
	h.music.submitFn = func(context.Context, music.SubmitRequest) (string, error) {
		return "", fmt.Errorf("%w: music.submit failed after 4 attempts: 502", domain.ErrProviderTransient)
	}

	job, err := h.engine.CreateJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStateFailed, job.State)
	require.Contains(t, job.ErrorMessage, "try again later")
	require.Empty(t, job.ResultURL)
}

func TestProviderFailureStatusFailsProcessingJob(t *testing.T) {
	h := newHarness(t)
	h.music.waitFn = func(context.Context, string) (music.Track, error) {
		return music.Track{}, fmt.Errorf("%w: sensitive_word_error", domain.ErrProviderTerminal)
	}

	job, err := h.engine.CreateJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStateFailed, job.State)
	require.Equal(t, "T1", job.ProviderTaskID)
	require.Contains(t, job.ErrorMessage, "rejected")
}

func TestTimeoutCompletesWithPlaceholderFallback(t *testing.T) {
	h := newHarness(t)
	h.music.waitFn = func(context.Context, string) (music.Track, error) {
		return music.Track{}, fmt.Errorf("music: task T1: %w", domain.ErrProviderTimeout)
	}
	h.writer.describe = &lyrics.Description{
		Title:       "Moonlit Keys",
		Description: "A soft piano piece for bedtime.",
		Provider:    "static",
	}
	req := lullaby("R1")
	req.TargetDurationSeconds = 120

	job, err := h.engine.CreateJob(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, job.State)
	require.Equal(t, "https://cdn.musicgen.test/placeholders/instrumental.mp3", job.ResultURL)
	require.Equal(t, domain.ResultSourceFallback, job.ResultSource)
	require.Equal(t, "Moonlit Keys", job.ResultTitle)
	require.Equal(t, "A soft piano piece for bedtime.", job.ResultDescription)
	require.Equal(t, 120.0, job.ResultDurationSeconds)

	h.wait(t)
	require.Zero(t, h.store.uploadCount(), "placeholder results are not migrated")

	view, err := h.engine.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "fallback", view.Source)
	require.False(t, view.Durable)
}

func TestTimeoutWithFailedFallbackFailsJob(t *testing.T) {
	h := newHarness(t)
	h.music.waitFn = func(context.Context, string) (music.Track, error) {
		return music.Track{}, domain.ErrProviderTimeout
	}
	h.writer.describeErr = errors.New("openai: status 503")

	job, err := h.engine.CreateJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	require.Equal(t, domain.JobStateFailed, job.State)
	require.Contains(t, job.ErrorMessage, "try again later")
	require.Empty(t, job.ResultURL)
}

func TestGeneratedLyricsAreDraftedBeforeSubmission(t *testing.T) {
	h := newHarness(t)
	h.writer.draft = &lyrics.Draft{Title: "Night Song", Lyrics: "[Verse]\nstars above", Provider: "openai"}
	req := domain.CreateRequest{RequesterID: "R1", PromptText: "dreamy synth pop", WantsGeneratedLyrics: true, VoiceGender: "female"}

	job, err := h.engine.CreateJob(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, job.State)

	submits := h.music.submitted()
	require.Len(t, submits, 1)
	require.Equal(t, "[Verse]\nstars above", submits[0].Lyrics)
	require.Equal(t, "Night Song", submits[0].Title)
	require.Equal(t, domain.VoiceGenderFemale, submits[0].VoiceGender)
	require.Equal(t, "[Verse]\nstars above", job.ResultLyrics)
}

func TestLyricDraftFailureFallsBackToAutoLyrics(t *testing.T) {
	h := newHarness(t)
	h.writer.draftErr = errors.New("gemini: status 500")
	req := domain.CreateRequest{RequesterID: "R1", PromptText: "dreamy synth pop", WantsGeneratedLyrics: true}

	job, err := h.engine.CreateJob(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, job.State)
	require.Empty(t, h.music.submitted()[0].Lyrics)
}

func TestMigrationFailureKeepsCompletedJob(t *testing.T) {
	h := newHarness(t)
	migrator, err := NewMigrator(MigratorOptions{
		Repo:       h.repo,
		Store:      h.store,
		HTTPClient: audioServer(http.StatusNotFound, ""),
		Now:        h.clock.Now,
	})
	require.NoError(t, err)
	h.engine.migrator = migrator

	job, err := h.engine.CreateJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)
	h.wait(t)

	view, err := h.engine.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, view.State)
	require.Equal(t, "https://provider.example.com/x.mp3", view.ResultURL)
	require.False(t, view.Durable)
}

func TestValidationErrorsCreateNoJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateJob(context.Background(), domain.CreateRequest{RequesterID: "R1", PromptText: "  ***  "})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Empty(t, h.music.submitted())

	pending, err := h.repo.FindPendingByRequester(context.Background(), "R1")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGetStatusHidesResultUntilCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.GetStatus(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, h.repo.Insert(ctx, &domain.Job{
		ID:          "p1",
		State:       domain.JobStateProcessing,
		ResultURL:   "https://provider.example.com/partial.mp3",
		ResultTitle: "draft",
		CreatedAt:   h.clock.Now(),
	}))
	view, err := h.engine.GetStatus(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStateProcessing, view.State)
	require.Empty(t, view.ResultURL)
	require.Empty(t, view.Title)
}

func TestDeleteJobRequiresOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.engine.CreateJob(ctx, lullaby("R1"))
	require.NoError(t, err)
	h.wait(t)

	require.ErrorIs(t, h.engine.DeleteJob(ctx, job.ID, "R2"), domain.ErrForbidden)
	require.ErrorIs(t, h.engine.DeleteJob(ctx, job.ID, ""), domain.ErrForbidden)
	require.ErrorIs(t, h.engine.DeleteJob(ctx, "missing", "R1"), domain.ErrNotFound)

	require.NoError(t, h.engine.DeleteJob(ctx, job.ID, "R1"))
	_, err = h.engine.GetStatus(ctx, job.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWaitHonoursContext(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.music.submitFn = blockingSubmit(release)
	_, err := h.engine.StartJob(context.Background(), lullaby("R1"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.engine.Wait(ctx), context.DeadlineExceeded)

	close(release)
	h.wait(t)
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrProviderTimeout, "try again later"},
		{fmt.Errorf("music.poll: %w", resilience.ErrCircuitOpen), "try again later"},
		{fmt.Errorf("%w: 502", domain.ErrProviderTransient), "try again later"},
		{fmt.Errorf("%w: status 413", domain.ErrProviderTerminal), "rejected"},
		{fmt.Errorf("%w: prompt is required", domain.ErrValidation), "rejected"},
		{errors.New("connection reset"), "try again later"},
	}
	for _, tt := range tests {
		require.Contains(t, FailureMessage(tt.err), tt.want, "%v", tt.err)
	}
}
