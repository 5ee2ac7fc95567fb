package generation

import (
	"bytes"
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

	"musicgen/internal/adapter/repo"
	"musicgen/internal/domain"
	"musicgen/internal/providers/lyrics"
	"musicgen/internal/providers/music"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeMusic struct {
	mu       sync.Mutex
	submits  []music.SubmitRequest
	submitFn func(ctx context.Context, req music.SubmitRequest) (string, error)
	waitFn   func(ctx context.Context, taskID string) (music.Track, error)
}

func (f *fakeMusic) Submit(ctx context.Context, req music.SubmitRequest) (string, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	fn := f.submitFn
	f.mu.Unlock()
	if fn == nil {
		return "T1", nil
	}
	return fn(ctx, req)
}

func (f *fakeMusic) WaitForAudio(ctx context.Context, taskID string, _ time.Time) (music.Track, error) {
	if f.waitFn == nil {
		return music.Track{AudioURL: "https://provider.example.com/x.mp3", DurationSeconds: 180}, nil
	}
	return f.waitFn(ctx, taskID)
}

func (f *fakeMusic) submitted() []music.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]music.SubmitRequest(nil), f.submits...)
}

type fakeWriter struct {
	draft       *lyrics.Draft
	draftErr    error
	describe    *lyrics.Description
	describeErr error
}

func (w *fakeWriter) DraftLyrics(context.Context, lyrics.DraftRequest) (*lyrics.Draft, error) {
	if w.draftErr != nil {
		return nil, w.draftErr
	}
	if w.draft == nil {
		return nil, errors.New("no draft configured")
	}
	return w.draft, nil
}

func (w *fakeWriter) DescribeTrack(context.Context, lyrics.DescribeRequest) (*lyrics.Description, error) {
	if w.describeErr != nil {
		return nil, w.describeErr
	}
	if w.describe == nil {
		return nil, errors.New("no description configured")
	}
	return w.describe, nil
}

// memoryStore is an ObjectStore whose uploads can be held open by the test.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gate    chan struct{}
	uploads int
	hide    bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (s *memoryStore) Upload(ctx context.Context, data []byte, key string) (string, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if !s.hide {
		s.objects[key] = bytes.Clone(data)
	}
	return "https://cdn.musicgen.test/" + key, nil
}

func (s *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memoryStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func audioServer(status int, body string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"audio/mpeg"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	})}
}

type harness struct {
	engine *Engine
	repo   *repo.MemoryJobRepository
	music  *fakeMusic
	writer *fakeWriter
	store  *memoryStore
	clock  *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newTestClock()
	h := &harness{
		repo:   repo.NewMemoryJobRepository(clock.Now),
		music:  &fakeMusic{},
		writer: &fakeWriter{},
		store:  newMemoryStore(),
		clock:  clock,
	}
	migrator, err := NewMigrator(MigratorOptions{
		Repo:       h.repo,
		Store:      h.store,
		HTTPClient: audioServer(http.StatusOK, "ID3-audio-bytes"),
		Now:        clock.Now,
	})
	require.NoError(t, err)
	var ids atomic.Int32
	engine, err := NewEngine(Options{
		Repo:                h.repo,
		Music:               h.music,
		Writer:              h.writer,
		Migrator:            migrator,
		PlaceholderAudioURL: "https://cdn.musicgen.test/placeholders/instrumental.mp3",
		Now:                 clock.Now,
		NewID: func() string {
			return fmt.Sprintf("job-%d", ids.Add(1))
		},
	})
	require.NoError(t, err)
	h.engine = engine
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Wait(ctx)
	})
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Wait(ctx))
}

func lullaby(requester string) domain.CreateRequest {
	return domain.CreateRequest{
		RequesterID:       requester,
		PromptText:        "gentle piano lullaby",
		WantsInstrumental: true,
	}
}
