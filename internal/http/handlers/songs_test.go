package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"musicgen/internal/domain"
	"musicgen/internal/middleware"
)

type fakeSongs struct {
	started   []domain.CreateRequest
	startErr  error
	view      *domain.JobView
	statusErr error
	deleted   []string
	deleteErr error
}

func (f *fakeSongs) StartJob(_ context.Context, req domain.CreateRequest) (*domain.Job, error) {
	f.started = append(f.started, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &domain.Job{ID: "job-1", State: domain.JobStatePending}, nil
}

func (f *fakeSongs) GetStatus(_ context.Context, jobID string) (*domain.JobView, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.view, nil
}

func (f *fakeSongs) DeleteJob(_ context.Context, jobID, requesterID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, jobID+"@"+requesterID)
	return nil
}

func newTestApp(songs *fakeSongs) *App {
	return NewApp(songs, zerolog.New(io.Discard))
}

func withJobID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("job_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestSongsCreateAccepted(t *testing.T) {
	songs := &fakeSongs{}
	app := newTestApp(songs)

	body := `{"prompt":"gentle piano lullaby","instrumental":true,"voice_gender":"female","duration_seconds":90}`
	req := httptest.NewRequest(http.MethodPost, "/v1/songs", strings.NewReader(body))
	ctx := middleware.ContextWithRequesterID(req.Context(), "R1")
	ctx = context.WithValue(ctx, middleware.LocaleKey, "id")
	rr := httptest.NewRecorder()

	app.SongsCreate(rr, req.WithContext(ctx))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	var resp songAcceptedResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID != "job-1" || resp.State != domain.JobStatePending {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := rr.Header().Get("Location"); got != "/v1/songs/job-1" {
		t.Fatalf("Location = %q", got)
	}
	if len(songs.started) != 1 {
		t.Fatalf("expected one start, got %d", len(songs.started))
	}
	got := songs.started[0]
	if got.RequesterID != "R1" || got.PromptText != "gentle piano lullaby" || !got.WantsInstrumental {
		t.Fatalf("request not mapped: %+v", got)
	}
	if got.VoiceGender != domain.VoiceGenderFemale || got.TargetDurationSeconds != 90 || got.Locale != "id" {
		t.Fatalf("request options not mapped: %+v", got)
	}
}

func TestSongsCreateErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"validation", fmt.Errorf("%w: prompt is required", domain.ErrValidation), http.StatusBadRequest, "bad_request"},
		{"duplicate", fmt.Errorf("%w: job j0 is still pending", domain.ErrDuplicateInFlight), http.StatusConflict, "duplicate_in_flight"},
		{"unavailable", fmt.Errorf("music.submit: %w", domain.ErrServiceUnavailable), http.StatusServiceUnavailable, "unavailable"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(&fakeSongs{startErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/v1/songs", strings.NewReader(`{"prompt":"x"}`))
			rr := httptest.NewRecorder()
			app.SongsCreate(rr, req)
			if rr.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantCode)
			}
			if got := decodeError(t, rr); got.Code != tc.wantErr {
				t.Fatalf("error code = %q, want %q", got.Code, tc.wantErr)
			}
		})
	}
}

func TestSongsCreateRejectsMalformedBody(t *testing.T) {
	songs := &fakeSongs{}
	app := newTestApp(songs)
	req := httptest.NewRequest(http.MethodPost, "/v1/songs", strings.NewReader(`{"prompt":`))
	rr := httptest.NewRecorder()
	app.SongsCreate(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if len(songs.started) != 0 {
		t.Fatal("malformed body must not start a job")
	}
}

func TestSongsStatus(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	songs := &fakeSongs{view: &domain.JobView{
		ID:              "job-1",
		State:           domain.JobStateCompleted,
		ResultURL:       "https://cdn.example.com/songs/job-1/1.mp3",
		Durable:         true,
		DurationSeconds: 180,
		CreatedAt:       created,
		UpdatedAt:       created,
	}}
	app := newTestApp(songs)
	rr := httptest.NewRecorder()
	app.SongsStatus(rr, withJobID(httptest.NewRequest(http.MethodGet, "/v1/songs/job-1", nil), "job-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["state"] != "completed" || payload["durable"] != true || payload["result_url"] != "https://cdn.example.com/songs/job-1/1.mp3" {
		t.Fatalf("unexpected payload: %#v", payload)
	}

	app = newTestApp(&fakeSongs{statusErr: domain.ErrNotFound})
	rr = httptest.NewRecorder()
	app.SongsStatus(rr, withJobID(httptest.NewRequest(http.MethodGet, "/v1/songs/nope", nil), "nope"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestSongsDelete(t *testing.T) {
	songs := &fakeSongs{}
	app := newTestApp(songs)

	rr := httptest.NewRecorder()
	app.SongsDelete(rr, withJobID(httptest.NewRequest(http.MethodDelete, "/v1/songs/job-1", nil), "job-1"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous delete status = %d, want 401", rr.Code)
	}

	req := withJobID(httptest.NewRequest(http.MethodDelete, "/v1/songs/job-1", nil), "job-1")
	req = req.WithContext(middleware.ContextWithRequesterID(req.Context(), "R1"))
	rr = httptest.NewRecorder()
	app.SongsDelete(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if len(songs.deleted) != 1 || songs.deleted[0] != "job-1@R1" {
		t.Fatalf("unexpected deletes: %v", songs.deleted)
	}

	app = newTestApp(&fakeSongs{deleteErr: domain.ErrForbidden})
	rr = httptest.NewRecorder()
	app.SongsDelete(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestReadiness(t *testing.T) {
	app := newTestApp(&fakeSongs{})
	app.Ready = func(context.Context) error { return errors.New("pool closed") }
	rr := httptest.NewRecorder()
	app.Readiness(rr, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}

	app.Ready = nil
	rr = httptest.NewRecorder()
	app.Readiness(rr, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
