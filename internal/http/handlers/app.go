package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"musicgen/internal/domain"
	"musicgen/internal/middleware"
)

// SongService is the job lifecycle surface the handlers drive.
type SongService interface {
	StartJob(ctx context.Context, req domain.CreateRequest) (*domain.Job, error)
	GetStatus(ctx context.Context, jobID string) (*domain.JobView, error)
	DeleteJob(ctx context.Context, jobID, requesterID string) error
}

type App struct {
	Songs  SongService
	Logger zerolog.Logger
	// Ready reports whether dependencies such as the database are reachable.
	Ready func(ctx context.Context) error
}

func NewApp(songs SongService, logger zerolog.Logger) *App {
	return &App{Songs: songs, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}

// fail maps a domain error onto its HTTP status.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "job belongs to another requester")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrDuplicateInFlight):
		a.error(w, http.StatusConflict, "duplicate_in_flight", "a song for this requester is still pending")
	case errors.Is(err, domain.ErrServiceUnavailable):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable, try again later")
	default:
		a.Logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentRequesterID(r *http.Request) string {
	return middleware.RequesterIDFromContext(r.Context())
}
