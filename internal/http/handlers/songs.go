package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"musicgen/internal/domain"
	"musicgen/internal/middleware"
)

const maxSongRequestBytes = 64 << 10

type songCreateRequest struct {
	Prompt          string `json:"prompt"`
	Style           string `json:"style"`
	Title           string `json:"title"`
	Lyrics          string `json:"lyrics"`
	Instrumental    bool   `json:"instrumental"`
	GenerateLyrics  bool   `json:"generate_lyrics"`
	VoiceGender     string `json:"voice_gender"`
	DurationSeconds int    `json:"duration_seconds"`
	Locale          string `json:"locale"`
}

type songAcceptedResponse struct {
	JobID string          `json:"job_id"`
	State domain.JobState `json:"state"`
}

func (a *App) SongsCreate(w http.ResponseWriter, r *http.Request) {
	var req songCreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSongRequestBytes)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	job, err := a.Songs.StartJob(r.Context(), domain.CreateRequest{
		RequesterID:           a.currentRequesterID(r),
		PromptText:            req.Prompt,
		StyleTag:              req.Style,
		Title:                 req.Title,
		Lyrics:                req.Lyrics,
		WantsInstrumental:     req.Instrumental,
		WantsGeneratedLyrics:  req.GenerateLyrics,
		VoiceGender:           domain.VoiceGender(req.VoiceGender),
		TargetDurationSeconds: req.DurationSeconds,
		Locale:                locale,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/songs/"+job.ID)
	a.json(w, http.StatusAccepted, songAcceptedResponse{JobID: job.ID, State: job.State})
}

func (a *App) SongsStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Songs.GetStatus(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) SongsDelete(w http.ResponseWriter, r *http.Request) {
	requesterID := a.currentRequesterID(r)
	if requesterID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing requester context")
		return
	}
	if err := a.Songs.DeleteJob(r.Context(), chi.URLParam(r, "job_id"), requesterID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
