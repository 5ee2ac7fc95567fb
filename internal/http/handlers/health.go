package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) Readiness(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ready(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("http: readiness check failed")
			a.error(w, http.StatusServiceUnavailable, "unavailable", "dependencies not ready")
			return
		}
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ready"})
}
