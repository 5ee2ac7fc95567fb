package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"musicgen/internal/http/handlers"
	"musicgen/internal/middleware"
	"musicgen/internal/observability"
)

// Options configures the router's middleware stack.
type Options struct {
	Logger          zerolog.Logger
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
	// StaticDir is served under /static when set; it holds migrated audio.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N("en", opts.CountryLookup),
		middleware.Requester(opts.JWTSecret),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Readiness)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Handle("/metrics", observability.Handler())

	r.Route("/v1/songs", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.SongsCreate)
		r.Get("/{job_id}", app.SongsStatus)
		r.Delete("/{job_id}", app.SongsDelete)
	})

	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	}

	return r
}
