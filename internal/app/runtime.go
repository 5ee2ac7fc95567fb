// Package app wires configuration into a running generation engine. The API
// server and the admin CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"musicgen/internal/adapter/repo"
	"musicgen/internal/domain"
	"musicgen/internal/generation"
	"musicgen/internal/infra"
	"musicgen/internal/infra/credentials"
	"musicgen/internal/observability"
	"musicgen/internal/providers/lyrics"
	"musicgen/internal/providers/music"
	"musicgen/internal/resilience"
	"musicgen/internal/sqlinline"
	"musicgen/internal/storage"
)

// Runtime holds the long-lived collaborators of one process.
type Runtime struct {
	Config      *infra.Config
	Logger      infra.Logger
	Pool        *pgxpool.Pool
	SQL         *infra.SQLRunner
	Credentials *credentials.Store
	Repo        domain.JobRepository
	Store       *storage.FileStore
	Breaker     *resilience.Breaker
	Music       *music.Client
	Writer      lyrics.Writer
	Engine      *generation.Engine
	// PlaceholderURL is the audio served by timeout fallbacks. Empty
	// disables them.
	PlaceholderURL string
}

// New connects to the database when one is configured and builds the
// engine. Without DATABASE_URL jobs live in memory.
func New(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.SQL = infra.NewSQLRunner(pool, logger)
		rt.Credentials = credentials.NewStore(rt.SQL)
		rt.Repo = repo.NewJobRepository(rt.SQL)
	} else {
		logger.Warn().Msg("app: DATABASE_URL not set, jobs are kept in memory")
		rt.Repo = repo.NewMemoryJobRepository(nil)
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = fileStore

	httpClient := infra.NewProviderHTTPClient(cfg.ProviderMaxConns, cfg.ProviderTimeout)

	rt.Breaker = resilience.NewBreaker(resilience.BreakerOptions{
		Threshold: cfg.BreakerThreshold,
		Cooldown:  cfg.BreakerCooldown,
		OnStateChange: func(open bool) {
			observability.ObserveBreaker(open)
			if open {
				logger.Warn().Dur("cooldown", cfg.BreakerCooldown).Msg("app: provider circuit opened")
				return
			}
			logger.Info().Msg("app: provider circuit closed")
		},
	})
	exec := resilience.NewExecutor(resilience.Options{
		Breaker:   rt.Breaker,
		Logger:    &logger,
		OnAttempt: observability.ObserveProviderCall,
	})

	musicKey, err := rt.Credentials.Resolve(ctx, credentials.ProviderMusic, cfg.MusicAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("app: failed to load music api key from store")
	}
	rt.Music, err = music.NewClient(music.Options{
		APIKey:       musicKey,
		BaseURL:      cfg.MusicBaseURL,
		AudioBaseURL: cfg.MusicAudioBaseURL,
		Model:        cfg.MusicModel,
		HTTPClient:   httpClient,
		Executor:     exec,
		SubmitPolicy: resilience.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Multiplier:  cfg.RetryMultiplier,
		},
		PollDeadline: cfg.PollDeadline,
		Logger:       &logger,
		OnPolled: func(attempts int) {
			observability.PollAttempts.Observe(float64(attempts))
		},
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("app: configure music client: %w", err)
	}
	if !rt.Music.HasCredentials() {
		logger.Warn().Str("model", rt.Music.Model()).Msg("app: music api key missing, submissions will be rejected")
	}

	rt.Writer = newLyricsWriter(ctx, cfg, rt.Credentials, httpClient, logger)

	migrator, err := generation.NewMigrator(generation.MigratorOptions{
		Repo:       rt.Repo,
		Store:      rt.Store,
		HTTPClient: httpClient,
		Logger:     &logger,
		Timeout:    cfg.MigrationTimeout,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.PlaceholderURL = strings.TrimSpace(cfg.PlaceholderAudioURL)
	if rt.PlaceholderURL == "" {
		rt.PlaceholderURL, err = InstallPlaceholder(ctx, rt.Store)
		if err != nil {
			logger.Warn().Err(err).Msg("app: placeholder audio unavailable, timeout fallback disabled")
		}
	}
	rt.Engine, err = generation.NewEngine(generation.Options{
		Repo:                rt.Repo,
		Music:               rt.Music,
		Writer:              rt.Writer,
		Migrator:            migrator,
		Logger:              &logger,
		PlaceholderAudioURL: rt.PlaceholderURL,
		StalePendingAge:     cfg.StalePendingAge,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// newLyricsWriter builds the configured writer. Model writers carry no
// fallback so the engine sees their failures; static text is only served when
// LYRICS_PROVIDER=static.
func newLyricsWriter(ctx context.Context, cfg *infra.Config, creds *credentials.Store, httpClient *http.Client, logger infra.Logger) lyrics.Writer {
	onFailure := func(reason string, err error) {
		logger.Warn().Err(err).Str("reason", reason).Msg("app: lyric writer request failed")
	}
	unavailable := func(provider, reason string) lyrics.Writer {
		logger.Warn().Str("provider", provider).Str("reason", reason).Msg("app: lyric writer unavailable")
		return lyrics.NewUnavailableWriter(provider, reason)
	}
	switch cfg.LyricsProvider {
	case credentials.ProviderOpenAI:
		key, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("app: failed to load openai api key from store")
		}
		if key == "" {
			return unavailable(credentials.ProviderOpenAI, "api key missing")
		}
		writer, err := lyrics.NewOpenAIWriter(lyrics.OpenAIOptions{
			APIKey:       key,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   httpClient,
			OnFallback:   onFailure,
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("app: openai writer warning")
			},
		})
		if err != nil {
			return unavailable(credentials.ProviderOpenAI, err.Error())
		}
		return writer
	case credentials.ProviderGemini:
		key, err := creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("app: failed to load gemini api key from store")
		}
		if key == "" {
			return unavailable(credentials.ProviderGemini, "api key missing")
		}
		writer, err := lyrics.NewGeminiWriter(lyrics.GeminiOptions{
			APIKey:     key,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: httpClient,
			OnFallback: onFailure,
		})
		if err != nil {
			return unavailable(credentials.ProviderGemini, err.Error())
		}
		return writer
	case "static":
		return lyrics.NewStaticWriter()
	}
	return unavailable(cfg.LyricsProvider, "unsupported lyrics provider")
}

// Ping reports database reachability. It is nil-safe for memory mode.
func (rt *Runtime) Ping(ctx context.Context) error {
	if rt.Pool == nil {
		return nil
	}
	return rt.Pool.Ping(ctx)
}

// Close releases the database pool.
func (rt *Runtime) Close() {
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}

// Migrate creates the schema. It is idempotent.
func Migrate(ctx context.Context, sql infra.SQLExecutor) error {
	if sql == nil {
		return errors.New("app: migrate requires a database")
	}
	if _, err := sql.Exec(ctx, sqlinline.QCreateSchema); err != nil {
		return fmt.Errorf("app: apply schema: %w", err)
	}
	return nil
}

// ProviderNames lists the providers whose keys may be stored.
func ProviderNames() string {
	return strings.Join(credentials.Providers, ", ")
}
