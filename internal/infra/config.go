package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	LogLevel       string
	Port           string
	DatabaseURL    string
	DBMaxConns     int32
	JWTSecret      string
	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string
	CORSOrigins    []string

	MusicAPIKey       string
	MusicBaseURL      string
	MusicAudioBaseURL string
	MusicModel        string
	ProviderMaxConns  int
	ProviderTimeout   time.Duration

	LyricsProvider string
	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	OpenAIOrg      string

	// PlaceholderAudioURL overrides the bundled placeholder installed into
	// storage at startup.
	PlaceholderAudioURL string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMultiplier  float64
	BreakerThreshold int
	BreakerCooldown  time.Duration
	PollDeadline     time.Duration
	StalePendingAge  time.Duration
	MigrationTimeout time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		Port:           port,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:     int32(getEnvInt("DB_MAX_CONNS", 10)),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins:    splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		MusicAPIKey:       os.Getenv("MUSIC_API_KEY"),
		MusicBaseURL:      getEnv("MUSIC_BASE_URL", "https://api.sunoapi.org/api/v1"),
		MusicAudioBaseURL: getEnv("MUSIC_AUDIO_BASE_URL", "https://cdn1.suno.ai"),
		MusicModel:        getEnv("MUSIC_MODEL", "V4_5"),
		ProviderMaxConns:  getEnvInt("PROVIDER_MAX_CONNS", 32),
		ProviderTimeout:   time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 30)),

		LyricsProvider: strings.ToLower(getEnv("LYRICS_PROVIDER", "openai")),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:      os.Getenv("OPENAI_ORG"),

		PlaceholderAudioURL: os.Getenv("PLACEHOLDER_AUDIO_URL"),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 4),
		RetryBaseDelay:   time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)),
		RetryMaxDelay:    time.Millisecond * time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 30000)),
		RetryMultiplier:  getEnvFloat("RETRY_MULTIPLIER", 2),
		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  time.Second * time.Duration(getEnvInt("BREAKER_COOLDOWN_SECONDS", 300)),
		PollDeadline:     time.Second * time.Duration(getEnvInt("POLL_DEADLINE_SECONDS", 180)),
		StalePendingAge:  time.Minute * time.Duration(getEnvInt("STALE_PENDING_MINUTES", 5)),
		MigrationTimeout: time.Second * time.Duration(getEnvInt("MIGRATION_TIMEOUT_SECONDS", 120)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.LyricsProvider {
	case "openai", "gemini", "static":
	default:
		return nil, fmt.Errorf("LYRICS_PROVIDER %q is not supported", cfg.LyricsProvider)
	}
	if _, err := url.ParseRequestURI(cfg.MusicBaseURL); err != nil {
		return nil, fmt.Errorf("MUSIC_BASE_URL is invalid: %w", err)
	}
	if cfg.RetryMaxAttempts <= 0 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// Development reports whether the service runs with developer defaults.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
