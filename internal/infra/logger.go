package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging contract shared by every package.
type Logger = zerolog.Logger

// NewLogger builds the process logger. Development gets colored console
// output at debug level; other environments emit JSON at info level.
// cfg.LogLevel overrides the level when it parses. A nil out means stdout.
func NewLogger(cfg *Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	level := zerolog.InfoLevel
	if cfg.Development() {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if raw := strings.TrimSpace(cfg.LogLevel); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "musicgen").
		Str("env", cfg.AppEnv).
		Logger()
}
