package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerWritesJSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{AppEnv: "production"}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %s, want info", logger.GetLevel())
	}
	logger.Debug().Msg("hidden")
	logger.Info().Str("job_id", "j1").Msg("visible")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "musicgen" || entry["env"] != "production" || entry["job_id"] != "j1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerHonoursLogLevel(t *testing.T) {
	logger := NewLogger(&Config{AppEnv: "development", LogLevel: "WARN"}, &bytes.Buffer{})
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %s, want warn", logger.GetLevel())
	}
	logger = NewLogger(&Config{AppEnv: "production", LogLevel: "loud"}, &bytes.Buffer{})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("invalid LOG_LEVEL must keep the default, got %s", logger.GetLevel())
	}
}
