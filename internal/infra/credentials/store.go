// Package credentials keeps provider API keys in the database so operators can
// rotate them without redeploying.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"musicgen/internal/infra"
	"musicgen/internal/sqlinline"
)

const (
	ProviderMusic  = "music"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrUnknownProvider is returned for provider names outside the supported set.
var ErrUnknownProvider = errors.New("credentials: unknown provider")

// Providers lists the integrations whose API keys may be stored.
var Providers = []string{ProviderMusic, ProviderOpenAI, ProviderGemini}

// KeyInfo describes a stored key without revealing it.
type KeyInfo struct {
	Provider  string    `json:"provider"`
	Masked    string    `json:"key"`
	SetBy     string    `json:"set_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes rows of the provider_keys table.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return "", err
	}
	var key string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: read %s key: %w", provider, err)
	}
	return strings.TrimSpace(key), nil
}

// SetToken stores key for provider, replacing any previous value. setBy names
// the operator for auditing and may be empty.
func (s *Store) SetToken(ctx context.Context, provider, key, setBy string) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderKey, provider, key, strings.TrimSpace(setBy)); err != nil {
		return fmt.Errorf("credentials: store %s key: %w", provider, err)
	}
	return nil
}

// List returns every stored key, masked.
func (s *Store) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListProviderKeys)
	if err != nil {
		return nil, fmt.Errorf("credentials: list keys: %w", err)
	}
	defer rows.Close()

	var out []KeyInfo
	for rows.Next() {
		var info KeyInfo
		var key string
		if err := rows.Scan(&info.Provider, &key, &info.SetBy, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("credentials: scan key: %w", err)
		}
		info.Masked = Mask(key)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Resolve returns explicit when set, otherwise the stored key for provider.
func (s *Store) Resolve(ctx context.Context, provider, explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	if s == nil || s.sql == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

// Mask keeps the last four characters of key.
func Mask(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func normalizeProvider(provider string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}
