package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language/display"
)

// completion is the single text-model call shared by the model writers.
type completion func(ctx context.Context, prompt string, temperature float64) (string, error)

type modelDraftPayload struct {
	Title  string `json:"title"`
	Lyrics string `json:"lyrics"`
}

type modelDescribePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Lyrics      string `json:"lyrics"`
}

// modelWriter implements Writer on top of a completion. When the model call
// fails and a fallback writer is configured, the fallback answers instead.
type modelWriter struct {
	provider   string
	complete   completion
	fallback   Writer
	onFallback func(reason string, err error)
}

func (m *modelWriter) DraftLyrics(ctx context.Context, req DraftRequest) (*Draft, error) {
	text, err := m.complete(ctx, buildDraftPrompt(req), 0.8)
	if err != nil {
		return m.draftFallback(ctx, req, "completion", err)
	}
	parsed, err := parseModelPayload[modelDraftPayload](text)
	if err != nil {
		return m.draftFallback(ctx, req, "parse_payload", err)
	}
	if strings.TrimSpace(parsed.Lyrics) == "" {
		return m.draftFallback(ctx, req, "empty_lyrics", errors.New("model returned no lyrics"))
	}
	return &Draft{
		Title:    coalesce(req.Title, parsed.Title),
		Lyrics:   strings.TrimSpace(parsed.Lyrics),
		Provider: m.provider,
	}, nil
}

func (m *modelWriter) DescribeTrack(ctx context.Context, req DescribeRequest) (*Description, error) {
	text, err := m.complete(ctx, buildDescribePrompt(req), 0.6)
	if err != nil {
		return m.describeFallback(ctx, req, "completion", err)
	}
	parsed, err := parseModelPayload[modelDescribePayload](text)
	if err != nil {
		return m.describeFallback(ctx, req, "parse_payload", err)
	}
	if strings.TrimSpace(parsed.Description) == "" {
		return m.describeFallback(ctx, req, "empty_description", errors.New("model returned no description"))
	}
	return &Description{
		Title:       coalesce(req.Title, parsed.Title, subjectOf(req.PromptText)),
		Description: strings.TrimSpace(parsed.Description),
		Lyrics:      strings.TrimSpace(parsed.Lyrics),
		Provider:    m.provider,
	}, nil
}

func (m *modelWriter) draftFallback(ctx context.Context, req DraftRequest, reason string, cause error) (*Draft, error) {
	m.emitFallback(reason, cause)
	if m.fallback == nil {
		return nil, fmt.Errorf("%s: draft lyrics: %s: %w", m.provider, reason, cause)
	}
	return m.fallback.DraftLyrics(ctx, req)
}

func (m *modelWriter) describeFallback(ctx context.Context, req DescribeRequest, reason string, cause error) (*Description, error) {
	m.emitFallback(reason, cause)
	if m.fallback == nil {
		return nil, fmt.Errorf("%s: describe track: %s: %w", m.provider, reason, cause)
	}
	return m.fallback.DescribeTrack(ctx, req)
}

func (m *modelWriter) emitFallback(reason string, err error) {
	if m.onFallback != nil {
		m.onFallback(reason, err)
	}
}

func buildDraftPrompt(req DraftRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("You are a songwriter. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"title":string,"lyrics":string}`)
	fmt.Fprintf(sb, ". Write the lyrics in %s, mark sections with [Verse], [Chorus] and [Bridge], and keep them under 2500 characters.", languageName(req.Locale))
	fmt.Fprintf(sb, " Input details: prompt=%q, style=%q, title=%q.", req.PromptText, req.StyleTag, req.Title)
	return sb.String()
}

func buildDescribePrompt(req DescribeRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("The audio for a requested song could not be rendered in time. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"title":string,"description":string,"lyrics":string}`)
	fmt.Fprintf(sb, ". Describe in two sentences of %s how the track would sound", languageName(req.Locale))
	if req.Instrumental {
		sb.WriteString(" and leave lyrics empty")
	}
	fmt.Fprintf(sb, ". Input details: prompt=%q, style=%q, title=%q, duration_seconds=%d.", req.PromptText, req.StyleTag, req.Title, req.DurationSeconds)
	return sb.String()
}

func languageName(locale string) string {
	name := display.English.Tags().Name(localeTag(locale))
	if name == "" {
		return "English"
	}
	return name
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
