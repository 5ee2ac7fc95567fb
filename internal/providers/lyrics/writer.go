package lyrics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

// DraftRequest carries the inputs for drafting lyrics.
type DraftRequest struct {
	PromptText string
	StyleTag   string
	Title      string
	Locale     string
}

// Draft is a lyric draft produced by a text model.
type Draft struct {
	Title    string
	Lyrics   string
	Provider string
}

// DescribeRequest carries the inputs for a descriptive placeholder result,
// used when the music provider does not deliver audio in time.
type DescribeRequest struct {
	PromptText      string
	StyleTag        string
	Title           string
	Locale          string
	Instrumental    bool
	DurationSeconds int
}

// Description is the text side of a placeholder result.
type Description struct {
	Title       string
	Description string
	Lyrics      string
	Provider    string
}

// Writer is the text-generation collaborator of the generation engine.
type Writer interface {
	DraftLyrics(ctx context.Context, req DraftRequest) (*Draft, error)
	DescribeTrack(ctx context.Context, req DescribeRequest) (*Description, error)
}

// ErrUnavailable reports that no text model can serve the call.
var ErrUnavailable = errors.New("lyrics: writer unavailable")

// UnavailableWriter fails every call with ErrUnavailable. It stands in for a
// model writer that could not be configured.
type UnavailableWriter struct {
	provider string
	reason   string
}

func NewUnavailableWriter(provider, reason string) *UnavailableWriter {
	return &UnavailableWriter{provider: provider, reason: reason}
}

func (u *UnavailableWriter) DraftLyrics(context.Context, DraftRequest) (*Draft, error) {
	return nil, fmt.Errorf("%s: draft lyrics: %s: %w", u.provider, u.reason, ErrUnavailable)
}

func (u *UnavailableWriter) DescribeTrack(context.Context, DescribeRequest) (*Description, error) {
	return nil, fmt.Errorf("%s: describe track: %s: %w", u.provider, u.reason, ErrUnavailable)
}

// StaticWriter produces deterministic text without calling a model. It is
// selected only for offline development.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter {
	return &StaticWriter{}
}

func (s *StaticWriter) DraftLyrics(ctx context.Context, req DraftRequest) (*Draft, error) {
	subject := subjectOf(req.PromptText)
	title := coalesce(req.Title, titleCase(subject, req.Locale))
	style := coalesce(req.StyleTag, "song")
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Verse]\n%s in the evening light\nA %s carried through the night\n\n", capitalize(subject), style)
	fmt.Fprintf(&sb, "[Chorus]\nSing it slow, sing it true\n%s, I come back to you", capitalize(subject))
	return &Draft{Title: title, Lyrics: sb.String(), Provider: staticProviderName}, nil
}

func (s *StaticWriter) DescribeTrack(ctx context.Context, req DescribeRequest) (*Description, error) {
	subject := subjectOf(req.PromptText)
	kind := "vocal piece"
	if req.Instrumental {
		kind = "instrumental piece"
	}
	desc := fmt.Sprintf("A %s inspired by %s", kind, subject)
	if style := strings.TrimSpace(req.StyleTag); style != "" {
		desc += ", in a " + style + " style"
	}
	return &Description{
		Title:       coalesce(req.Title, titleCase(subject, req.Locale)),
		Description: desc + ".",
		Provider:    staticProviderName,
	}, nil
}

func subjectOf(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return "a quiet melody"
	}
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

func titleCase(s, locale string) string {
	return cases.Title(localeTag(locale)).String(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return cases.Upper(language.Und).String(string(r[0])) + string(r[1:])
}

func localeTag(locale string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return language.English
	}
	return tag
}

var _ Writer = (*StaticWriter)(nil)
