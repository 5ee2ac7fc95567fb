package generation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"musicgen/internal/domain"
	"musicgen/internal/providers/music"
)

const (
	maxRawPromptChars   = 2000
	maxRawLyricsChars   = 10000
	maxStyleTagChars    = 120
	minDurationSeconds  = 10
	maxDurationSeconds  = 480
	maxRequesterIDChars = 128
)

// Validate normalizes req and rejects input that can never be generated.
// Errors wrap domain.ErrValidation.
func Validate(req domain.CreateRequest) (domain.CreateRequest, error) {
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	if utf8.RuneCountInString(req.RequesterID) > maxRequesterIDChars {
		return req, invalid("requester id is too long")
	}
	if utf8.RuneCountInString(req.PromptText) > maxRawPromptChars {
		return req, invalid("prompt must be at most %d characters", maxRawPromptChars)
	}
	if utf8.RuneCountInString(req.Lyrics) > maxRawLyricsChars {
		return req, invalid("lyrics must be at most %d characters", maxRawLyricsChars)
	}

	req.PromptText = music.NormalizePrompt(req.PromptText)
	if req.PromptText == "" {
		return req, invalid("prompt is required")
	}

	req.StyleTag = strings.Join(strings.Fields(req.StyleTag), " ")
	if utf8.RuneCountInString(req.StyleTag) > maxStyleTagChars {
		return req, invalid("style must be at most %d characters", maxStyleTagChars)
	}
	req.Title = music.NormalizeTitle(req.Title)
	req.Lyrics = music.NormalizeLyrics(req.Lyrics)
	req.Locale = strings.TrimSpace(req.Locale)

	if req.VoiceGender == "" {
		req.VoiceGender = domain.VoiceGenderAuto
	}
	req.VoiceGender = domain.VoiceGender(strings.ToLower(string(req.VoiceGender)))
	if !req.VoiceGender.Valid() {
		return req, invalid("voice gender %q is not one of male, female, auto", req.VoiceGender)
	}

	if d := req.TargetDurationSeconds; d != 0 && (d < minDurationSeconds || d > maxDurationSeconds) {
		return req, invalid("duration must be between %d and %d seconds", minDurationSeconds, maxDurationSeconds)
	}

	if req.WantsInstrumental {
		req.Lyrics = ""
		req.WantsGeneratedLyrics = false
	}
	return req, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}
