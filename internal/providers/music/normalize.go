package music

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Character ceilings accepted by the provider.
const (
	MaxPromptChars = 400
	MaxLyricsChars = 3000
	MaxTitleChars  = 80
)

const allowedPunctuation = `.,!?'"-:;()&`

// NormalizePrompt prepares free-form text for submission: Unicode NFC,
// characters outside the allow-list dropped, whitespace collapsed, repeated
// adjacent words removed and the result cut at a word boundary.
func NormalizePrompt(s string) string {
	return truncateWords(dedupeAdjacent(strings.Fields(stripDisallowed(s))), MaxPromptChars)
}

// NormalizeTitle applies the prompt rules with the title ceiling.
func NormalizeTitle(s string) string {
	return truncateWords(strings.Fields(stripDisallowed(s)), MaxTitleChars)
}

// NormalizeLyrics keeps line structure, trims each line, squeezes runs of blank
// lines and cuts at the last full line under the ceiling.
func NormalizeLyrics(s string) string {
	s = norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))
	var (
		lines []string
		blank bool
	)
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(lines) > 0 {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		blank = false
		lines = append(lines, line)
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var b strings.Builder
	count := 0
	for i, line := range lines {
		n := len([]rune(line))
		if i > 0 {
			n++
		}
		if count+n > MaxLyricsChars {
			if count == 0 {
				return string([]rune(line)[:MaxLyricsChars])
			}
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		count += n
	}
	return b.String()
}

func stripDisallowed(s string) string {
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(allowedPunctuation, r):
			return r
		}
		return ' '
	}, s)
}

func dedupeAdjacent(words []string) []string {
	out := words[:0:0]
	for _, w := range words {
		if len(out) > 0 && strings.EqualFold(out[len(out)-1], w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func truncateWords(words []string, limit int) string {
	var b strings.Builder
	count := 0
	for _, w := range words {
		n := len([]rune(w))
		sep := 0
		if count > 0 {
			sep = 1
		}
		if count+sep+n > limit {
			if count == 0 {
				return string([]rune(w)[:limit])
			}
			break
		}
		if sep == 1 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		count += sep + n
	}
	return b.String()
}
