package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var reKeepKindRunes = regexp.MustCompile(`[^0-9a-z_]+`)

// MaxNotesLength caps stored free-form text.
const MaxNotesLength = 2000

func trimAndCollapseSpace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}
	return result.String()
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func capLength(limit int) Strategy {
	return func(s string) string {
		if len(s) <= limit {
			return s
		}
		runes := []rune(s)
		if len(runes) > limit {
			runes = runes[:limit]
		}
		return string(runes)
	}
}

// SanitizeNotes cleans free-form booking notes: control characters stripped,
// whitespace collapsed, length capped.
func SanitizeNotes(input string) string {
	p := Pipeline{
		stripControl,
		trimAndCollapseSpace,
		capLength(MaxNotesLength),
	}
	return p.Apply(input)
}

// SanitizeKind normalizes an entity kind to lowercase snake form so "Room"
// and "room" reference the same bookable kind.
func SanitizeKind(input string) string {
	p := Pipeline{
		func(s string) string { return strings.ToLower(strings.TrimSpace(s)) },
		func(s string) string { return reKeepKindRunes.ReplaceAllString(s, "_") },
		func(s string) string { return strings.Trim(s, "_") },
	}
	return p.Apply(input)
}
