// Package sanitize turns server-provided text into something safe to put on
// a terminal: markup is stripped and control sequences are dropped.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text strips markup from s and removes control characters other than
// newline and tab. Entities are decoded after stripping since the
// terminal shows them literally.
func Text(s string) string {
	if s == "" {
		return ""
	}
	stripped := html.UnescapeString(strict.Sanitize(html.UnescapeString(s)))
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
}

// Name is Text for single-line labels such as usernames and room names.
func Name(s, fallback string) string {
	cleaned := strings.Join(strings.Fields(Text(s)), " ")
	if len([]rune(cleaned)) > 48 {
		cleaned = string([]rune(cleaned)[:48])
	}
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
