// Package credential finds bot tokens in free-form operator text.
package credential

import (
	"regexp"
	"strings"
)

var (
	tokenPattern  = regexp.MustCompile(`\b([0-9]+:[\w-]+)`)
	nonAlnumRunes = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Extract returns the first token-shaped substring of text.
// The token is not validated against the platform.
func Extract(text string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SessionName derives a client session name by dropping every
// non-alphanumeric character. Distinct tokens may collide.
func SessionName(token string) string {
	return nonAlnumRunes.ReplaceAllString(token, "")
}

// Redact keeps the numeric bot id and hides the secret part.
func Redact(token string) string {
	id, _, ok := strings.Cut(token, ":")
	if !ok {
		return "***"
	}
	return id + ":***"
}
