package knowledge

import (
	"strings"
	"unicode"
)

// Sanitize prepares free text for a full-text query: punctuation and symbols
// become spaces, runs of whitespace collapse to one space, and the result is
// lowercased.
func Sanitize(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, query)
	return strings.ToLower(strings.Join(strings.Fields(cleaned), " "))
}

// estimateTokens approximates the token count for a string (~4 chars per
// token).
func estimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return int(float64(len(s))/4.0 + 0.5)
}
