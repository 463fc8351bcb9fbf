package copilot

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// simpleMaxLength is the length below which any message counts as simple.
const simpleMaxLength = 20

// supplementThreshold is the confidence below which retrieval is
// supplemented with recent information.
const supplementThreshold = 0.5

var simplePhrases = []string{
	"who are you",
	"what is your name",
	"introduce yourself",
	"tell me about yourself",
	"what do you do",
	"what is your role",
	"your position",
	"your job",
	"hello",
	"hi",
	"good morning",
	"good afternoon",
	"greetings",
	"help",
	"what can you do",
	"how can you help",
}

var recencyKeywords = []string{
	"latest", "recent", "current", "today", "now", "update",
	"news", "market", "trend", "development", "announcement", "release",
}

// Classification is the routing decision for one message.
type Classification struct {
	// Simple messages get the short output cap and never a supplement.
	Simple bool `json:"simple"`

	// Supplement asks the model to add recent information.
	Supplement bool `json:"supplement"`
}

// Classify applies IsSimple and NeedsSupplement.
func Classify(text string, confidence float64) Classification {
	simple := IsSimple(text)
	return Classification{
		Simple:     simple,
		Supplement: !simple && needsSupplement(text, confidence),
	}
}

// IsSimple reports whether text is a greeting, an identity question or
// otherwise short. Phrases match on word boundaries in either direction, so
// "hi there" matches "hi" and "who are" matches "who are you", while "this"
// does not match "hi".
func IsSimple(text string) bool {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < simpleMaxLength {
		return true
	}

	padded := " " + normalizeWords(trimmed) + " "
	if strings.TrimSpace(padded) == "" {
		return false
	}
	for _, phrase := range simplePhrases {
		p := " " + phrase + " "
		if strings.Contains(padded, p) || strings.Contains(p, padded) {
			return true
		}
	}
	return false
}

// NeedsSupplement reports whether the answer should draw on recent
// information beyond the retrieved documents.
func NeedsSupplement(text string, confidence float64) bool {
	if IsSimple(text) {
		return false
	}
	return needsSupplement(text, confidence)
}

func needsSupplement(text string, confidence float64) bool {
	if confidence < supplementThreshold {
		return true
	}
	// Keywords match word prefixes: "updated", "currently" and "trending"
	// count, "know" does not.
	for _, word := range strings.Fields(normalizeWords(text)) {
		for _, kw := range recencyKeywords {
			if strings.HasPrefix(word, kw) {
				return true
			}
		}
	}
	return false
}

// normalizeWords lowercases text and reduces it to single-space separated
// words of letters and digits.
func normalizeWords(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		if r == '\'' {
			return -1
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}
