package copilot

import (
	"strings"

	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
)

const (
	// MinConfidence is reported when nothing relevant was retrieved.
	MinConfidence = 0.3

	// MaxEstimatedConfidence caps every estimate. Only the request-mode
	// acknowledgment reports AcknowledgedConfidence.
	MaxEstimatedConfidence = 0.95

	AcknowledgedConfidence = 1.0

	leadershipBoost = 0.1
)

// EstimateConfidence scores how well chunks support an answer: the average
// relevance, boosted when any chunk is a policy or mentions leadership.
func EstimateConfidence(chunks []knowledge.ContentChunk, identityTerms []string) float64 {
	if len(chunks) == 0 {
		return MinConfidence
	}

	var sum float64
	boost := false
	for _, c := range chunks {
		sum += c.RelevanceScore
		if !boost && (c.Kind == knowledge.KindPolicy || mentionsLeadership(c.Content, identityTerms)) {
			boost = true
		}
	}

	score := sum / float64(len(chunks))
	if boost {
		score += leadershipBoost
	}
	return clamp(score, MinConfidence, MaxEstimatedConfidence)
}

func mentionsLeadership(content string, identityTerms []string) bool {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "executive") {
		return true
	}
	for _, term := range identityTerms {
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
