package copilot

import "strings"

// Urgency ranks how soon a decision needs action.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyImmediate Urgency = "immediate"
)

// DecisionSignal describes whether a reply reads as an executive decision.
type DecisionSignal struct {
	IsDecision     bool    `json:"isDecision"`
	ActionRequired bool    `json:"actionRequired"`
	Urgency        Urgency `json:"urgency"`
}

var decisionVerbs = []string{"approve", "deny", "authorize", "implement", "proceed", "escalate"}

var actionPhrases = []string{"next steps", "action required"}

// urgencyTiers are checked in order; the first tier with a hit wins.
var urgencyTiers = []struct {
	level    Urgency
	keywords []string
}{
	{UrgencyImmediate, []string{"immediately", "urgent", "asap", "critical"}},
	{UrgencyHigh, []string{"priority", "important", "soon"}},
	{UrgencyMedium, []string{"schedule", "plan", "coordinate"}},
	{UrgencyLow, []string{"when possible", "routine", "standard"}},
}

// AnalyzeDecision inspects a model reply for decision language. Every
// decision requires action; other replies only when they say so.
func AnalyzeDecision(reply string) DecisionSignal {
	lower := strings.ToLower(reply)

	isDecision := containsAny(lower, decisionVerbs)
	signal := DecisionSignal{
		IsDecision:     isDecision,
		ActionRequired: isDecision || containsAny(lower, actionPhrases),
		Urgency:        UrgencyLow,
	}
	for _, tier := range urgencyTiers {
		if containsAny(lower, tier.keywords) {
			signal.Urgency = tier.level
			break
		}
	}
	return signal
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
