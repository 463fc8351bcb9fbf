package storage

import (
	"context"
	"fmt"
	"time"
)

// TimeRange selects the analytics window.
type TimeRange string

const (
	Range1Day   TimeRange = "1d"
	Range7Days  TimeRange = "7d"
	Range30Days TimeRange = "30d"
)

// ParseTimeRange maps a query value to a TimeRange, defaulting to 7 days.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return Range7Days, nil
	case Range1Day, Range7Days, Range30Days:
		return TimeRange(s), nil
	default:
		return "", fmt.Errorf("invalid time range %q (use 1d, 7d or 30d)", s)
	}
}

// Duration returns the length of the window.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case Range1Day:
		return 24 * time.Hour
	case Range30Days:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Analytics summarises usage over a time range.
type Analytics struct {
	TimeRange         TimeRange         `json:"timeRange"`
	Since             time.Time         `json:"since"`
	TotalInteractions int               `json:"totalInteractions"`
	UniqueUsers       int               `json:"uniqueUsers"`
	RequestModeUsage  int               `json:"requestModeUsage"`
	WebhookSuccesses  int               `json:"webhookSuccesses"`
	Conversations     []ConversationLog `json:"conversations"`
	Sessions          []UserSession     `json:"sessions"`
}

// Analytics collects conversations and sessions started within the range.
// Unique users are counted over sessions.
func (s *Store) Analytics(ctx context.Context, r TimeRange) (Analytics, error) {
	since := s.now().UTC().Add(-r.Duration())
	cutoff := formatTime(since)

	rows, err := s.query(ctx, `
		SELECT `+conversationColumns+` FROM conversation_logs
		WHERE created_at >= ?
		ORDER BY created_at DESC`, cutoff)
	if err != nil {
		return Analytics{}, fmt.Errorf("analytics conversations: %w", err)
	}
	conversations, err := scanConversations(rows)
	if err != nil {
		return Analytics{}, err
	}

	rows, err = s.query(ctx, `
		SELECT user_id, employee_name, department, role, session_start, last_activity, total_interactions
		FROM user_sessions
		WHERE session_start >= ?
		ORDER BY session_start DESC`, cutoff)
	if err != nil {
		return Analytics{}, fmt.Errorf("analytics sessions: %w", err)
	}
	sessions, err := scanSessions(rows)
	if err != nil {
		return Analytics{}, err
	}

	out := Analytics{
		TimeRange:         r,
		Since:             since,
		TotalInteractions: len(conversations),
		Conversations:     conversations,
		Sessions:          sessions,
	}

	users := make(map[string]struct{}, len(sessions))
	for _, u := range sessions {
		users[u.UserID] = struct{}{}
	}
	out.UniqueUsers = len(users)

	for _, c := range conversations {
		if c.RequestMode {
			out.RequestModeUsage++
		}
		if c.WebhookSent {
			out.WebhookSuccesses++
		}
	}
	return out, nil
}
