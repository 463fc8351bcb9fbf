package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit caps ConversationHistory when no limit is given.
const DefaultHistoryLimit = 50

const conversationColumns = "id, user_id, user_message, ai_response, confidence, request_mode_enabled, task_generated, webhook_sent, webhook_response, created_at, updated_at"

// ConversationLog is one recorded exchange between an employee and the assistant.
type ConversationLog struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id" validate:"required"`
	UserMessage     string          `json:"user_message"`
	AIResponse      string          `json:"ai_response"`
	Confidence      float64         `json:"confidence"`
	RequestMode     bool            `json:"request_mode_enabled"`
	TaskGenerated   json.RawMessage `json:"task_generated,omitempty"`
	WebhookSent     bool            `json:"webhook_sent"`
	WebhookResponse json.RawMessage `json:"webhook_response,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// UserSession tracks an employee's current session.
type UserSession struct {
	UserID            string    `json:"user_id" validate:"required"`
	EmployeeName      string    `json:"employee_name"`
	Department        string    `json:"department"`
	Role              string    `json:"role"`
	SessionStart      time.Time `json:"session_start"`
	LastActivity      time.Time `json:"last_activity"`
	TotalInteractions int       `json:"total_interactions"`
}

// LogConversation records an exchange and returns it with its id and
// timestamps filled in.
func (s *Store) LogConversation(ctx context.Context, entry ConversationLog) (ConversationLog, error) {
	if err := s.validate.Struct(entry); err != nil {
		return ConversationLog{}, fmt.Errorf("invalid conversation log: %w", err)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	ts := s.timestamp()
	entry.CreatedAt = parseTime(ts)
	entry.UpdatedAt = entry.CreatedAt

	_, err := s.exec(ctx, `
		INSERT INTO conversation_logs (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.UserMessage, entry.AIResponse, entry.Confidence,
		boolInt(entry.RequestMode), nullableJSON(entry.TaskGenerated), boolInt(entry.WebhookSent),
		nullableJSON(entry.WebhookResponse), ts, ts)
	if err != nil {
		return ConversationLog{}, fmt.Errorf("log conversation: %w", err)
	}
	return entry, nil
}

// ConversationHistory returns a user's most recent exchanges, newest first.
func (s *Store) ConversationHistory(ctx context.Context, userID string, limit int) ([]ConversationLog, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.query(ctx, `
		SELECT `+conversationColumns+` FROM conversation_logs
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation history: %w", err)
	}
	return scanConversations(rows)
}

// UpdateUserSession upserts the session for a user, restarting it with a
// single interaction.
func (s *Store) UpdateUserSession(ctx context.Context, session UserSession) (UserSession, error) {
	if err := s.validate.Struct(session); err != nil {
		return UserSession{}, fmt.Errorf("invalid user session: %w", err)
	}
	ts := s.timestamp()

	_, err := s.exec(ctx, `
		INSERT INTO user_sessions (user_id, employee_name, department, role, session_start, last_activity, total_interactions)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			employee_name = excluded.employee_name,
			department = excluded.department,
			role = excluded.role,
			session_start = excluded.session_start,
			last_activity = excluded.last_activity,
			total_interactions = 1`,
		session.UserID, session.EmployeeName, session.Department, session.Role, ts, ts)
	if err != nil {
		return UserSession{}, fmt.Errorf("update user session: %w", err)
	}

	session.SessionStart = parseTime(ts)
	session.LastActivity = session.SessionStart
	session.TotalInteractions = 1
	return session, nil
}

// IncrementInteractionCount bumps the interaction counter of an existing
// session and returns the new count.
func (s *Store) IncrementInteractionCount(ctx context.Context, userID string) (int, error) {
	res, err := s.exec(ctx, `
		UPDATE user_sessions
		SET total_interactions = total_interactions + 1, last_activity = ?
		WHERE user_id = ?`, s.timestamp(), userID)
	if err != nil {
		return 0, fmt.Errorf("increment interactions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, ErrSessionNotFound
	}

	var count int
	if err := s.queryRow(ctx, "SELECT total_interactions FROM user_sessions WHERE user_id = ?", userID).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("read interactions: %w", err)
	}
	return count, nil
}

// Session returns the session of a user.
func (s *Store) Session(ctx context.Context, userID string) (UserSession, error) {
	rows, err := s.query(ctx, `
		SELECT user_id, employee_name, department, role, session_start, last_activity, total_interactions
		FROM user_sessions WHERE user_id = ?`, userID)
	if err != nil {
		return UserSession{}, fmt.Errorf("user session: %w", err)
	}
	sessions, err := scanSessions(rows)
	if err != nil {
		return UserSession{}, err
	}
	if len(sessions) == 0 {
		return UserSession{}, ErrSessionNotFound
	}
	return sessions[0], nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanConversations(rows *sql.Rows) ([]ConversationLog, error) {
	defer rows.Close()

	var out []ConversationLog
	for rows.Next() {
		var (
			c                ConversationLog
			task, webhook    sql.NullString
			created, updated string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.UserMessage, &c.AIResponse, &c.Confidence,
			&c.RequestMode, &task, &c.WebhookSent, &webhook, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if task.Valid {
			c.TaskGenerated = json.RawMessage(task.String)
		}
		if webhook.Valid {
			c.WebhookResponse = json.RawMessage(webhook.String)
		}
		c.CreatedAt = parseTime(created)
		c.UpdatedAt = parseTime(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSessions(rows *sql.Rows) ([]UserSession, error) {
	defer rows.Close()

	var out []UserSession
	for rows.Next() {
		var (
			u                      UserSession
			name, department, role sql.NullString
			start, last            string
		)
		if err := rows.Scan(&u.UserID, &name, &department, &role, &start, &last, &u.TotalInteractions); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		u.EmployeeName = name.String
		u.Department = department.String
		u.Role = role.String
		u.SessionStart = parseTime(start)
		u.LastActivity = parseTime(last)
		out = append(out, u)
	}
	return out, rows.Err()
}
