// Package storage persists knowledge documents, conversation logs and
// employee sessions on top of the database hub. One query layer serves both
// SQLite and PostgreSQL; dialect differences are limited to placeholders,
// case-insensitive matching and the full-text strategy.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jholhewres/opsclone/pkg/opsclone/database"
)

// ErrSessionNotFound is returned when an operation targets a user without a session.
var ErrSessionNotFound = errors.New("user session not found")

// timeLayout is fixed-width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store is the persistence layer used by the assistant and the gateway.
type Store struct {
	db       *sql.DB
	dialect  database.BackendType
	fts      bool
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// New migrates the hub's primary backend and returns a store over it.
func New(ctx context.Context, hub *database.Hub, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend := hub.Primary()
	if backend == nil {
		return nil, errors.New("database hub has no primary backend")
	}

	if err := hub.Migrate(ctx, "", 0); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", backend.Type, err)
	}

	s := &Store{
		db:       backend.DB,
		dialect:  backend.Type,
		validate: validator.New(),
		logger:   logger.With("component", "storage"),
		now:      time.Now,
	}
	s.fts = s.probeFullText(ctx)

	s.logger.Info("document store ready", "backend", s.dialect, "full_text", s.fts)
	return s, nil
}

// probeFullText reports whether full-text search is available. PostgreSQL
// always has it; SQLite only when the FTS5 index was created.
func (s *Store) probeFullText(ctx context.Context) bool {
	if s.dialect == database.BackendPostgreSQL {
		return true
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'document_fts'").Scan(&n)
	return err == nil && n > 0
}

// FullText reports whether searches use the full-text index.
func (s *Store) FullText() bool {
	return s.fts
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != database.BackendPostgreSQL {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// likeOp is the case-insensitive substring operator of the dialect.
func (s *Store) likeOp() string {
	if s.dialect == database.BackendPostgreSQL {
		return "ILIKE"
	}
	return "LIKE"
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
