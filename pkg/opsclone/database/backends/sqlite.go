// Package backends provides database backend implementations.
package backends

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is the schema version written by the migrators.
const SchemaVersion = 1

// SQLiteBackend wraps the SQLite database connection with additional functionality.
type SQLiteBackend struct {
	DB     *sql.DB
	Config SQLiteConfig

	// Migrator handles schema migrations
	Migrator *SQLiteMigrator

	// Health checker
	Health *SQLiteHealthChecker
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path        string
	JournalMode string
	BusyTimeout int
	ForeignKeys bool
}

// OpenSQLite opens or creates a SQLite database with the given configuration.
func OpenSQLite(config SQLiteConfig, logger *slog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Path == "" {
		config.Path = "./data/opsclone.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5000
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d", config.Path, config.JournalMode, config.BusyTimeout)
	if config.ForeignKeys {
		dsn += "&_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", config.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteBackend{
		DB:       db,
		Config:   config,
		Migrator: NewSQLiteMigrator(db, logger),
		Health:   NewSQLiteHealthChecker(db),
	}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.DB.Close()
}

// SQLiteMigrator handles schema migrations for SQLite.
type SQLiteMigrator struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteMigrator creates a new SQLite migrator.
func NewSQLiteMigrator(db *sql.DB, logger *slog.Logger) *SQLiteMigrator {
	return &SQLiteMigrator{db: db, logger: logger}
}

// CurrentVersion returns the current schema version.
func (m *SQLiteMigrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows || strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// Migrate applies the schema. The full-text index is optional: when the
// driver was built without FTS5 the error is logged and search falls back
// to LIKE queries.
func (m *SQLiteMigrator) Migrate(ctx context.Context, target int) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	if _, err := m.db.ExecContext(ctx, GetSQLiteSchema()); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, GetSQLiteFTSSchema()); err != nil {
		m.logger.Warn("FTS5 not available, document search will use LIKE", "error", err)
	}

	if current == 0 {
		_, err = m.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", SchemaVersion)
		if err != nil && !isDuplicateKeyError(err) {
			return fmt.Errorf("record migration: %w", err)
		}
	}

	return nil
}

// NeedsMigration returns true if schema is outdated.
func (m *SQLiteMigrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < SchemaVersion, nil
}

// SQLiteHealthChecker monitors SQLite database health.
type SQLiteHealthChecker struct {
	db *sql.DB
}

// NewSQLiteHealthChecker creates a new health checker.
func NewSQLiteHealthChecker(db *sql.DB) *SQLiteHealthChecker {
	return &SQLiteHealthChecker{db: db}
}

// Ping checks database connectivity.
func (h *SQLiteHealthChecker) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Status returns detailed health status.
func (h *SQLiteHealthChecker) Status(ctx context.Context) (map[string]any, error) {
	stats := h.db.Stats()

	var version string
	if err := h.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return map[string]any{
			"healthy": false,
			"error":   err.Error(),
		}, nil
	}

	return map[string]any{
		"healthy":          true,
		"version":          version,
		"open_conns":       stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
		"max_open_conns":   stats.MaxOpenConnections,
	}, nil
}

func isDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetSQLiteSchema returns the SQLite schema DDL. Timestamps are stored as
// fixed-width UTC text so they compare lexically.
func GetSQLiteSchema() string {
	return `
-- Knowledge documents
CREATE TABLE IF NOT EXISTS document_store (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    content      TEXT NOT NULL,
    type         TEXT NOT NULL,
    department   TEXT DEFAULT '',
    author       TEXT NOT NULL,
    access_level TEXT NOT NULL DEFAULT 'public',
    date_created TEXT NOT NULL,
    last_updated TEXT NOT NULL,
    is_active    INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_document_store_type ON document_store(type);
CREATE INDEX IF NOT EXISTS idx_document_store_updated ON document_store(last_updated);

-- Conversation audit trail
CREATE TABLE IF NOT EXISTS conversation_logs (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    user_message         TEXT NOT NULL,
    ai_response          TEXT NOT NULL,
    confidence           REAL DEFAULT 0,
    request_mode_enabled INTEGER NOT NULL DEFAULT 0,
    task_generated       TEXT,
    webhook_sent         INTEGER NOT NULL DEFAULT 0,
    webhook_response     TEXT,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_logs_user ON conversation_logs(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_conversation_logs_created ON conversation_logs(created_at);

-- Employee sessions
CREATE TABLE IF NOT EXISTS user_sessions (
    user_id            TEXT PRIMARY KEY,
    employee_name      TEXT DEFAULT '',
    department         TEXT DEFAULT '',
    role               TEXT DEFAULT '',
    session_start      TEXT NOT NULL,
    last_activity      TEXT NOT NULL,
    total_interactions INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_user_sessions_start ON user_sessions(session_start);
`
}

// GetSQLiteFTSSchema returns the FTS5 index over document titles and
// content, kept in sync by triggers.
func GetSQLiteFTSSchema() string {
	return `
CREATE VIRTUAL TABLE IF NOT EXISTS document_fts USING fts5(
    title,
    content,
    content='document_store',
    content_rowid='rowid',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS document_store_ai AFTER INSERT ON document_store BEGIN
    INSERT INTO document_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
END;

CREATE TRIGGER IF NOT EXISTS document_store_ad AFTER DELETE ON document_store BEGIN
    INSERT INTO document_fts(document_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
END;

CREATE TRIGGER IF NOT EXISTS document_store_au AFTER UPDATE ON document_store BEGIN
    INSERT INTO document_fts(document_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
    INSERT INTO document_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
END;
`
}
