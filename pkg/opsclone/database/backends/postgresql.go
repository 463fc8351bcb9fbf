package backends

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// PostgreSQLBackend wraps the PostgreSQL database connection.
type PostgreSQLBackend struct {
	DB     *sql.DB
	Config PostgreSQLConfig

	// Migrator handles schema migrations
	Migrator *PostgreSQLMigrator

	// Health checker
	Health *PostgreSQLHealthChecker
}

// PostgreSQLConfig holds PostgreSQL-specific configuration.
type PostgreSQLConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Supabase project URL (https://<ref>.supabase.co). When set, the
	// direct database host is derived from it.
	SupabaseURL string
}

// OpenPostgreSQL opens a PostgreSQL (or Supabase) database connection.
func OpenPostgreSQL(config PostgreSQLConfig, logger *slog.Logger) (*PostgreSQLBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()

	db, err := sql.Open("pgx", BuildPostgreSQLDSN(config))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Debug("postgresql connected", "host", config.Host, "supabase", config.SupabaseURL != "")

	return &PostgreSQLBackend{
		DB:       db,
		Config:   config,
		Migrator: NewPostgreSQLMigrator(db),
		Health:   NewPostgreSQLHealthChecker(db),
	}, nil
}

func (c PostgreSQLConfig) withDefaults() PostgreSQLConfig {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	return c
}

// BuildPostgreSQLDSN builds the connection string. A Supabase project URL
// such as https://abcd.supabase.co maps to db.abcd.supabase.co with the
// postgres user and database and TLS required.
func BuildPostgreSQLDSN(config PostgreSQLConfig) string {
	if config.SupabaseURL != "" {
		if u, err := url.Parse(config.SupabaseURL); err == nil {
			parts := strings.Split(u.Hostname(), ".")
			if len(parts) >= 3 && parts[1] == "supabase" {
				dbHost := fmt.Sprintf("db.%s.%s.%s", parts[0], parts[1], parts[2])
				return fmt.Sprintf("host=%s port=5432 user=postgres password=%s dbname=postgres sslmode=require",
					dbHost, quoteDSNValue(config.Password))
			}
		}
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, quoteDSNValue(config.Password), config.Database, config.SSLMode)
}

// quoteDSNValue quotes a keyword/value DSN value containing spaces or quotes.
func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Close closes the database connection.
func (b *PostgreSQLBackend) Close() error {
	return b.DB.Close()
}

// PostgreSQLMigrator handles schema migrations for PostgreSQL.
type PostgreSQLMigrator struct {
	db *sql.DB
}

// NewPostgreSQLMigrator creates a new PostgreSQL migrator.
func NewPostgreSQLMigrator(db *sql.DB) *PostgreSQLMigrator {
	return &PostgreSQLMigrator{db: db}
}

// CurrentVersion returns the current schema version.
func (m *PostgreSQLMigrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		// Table might not exist
		return 0, nil
	}
	return version, nil
}

// Migrate applies the schema, including the generated tsvector column used
// for full-text search.
func (m *PostgreSQLMigrator) Migrate(ctx context.Context, target int) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, GetPostgreSQLSchema()); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	_, err = m.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT DO NOTHING", SchemaVersion)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return nil
}

// NeedsMigration returns true if schema is outdated.
func (m *PostgreSQLMigrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < SchemaVersion, nil
}

// PostgreSQLHealthChecker monitors PostgreSQL database health.
type PostgreSQLHealthChecker struct {
	db *sql.DB
}

// NewPostgreSQLHealthChecker creates a new health checker.
func NewPostgreSQLHealthChecker(db *sql.DB) *PostgreSQLHealthChecker {
	return &PostgreSQLHealthChecker{db: db}
}

// Ping checks database connectivity.
func (h *PostgreSQLHealthChecker) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Status returns detailed health status.
func (h *PostgreSQLHealthChecker) Status(ctx context.Context) (map[string]any, error) {
	start := time.Now()
	err := h.db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return map[string]any{
			"healthy": false,
			"error":   err.Error(),
			"latency": latency.String(),
		}, nil
	}

	var version string
	if err := h.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		version = "unknown"
	}

	stats := h.db.Stats()

	return map[string]any{
		"healthy":          true,
		"version":          version,
		"latency":          latency.String(),
		"open_conns":       stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
		"max_open_conns":   stats.MaxOpenConnections,
	}, nil
}

// GetPostgreSQLSchema returns the PostgreSQL schema DDL. Column types
// mirror the SQLite schema so both backends share one query layer.
func GetPostgreSQLSchema() string {
	return `
-- Knowledge documents
CREATE TABLE IF NOT EXISTS document_store (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    content       TEXT NOT NULL,
    type          TEXT NOT NULL,
    department    TEXT DEFAULT '',
    author        TEXT NOT NULL,
    access_level  TEXT NOT NULL DEFAULT 'public',
    date_created  TEXT NOT NULL,
    last_updated  TEXT NOT NULL,
    is_active     INTEGER NOT NULL DEFAULT 1,
    search_vector tsvector GENERATED ALWAYS AS (
        to_tsvector('english', coalesce(title, '') || ' ' || coalesce(content, ''))
    ) STORED
);
CREATE INDEX IF NOT EXISTS idx_document_store_type ON document_store(type);
CREATE INDEX IF NOT EXISTS idx_document_store_updated ON document_store(last_updated);
CREATE INDEX IF NOT EXISTS idx_document_store_search ON document_store USING GIN(search_vector);

-- Conversation audit trail
CREATE TABLE IF NOT EXISTS conversation_logs (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    user_message         TEXT NOT NULL,
    ai_response          TEXT NOT NULL,
    confidence           DOUBLE PRECISION DEFAULT 0,
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
