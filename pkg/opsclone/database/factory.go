package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/opsclone/pkg/opsclone/database/backends"
)

// SQLiteFactory creates SQLite backends.
type SQLiteFactory struct {
	logger *slog.Logger
}

// NewSQLiteFactory creates a new SQLite factory.
func NewSQLiteFactory(logger *slog.Logger) *SQLiteFactory {
	return &SQLiteFactory{logger: logger}
}

// Create creates a new SQLite backend with the given configuration.
func (f *SQLiteFactory) Create(config Config) (*Backend, error) {
	if config.Type != BackendSQLite {
		return nil, fmt.Errorf("sqlite factory cannot create %s backend", config.Type)
	}

	sqliteBackend, err := backends.OpenSQLite(backends.SQLiteConfig{
		Path:        config.Path,
		JournalMode: config.JournalMode,
		BusyTimeout: config.BusyTimeout,
		ForeignKeys: true,
	}, f.logger)
	if err != nil {
		return nil, err
	}

	return &Backend{
		Type:     BackendSQLite,
		DB:       sqliteBackend.DB,
		Config:   config,
		Migrator: sqliteBackend.Migrator,
		Health:   &healthWrapper{sqliteBackend.Health},
	}, nil
}

// Supports returns true for SQLite backend type.
func (f *SQLiteFactory) Supports(backendType BackendType) bool {
	return backendType == BackendSQLite
}

// PostgreSQLFactory creates PostgreSQL backends (including Supabase).
type PostgreSQLFactory struct {
	logger *slog.Logger
}

// NewPostgreSQLFactory creates a new PostgreSQL factory.
func NewPostgreSQLFactory(logger *slog.Logger) *PostgreSQLFactory {
	return &PostgreSQLFactory{logger: logger}
}

// Create creates a new PostgreSQL backend with the given configuration.
func (f *PostgreSQLFactory) Create(config Config) (*Backend, error) {
	if config.Type != BackendPostgreSQL {
		return nil, fmt.Errorf("postgresql factory cannot create %s backend", config.Type)
	}

	pgBackend, err := backends.OpenPostgreSQL(backends.PostgreSQLConfig{
		Host:            config.Host,
		Port:            config.Port,
		Database:        config.Database,
		User:            config.User,
		Password:        config.Password,
		SSLMode:         config.SSLMode,
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
		ConnMaxIdleTime: config.ConnMaxIdleTime,
		SupabaseURL:     config.SupabaseURL,
	}, f.logger)
	if err != nil {
		return nil, err
	}

	return &Backend{
		Type:     BackendPostgreSQL,
		DB:       pgBackend.DB,
		Config:   config,
		Migrator: pgBackend.Migrator,
		Health:   &healthWrapper{pgBackend.Health},
	}, nil
}

// Supports returns true for PostgreSQL backend type.
func (f *PostgreSQLFactory) Supports(backendType BackendType) bool {
	return backendType == BackendPostgreSQL
}

// statusSource is implemented by both backend health checkers.
type statusSource interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (map[string]any, error)
}

// healthWrapper adapts a backend health checker to HealthChecker.
type healthWrapper struct {
	h statusSource
}

func (w *healthWrapper) Ping(ctx context.Context) error {
	return w.h.Ping(ctx)
}

func (w *healthWrapper) Status(ctx context.Context) HealthStatus {
	status, err := w.h.Status(ctx)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}

	return HealthStatus{
		Healthy:         extractBool(status, "healthy"),
		Version:         extractString(status, "version"),
		Error:           extractString(status, "error"),
		Latency:         parseDuration(extractString(status, "latency")),
		OpenConnections: extractInt(status, "open_conns"),
		InUse:           extractInt(status, "in_use"),
		Idle:            extractInt(status, "idle"),
		WaitCount:       extractInt64(status, "wait_count"),
		WaitDuration:    time.Duration(extractInt64(status, "wait_duration_ms")) * time.Millisecond,
		MaxOpenConns:    extractInt(status, "max_open_conns"),
	}
}

// Helper functions for extracting values from map[string]any

func extractBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func extractString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func extractInt(m map[string]any, key string) int {
	return int(extractInt64(m, key))
}

func extractInt64(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
