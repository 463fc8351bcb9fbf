package database

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	config := DefaultHubConfig()
	config.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	hub, err := NewHub(config, nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}
	t.Cleanup(func() { hub.Close() })
	return hub
}

func TestHub_New(t *testing.T) {
	hub := newTestHub(t)

	primary := hub.Primary()
	if primary == nil {
		t.Fatal("primary backend is nil")
	}
	if primary.Type != BackendSQLite {
		t.Errorf("expected SQLite backend, got %s", primary.Type)
	}
	if primary.Name != "primary" {
		t.Errorf("expected name primary, got %s", primary.Name)
	}
	if hub.DB() == nil {
		t.Fatal("DB is nil")
	}
}

func TestHub_UnsupportedBackend(t *testing.T) {
	_, err := NewHub(HubConfig{Backend: "oracle"}, nil)
	if err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestHub_Backend(t *testing.T) {
	hub := newTestHub(t)

	for _, name := range []string{"", PrimaryName} {
		backend, err := hub.Backend(name)
		if err != nil {
			t.Fatalf("Backend(%q) failed: %v", name, err)
		}
		if backend != hub.Primary() {
			t.Errorf("Backend(%q) is not the primary store", name)
		}
	}

	if _, err := hub.Backend("nonexistent"); err == nil {
		t.Fatal("expected error for a store that was never attached")
	}
}

func TestHub_Attach(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	cfg := SQLiteConfig{Path: filepath.Join(t.TempDir(), "archive.db")}.ToConfig()
	if err := hub.Attach(ctx, "archive", cfg); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := hub.Attach(ctx, "archive", cfg); err == nil {
		t.Fatal("expected duplicate store error")
	}
	if err := hub.Attach(ctx, PrimaryName, cfg); err == nil {
		t.Fatal("expected the primary name to be reserved")
	}
	if err := hub.Attach(ctx, "other", Config{Type: "mysql"}); err == nil {
		t.Fatal("expected error for backend type without factory")
	}

	archive, err := hub.Backend("archive")
	if err != nil {
		t.Fatalf("Backend(archive) failed: %v", err)
	}
	if archive.Name != "archive" {
		t.Errorf("expected name archive, got %s", archive.Name)
	}

	if n := len(hub.Report(ctx).Stores); n != 2 {
		t.Errorf("expected 2 store statuses, got %d", n)
	}
}

func TestHub_Report(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	before := hub.Report(ctx)
	if before.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend, got %s", before.Backend)
	}
	if !before.Pending {
		t.Error("expected migrations pending on a fresh file")
	}

	if err := hub.Migrate(ctx, "", 0); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	report := hub.Report(ctx)
	if report.Pending {
		t.Error("expected no pending migrations after Migrate")
	}
	if report.SchemaVersion == 0 {
		t.Error("expected a recorded schema version")
	}
	primary, ok := report.Stores[PrimaryName]
	if !ok {
		t.Fatal("expected primary store in report")
	}
	if !primary.Healthy {
		t.Errorf("expected healthy primary, got error %q", primary.Error)
	}
	if primary.Version == "" {
		t.Error("expected sqlite version in status")
	}
	if !hub.Healthy(ctx) {
		t.Error("expected hub to be healthy")
	}
}

func TestHub_Migrate(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	if err := hub.Migrate(ctx, "", 0); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	// Idempotent.
	if err := hub.Migrate(ctx, "", 0); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	backend, _ := hub.Backend("")
	needs, err := backend.Migrator.NeedsMigration(ctx)
	if err != nil {
		t.Fatalf("NeedsMigration failed: %v", err)
	}
	if needs {
		t.Error("expected no migration needed after running migrations")
	}

	for _, table := range []string{"document_store", "conversation_logs", "user_sessions"} {
		var name string
		err := hub.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestHub_Close(t *testing.T) {
	config := DefaultHubConfig()
	config.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	hub, err := NewHub(config, nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := hub.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
	if hub.Healthy(context.Background()) {
		t.Error("closed hub should not report healthy")
	}
	if _, err := hub.Backend(""); err == nil {
		t.Error("closed hub should not return a store")
	}
}

func TestHubConfig_Effective(t *testing.T) {
	tests := []struct {
		name     string
		config   HubConfig
		expected BackendType
	}{
		{"empty config defaults to sqlite", HubConfig{}, BackendSQLite},
		{"explicit sqlite", HubConfig{Backend: BackendSQLite}, BackendSQLite},
		{"postgresql", HubConfig{Backend: BackendPostgreSQL}, BackendPostgreSQL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effective := tt.config.Effective()
			if effective.Backend != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, effective.Backend)
			}
			if effective.SQLite.Path != DefaultSQLitePath {
				t.Errorf("expected default path, got %s", effective.SQLite.Path)
			}
		})
	}
}

func TestFactories_Supports(t *testing.T) {
	sqlite := NewSQLiteFactory(nil)
	if !sqlite.Supports(BackendSQLite) || sqlite.Supports(BackendPostgreSQL) {
		t.Error("sqlite factory supports the wrong types")
	}

	pg := NewPostgreSQLFactory(nil)
	if !pg.Supports(BackendPostgreSQL) || pg.Supports(BackendSQLite) {
		t.Error("postgresql factory supports the wrong types")
	}

	if _, err := sqlite.Create(Config{Type: BackendPostgreSQL}); err == nil {
		t.Error("expected sqlite factory to reject postgresql config")
	}
	if _, err := pg.Create(Config{Type: BackendSQLite}); err == nil {
		t.Error("expected postgresql factory to reject sqlite config")
	}
}

func TestPostgreSQLConfig_ToConfig(t *testing.T) {
	pg := DefaultPostgreSQLConfig()
	pg.SupabaseURL = "https://abcd.supabase.co"
	pg.Password = "secret"

	cfg := pg.ToConfig()
	if cfg.Type != BackendPostgreSQL {
		t.Errorf("expected postgresql, got %s", cfg.Type)
	}
	if cfg.SupabaseURL != pg.SupabaseURL || cfg.Password != "secret" || cfg.Port != 5432 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
