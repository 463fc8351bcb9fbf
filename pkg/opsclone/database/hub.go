package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// PrimaryName is the name under which the document store is registered.
const PrimaryName = "primary"

// Hub owns the connection to the document store. Additional stores can be
// attached under their own name, for example an archive that receives old
// conversation logs; only the primary one is migrated on startup.
type Hub struct {
	mu        sync.RWMutex
	primary   *Backend
	attached  map[string]*Backend
	factories map[BackendType]BackendFactory
	logger    *slog.Logger
}

// NewHub opens the store selected by config.Backend. An empty config opens
// the SQLite file at DefaultSQLitePath.
func NewHub(config HubConfig, logger *slog.Logger) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "database")

	h := &Hub{
		attached: make(map[string]*Backend),
		factories: map[BackendType]BackendFactory{
			BackendSQLite:     NewSQLiteFactory(logger),
			BackendPostgreSQL: NewPostgreSQLFactory(logger),
		},
		logger: logger,
	}

	cfg := config.Effective()
	var target Config
	switch cfg.Backend {
	case BackendSQLite:
		target = cfg.SQLite.ToConfig()
	case BackendPostgreSQL:
		target = cfg.PostgreSQL.ToConfig()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend)
	}

	backend, err := h.open(PrimaryName, target)
	if err != nil {
		return nil, err
	}
	h.primary = backend
	logger.Info("document store opened", "backend", backend.Type)
	return h, nil
}

func (h *Hub) open(name string, config Config) (*Backend, error) {
	factory, ok := h.factories[config.Type]
	if !ok || !factory.Supports(config.Type) {
		return nil, fmt.Errorf("no factory for backend type: %s", config.Type)
	}
	backend, err := factory.Create(config)
	if err != nil {
		return nil, fmt.Errorf("open %s store %q: %w", config.Type, name, err)
	}
	backend.Name = name
	return backend, nil
}

// Attach opens an extra store under name. The store must answer a ping
// before it is registered.
func (h *Hub) Attach(ctx context.Context, name string, config Config) error {
	if name == "" || name == PrimaryName {
		return fmt.Errorf("store name %q is reserved", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.attached[name]; exists {
		return fmt.Errorf("store %q already attached", name)
	}

	backend, err := h.open(name, config)
	if err != nil {
		return err
	}
	if backend.Health != nil {
		if err := backend.Health.Ping(ctx); err != nil {
			_ = backend.DB.Close()
			return fmt.Errorf("store %q unreachable: %w", name, err)
		}
	}
	h.attached[name] = backend
	h.logger.Info("store attached", "name", name, "backend", config.Type)
	return nil
}

// Backend returns the named store; an empty name selects the primary.
func (h *Hub) Backend(name string) (*Backend, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if name == "" || name == PrimaryName {
		if h.primary == nil {
			return nil, errors.New("document store closed")
		}
		return h.primary, nil
	}
	backend, ok := h.attached[name]
	if !ok {
		return nil, fmt.Errorf("store %q not attached", name)
	}
	return backend, nil
}

// Primary returns the document store, or nil after Close.
func (h *Hub) Primary() *Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary
}

// DB returns the primary connection pool.
func (h *Hub) DB() *sql.DB {
	if b := h.Primary(); b != nil {
		return b.DB
	}
	return nil
}

// Report summarizes the document store for the health endpoint.
type Report struct {
	Backend       BackendType             `json:"backend"`
	SchemaVersion int                     `json:"schema_version"`
	Pending       bool                    `json:"migrations_pending"`
	Stores        map[string]HealthStatus `json:"stores"`
}

// Report pings every store and reads the primary schema version.
func (h *Hub) Report(ctx context.Context) Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{Stores: make(map[string]HealthStatus, len(h.attached)+1)}
	if h.primary != nil {
		r.Backend = h.primary.Type
		r.Stores[PrimaryName] = statusOf(ctx, h.primary)
		if m := h.primary.Migrator; m != nil {
			r.SchemaVersion, _ = m.CurrentVersion(ctx)
			r.Pending, _ = m.NeedsMigration(ctx)
		}
	}
	for name, b := range h.attached {
		r.Stores[name] = statusOf(ctx, b)
	}
	return r
}

func statusOf(ctx context.Context, b *Backend) HealthStatus {
	if b.Health == nil {
		return HealthStatus{Error: "health checker not available"}
	}
	return b.Health.Status(ctx)
}

// Healthy reports whether the document store answers a ping.
func (h *Hub) Healthy(ctx context.Context) bool {
	b := h.Primary()
	return b != nil && b.Health != nil && b.Health.Ping(ctx) == nil
}

// Migrate brings the named store (primary when empty) to target, or to the
// latest schema when target is 0.
func (h *Hub) Migrate(ctx context.Context, name string, target int) error {
	b, err := h.Backend(name)
	if err != nil {
		return err
	}
	if b.Migrator == nil {
		return fmt.Errorf("store %q has no migrator", b.Name)
	}
	return b.Migrator.Migrate(ctx, target)
}

// Close closes every store. It is safe to call more than once.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	closeOne := func(b *Backend) {
		if err := b.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store %q: %w", b.Name, err))
		}
	}
	if h.primary != nil {
		closeOne(h.primary)
		h.primary = nil
	}
	for _, b := range h.attached {
		closeOne(b)
	}
	h.attached = make(map[string]*Backend)
	return errors.Join(errs...)
}
