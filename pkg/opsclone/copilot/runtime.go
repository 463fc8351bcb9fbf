package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jholhewres/opsclone/pkg/opsclone/database"
	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/llm"
	"github.com/jholhewres/opsclone/pkg/opsclone/persona"
	"github.com/jholhewres/opsclone/pkg/opsclone/storage"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
	"github.com/jholhewres/opsclone/pkg/opsclone/webhook"
)

// Runtime holds the wired components shared by the HTTP gateway and the CLI.
type Runtime struct {
	Config     *Config
	Persona    *persona.Persona
	LLM        *llm.Client
	Hub        *database.Hub
	Store      *storage.Store
	Retriever  *knowledge.Retriever
	Extractor  *tasks.Extractor
	Dispatcher *webhook.Dispatcher
	Assistant  *Assistant
	logger     *slog.Logger
}

// Build wires every component from cfg. A database that cannot be opened is
// logged and the runtime continues without a store: retrieval then answers
// from the fallback corpus and persistence features report unavailable.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p, err := persona.Load(cfg.Persona.File)
	if err != nil {
		return nil, fmt.Errorf("loading persona: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	taskCfg := cfg.Tasks
	if taskCfg.Sender == "" {
		taskCfg.Sender = p.Sender
	}
	if err := tasks.Validator().Struct(taskCfg.Effective()); err != nil {
		return nil, fmt.Errorf("invalid tasks config: %w", err)
	}

	rt := &Runtime{
		Config:  cfg,
		Persona: p,
		LLM:     llm.NewClient(cfg.LLMOptions(), logger),
		logger:  logger,
	}

	rt.Hub, rt.Store = openStore(ctx, cfg.Database, logger)

	var searcher knowledge.Searcher
	if rt.Store != nil {
		searcher = rt.Store
	}
	rt.Retriever = knowledge.NewRetriever(searcher, cfg.Retrieval, logger)
	rt.Extractor = tasks.NewExtractor(rt.LLM, taskCfg, logger)
	rt.Dispatcher = webhook.New(cfg.Webhook, logger)

	var completer Completer
	if rt.LLM.Configured() {
		completer = rt.LLM
	}
	rt.Assistant = New(Dependencies{
		Retriever:        rt.Retriever,
		Completer:        completer,
		Extractor:        rt.Extractor,
		Dispatcher:       rt.Dispatcher,
		Persona:          p,
		Response:         cfg.Response,
		DeliveryAttempts: rt.Dispatcher.Config().DeliveryAttempts,
		Logger:           logger,
	})
	return rt, nil
}

func openStore(ctx context.Context, cfg database.HubConfig, logger *slog.Logger) (*database.Hub, *storage.Store) {
	hub, err := database.NewHub(cfg, logger)
	if err != nil {
		logger.Warn("database unavailable, continuing without document store", "error", err)
		return nil, nil
	}
	store, err := storage.New(ctx, hub, logger)
	if err != nil {
		logger.Warn("document store unavailable", "error", err)
		_ = hub.Close()
		return nil, nil
	}
	if cfg.SeedFallback {
		if _, err := store.SeedFallback(ctx); err != nil {
			logger.Warn("seeding reference documents failed", "error", err)
		}
	}
	return hub, store
}

// ErrNoStore is returned by features that need the database when it is not
// available.
var ErrNoStore = errors.New("database not configured")

// RequireStore returns the store or ErrNoStore.
func (rt *Runtime) RequireStore() (*storage.Store, error) {
	if rt.Store == nil {
		return nil, ErrNoStore
	}
	return rt.Store, nil
}

// Close waits for pending notifications and closes the database.
func (rt *Runtime) Close() error {
	if rt.Dispatcher != nil {
		rt.Dispatcher.Wait()
	}
	if rt.Hub != nil {
		return rt.Hub.Close()
	}
	return nil
}
