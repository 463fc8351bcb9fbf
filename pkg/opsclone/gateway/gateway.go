// Package gateway serves the OpsClone HTTP API.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jholhewres/opsclone/pkg/opsclone/copilot"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Gateway is the HTTP API gateway.
type Gateway struct {
	rt        *copilot.Runtime
	config    copilot.GatewayConfig
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time

	// background tracks conversation logging that outlives the request.
	background sync.WaitGroup
}

// New creates a new Gateway.
func New(rt *copilot.Runtime, cfg copilot.GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":3001"
	}
	return &Gateway{
		rt:        rt,
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("POST /api/chat/complete-task", g.handleCompleteTask)
	mux.HandleFunc("GET /api/chat/history", g.handleHistory)

	mux.HandleFunc("GET /api/documents", g.handleListDocuments)
	mux.HandleFunc("POST /api/documents", g.handleStoreDocument)

	mux.HandleFunc("GET /api/admin/analytics", g.handleAnalytics)
	mux.HandleFunc("POST /api/webhook/test", g.handleWebhookTest)
	mux.HandleFunc("POST /api/webhook/batch", g.handleWebhookBatch)

	return g.securityHeadersMiddleware(g.corsMiddleware(g.adminMiddleware(mux)))
}

// Start starts the HTTP server.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()

	ln, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return err
	}

	g.server = &http.Server{
		Handler:      g.Handler(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	if g.config.AdminToken == "" {
		host, _, _ := net.SplitHostPort(g.config.Address)
		if host == "" {
			host = "0.0.0.0"
		}
		ip := net.ParseIP(host)
		if !(ip != nil && ip.IsLoopback()) && host != "localhost" {
			g.logger.Warn("SECURITY: admin token not set and gateway bound to a non-loopback address, admin routes are open",
				"address", g.config.Address)
		}
	}

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the HTTP server and waits for pending
// conversation logs.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	err := g.server.Shutdown(ctx)
	g.Wait()
	return err
}

// Wait blocks until background conversation logging has finished.
func (g *Gateway) Wait() {
	g.background.Wait()
}
