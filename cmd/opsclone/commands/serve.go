package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/opsclone/pkg/opsclone/gateway"
	"github.com/jholhewres/opsclone/pkg/opsclone/scheduler"
)

// newServeCmd creates the `opsclone serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and scheduled jobs",
		Long: `Start OpsClone as a daemon: the HTTP API gateway plus the
scheduled analytics digest and webhook probe.

Examples:
  opsclone serve
  opsclone serve --addr :8080
  opsclone serve --config ./config.yaml`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides gateway.address)")
	cmd.Flags().Bool("no-scheduler", false, "do not run scheduled jobs")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, logger, err := loadRuntime(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Gateway.Address = addr
	}

	// ── Gateway ──
	gw := gateway.New(rt, cfg.Gateway, logger)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	// ── Scheduler ──
	var sched *scheduler.Scheduler
	noSched, _ := cmd.Flags().GetBool("no-scheduler")
	if cfg.Scheduler.Enabled && !noSched {
		var analytics scheduler.AnalyticsSource
		if rt.Store != nil {
			analytics = rt.Store
		}
		sched = scheduler.New(scheduler.NewHandler(analytics, rt.Dispatcher, logger), cfg.Scheduler.JobTimeout, logger)
		for _, job := range cfg.Scheduler.Jobs {
			if err := sched.Add(job); err != nil {
				logger.Warn("skipping scheduled job", "id", job.ID, "error", err)
			}
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	logger.Info("OpsClone running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"persona", rt.Persona.Name,
		"model", cfg.Model,
		"ai", rt.LLM.Configured(),
		"webhook", rt.Dispatcher.Configured(),
		"database", rt.Store != nil,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown incomplete", "error", err)
	}
	cancel()

	logger.Info("shutdown complete")
	return nil
}
