package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jholhewres/opsclone/pkg/opsclone/copilot"
)

// resolveConfig loads the config from --config, a discovered file, or the
// defaults plus environment. Returns the path used ("" for defaults).
func resolveConfig(cmd *cobra.Command) (*copilot.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := copilot.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, configPath, nil
	}

	if found := copilot.FindConfigFile(); found != "" {
		cfg, err := copilot.LoadConfigFromFile(found)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, found, nil
	}

	return copilot.LoadDefaultConfig(), "", nil
}

// newLogger builds the slog logger from the logging config. Long-running
// commands log to stdout; one-shot commands log warnings to stderr unless
// --verbose is set.
func newLogger(cmd *cobra.Command, cfg *copilot.Config, daemon bool) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" || verbose {
		level = slog.LevelDebug
	}
	var out io.Writer = os.Stdout
	if !daemon {
		out = os.Stderr
		if !verbose {
			level = slog.LevelWarn
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" || !daemon {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// loadRuntime resolves config and secrets and wires every component.
func loadRuntime(ctx context.Context, cmd *cobra.Command, daemon bool) (*copilot.Runtime, *slog.Logger, error) {
	cfg, path, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cmd, cfg, daemon)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	// Audit before the keyring overrides the raw config value.
	copilot.AuditSecrets(cfg, logger)
	copilot.ResolveAPIKey(cfg, logger)

	rt, err := copilot.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return rt, logger, nil
}

// printJSON writes v as indented JSON to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
