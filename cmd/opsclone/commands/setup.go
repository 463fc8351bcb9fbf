package commands

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/opsclone/pkg/opsclone/copilot"
	"github.com/jholhewres/opsclone/pkg/opsclone/database"
)

// newSetupCmd creates the `opsclone setup` command for interactive configuration.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard that writes config.yaml.
The API key is stored in the OS keyring when available and never written
to the config file.

Examples:
  opsclone setup
  opsclone setup --output ./configs/opsclone.yaml`,
		RunE: runSetup,
	}
	cmd.Flags().StringP("output", "o", "config.yaml", "where to write the config")
	return cmd
}

// setupAnswers collects the wizard fields.
type setupAnswers struct {
	Name        string
	Model       string
	BaseURL     string
	APIKey      string
	PersonaFile string
	WebhookURL  string
	Backend     string
	SQLitePath  string
	SupabaseURL string
	Overwrite   bool
}

func runSetup(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")

	cfg := copilot.DefaultConfig()
	if _, err := os.Stat(output); err == nil {
		if existing, err := copilot.LoadConfigFromFile(output); err == nil {
			cfg = existing
		}
	}

	ans := &setupAnswers{
		Name:        cfg.Name,
		Model:       cfg.Model,
		BaseURL:     cfg.API.BaseURL,
		PersonaFile: cfg.Persona.File,
		WebhookURL:  cfg.Webhook.URL,
		Backend:     string(cfg.Database.Backend),
		SQLitePath:  cfg.Database.SQLite.Path,
		SupabaseURL: cfg.Database.PostgreSQL.SupabaseURL,
		Overwrite:   true,
	}

	if err := newSetupForm(ans, output).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}
	if !ans.Overwrite {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing written.")
		return nil
	}

	applySetupAnswers(cfg, ans)

	out := cmd.OutOrStdout()
	if ans.APIKey != "" {
		if copilot.KeyringAvailable() {
			if err := copilot.StoreKeyring(copilot.KeyringAPIKey, ans.APIKey); err != nil {
				return fmt.Errorf("storing API key in keyring: %w", err)
			}
			fmt.Fprintln(out, "API key stored in the OS keyring.")
		} else {
			fmt.Fprintf(out, "No OS keyring available. Export %s before starting OpsClone.\n", copilot.EnvAPIKey)
		}
	}
	// The config file only ever references the key.
	cfg.API.APIKey = "${" + copilot.EnvAPIKey + "}"

	if err := copilot.SaveConfigToFile(cfg, output); err != nil {
		return err
	}
	fmt.Fprintf(out, "Config written to %s\n", output)
	fmt.Fprintln(out, "Start the API with: opsclone serve")
	return nil
}

func newSetupForm(ans *setupAnswers, output string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant name").
				Value(&ans.Name).
				Validate(required("name")),
			huh.NewInput().
				Title("Model").
				Description("Chat completion model, e.g. gpt-4o-mini").
				Value(&ans.Model).
				Validate(required("model")),
			huh.NewInput().
				Title("API base URL").
				Description("OpenAI-compatible endpoint").
				Value(&ans.BaseURL).
				Validate(httpURL(true)),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to keep the current key").
				EchoMode(huh.EchoModePassword).
				Value(&ans.APIKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Persona file").
				Description("YAML override of the built-in persona (optional)").
				Value(&ans.PersonaFile),
			huh.NewInput().
				Title("Automation webhook URL").
				Description("Tasks and notifications are posted here (optional)").
				Value(&ans.WebhookURL).
				Validate(httpURL(false)),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database").
				Options(
					huh.NewOption("SQLite (local file)", string(database.BackendSQLite)),
					huh.NewOption("PostgreSQL / Supabase", string(database.BackendPostgreSQL)),
				).
				Value(&ans.Backend),
			huh.NewInput().
				Title("SQLite path").
				Value(&ans.SQLitePath),
			huh.NewInput().
				Title("Supabase URL").
				Description("Only used with PostgreSQL; host and port are derived from it").
				Value(&ans.SupabaseURL).
				Validate(httpURL(false)),
			huh.NewConfirm().
				Title(fmt.Sprintf("Write %s?", output)).
				Value(&ans.Overwrite),
		),
	)
}

func applySetupAnswers(cfg *copilot.Config, ans *setupAnswers) {
	cfg.Name = strings.TrimSpace(ans.Name)
	cfg.Model = strings.TrimSpace(ans.Model)
	cfg.API.BaseURL = strings.TrimSpace(ans.BaseURL)
	cfg.Persona.File = strings.TrimSpace(ans.PersonaFile)
	cfg.Webhook.URL = strings.TrimSpace(ans.WebhookURL)
	cfg.Database.Backend = database.BackendType(ans.Backend)
	if p := strings.TrimSpace(ans.SQLitePath); p != "" {
		cfg.Database.SQLite.Path = p
	}
	cfg.Database.PostgreSQL.SupabaseURL = strings.TrimSpace(ans.SupabaseURL)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func httpURL(mandatory bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if mandatory {
				return errors.New("URL is required")
			}
			return nil
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("must be an http(s) URL")
		}
		return nil
	}
}
