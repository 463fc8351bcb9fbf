package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/opsclone/pkg/opsclone/copilot"
)

// newConfigCmd creates the `opsclone config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration and manage secrets",
		Long: `Inspect the effective configuration and store secrets in the OS keyring.

Examples:
  opsclone config show
  opsclone config set-key
  opsclone config set-key admin`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			masked := *cfg
			masked.API.APIKey = maskSecret(cfg.API.APIKey)
			masked.Gateway.AdminToken = maskSecret(cfg.Gateway.AdminToken)
			masked.Database.PostgreSQL.Password = maskSecret(cfg.Database.PostgreSQL.Password)

			data, err := yaml.Marshal(&masked)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			out := cmd.OutOrStdout()
			if path == "" {
				fmt.Fprintln(out, "# no config file found, showing defaults")
			} else {
				fmt.Fprintf(out, "# %s\n", path)
			}
			fmt.Fprint(out, string(data))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set-key [api|admin]",
		Short:     "Store the API key or admin token in the OS keyring",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"api", "admin"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key, label := copilot.KeyringAPIKey, "API key"
			if len(args) == 1 && args[0] == "admin" {
				key, label = copilot.KeyringAdminToken, "admin token"
			}

			if !copilot.KeyringAvailable() {
				return fmt.Errorf("no OS keyring available; set %s or %s in the environment instead",
					copilot.EnvAPIKey, copilot.EnvAdminToken)
			}

			value, err := copilot.ReadPassword(label + " (hidden input): ")
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("%s is empty", label)
			}
			if err := copilot.StoreKeyring(key, value); err != nil {
				return fmt.Errorf("storing %s: %w", label, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s stored in the OS keyring.\n", label)
			return nil
		},
	}
}

// maskSecret keeps env references readable and hides literal values.
func maskSecret(v string) string {
	switch {
	case v == "", copilot.IsEnvReference(v):
		return v
	case len(v) <= 8:
		return "****"
	default:
		return v[:4] + "****" + v[len(v)-2:]
	}
}
