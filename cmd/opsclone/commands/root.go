// Package commands implements the OpsClone CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opsclone",
		Short: "OpsClone - executive persona assistant",
		Long: `OpsClone answers employee questions in the voice of an executive,
grounded in company documents, and turns directives into tasks delivered
to an automation webhook.

Examples:
  opsclone serve
  opsclone chat "What is the leave policy?"
  opsclone chat --request --to hr@gtextholdings.com "Prepare the onboarding pack"
  opsclone docs search "expense approval"
  opsclone analytics --range 7d`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newDocsCmd(),
		newWebhookCmd(),
		newAnalyticsCmd(),
		newCompletionCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
