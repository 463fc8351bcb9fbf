package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newWebhookCmd creates the `opsclone webhook` command group.
func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Automation webhook tools",
	}
	cmd.AddCommand(newWebhookTestCmd())
	return cmd
}

func newWebhookTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send a test payload to the automation webhook",
		Long: `Posts a test payload flagged with test: true to the configured webhook
and reports the outcome.

Examples:
  opsclone webhook test
  MAKE_WEBHOOK_URL=https://hook.example.com/abc opsclone webhook test`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := loadRuntime(cmd.Context(), cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !rt.Dispatcher.ValidateConfiguration() {
				return fmt.Errorf("webhook URL is not configured (set webhook.url or MAKE_WEBHOOK_URL)")
			}

			res := rt.Dispatcher.Test(cmd.Context(), rt.Persona.Sender)
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("webhook test failed: %s", res.Message)
			}
			return nil
		},
	}
}
