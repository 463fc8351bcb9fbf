package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jholhewres/opsclone/pkg/opsclone/storage"
)

// newAnalyticsCmd creates the `opsclone analytics` command.
func newAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show usage analytics",
		Long: `Summarises conversations and sessions over a time range.

Examples:
  opsclone analytics
  opsclone analytics --range 30d --json`,
		RunE: runAnalytics,
	}
	cmd.Flags().StringP("range", "r", "7d", "time range: 1d, 7d or 30d")
	cmd.Flags().Bool("json", false, "print the full analytics as JSON")
	return cmd
}

func runAnalytics(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("range")
	tr, err := storage.ParseTimeRange(raw)
	if err != nil {
		return err
	}

	store, done, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer done()

	a, err := store.Analytics(cmd.Context(), tr)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, a)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Range\t%s (since %s)\n", a.TimeRange, a.Since.Format("2006-01-02 15:04"))
	fmt.Fprintf(tw, "Interactions\t%d\n", a.TotalInteractions)
	fmt.Fprintf(tw, "Unique users\t%d\n", a.UniqueUsers)
	fmt.Fprintf(tw, "Request mode\t%d\n", a.RequestModeUsage)
	fmt.Fprintf(tw, "Tasks delivered\t%d\n", a.WebhookSuccesses)
	return tw.Flush()
}
