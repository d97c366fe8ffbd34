package cli

import (
	"fmt"

	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

func newStatsCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "查看跨会话统计",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return root.withStore(ctx, func(store repository.Store) error {
				stats, err := store.GetStatistics(ctx)
				if err != nil {
					return fmt.Errorf("get statistics: %w", err)
				}

				out := cmd.OutOrStdout()
				if root.Format != "text" {
					return writeStructured(out, root.Format, stats)
				}

				tw := newTable(out)
				fmt.Fprintf(tw, "Sessions:\t%d\n", stats.TotalSessions)
				fmt.Fprintf(tw, "Sessions (24h):\t%d\n", stats.SessionsLast24Hours)
				fmt.Fprintf(tw, "Forwarded:\t%d\n", stats.TotalForwarded)
				fmt.Fprintf(tw, "Failed:\t%d\n", stats.TotalFailed)
				fmt.Fprintf(tw, "Avg successful/session:\t%.1f\n", stats.AverageSuccessPerRun)
				return tw.Flush()
			})
		},
	}
}
