package cli

import (
	"fmt"

	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

const defaultFailedLimit = 10

func newFailedCommand(root *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failed [session-id]",
		Short: "列出会话中最近的失败消息",
		Long: `列出会话中最近的失败消息（按时间倒序）。

未指定 session-id 时使用活跃会话或最近一个会话。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be >= 1, got %d", limit)
			}

			ctx := cmd.Context()
			return root.withStore(ctx, func(store repository.Store) error {
				sessionID := ""
				if len(args) == 1 {
					sessionID = args[0]
				} else {
					session, err := latestSession(ctx, store)
					if err != nil {
						return err
					}
					if session == nil {
						fmt.Fprintln(cmd.OutOrStdout(), "No migration sessions")
						return nil
					}
					sessionID = session.ID
				}

				records, err := store.ListFailedMessages(ctx, sessionID, limit)
				if err != nil {
					return fmt.Errorf("list failed messages: %w", err)
				}

				out := cmd.OutOrStdout()
				if root.Format != "text" {
					return writeStructured(out, root.Format, records)
				}
				if len(records) == 0 {
					fmt.Fprintf(out, "No failed messages in session %s\n", sessionID)
					return nil
				}

				fmt.Fprintf(out, "Failed messages in session %s (latest %d):\n", sessionID, len(records))
				tw := newTable(out)
				fmt.Fprintln(tw, "MESSAGE\tTIME\tRETRIES\tTYPE\tERROR")
				for _, r := range records {
					kind := r.ContentType
					if kind == "" {
						kind = "-"
					}
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", r.MessageID, formatTime(r.Timestamp), r.RetryCount, kind, r.Error)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultFailedLimit, "number of records to show")
	return cmd
}
