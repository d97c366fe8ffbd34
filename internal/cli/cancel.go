package cli

import (
	"fmt"

	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

func newCancelCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "取消一个暂停或中断的会话",
		Long: `把未在运行的会话标记为 cancelled，之后不可恢复。

运行中的会话请使用 Bot 命令 /cancel 或发送 SIGINT。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return root.withRunner(ctx, func(_ repository.Store, runner Runner) error {
				if err := runner.CancelSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s cancelled\n", args[0])
				return nil
			})
		},
	}
}
