package cli

import (
	"context"
	"fmt"
	"io"

	"channel_migrator/internal/app"
	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"
	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

// RunFlags run 命令参数，未指定时使用存储的设置
type RunFlags struct {
	Source string
	Target string
	From   int64
	To     int64
}

func newRunCommand(root *RootOptions) *cobra.Command {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "开始一个新的迁移会话",
		Long: `开始一个新的迁移会话。

频道与起止 ID 依次取自命令行参数、已保存的设置（settings set）。
已有活跃会话时拒绝启动，请先 resume 或 cancel。

Example:
  migrator run --source @old_channel --target @new_channel --from 1 --to 5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return root.withRunner(ctx, func(store repository.Store, runner Runner) error {
				settings, err := resolveRunSettings(ctx, root, store, cmd, flags)
				if err != nil {
					return err
				}
				outcome, err := runner.Run(ctx, migration.RunRequest{Settings: settings})
				printOutcome(cmd.OutOrStdout(), outcome)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&flags.Source, "source", "", "source channel (@username or numeric id)")
	cmd.Flags().StringVar(&flags.Target, "target", "", "target channel (@username or numeric id)")
	cmd.Flags().Int64Var(&flags.From, "from", 0, "first message id (inclusive)")
	cmd.Flags().Int64Var(&flags.To, "to", 0, "last message id (inclusive, 0 = until the end)")

	return cmd
}

func newResumeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [session-id]",
		Short: "恢复暂停或中断的会话",
		Long: `从最后持久化的消息之后继续一个会话。

未指定 session-id 时选择当前活跃会话，否则选择最近一个可恢复的会话。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return root.withRunner(ctx, func(store repository.Store, runner Runner) error {
				sessionID := ""
				if len(args) == 1 {
					sessionID = args[0]
				} else {
					session, err := findResumable(ctx, store)
					if err != nil {
						return err
					}
					sessionID = session.ID
				}

				settings, err := resolveRunSettings(ctx, root, store, cmd, nil)
				if err != nil {
					return err
				}
				outcome, err := runner.Run(ctx, migration.RunRequest{
					Settings:        settings,
					ResumeSessionID: sessionID,
				})
				printOutcome(cmd.OutOrStdout(), outcome)
				return err
			})
		},
	}
}

// resolveRunSettings 配置默认值 <- 已保存设置 <- 命令行参数
func resolveRunSettings(ctx context.Context, root *RootOptions, store repository.Store, cmd *cobra.Command, flags *RunFlags) (migration.RunSettings, error) {
	stored, err := store.GetSettings(ctx)
	if err != nil {
		return migration.RunSettings{}, fmt.Errorf("load settings: %w", err)
	}

	settings, err := migration.ResolveSettings(app.DefaultRunSettings(root.cfg), stored)
	if err != nil {
		return migration.RunSettings{}, err
	}
	if flags == nil {
		return settings, nil
	}

	if cmd.Flags().Changed("source") {
		settings.Source = migration.ChannelRef(flags.Source)
	}
	if cmd.Flags().Changed("target") {
		settings.Target = migration.ChannelRef(flags.Target)
	}
	if cmd.Flags().Changed("from") {
		settings.StartMessageID = flags.From
	}
	if cmd.Flags().Changed("to") {
		settings.EndMessageID = flags.To
	}
	return settings, nil
}

// findResumable 活跃会话优先，其次是最近一个未结束的会话
func findResumable(ctx context.Context, store repository.Store) (*models.Session, error) {
	active, err := store.GetActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if active != nil {
		return active, nil
	}

	sessions, err := store.ListSessions(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for _, session := range sessions {
		if !session.Status.IsFinal() {
			return session, nil
		}
	}
	return nil, fmt.Errorf("%w: no resumable session", migration.ErrSessionNotFound)
}

func printOutcome(w io.Writer, outcome migration.Outcome) {
	if outcome.SessionID == "" {
		return
	}
	c := outcome.Counters
	fmt.Fprintf(w, "Session %s %s at message %d\n", outcome.SessionID, outcome.Status, outcome.LastMessageID)
	fmt.Fprintf(w, "  successful=%d failed=%d duplicate=%d deleted=%d skipped=%d filtered=%d\n",
		c.Successful, c.Failed, c.Duplicate, c.Deleted, c.Skipped, c.Filtered)
	if outcome.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", outcome.Reason)
	}
}
