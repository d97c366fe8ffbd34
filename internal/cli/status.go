package cli

import (
	"context"
	"fmt"
	"io"

	"channel_migrator/internal/models"
	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

func newStatusCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看活跃会话（或最近一个会话）的进度",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return root.withStore(ctx, func(store repository.Store) error {
				session, err := latestSession(ctx, store)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if root.Format != "text" {
					return writeStructured(out, root.Format, session)
				}
				if session == nil {
					fmt.Fprintln(out, "No migration sessions")
					return nil
				}
				return writeSession(out, session)
			})
		},
	}
}

// latestSession 活跃会话优先，否则返回最近创建的会话；都没有时返回 nil
func latestSession(ctx context.Context, store repository.Store) (*models.Session, error) {
	session, err := store.GetActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if session != nil {
		return session, nil
	}
	sessions, err := store.ListSessions(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

func writeSession(w io.Writer, s *models.Session) error {
	end := "end"
	if s.EndMessageID > 0 {
		end = fmt.Sprintf("%d", s.EndMessageID)
	}
	ended := "-"
	if s.EndedAt != nil {
		ended = formatTime(*s.EndedAt)
	}
	c := s.Counters

	tw := newTable(w)
	fmt.Fprintf(tw, "Session:\t%s\n", s.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", s.Status)
	fmt.Fprintf(tw, "Channels:\t%s -> %s\n", s.SourceRef, s.TargetRef)
	fmt.Fprintf(tw, "Range:\t%d - %s\n", s.StartMessageID, end)
	fmt.Fprintf(tw, "Last message:\t%d\n", s.LastMessageID)
	fmt.Fprintf(tw, "Successful:\t%d\n", c.Successful)
	fmt.Fprintf(tw, "Failed:\t%d\n", c.Failed)
	fmt.Fprintf(tw, "Duplicate:\t%d\n", c.Duplicate)
	fmt.Fprintf(tw, "Deleted:\t%d\n", c.Deleted)
	fmt.Fprintf(tw, "Skipped:\t%d\n", c.Skipped)
	fmt.Fprintf(tw, "Filtered:\t%d\n", c.Filtered)
	fmt.Fprintf(tw, "Started:\t%s\n", formatTime(s.StartedAt))
	fmt.Fprintf(tw, "Ended:\t%s\n", ended)
	return tw.Flush()
}
