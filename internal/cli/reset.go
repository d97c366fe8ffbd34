package cli

import (
	"errors"
	"fmt"

	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

func newResetCommand(root *RootOptions) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "删除所有会话、失败记录、去重记录与设置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to reset without --confirm")
			}

			ctx := cmd.Context()
			return root.withStore(ctx, func(store repository.Store) error {
				if err := store.Reset(ctx); err != nil {
					return fmt.Errorf("reset store: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All migration data deleted")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm deletion of all data")
	return cmd
}
