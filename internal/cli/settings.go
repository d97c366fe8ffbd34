package cli

import (
	"fmt"

	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"
	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

func newSettingsCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "管理保存的运行设置",
		Long: `管理保存在 bot_settings 中的运行设置。

运行时的取值顺序：配置默认值 <- 保存的设置 <- 命令行参数。`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "列出所有设置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return root.withStore(ctx, func(store repository.Store) error {
				stored, err := store.GetSettings(ctx)
				if err != nil {
					return fmt.Errorf("load settings: %w", err)
				}

				out := cmd.OutOrStdout()
				if root.Format != "text" {
					return writeStructured(out, root.Format, stored)
				}

				tw := newTable(out)
				for _, key := range models.KnownSettingKeys {
					value, ok := stored[key]
					if !ok {
						value = "(unset)"
					}
					fmt.Fprintf(tw, "%s\t%s\n", key, value)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "读取单个设置",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return root.withStore(ctx, func(store repository.Store) error {
				value, ok, err := store.GetSetting(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get setting: %w", err)
				}
				if !ok {
					return fmt.Errorf("setting %q is not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "写入单个设置",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := migration.ValidateSetting(key, value); err != nil {
				return err
			}

			ctx := cmd.Context()
			return root.withStore(ctx, func(store repository.Store) error {
				if err := store.SetSetting(ctx, key, value); err != nil {
					return fmt.Errorf("set setting: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
				return nil
			})
		},
	})

	return cmd
}
