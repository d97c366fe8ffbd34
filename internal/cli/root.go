package cli

import (
	"context"
	"fmt"

	"channel_migrator/internal/app"
	"channel_migrator/internal/config"
	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"
	"channel_migrator/internal/repository"

	"github.com/spf13/cobra"
)

// ValidFormats 允许的输出格式
var ValidFormats = []string{"text", "yaml", "json"}

// Runner 运行或取消会话所需的能力（需要 Telegram 连接）
type Runner interface {
	Run(ctx context.Context, req migration.RunRequest) (migration.Outcome, error)
	CancelSession(ctx context.Context, sessionID string) error
	Close(ctx context.Context) error
}

// Deps 命令依赖，测试时可替换
type Deps struct {
	LoadConfig func() (*config.Config, error)
	OpenStore  func(ctx context.Context, cfg *config.Config) (repository.Store, error)
	NewRunner  func(ctx context.Context, cfg *config.Config, store repository.Store) (Runner, error)
}

// DefaultDeps 生产环境依赖
func DefaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		OpenStore:  app.OpenStore,
		NewRunner: func(ctx context.Context, cfg *config.Config, store repository.Store) (Runner, error) {
			return app.New(ctx, cfg, store)
		},
	}
}

// RootOptions 全局参数与已加载的配置
type RootOptions struct {
	Format string

	deps Deps
	cfg  *config.Config
}

// NewRootCommand 创建 migrator 根命令
func NewRootCommand(deps Deps) *cobra.Command {
	opts := &RootOptions{deps: deps}

	cmd := &cobra.Command{
		Use:   "migrator",
		Short: "Telegram 频道历史消息迁移工具",
		Long: `按消息 ID 顺序把源频道的历史消息迁移到目标频道。

进度持久化在 MongoDB 或 SQLite 中，会话可以暂停、中断后恢复。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := opts.deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.LogLevel, cfg.LogFormat)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|yaml|json)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newResumeCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newFailedCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newSettingsCommand(opts))
	cmd.AddCommand(newResetCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withStore 打开存储执行 fn，结束后关闭
func (o *RootOptions) withStore(ctx context.Context, fn func(store repository.Store) error) error {
	store, err := o.deps.OpenStore(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.L().Warnf("Failed to close store: %v", err)
		}
	}()
	return fn(store)
}

// withRunner 打开存储并创建 Runner；Runner 关闭时负责关闭存储
func (o *RootOptions) withRunner(ctx context.Context, fn func(store repository.Store, runner Runner) error) error {
	store, err := o.deps.OpenStore(ctx, o.cfg)
	if err != nil {
		return err
	}

	runner, err := o.deps.NewRunner(ctx, o.cfg, store)
	if err != nil {
		_ = store.Close(context.WithoutCancel(ctx))
		return err
	}
	defer func() {
		if err := runner.Close(context.WithoutCancel(ctx)); err != nil {
			logger.L().Warnf("Failed to close app: %v", err)
		}
	}()
	return fn(store, runner)
}
