package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"channel_migrator/internal/config"
	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"
	"channel_migrator/internal/mongo"
	"channel_migrator/internal/repository"
	"channel_migrator/internal/repository/sqlite"
	"channel_migrator/internal/statusapi"
	"channel_migrator/internal/telegram"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// OpenStore 按 STORE_DRIVER 打开进度存储并确保表结构/索引存在
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var store repository.Store

	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open SQLite store failed: %w", err)
		}
		store = s
		logger.L().Infof("SQLite store opened: %s", cfg.SQLitePath)
	default:
		client, err := mongo.NewClient(ctx, mongo.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDBName,
			AppName:  "channel_migrator",
		})
		if err != nil {
			return nil, fmt.Errorf("init MongoDB failed: %w", err)
		}
		store = repository.NewMongoStoreFromClient(client)
		logger.L().Info("MongoDB initialized successfully")
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("ensure store schema failed: %w", err)
	}
	return store, nil
}

// App 应用服务容器
// 负责组装 Telegram 适配层与迁移引擎，并管理运行期间的后台服务
type App struct {
	cfg      *config.Config
	store    repository.Store
	engine   *migration.Engine
	notifier *telegram.Notifier
	commands *telegram.Bot
	limiter  *telegram.RateLimiter
}

// New 初始化 Telegram 客户端、通知器与迁移引擎
// store 由调用方打开，Close 时一并关闭
func New(ctx context.Context, cfg *config.Config, store repository.Store) (*App, error) {
	api, err := telegram.NewAPI(telegram.Config{
		Token:    cfg.TelegramToken,
		APIURL:   cfg.TelegramAPIURL,
		OwnerIDs: cfg.BotOwnerIDs,
		Debug:    strings.EqualFold(cfg.LogLevel, "trace"),
	})
	if err != nil {
		return nil, fmt.Errorf("init Telegram bot failed: %w", err)
	}

	limiter := telegram.NewRateLimiter(cfg.Migration.APIRatePerSecond)

	client, err := telegram.NewClient(api, telegram.ClientConfig{
		StagingChatID: cfg.StagingChatID,
		ForwardMode:   cfg.Migration.ForwardMode,
		TempDir:       cfg.Migration.TempDir,
		Limiter:       limiter,
	})
	if err != nil {
		limiter.Close()
		return nil, fmt.Errorf("init Telegram client failed: %w", err)
	}

	notifier := telegram.NewNotifier(api, NotifyChats(cfg), limiter)
	engine := migration.NewEngine(client, store, notifier, EngineOptions(cfg))
	commands := telegram.New(api, telegram.Config{OwnerIDs: cfg.BotOwnerIDs}, engine, store)

	return &App{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		notifier: notifier,
		commands: commands,
		limiter:  limiter,
	}, nil
}

// NotifyChats 生命周期通知目标：NOTIFY_CHAT_ID 优先，否则发送给所有 owner
func NotifyChats(cfg *config.Config) []int64 {
	if cfg.NotifyChatID != 0 {
		return []int64{cfg.NotifyChatID}
	}
	return append([]int64(nil), cfg.BotOwnerIDs...)
}

// EngineOptions 由配置生成引擎参数
func EngineOptions(cfg *config.Config) migration.Options {
	opts := migration.DefaultOptions()
	m := cfg.Migration

	opts.CheckpointInterval = m.CheckpointInterval
	opts.ConsecutiveNotFoundLimit = m.ConsecutiveNotFoundLimit
	opts.Retry = migration.DefaultRetryConfig(m.MaxRetries)
	opts.Delivery = migration.DeliveryConfig{
		LargeFileThreshold: m.LargeFileThreshold,
		MaxFileSize:        m.MaxFileSize,
	}
	for _, kind := range m.SkipContentTypes {
		opts.SkipKinds = append(opts.SkipKinds, migration.ContentKind(kind))
	}
	return opts
}

// DefaultRunSettings 配置中的运行默认值（频道与起止 ID 由设置或命令行提供）
func DefaultRunSettings(cfg *config.Config) migration.RunSettings {
	return migration.RunSettings{
		StartMessageID: 1,
		Delay:          cfg.Migration.Delay,
		MaxRetries:     cfg.Migration.MaxRetries,
		FloodProtect:   cfg.Migration.FloodProtect,
	}
}

// Run 启动状态看板、Owner 命令与状态 HTTP 服务，运行一个会话直到结束
func (a *App) Run(ctx context.Context, req migration.RunRequest) (migration.Outcome, error) {
	runID := uuid.NewString()
	log := logger.L().WithField("run_id", runID)

	if recovered, err := a.engine.Recover(ctx); err != nil {
		return migration.Outcome{}, err
	} else if recovered != nil {
		log.Warnf("Session %s was left running by a previous process and is now interrupted", recovered.ID)
	}

	servicesCtx, stopServices := context.WithCancel(ctx)
	defer stopServices()

	reporter := migration.NewReporter(a.engine, a.notifier, a.cfg.Migration.StatusUpdateInterval)
	reporter.Start(servicesCtx)
	defer reporter.Stop()

	eg, egCtx := errgroup.WithContext(servicesCtx)
	eg.Go(func() error {
		return a.commands.Start(egCtx)
	})
	if addr := a.cfg.StatusHTTPAddr; addr != "" {
		server := statusapi.New(addr, a.engine, a.store)
		eg.Go(func() error {
			return server.Start(egCtx)
		})
	}

	log.Info("Migration run starting")
	outcome, runErr := a.engine.Run(ctx, req)

	reporter.Stop()
	stopServices()
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("Background service stopped with error: %v", err)
	}

	if runErr != nil {
		log.Errorf("Migration run failed: %v", runErr)
		return outcome, runErr
	}
	log.Infof("Migration run finished: session=%s status=%s", outcome.SessionID, outcome.Status)
	return outcome, nil
}

// CancelSession 取消一个未在运行的会话
func (a *App) CancelSession(ctx context.Context, sessionID string) error {
	return a.engine.CancelSession(ctx, sessionID)
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	a.limiter.Close()

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.store.Close(closeCtx); err != nil {
		return fmt.Errorf("close store failed: %w", err)
	}
	return nil
}
