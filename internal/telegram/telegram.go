package telegram

import (
	"context"
	"fmt"
	"time"

	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"

	"github.com/go-telegram/bot"
)

// Config Telegram Bot 配置
type Config struct {
	Token    string  // Bot Token
	APIURL   string  // 自建 Bot API 服务地址，为空使用官方服务
	OwnerIDs []int64 // Owner 用户 IDs
	Debug    bool    // 是否开启调试模式
}

// NewAPI 创建 Bot API 客户端
func NewAPI(cfg Config) (*bot.Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	opts := []bot.Option{}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}
	if cfg.APIURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.APIURL))
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return b, nil
}

// Controller 命令可操作的引擎能力
type Controller interface {
	IsRunning() bool
	Pause() bool
	Cancel() bool
	Snapshot() migration.Snapshot
}

// ReportStore 命令查询所需的存储能力
type ReportStore interface {
	GetActiveSession(ctx context.Context) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
	ListFailedMessages(ctx context.Context, sessionID string, limit int) ([]*models.FailedMessage, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)
}

// Bot Owner 命令服务（/status /pause /cancel /failed /stats）
type Bot struct {
	bot        *bot.Bot
	api        botAPI
	ownerIDs   map[int64]struct{}
	controller Controller
	store      ReportStore
	workerPool *WorkerPool
	startTime  time.Time
}

// New 创建命令服务并注册 handlers
func New(b *bot.Bot, cfg Config, controller Controller, store ReportStore) *Bot {
	telegramBot := newBot(b, cfg.OwnerIDs, controller, store)
	telegramBot.bot = b
	telegramBot.registerHandlers()
	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot
}

func newBot(api botAPI, ownerIDs []int64, controller Controller, store ReportStore) *Bot {
	owners := make(map[int64]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}

	b := &Bot{
		api:        api,
		ownerIDs:   owners,
		controller: controller,
		store:      store,
		startTime:  time.Now(),
	}
	b.workerPool = NewWorkerPool(4, 64, b.handlePanic)
	return b
}

// Start 启动长轮询（阻塞，直到 ctx 取消）
func (b *Bot) Start(ctx context.Context) error {
	if b.bot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	logger.L().Info("Starting Telegram bot...")
	b.bot.Start(ctx)
	b.workerPool.Shutdown()
	logger.L().Info("Telegram bot stopped")
	return nil
}
