package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

const (
	defaultFailedLimit = 10
	maxFailedLimit     = 50
)

const helpText = `📦 频道迁移 Bot

可用命令:
/status - 查看迁移状态
/pause - 暂停当前迁移（可恢复）
/cancel - 取消当前迁移
/failed [数量] - 查看最近的失败记录
/stats - 查看统计
/ping - 测试连接

暂停后的会话通过命令行 migrator resume 恢复；
来源、目标、范围与速度等设置通过 migrator run 参数或 migrator settings set 修改`

// registerHandlers 注册所有命令处理器（异步执行）
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact,
		b.asyncHandler(b.handleHelp))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact,
		b.asyncHandler(b.handleHelp))

	// Owner 命令
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleStatus)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pause", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handlePause)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleCancel)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/failed", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleFailed)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleStats)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/ping", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handlePing)))

	logger.L().Debug("All handlers registered with async execution")
}

// handleHelp 处理 /start 与 /help
func (b *Bot) handleHelp(ctx context.Context, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, helpText)
}

// handleStatus 处理 /status：运行中读取实时快照，否则展示最近的会话
func (b *Bot) handleStatus(ctx context.Context, update *botModels.Update) {
	chatID := update.Message.Chat.ID

	snap := b.controller.Snapshot()
	if snap.Running {
		b.sendMessage(ctx, chatID, renderStatus(snap))
		return
	}

	session, err := b.latestSession(ctx)
	if err != nil {
		logger.L().Errorf("Failed to load session for /status: %v", err)
		b.sendErrorMessage(ctx, chatID, "读取会话失败，请稍后再试")
		return
	}
	if session == nil {
		b.sendMessage(ctx, chatID, renderStatus(migration.Snapshot{}))
		return
	}
	b.sendMessage(ctx, chatID, renderStatus(snapshotOf(session)))
}

// handlePause 处理 /pause
func (b *Bot) handlePause(ctx context.Context, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	if !b.controller.Pause() {
		b.sendErrorMessage(ctx, chatID, "当前没有运行中的迁移")
		return
	}
	logger.L().Infof("Pause requested by user %d", update.Message.From.ID)
	b.sendSuccessMessage(ctx, chatID, "已请求暂停，当前消息处理完成后保存进度；使用 migrator resume 恢复")
}

// handleCancel 处理 /cancel
func (b *Bot) handleCancel(ctx context.Context, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	if !b.controller.Cancel() {
		b.sendErrorMessage(ctx, chatID, "当前没有运行中的迁移")
		return
	}
	logger.L().Infof("Cancel requested by user %d", update.Message.From.ID)
	b.sendSuccessMessage(ctx, chatID, "已请求取消，会话结束后不可恢复")
}

// handleFailed 处理 /failed [数量]
func (b *Bot) handleFailed(ctx context.Context, update *botModels.Update) {
	chatID := update.Message.Chat.ID

	limit := defaultFailedLimit
	parts := strings.Fields(update.Message.Text)
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			b.sendErrorMessage(ctx, chatID, "用法: /failed [数量]\n例如: /failed 20")
			return
		}
		limit = min(n, maxFailedLimit)
	}

	sessionID := b.controller.Snapshot().SessionID
	if sessionID == "" {
		session, err := b.latestSession(ctx)
		if err != nil {
			logger.L().Errorf("Failed to load session for /failed: %v", err)
			b.sendErrorMessage(ctx, chatID, "读取会话失败，请稍后再试")
			return
		}
		if session == nil {
			b.sendMessage(ctx, chatID, renderStatus(migration.Snapshot{}))
			return
		}
		sessionID = session.ID
	}

	records, err := b.store.ListFailedMessages(ctx, sessionID, limit)
	if err != nil {
		logger.L().Errorf("Failed to list failed messages: %v", err)
		b.sendErrorMessage(ctx, chatID, "读取失败记录失败，请稍后再试")
		return
	}
	b.sendMessage(ctx, chatID, renderFailed(sessionID, records))
}

// handleStats 处理 /stats
func (b *Bot) handleStats(ctx context.Context, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	stats, err := b.store.GetStatistics(ctx)
	if err != nil {
		logger.L().Errorf("Failed to load statistics: %v", err)
		b.sendErrorMessage(ctx, chatID, "读取统计失败，请稍后再试")
		return
	}
	b.sendMessage(ctx, chatID, renderStatistics(stats))
}

// handlePing 处理 /ping
func (b *Bot) handlePing(ctx context.Context, update *botModels.Update) {
	b.sendMessage(ctx, update.Message.Chat.ID, b.buildPingMessage())
}

// latestSession 活跃会话优先，否则返回最近创建的会话
func (b *Bot) latestSession(ctx context.Context) (*models.Session, error) {
	session, err := b.store.GetActiveSession(ctx)
	if err != nil || session != nil {
		return session, err
	}
	sessions, err := b.store.ListSessions(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

// snapshotOf 将已存储的会话转换为状态快照
func snapshotOf(session *models.Session) migration.Snapshot {
	return migration.Snapshot{
		SessionID:        session.ID,
		Source:           migration.ChannelRef(session.SourceRef),
		Target:           migration.ChannelRef(session.TargetRef),
		Status:           session.Status,
		StartMessageID:   session.StartMessageID,
		CurrentMessageID: session.NextMessageID(),
		LastMessageID:    session.LastMessageID,
		EndMessageID:     session.EndMessageID,
		Counters:         session.Counters,
		StartedAt:        session.StartedAt,
	}
}
