package telegram

import (
	"context"

	"channel_migrator/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// isOwner 是否为配置的 Owner
func (b *Bot) isOwner(userID int64) bool {
	_, ok := b.ownerIDs[userID]
	return ok
}

// RequireOwner 中间件：仅允许 Owner 执行
func (b *Bot) RequireOwner(next UpdateHandler) UpdateHandler {
	return func(ctx context.Context, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		if !b.isOwner(update.Message.From.ID) {
			logger.L().Warnf("Non-owner user %d attempted to use owner command", update.Message.From.ID)
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "此命令仅限 Bot Owner 使用")
			return
		}

		next(ctx, update)
	}
}

// asyncHandler 将处理函数放入工作池执行，避免阻塞长轮询
func (b *Bot) asyncHandler(h UpdateHandler) bot.HandlerFunc {
	return func(ctx context.Context, _ *bot.Bot, update *botModels.Update) {
		b.workerPool.Submit(HandlerTask{
			Ctx:     context.WithoutCancel(ctx),
			Update:  update,
			Handler: h,
		})
	}
}

// handlePanic 处理函数崩溃时通知用户
func (b *Bot) handlePanic(task HandlerTask, _ any) {
	if task.Update != nil && task.Update.Message != nil {
		b.sendErrorMessage(task.Ctx, task.Update.Message.Chat.ID, "服务器内部错误，请稍后重试")
	}
}
