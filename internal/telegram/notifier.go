package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"

	"github.com/go-telegram/bot"
)

// Notifier 将生命周期事件与状态看板发送到管理聊天
type Notifier struct {
	api     botAPI
	chatIDs []int64
	limiter *RateLimiter

	mu           sync.Mutex
	boardSession string
	boards       map[int64]int // chat -> 状态看板消息 ID
}

var (
	_ migration.Notifier   = (*Notifier)(nil)
	_ migration.StatusSink = (*Notifier)(nil)
)

// NewNotifier 创建通知器
func NewNotifier(b *bot.Bot, chatIDs []int64, limiter *RateLimiter) *Notifier {
	return newNotifier(b, chatIDs, limiter)
}

func newNotifier(api botAPI, chatIDs []int64, limiter *RateLimiter) *Notifier {
	return &Notifier{
		api:     api,
		chatIDs: append([]int64(nil), chatIDs...),
		limiter: limiter,
		boards:  make(map[int64]int),
	}
}

// Notify 实现 migration.Notifier；检查点只记录日志，不发送消息
func (n *Notifier) Notify(ctx context.Context, event migration.Event) {
	if event.Type == migration.EventProgressCheckpoint {
		logger.L().Debugf("Checkpoint: session=%s last_message_id=%d", event.SessionID, event.LastMessageID)
		return
	}

	text := renderEvent(event)
	for _, chatID := range n.chatIDs {
		if _, err := n.send(ctx, chatID, text); err != nil {
			logger.L().Errorf("Failed to send %s notification to chat %d: %v", event.Type, chatID, err)
		}
	}
}

// PublishStatus 实现 migration.StatusSink：新会话发送新的看板，之后原地编辑
func (n *Notifier) PublishStatus(ctx context.Context, snap migration.Snapshot) error {
	if snap.SessionID == "" {
		return nil
	}
	text := renderStatus(snap)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.boardSession != snap.SessionID {
		n.boardSession = snap.SessionID
		n.boards = make(map[int64]int)
	}

	var errs []error
	for _, chatID := range n.chatIDs {
		if messageID, ok := n.boards[chatID]; ok {
			err := n.edit(ctx, chatID, messageID, text)
			if err == nil || isNotModified(err) {
				continue
			}
			// 看板消息可能已被删除，改为重新发送
			logger.L().Warnf("Failed to edit status board in chat %d: %v", chatID, err)
		}

		messageID, err := n.send(ctx, chatID, text)
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		n.boards[chatID] = messageID
	}
	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, chatID int64, text string) (int, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	sent, err := n.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}

func (n *Notifier) edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := n.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	return err
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
