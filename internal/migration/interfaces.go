package migration

import (
	"context"

	"channel_migrator/internal/models"
)

// RemoteClient 远端频道客户端
// 任意调用都可能返回 *RateLimitedError、ErrPermanentlyDenied 或普通错误
type RemoteClient interface {
	// Fetch 拉取源频道消息；消息不存在时返回 ErrNotFound
	Fetch(ctx context.Context, channel ChannelRef, messageID int64) (*Message, error)

	// Forward 按引用转发，不经过本进程传输文件
	Forward(ctx context.Context, message *Message, target ChannelRef) (Receipt, error)

	// Reupload 下载原始内容后作为新消息重新发送
	Reupload(ctx context.Context, message *Message, target ChannelRef) (Receipt, error)
}

// ChunkedTransferer 支持流式大文件传输的客户端
type ChunkedTransferer interface {
	TransferChunked(ctx context.Context, message *Message, target ChannelRef) (Receipt, error)
}

// ProgressStore 进度存储，所有调用返回前必须已持久化
type ProgressStore interface {
	DuplicateChecker

	// CreateSession 创建会话并回填 session.ID
	CreateSession(ctx context.Context, session *models.Session) error

	// UpdateProgress 单次原子更新游标、计数器与状态；游标只增不减，
	// Status 非空时同时写入 EndedAt（nil 表示清除）
	UpdateProgress(ctx context.Context, sessionID string, update models.ProgressUpdate) error

	// GetSession 会话不存在时返回 (nil, nil)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// GetActiveSession 状态为 forwarding / paused 的会话，不存在时返回 (nil, nil)
	GetActiveSession(ctx context.Context) (*models.Session, error)

	AddFailedMessage(ctx context.Context, record *models.FailedMessage) error
	TrackMessage(ctx context.Context, record *models.TrackedMessage) error
}

// Notifier 生命周期事件接收方
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc 函数适配器
type NotifierFunc func(ctx context.Context, event Event)

// Notify 实现 Notifier
func (f NotifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// MultiNotifier 依次通知多个接收方
type MultiNotifier []Notifier

// Notify 实现 Notifier
func (m MultiNotifier) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}
