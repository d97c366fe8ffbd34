package repository

import (
	"context"

	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"
)

// Store 迁移进度存储，MongoDB 与 SQLite 实现同一契约
type Store interface {
	migration.ProgressStore

	// ListSessions 按创建时间倒序列出会话
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)

	// ListFailedMessages 列出会话中最近的失败记录
	ListFailedMessages(ctx context.Context, sessionID string, limit int) ([]*models.FailedMessage, error)

	// GetStatistics 跨会话统计
	GetStatistics(ctx context.Context) (*models.Statistics, error)

	// GetSettings 读取全部设置
	GetSettings(ctx context.Context) (map[string]string, error)

	// GetSetting 读取单个设置，不存在时 ok 为 false
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)

	// SetSetting 写入单个设置
	SetSetting(ctx context.Context, key, value string) error

	// Reset 删除所有会话、失败记录、已投递记录与设置
	Reset(ctx context.Context) error

	// EnsureSchema 创建索引或表结构
	EnsureSchema(ctx context.Context) error

	// Close 释放连接
	Close(ctx context.Context) error
}

// SessionRepository 会话数据访问接口
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	UpdateProgress(ctx context.Context, sessionID string, update models.ProgressUpdate) error
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	GetActive(ctx context.Context) (*models.Session, error)
	List(ctx context.Context, limit int) ([]*models.Session, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
	DeleteAll(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error
}

// FailedMessageRepository 失败记录数据访问接口
type FailedMessageRepository interface {
	Add(ctx context.Context, record *models.FailedMessage) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.FailedMessage, error)
	DeleteAll(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error
}

// TrackedMessageRepository 已投递消息数据访问接口
type TrackedMessageRepository interface {
	Track(ctx context.Context, record *models.TrackedMessage) error
	Exists(ctx context.Context, sessionID, fileUniqueID, contentHash string) (bool, error)
	DeleteAll(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error
}

// SettingRepository 键值设置数据访问接口
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	DeleteAll(ctx context.Context) error
}
