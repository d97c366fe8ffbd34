package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FailedMessage 终态失败的消息记录（每条消息一行，而不是每次重试一行）
type FailedMessage struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-" yaml:"-"`
	SessionID    string             `bson:"session_id" json:"session_id" yaml:"session_id"`
	MessageID    int64              `bson:"message_id" json:"message_id" yaml:"message_id"`
	Error        string             `bson:"error_message" json:"error_message" yaml:"error_message"`
	RetryCount   int                `bson:"retry_count" json:"retry_count" yaml:"retry_count"`
	FileSize     int64              `bson:"file_size,omitempty" json:"file_size,omitempty" yaml:"file_size,omitempty"`
	ContentType  string             `bson:"content_type,omitempty" json:"content_type,omitempty" yaml:"content_type,omitempty"`
	FileUniqueID string             `bson:"file_unique_id,omitempty" json:"file_unique_id,omitempty" yaml:"file_unique_id,omitempty"`
	Timestamp    time.Time          `bson:"timestamp" json:"timestamp" yaml:"timestamp"`
}

// TrackedMessage 已成功投递的消息（去重依据）
type TrackedMessage struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID       string             `bson:"session_id" json:"session_id"`
	SourceMessageID int64              `bson:"source_message_id" json:"source_message_id"`
	TargetMessageID int64              `bson:"target_message_id" json:"target_message_id"`
	FileUniqueID    string             `bson:"file_unique_id,omitempty" json:"file_unique_id,omitempty"`
	ContentHash     string             `bson:"content_hash,omitempty" json:"content_hash,omitempty"`
	ForwardedAt     time.Time          `bson:"forwarded_at" json:"forwarded_at"`
}

// Setting 键值设置
type Setting struct {
	Key       string    `bson:"_id" json:"key" yaml:"key"`
	Value     string    `bson:"value" json:"value" yaml:"value"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at" yaml:"updated_at"`
}

// 设置键
const (
	SettingSourceChannel  = "source_channel"
	SettingTargetChannel  = "target_channel"
	SettingStartMessageID = "start_message_id"
	SettingEndMessageID   = "end_message_id"
	SettingDelay          = "delay"
	SettingMaxRetries     = "max_retries"
	SettingFloodProtect   = "flood_protect"
)

// KnownSettingKeys 允许通过命令修改的设置键
var KnownSettingKeys = []string{
	SettingSourceChannel,
	SettingTargetChannel,
	SettingStartMessageID,
	SettingEndMessageID,
	SettingDelay,
	SettingMaxRetries,
	SettingFloodProtect,
}

// Statistics 跨会话统计
type Statistics struct {
	TotalForwarded       int64   `json:"total_forwarded" yaml:"total_forwarded"`
	TotalFailed          int64   `json:"total_failed" yaml:"total_failed"`
	TotalSessions        int64   `json:"total_sessions" yaml:"total_sessions"`
	AverageSuccessPerRun float64 `json:"average_success_per_session" yaml:"average_success_per_session"`
	SessionsLast24Hours  int64   `json:"recent_sessions" yaml:"recent_sessions"`
}
