package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus 迁移会话状态
type SessionStatus string

const (
	SessionStatusForwarding  SessionStatus = "forwarding"
	SessionStatusPaused      SessionStatus = "paused"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusInterrupted SessionStatus = "interrupted"
	SessionStatusCancelled   SessionStatus = "cancelled"
	SessionStatusCompleted   SessionStatus = "completed"
)

// IsActive 是否为活跃状态（同一时间最多一个）
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusForwarding || s == SessionStatusPaused
}

// IsFinal 是否为不可恢复的结束状态
func (s SessionStatus) IsFinal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// HasEndTime 该状态是否需要记录结束时间
func (s SessionStatus) HasEndTime() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled || s == SessionStatusFailed
}

// Counters 会话计数器，会话内只增不减
type Counters struct {
	Successful int64 `bson:"successful" json:"successful" yaml:"successful"`
	Failed     int64 `bson:"failed" json:"failed" yaml:"failed"`
	Duplicate  int64 `bson:"duplicate" json:"duplicate" yaml:"duplicate"`
	Deleted    int64 `bson:"deleted" json:"deleted" yaml:"deleted"`
	Skipped    int64 `bson:"skipped" json:"skipped" yaml:"skipped"`
	Filtered   int64 `bson:"filtered" json:"filtered" yaml:"filtered"`
}

// Processed 已有结果的消息总数
func (c Counters) Processed() int64 {
	return c.Successful + c.Failed + c.Duplicate + c.Deleted + c.Skipped + c.Filtered
}

// Session 一次迁移会话（对应 forwarding_progress）
type Session struct {
	ObjectID primitive.ObjectID `bson:"_id,omitempty" json:"-" yaml:"-"`
	ID       string             `bson:"-" json:"id" yaml:"id"` // 存储层分配的不透明 ID

	SourceRef      string `bson:"source_ref" json:"source_ref" yaml:"source_ref"`
	TargetRef      string `bson:"target_ref" json:"target_ref" yaml:"target_ref"`
	StartMessageID int64  `bson:"start_message_id" json:"start_message_id" yaml:"start_message_id"`
	EndMessageID   int64  `bson:"end_message_id,omitempty" json:"end_message_id,omitempty" yaml:"end_message_id,omitempty"` // 0 表示不限
	LastMessageID  int64  `bson:"last_message_id" json:"last_message_id" yaml:"last_message_id"`                            // 游标：最后一个已持久化结果的消息 ID

	Counters Counters      `bson:"counters" json:"counters" yaml:"counters"`
	Status   SessionStatus `bson:"status" json:"status" yaml:"status"`

	StartedAt time.Time  `bson:"started_at" json:"started_at" yaml:"started_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at" yaml:"updated_at"`
}

// NextMessageID 恢复时应处理的下一条消息 ID
func (s *Session) NextMessageID() int64 {
	return s.LastMessageID + 1
}

// HasEnd 是否有结束 ID
func (s *Session) HasEnd() bool {
	return s.EndMessageID > 0
}

// ProgressUpdate 一次检查点写入：游标、计数器与（可选）状态在同一次更新中落盘
type ProgressUpdate struct {
	LastMessageID int64
	Counters      Counters
	Status        SessionStatus // 为空表示不变
	EndedAt       *time.Time
}
