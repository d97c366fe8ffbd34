package migration

import (
	"time"

	"channel_migrator/internal/models"
)

// EventType 生命周期事件类型
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventProgressCheckpoint EventType = "progress_checkpoint"
	EventSessionEnded       EventType = "session_ended"
	EventCriticalError      EventType = "critical_error"
	EventSessionRecovered   EventType = "session_recovered"
)

// Event 发送给通知接收方的事件
type Event struct {
	Type          EventType
	SessionID     string
	Source        ChannelRef
	Target        ChannelRef
	Status        models.SessionStatus
	Counters      models.Counters
	LastMessageID int64
	EndMessageID  int64
	Resumed       bool
	Description   string
	Time          time.Time
}
