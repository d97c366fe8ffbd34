package migration

import (
	"sync"
	"sync/atomic"
	"time"

	"channel_migrator/internal/models"
)

// liveCounters 引擎运行时计数器，状态查询只读原子值，不阻塞遍历
type liveCounters struct {
	successful atomic.Int64
	failed     atomic.Int64
	duplicate  atomic.Int64
	deleted    atomic.Int64
	skipped    atomic.Int64
	filtered   atomic.Int64

	cursor    atomic.Int64 // 最后一个已记录结果的消息 ID
	currentID atomic.Int64 // 正在处理的消息 ID

	// 本次运行开始时已有的处理数，用于计算速度
	baseline atomic.Int64

	mu        sync.RWMutex
	sessionID string
	source    ChannelRef
	target    ChannelRef
	startID   int64
	endID     int64
	status    models.SessionStatus
	runStart  time.Time
}

func (c *liveCounters) reset(session *models.Session, now time.Time) {
	c.successful.Store(session.Counters.Successful)
	c.failed.Store(session.Counters.Failed)
	c.duplicate.Store(session.Counters.Duplicate)
	c.deleted.Store(session.Counters.Deleted)
	c.skipped.Store(session.Counters.Skipped)
	c.filtered.Store(session.Counters.Filtered)
	c.cursor.Store(session.LastMessageID)
	c.currentID.Store(session.NextMessageID())
	c.baseline.Store(session.Counters.Processed())

	c.mu.Lock()
	c.sessionID = session.ID
	c.source = ChannelRef(session.SourceRef)
	c.target = ChannelRef(session.TargetRef)
	c.startID = session.StartMessageID
	c.endID = session.EndMessageID
	c.status = session.Status
	c.runStart = now
	c.mu.Unlock()
}

func (c *liveCounters) setStatus(status models.SessionStatus) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *liveCounters) counters() models.Counters {
	return models.Counters{
		Successful: c.successful.Load(),
		Failed:     c.failed.Load(),
		Duplicate:  c.duplicate.Load(),
		Deleted:    c.deleted.Load(),
		Skipped:    c.skipped.Load(),
		Filtered:   c.filtered.Load(),
	}
}

// Snapshot 引擎状态快照
type Snapshot struct {
	Running          bool                 `json:"running"`
	SessionID        string               `json:"session_id,omitempty"`
	Source           ChannelRef           `json:"source,omitempty"`
	Target           ChannelRef           `json:"target,omitempty"`
	Status           models.SessionStatus `json:"status,omitempty"`
	StartMessageID   int64                `json:"start_message_id"`
	CurrentMessageID int64                `json:"current_message_id"`
	LastMessageID    int64                `json:"last_message_id"`
	EndMessageID     int64                `json:"end_message_id,omitempty"`
	Counters         models.Counters      `json:"counters"`
	StartedAt        time.Time            `json:"started_at"`
	Elapsed          time.Duration        `json:"elapsed"`
	SpeedPerMinute   float64              `json:"speed_per_minute"`
	FloodDelay       time.Duration        `json:"flood_delay"`
	RateLimitCount   int                  `json:"rate_limit_count"`
}

func (c *liveCounters) snapshot(now time.Time) Snapshot {
	c.mu.RLock()
	snap := Snapshot{
		SessionID:      c.sessionID,
		Source:         c.source,
		Target:         c.target,
		Status:         c.status,
		StartMessageID: c.startID,
		EndMessageID:   c.endID,
		StartedAt:      c.runStart,
	}
	c.mu.RUnlock()

	snap.Counters = c.counters()
	snap.LastMessageID = c.cursor.Load()
	snap.CurrentMessageID = c.currentID.Load()

	if !snap.StartedAt.IsZero() {
		snap.Elapsed = now.Sub(snap.StartedAt)
		if minutes := snap.Elapsed.Minutes(); minutes > 0 {
			processed := snap.Counters.Processed() - c.baseline.Load()
			snap.SpeedPerMinute = float64(processed) / minutes
		}
	}
	return snap
}
