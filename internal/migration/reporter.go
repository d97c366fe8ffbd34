package migration

import (
	"context"
	"sync"
	"time"

	"channel_migrator/internal/logger"
)

// StatusSink 接收周期性状态快照（如 Telegram 状态看板）
type StatusSink interface {
	PublishStatus(ctx context.Context, snapshot Snapshot) error
}

// SnapshotSource 状态快照来源
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Reporter 独立于遍历循环的周期性状态上报任务
type Reporter struct {
	source   SnapshotSource
	sink     StatusSink
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReporter 创建上报任务
func NewReporter(source SnapshotSource, sink StatusSink, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{source: source, sink: sink, interval: interval}
}

// Start 启动上报；重复调用无效果
func (r *Reporter) Start(parent context.Context) {
	if r == nil || r.sink == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, r.done)
	logger.L().Infof("Status reporter started (interval=%s)", r.interval)
}

// Stop 停止上报并等待退出，必要时先发布最终状态
func (r *Reporter) Stop() {
	if r == nil {
		return
	}

	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.L().Info("Status reporter stopped")
}

func (r *Reporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	wasRunning := false
	for {
		select {
		case <-ctx.Done():
			// 停止前看板仍显示运行中时补发最终状态
			if wasRunning {
				r.publish(context.WithoutCancel(ctx), r.source.Snapshot())
			}
			return
		case <-ticker.C:
			snap := r.source.Snapshot()
			// 运行结束后再发布一次最终状态
			if !snap.Running && !wasRunning {
				continue
			}
			wasRunning = snap.Running
			r.publish(ctx, snap)
		}
	}
}

func (r *Reporter) publish(ctx context.Context, snap Snapshot) {
	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.sink.PublishStatus(publishCtx, snap); err != nil {
		logger.L().Warnf("Failed to publish status: %v", err)
	}
}
