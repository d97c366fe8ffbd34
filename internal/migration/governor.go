package migration

import (
	"context"
	"sync"
	"time"

	"channel_migrator/internal/logger"
)

// SleepFunc 可被取消的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext 等待 d，ctx 取消时提前返回
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GovernorConfig 自适应限流参数
type GovernorConfig struct {
	Enabled       bool
	InitialDelay  time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	GrowthFactor  float64       // 触发限流时的增长倍数
	DecayFactor   float64       // 平稳期的衰减倍数
	PenaltyWindow time.Duration // 最近一次限流后的惩罚窗口
}

// DefaultGovernorConfig 默认参数
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		Enabled:       true,
		InitialDelay:  500 * time.Millisecond,
		MinDelay:      500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		GrowthFactor:  1.5,
		DecayFactor:   0.9,
		PenaltyWindow: time.Minute,
	}
}

// FloodGovernor 把限流信号转化为调用前的自适应等待
// 对限流反应快、恢复慢：宁可吞吐偏低，也不要反复被平台惩罚
type FloodGovernor struct {
	cfg   GovernorConfig
	now   func() time.Time
	sleep SleepFunc

	mu                sync.Mutex
	currentDelay      time.Duration
	lastRateLimitedAt time.Time
	rateLimitCount    int
}

// NewFloodGovernor 创建限流控制器
func NewFloodGovernor(cfg GovernorConfig, now func() time.Time, sleep SleepFunc) *FloodGovernor {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = SleepContext
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}

	return &FloodGovernor{
		cfg:          cfg,
		now:          now,
		sleep:        sleep,
		currentDelay: clampDuration(cfg.InitialDelay, cfg.MinDelay, cfg.MaxDelay),
	}
}

// BeforeCall 每次远程调用前的阻塞等待
func (g *FloodGovernor) BeforeCall(ctx context.Context) error {
	if g == nil || !g.cfg.Enabled {
		return ctx.Err()
	}
	return g.sleep(ctx, g.nextDelay(0))
}

// Pace 消息间延迟；base 为配置的基础延迟（为 0 时使用当前延迟）
func (g *FloodGovernor) Pace(ctx context.Context, base time.Duration) error {
	if g == nil {
		return SleepContext(ctx, base)
	}
	if !g.cfg.Enabled {
		return g.sleep(ctx, base)
	}
	return g.sleep(ctx, g.nextDelay(base))
}

// OnRateLimited 记录一次限流事件
func (g *FloodGovernor) OnRateLimited() {
	if g == nil {
		return
	}

	g.mu.Lock()
	g.lastRateLimitedAt = g.now()
	g.rateLimitCount++
	grown := time.Duration(float64(g.currentDelay) * g.cfg.GrowthFactor)
	g.currentDelay = clampDuration(grown, g.cfg.MinDelay, g.cfg.MaxDelay)
	delay, count := g.currentDelay, g.rateLimitCount
	g.mu.Unlock()

	logger.L().Warnf("Flood detected, increasing delay to %s (flood_count=%d)", delay, count)
}

// CurrentDelay 当前基础延迟
func (g *FloodGovernor) CurrentDelay() time.Duration {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentDelay
}

// RateLimitCount 累计限流次数
func (g *FloodGovernor) RateLimitCount() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rateLimitCount
}

// nextDelay 计算本次等待时长并更新衰减状态
func (g *FloodGovernor) nextDelay(base time.Duration) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	delay := base
	if delay <= 0 {
		delay = g.currentDelay
	}

	if !g.lastRateLimitedAt.IsZero() && g.now().Sub(g.lastRateLimitedAt) < g.cfg.PenaltyWindow {
		doubled := delay * 2
		if doubled > g.cfg.MaxDelay {
			doubled = g.cfg.MaxDelay
		}
		if doubled > delay {
			delay = doubled
		}
		return delay
	}

	decayed := time.Duration(float64(g.currentDelay) * g.cfg.DecayFactor)
	g.currentDelay = clampDuration(decayed, g.cfg.MinDelay, g.cfg.MaxDelay)
	return delay
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if hi > 0 && d > hi {
		return hi
	}
	return d
}
