package migration

import (
	"context"
	"errors"
	"math"
	"time"

	"channel_migrator/internal/logger"
)

// RetryConfig 重试参数
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig 默认重试参数
func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		BaseDelay:     time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
}

// RetryPolicy 包装单次远程操作：限流等待不消耗预算，致命错误立即返回，
// 其余错误按指数退避重试
type RetryPolicy struct {
	cfg      RetryConfig
	governor *FloodGovernor
	sleep    SleepFunc
}

// NewRetryPolicy 创建重试策略；governor 可为 nil
func NewRetryPolicy(cfg RetryConfig, governor *FloodGovernor, sleep SleepFunc) *RetryPolicy {
	if sleep == nil {
		sleep = SleepContext
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2
	}
	return &RetryPolicy{cfg: cfg, governor: governor, sleep: sleep}
}

// BackoffDelay 第 attempt 次（从 0 开始）失败后的等待时长
func (p *RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.BackoffFactor, float64(attempt))
	if p.cfg.MaxDelay > 0 && delay > float64(p.cfg.MaxDelay) {
		return p.cfg.MaxDelay
	}
	return time.Duration(delay)
}

// rateLimitWait 限流等待时长，不超过 MaxDelay
func (p *RetryPolicy) rateLimitWait(err *RateLimitedError) time.Duration {
	wait := err.RetryAfter
	if wait <= 0 {
		wait = p.cfg.BaseDelay
	}
	if p.cfg.MaxDelay > 0 && wait > p.cfg.MaxDelay {
		wait = p.cfg.MaxDelay
	}
	return wait
}

// Execute 执行带重试的操作，返回结果和消耗的重试次数
//
// 操作本身拿到的是不可取消的 context：暂停/取消不会打断进行中的远程调用，
// 只在调用前和等待期间生效
func Execute[T any](ctx context.Context, p *RetryPolicy, op string, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	callCtx := context.WithoutCancel(ctx)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return zero, attempt, stoppedError(err)
		}
		if err := p.governor.BeforeCall(ctx); err != nil {
			return zero, attempt, stoppedError(err)
		}

		result, err := fn(callCtx)
		if err == nil {
			return result, attempt, nil
		}

		switch Classify(err) {
		case ClassRateLimited:
			var rateErr *RateLimitedError
			errors.As(err, &rateErr)
			p.governor.OnRateLimited()
			wait := p.rateLimitWait(rateErr)
			logger.L().Warnf("%s rate limited, waiting %s (attempt %d/%d)", op, wait, attempt+1, p.cfg.MaxRetries+1)
			if serr := p.sleep(ctx, wait); serr != nil {
				return zero, attempt, stoppedError(serr)
			}
			continue

		case ClassFatal:
			logger.L().Errorf("%s non-retryable error: %v", op, err)
			return zero, attempt, err

		case ClassNotFound, ClassTerminal, ClassStopped:
			return zero, attempt, err
		}

		if attempt >= p.cfg.MaxRetries {
			logger.L().Errorf("%s: all %d attempts failed: %v", op, attempt+1, err)
			return zero, attempt, err
		}

		delay := p.BackoffDelay(attempt)
		logger.L().Warnf("%s attempt %d failed: %v, retrying in %s", op, attempt+1, err, delay)
		if serr := p.sleep(ctx, delay); serr != nil {
			return zero, attempt, stoppedError(serr)
		}
		attempt++
	}
}
