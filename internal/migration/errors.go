package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound 消息已删除或不可访问，不属于错误，计为 deleted
	ErrNotFound = errors.New("message not found")
	// ErrPermanentlyDenied 账号停用、禁止写入、无效对端等，终止整个会话
	ErrPermanentlyDenied = errors.New("permanently denied")
	// ErrFileTooLarge 文件超过平台硬上限，不重试
	ErrFileTooLarge = errors.New("file too large")
	// ErrForwardRestricted 源频道禁止转发该消息
	ErrForwardRestricted = errors.New("forwarding restricted")
	// ErrUnsupportedContent 内容无法重新发送
	ErrUnsupportedContent = errors.New("unsupported content")
	// ErrStopped 暂停、取消或进程关闭导致的协作式停止
	ErrStopped = errors.New("migration stopped")
	// ErrStoreUnavailable 进度存储不可用，无法安全继续
	ErrStoreUnavailable = errors.New("progress store unavailable")

	ErrAlreadyRunning      = errors.New("migration engine is already running")
	ErrNotRunning          = errors.New("migration engine is not running")
	ErrActiveSession       = errors.New("another session is active")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotResumable = errors.New("session cannot be resumed")
	ErrInvalidRange        = errors.New("invalid message range")
)

// RateLimitedError 远端限流信号
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// ErrorClass 错误分类
type ErrorClass int

const (
	// ClassTransient 可重试（指数退避，消耗重试预算）
	ClassTransient ErrorClass = iota
	// ClassRateLimited 限流，等待后重试，不消耗预算
	ClassRateLimited
	// ClassNotFound 消息不存在
	ClassNotFound
	// ClassTerminal 对当前消息/策略不可重试，但不影响会话
	ClassTerminal
	// ClassFatal 对整个会话致命
	ClassFatal
	// ClassStopped 协作式停止
	ClassStopped
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassNotFound:
		return "not_found"
	case ClassTerminal:
		return "terminal"
	case ClassFatal:
		return "fatal"
	case ClassStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Classify 对错误进行分类
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}

	var rateErr *RateLimitedError
	switch {
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
		return ClassStopped
	case errors.As(err, &rateErr):
		return ClassRateLimited
	case errors.Is(err, ErrPermanentlyDenied):
		return ClassFatal
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrForwardRestricted),
		errors.Is(err, ErrUnsupportedContent):
		return ClassTerminal
	default:
		return ClassTransient
	}
}

// IsFatal 是否为会话级致命错误
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ClassFatal
}

func stoppedError(cause error) error {
	if cause == nil {
		return ErrStopped
	}
	return fmt.Errorf("%w: %w", ErrStopped, cause)
}

// StrategyAttempt 单个投递策略的尝试结果
type StrategyAttempt struct {
	Strategy Strategy
	Retries  int
	Err      error
}

// DeliveryError 所有策略均失败
type DeliveryError struct {
	MessageID int64
	Attempts  []StrategyAttempt
	Err       error // 决定最终分类的错误
}

func (e *DeliveryError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("message %d not delivered: %v", e.MessageID, e.Err)
	}

	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", attempt.Strategy, attempt.Err))
	}
	return fmt.Sprintf("all strategies failed for message %d (%s)", e.MessageID, strings.Join(parts, "; "))
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retries 所有策略累计的重试次数
func (e *DeliveryError) Retries() int {
	return totalRetries(e.Attempts)
}
