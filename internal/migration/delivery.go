package migration

import (
	"context"
	"fmt"

	"channel_migrator/internal/logger"
)

// Strategy 投递策略
type Strategy string

const (
	StrategyReferenceForward Strategy = "reference_forward"
	StrategyMaterialize      Strategy = "materialize"
	StrategyChunked          Strategy = "chunked"
)

// 平台限制
const (
	DefaultLargeFileThreshold int64 = 50 * 1024 * 1024
	DefaultMaxFileSize        int64 = 2 * 1024 * 1024 * 1024
)

// DeliveryConfig 策略选择参数
type DeliveryConfig struct {
	LargeFileThreshold int64 // 超过该大小时追加分块传输
	MaxFileSize        int64 // 达到该大小直接拒绝
}

// DefaultDeliveryConfig 默认参数
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		LargeFileThreshold: DefaultLargeFileThreshold,
		MaxFileSize:        DefaultMaxFileSize,
	}
}

// DeliveryOutcome 投递成功的结果
type DeliveryOutcome struct {
	Receipt  Receipt
	Strategy Strategy
	Retries  int
}

// Selector 按顺序尝试投递策略：引用转发 → 下载重发 → 分块传输
type Selector struct {
	client RemoteClient
	policy *RetryPolicy
	cfg    DeliveryConfig
}

// NewSelector 创建策略选择器
func NewSelector(client RemoteClient, policy *RetryPolicy, cfg DeliveryConfig) *Selector {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = DefaultLargeFileThreshold
	}
	return &Selector{client: client, policy: policy, cfg: cfg}
}

type strategyFunc func(ctx context.Context, message *Message, target ChannelRef) (Receipt, error)

type plannedStrategy struct {
	name Strategy
	run  strategyFunc
}

// plan 根据内容类型与大小确定要尝试的策略
func (s *Selector) plan(message *Message) []plannedStrategy {
	steps := []plannedStrategy{{StrategyReferenceForward, s.client.Forward}}

	if !message.Kind().Resendable() {
		return steps
	}
	steps = append(steps, plannedStrategy{StrategyMaterialize, s.client.Reupload})

	if message.FileSize() > s.cfg.LargeFileThreshold {
		if chunked, ok := s.client.(ChunkedTransferer); ok {
			steps = append(steps, plannedStrategy{StrategyChunked, chunked.TransferChunked})
		}
	}
	return steps
}

// Deliver 投递一条消息
//
// 停止或会话级致命错误会立即返回，不再尝试后续策略；
// 所有策略都失败时返回 *DeliveryError
func (s *Selector) Deliver(ctx context.Context, message *Message, target ChannelRef) (DeliveryOutcome, error) {
	if size := message.FileSize(); size >= s.cfg.MaxFileSize {
		return DeliveryOutcome{}, &DeliveryError{
			MessageID: message.ID,
			Err:       fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrFileTooLarge, size, s.cfg.MaxFileSize),
		}
	}

	log := logger.L().WithField("message_id", message.ID)
	var attempts []StrategyAttempt

	for _, step := range s.plan(message) {
		op := fmt.Sprintf("%s message %d", step.name, message.ID)
		receipt, retries, err := Execute(ctx, s.policy, op, func(callCtx context.Context) (Receipt, error) {
			return step.run(callCtx, message, target)
		})
		if err == nil {
			return DeliveryOutcome{
				Receipt:  receipt,
				Strategy: step.name,
				Retries:  retries + totalRetries(attempts),
			}, nil
		}

		attempts = append(attempts, StrategyAttempt{Strategy: step.name, Retries: retries, Err: err})

		switch Classify(err) {
		case ClassStopped, ClassFatal:
			return DeliveryOutcome{}, &DeliveryError{MessageID: message.ID, Attempts: attempts, Err: err}
		}

		log.Warnf("Strategy %s failed: %v", step.name, err)
	}

	last := attempts[len(attempts)-1].Err
	// 只有转发被明确拒绝时才算无法投递；重试耗尽仍记为失败
	if !message.Kind().Resendable() && Classify(last) == ClassTerminal {
		last = fmt.Errorf("%w: %s: %w", ErrUnsupportedContent, unsupportedLabel(message), last)
	}
	return DeliveryOutcome{}, &DeliveryError{MessageID: message.ID, Attempts: attempts, Err: last}
}

func totalRetries(attempts []StrategyAttempt) int {
	total := 0
	for _, attempt := range attempts {
		total += attempt.Retries
	}
	return total
}

func unsupportedLabel(message *Message) string {
	if message.Content.Unsupported != "" {
		return message.Content.Unsupported
	}
	return string(message.Kind())
}
