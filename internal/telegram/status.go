package telegram

import (
	"fmt"
	"strings"
	"time"
)

// buildPingMessage 构建 /ping 命令的响应文本
func (b *Bot) buildPingMessage() string {
	lines := []string{"🏓 Pong!"}

	if !b.startTime.IsZero() {
		lines = append(lines, fmt.Sprintf("⏱ 运行时间: %s", formatDuration(time.Since(b.startTime))))
	}

	if b.workerPool != nil {
		stats := b.workerPool.Stats()
		lines = append(lines, fmt.Sprintf("🛠 工作池: %d 个协程，队列 %d/%d", stats.Workers, stats.QueueLength, stats.QueueCapacity))
	}

	if b.controller != nil && b.controller.IsRunning() {
		lines = append(lines, "🚚 迁移: 运行中")
	} else {
		lines = append(lines, "🚚 迁移: 空闲")
	}

	return strings.Join(lines, "\n")
}
