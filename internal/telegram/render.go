package telegram

import (
	"fmt"
	"strings"
	"time"

	"channel_migrator/internal/migration"
	"channel_migrator/internal/models"
)

const separator = "━━━━━━━━━━━━━━━━━━━━"

var statusLabels = map[models.SessionStatus]string{
	models.SessionStatusForwarding:  "🟢 转发中",
	models.SessionStatusPaused:      "⏸ 已暂停",
	models.SessionStatusFailed:      "🔴 已失败",
	models.SessionStatusInterrupted: "🟠 已中断",
	models.SessionStatusCancelled:   "⚪️ 已取消",
	models.SessionStatusCompleted:   "✅ 已完成",
}

func statusLabel(status models.SessionStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	if status == "" {
		return "空闲"
	}
	return string(status)
}

// renderStatus 状态看板文本
func renderStatus(snap migration.Snapshot) string {
	if snap.SessionID == "" {
		return "💤 当前没有迁移任务"
	}

	var sb strings.Builder
	sb.WriteString("🚀 迁移实时状态\n")
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "🆔 会话: %s\n", snap.SessionID)
	fmt.Fprintf(&sb, "📤 源频道: %s\n", snap.Source)
	fmt.Fprintf(&sb, "📥 目标频道: %s\n", snap.Target)
	sb.WriteString(separator + "\n")
	writeCounters(&sb, snap.Counters)
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "⚡ 速度: %s 条/分钟\n", formatSpeed(snap.SpeedPerMinute))
	fmt.Fprintf(&sb, "⏱ 已用时间: %s\n", formatDuration(snap.Elapsed))
	if snap.Running {
		fmt.Fprintf(&sb, "📂 当前消息: %d\n", snap.CurrentMessageID)
	}
	fmt.Fprintf(&sb, "💾 已保存至: %d\n", snap.LastMessageID)
	if snap.EndMessageID > 0 {
		total := snap.EndMessageID - snap.StartMessageID + 1
		done := snap.LastMessageID - snap.StartMessageID + 1
		fmt.Fprintf(&sb, "📊 %s\n", progressBar(done, total, 20))
		if eta, ok := estimateRemaining(snap); ok {
			fmt.Fprintf(&sb, "⏳ 预计剩余: %s\n", formatDuration(eta))
		}
	}
	if snap.FloodDelay > 0 {
		fmt.Fprintf(&sb, "🐢 限流延迟: %s（触发 %d 次）\n", snap.FloodDelay.Round(100*time.Millisecond), snap.RateLimitCount)
	}
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "状态: %s", statusLabel(snap.Status))
	return sb.String()
}

func writeCounters(sb *strings.Builder, c models.Counters) {
	fmt.Fprintf(sb, "✅ 成功: %d\n", c.Successful)
	fmt.Fprintf(sb, "❌ 失败: %d\n", c.Failed)
	fmt.Fprintf(sb, "♻️ 重复: %d\n", c.Duplicate)
	fmt.Fprintf(sb, "🗑 已删除: %d\n", c.Deleted)
	fmt.Fprintf(sb, "🪆 跳过: %d\n", c.Skipped)
	fmt.Fprintf(sb, "🔁 过滤: %d\n", c.Filtered)
}

// renderEvent 生命周期事件通知文本
func renderEvent(event migration.Event) string {
	var sb strings.Builder

	switch event.Type {
	case migration.EventSessionStarted:
		if event.Resumed {
			sb.WriteString("▶️ 迁移已恢复\n")
		} else {
			sb.WriteString("🚀 迁移已开始\n")
		}
		sb.WriteString(separator + "\n")
		fmt.Fprintf(&sb, "🆔 会话: %s\n", event.SessionID)
		fmt.Fprintf(&sb, "📤 %s → 📥 %s\n", event.Source, event.Target)
		fmt.Fprintf(&sb, "📍 起始消息: %d", event.LastMessageID+1)
		if event.EndMessageID > 0 {
			fmt.Fprintf(&sb, "\n🏁 结束消息: %d", event.EndMessageID)
		}
	case migration.EventProgressCheckpoint:
		fmt.Fprintf(&sb, "💾 进度已保存: 会话 %s，消息 %d，成功 %d，失败 %d",
			event.SessionID, event.LastMessageID, event.Counters.Successful, event.Counters.Failed)
	case migration.EventSessionEnded:
		fmt.Fprintf(&sb, "🏁 迁移结束: %s\n", statusLabel(event.Status))
		sb.WriteString(separator + "\n")
		fmt.Fprintf(&sb, "🆔 会话: %s\n", event.SessionID)
		writeCounters(&sb, event.Counters)
		fmt.Fprintf(&sb, "💾 最后消息: %d", event.LastMessageID)
		if event.Description != "" {
			fmt.Fprintf(&sb, "\n📝 %s", event.Description)
		}
	case migration.EventCriticalError:
		sb.WriteString("⚠️ 严重错误\n")
		sb.WriteString(separator + "\n")
		if event.SessionID != "" {
			fmt.Fprintf(&sb, "🆔 会话: %s\n", event.SessionID)
		}
		fmt.Fprintf(&sb, "💾 最后消息: %d\n", event.LastMessageID)
		fmt.Fprintf(&sb, "❌ %s", event.Description)
	case migration.EventSessionRecovered:
		sb.WriteString("🔄 检测到未完成的迁移\n")
		sb.WriteString(separator + "\n")
		fmt.Fprintf(&sb, "🆔 会话: %s\n", event.SessionID)
		fmt.Fprintf(&sb, "📤 %s → 📥 %s\n", event.Source, event.Target)
		fmt.Fprintf(&sb, "💾 最后消息: %d\n", event.LastMessageID)
		sb.WriteString("使用 resume 命令继续")
	default:
		fmt.Fprintf(&sb, "ℹ️ %s: %s", event.Type, event.Description)
	}
	return sb.String()
}

// renderFailed 失败记录列表
func renderFailed(sessionID string, records []*models.FailedMessage) string {
	if len(records) == 0 {
		return fmt.Sprintf("✅ 会话 %s 没有失败记录", sessionID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ 会话 %s 最近 %d 条失败记录\n", sessionID, len(records))
	sb.WriteString(separator)
	for _, record := range records {
		fmt.Fprintf(&sb, "\n#%d", record.MessageID)
		if record.ContentType != "" {
			fmt.Fprintf(&sb, " [%s]", record.ContentType)
		}
		if record.FileSize > 0 {
			fmt.Fprintf(&sb, " %.1f MB", float64(record.FileSize)/(1024*1024))
		}
		fmt.Fprintf(&sb, " 重试 %d 次\n   %s", record.RetryCount, record.Error)
	}
	return sb.String()
}

// renderStatistics 跨会话统计
func renderStatistics(stats *models.Statistics) string {
	var sb strings.Builder
	sb.WriteString("📈 统计\n")
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "📨 累计转发: %d\n", stats.TotalForwarded)
	fmt.Fprintf(&sb, "❌ 累计失败: %d\n", stats.TotalFailed)
	fmt.Fprintf(&sb, "🗂 会话总数: %d\n", stats.TotalSessions)
	fmt.Fprintf(&sb, "📊 平均每会话成功: %.1f\n", stats.AverageSuccessPerRun)
	fmt.Fprintf(&sb, "🕐 最近 24 小时会话: %d", stats.SessionsLast24Hours)
	return sb.String()
}

// estimateRemaining 按当前速度估算有界范围的剩余时间
func estimateRemaining(snap migration.Snapshot) (time.Duration, bool) {
	if !snap.Running || snap.EndMessageID <= 0 || snap.SpeedPerMinute <= 0 {
		return 0, false
	}
	remaining := snap.EndMessageID - snap.LastMessageID
	if remaining <= 0 {
		return 0, false
	}
	minutes := float64(remaining) / snap.SpeedPerMinute
	return time.Duration(minutes * float64(time.Minute)), true
}

func formatSpeed(speed float64) string {
	switch {
	case speed < 1:
		return fmt.Sprintf("%.2f", speed)
	case speed < 10:
		return fmt.Sprintf("%.1f", speed)
	default:
		return fmt.Sprintf("%d", int(speed))
	}
}

func progressBar(done, total int64, length int) string {
	if total <= 0 {
		return ""
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	filled := int(int64(length) * done / total)
	percent := float64(done) * 100 / float64(total)
	return fmt.Sprintf("[%s%s] %d/%d (%.1f%%)",
		strings.Repeat("█", filled), strings.Repeat("░", length-filled), done, total, percent)
}

// formatDuration 将持续时间格式化为人类可读的字符串
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d天", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d小时", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d分钟", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d秒", seconds))
	}

	return strings.Join(parts, " ")
}
