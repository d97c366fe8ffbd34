package logger

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger.
// It is safe to call multiple times; later calls overwrite previous settings.
// level 为空时回退到 LOG_LEVEL 环境变量，format 支持 text / json
func Init(level, format string) {
	log.SetOutput(os.Stdout)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }

// WithSession 返回携带会话 ID 的日志条目
func WithSession(sessionID string) *log.Entry {
	return log.StandardLogger().WithField("session_id", sessionID)
}

// WithMessage 返回携带会话 ID 与消息 ID 的日志条目
func WithMessage(sessionID string, messageID int64) *log.Entry {
	return log.StandardLogger().WithFields(log.Fields{
		"session_id": sessionID,
		"message_id": messageID,
	})
}
