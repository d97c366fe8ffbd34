package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 存储驱动
const (
	StoreDriverMongo  = "mongo"
	StoreDriverSQLite = "sqlite"
)

// 引用转发模式
const (
	ForwardModeForward = "forward"
	ForwardModeCopy    = "copy"
)

// Config 应用程序配置
type Config struct {
	TelegramToken  string  // Telegram Bot API Token
	TelegramAPIURL string  // 自建 Bot API 服务地址（大文件下载需要）
	BotOwnerIDs    []int64 // Bot 管理员 ID 列表
	StagingChatID  int64   // 拉取源消息时使用的中转聊天
	NotifyChatID   int64   // 生命周期通知发送目标（为 0 时发送给所有 owner）

	StoreDriver string // mongo / sqlite
	MongoURI    string // MongoDB 连接 URI
	MongoDBName string // MongoDB 数据库名称
	SQLitePath  string // SQLite 数据库文件路径

	LogLevel  string
	LogFormat string

	Migration      MigrationConfig
	StatusHTTPAddr string // 状态 HTTP 服务监听地址（为空则不启动）
}

// MigrationConfig 迁移引擎默认参数，可被 bot_settings 中的设置覆盖
type MigrationConfig struct {
	Delay                    time.Duration // 消息间基础延迟
	MaxRetries               int           // 单次远程调用最大重试次数
	FloodProtect             bool          // 是否启用自适应限流
	StatusUpdateInterval     time.Duration // 状态看板刷新间隔
	CheckpointInterval       int           // 每处理多少条消息持久化一次进度
	ConsecutiveNotFoundLimit int           // 连续不存在的消息数达到该值时终止
	LargeFileThreshold       int64         // 大文件阈值（字节）
	MaxFileSize              int64         // 平台硬上限（字节）
	TempDir                  string        // 下载临时目录
	APIRatePerSecond         int           // Bot API 全局调用速率
	ForwardMode              string        // forward / copy
	SkipContentTypes         []string      // 需要过滤的内容类型
}

// Load 从环境变量（以及可选的 YAML 配置文件）加载配置
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults(v)

	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
			}
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORE_DRIVER", StoreDriverMongo)
	v.SetDefault("MONGO_DB_NAME", "channel_migrator")
	v.SetDefault("SQLITE_PATH", "migrator.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DELAY_BETWEEN_MESSAGES", "1.0")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("FLOOD_PROTECT", true)
	v.SetDefault("STATUS_UPDATE_INTERVAL", 5)
	v.SetDefault("PROGRESS_SAVE_INTERVAL", 10)
	v.SetDefault("CONSECUTIVE_NOT_FOUND_LIMIT", 5)
	v.SetDefault("LARGE_FILE_THRESHOLD_MB", 50)
	v.SetDefault("MAX_FILE_SIZE_MB", 2048)
	v.SetDefault("API_RATE_PER_SECOND", 30)
	v.SetDefault("FORWARD_MODE", ForwardModeForward)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		TelegramToken:  strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		TelegramAPIURL: strings.TrimSpace(v.GetString("TELEGRAM_API_URL")),
		StoreDriver:    strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		MongoURI:       strings.TrimSpace(v.GetString("MONGO_URI")),
		MongoDBName:    strings.TrimSpace(v.GetString("MONGO_DB_NAME")),
		SQLitePath:     strings.TrimSpace(v.GetString("SQLITE_PATH")),
		LogLevel:       strings.TrimSpace(v.GetString("LOG_LEVEL")),
		LogFormat:      strings.TrimSpace(v.GetString("LOG_FORMAT")),
		StatusHTTPAddr: strings.TrimSpace(v.GetString("STATUS_HTTP_ADDR")),
	}

	switch cfg.StoreDriver {
	case StoreDriverMongo, StoreDriverSQLite:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: must be mongo or sqlite", cfg.StoreDriver)
	}

	// 解析BOT_OWNER_IDS
	if ownerIDsStr := v.GetString("BOT_OWNER_IDS"); ownerIDsStr != "" {
		ids, err := parseOwnerIDs(ownerIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
		cfg.BotOwnerIDs = ids
	}

	var err error
	if cfg.StagingChatID, err = parseOptionalInt64(v, "STAGING_CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.NotifyChatID, err = parseOptionalInt64(v, "NOTIFY_CHAT_ID"); err != nil {
		return nil, err
	}

	migrationCfg, err := loadMigrationConfig(v)
	if err != nil {
		return nil, err
	}
	cfg.Migration = migrationCfg

	return cfg, nil
}

func loadMigrationConfig(v *viper.Viper) (MigrationConfig, error) {
	var cfg MigrationConfig

	delayStr := strings.TrimSpace(v.GetString("DELAY_BETWEEN_MESSAGES"))
	delaySeconds, err := strconv.ParseFloat(delayStr, 64)
	if err != nil {
		return MigrationConfig{}, fmt.Errorf("failed to parse DELAY_BETWEEN_MESSAGES: %w", err)
	}
	if delaySeconds < 0 {
		return MigrationConfig{}, fmt.Errorf("DELAY_BETWEEN_MESSAGES must be >= 0, got %v", delaySeconds)
	}
	cfg.Delay = time.Duration(delaySeconds * float64(time.Second))

	positive := map[string]*int{
		"PROGRESS_SAVE_INTERVAL":      &cfg.CheckpointInterval,
		"CONSECUTIVE_NOT_FOUND_LIMIT": &cfg.ConsecutiveNotFoundLimit,
		"API_RATE_PER_SECOND":         &cfg.APIRatePerSecond,
	}
	for key, target := range positive {
		value, err := parseInt(v, key)
		if err != nil {
			return MigrationConfig{}, err
		}
		if value < 1 {
			return MigrationConfig{}, fmt.Errorf("%s must be >= 1, got %d", key, value)
		}
		*target = value
	}

	if cfg.MaxRetries, err = parseInt(v, "MAX_RETRIES"); err != nil {
		return MigrationConfig{}, err
	}
	if cfg.MaxRetries < 0 {
		return MigrationConfig{}, fmt.Errorf("MAX_RETRIES must be >= 0, got %d", cfg.MaxRetries)
	}

	floodStr := strings.TrimSpace(v.GetString("FLOOD_PROTECT"))
	if cfg.FloodProtect, err = strconv.ParseBool(floodStr); err != nil {
		return MigrationConfig{}, fmt.Errorf("failed to parse FLOOD_PROTECT: %w", err)
	}

	statusSeconds, err := parseInt(v, "STATUS_UPDATE_INTERVAL")
	if err != nil {
		return MigrationConfig{}, err
	}
	if statusSeconds < 1 {
		return MigrationConfig{}, fmt.Errorf("STATUS_UPDATE_INTERVAL must be >= 1, got %d", statusSeconds)
	}
	cfg.StatusUpdateInterval = time.Duration(statusSeconds) * time.Second

	largeMB, err := parseInt(v, "LARGE_FILE_THRESHOLD_MB")
	if err != nil {
		return MigrationConfig{}, err
	}
	maxMB, err := parseInt(v, "MAX_FILE_SIZE_MB")
	if err != nil {
		return MigrationConfig{}, err
	}
	if largeMB < 1 || maxMB <= largeMB {
		return MigrationConfig{}, fmt.Errorf("invalid file thresholds: LARGE_FILE_THRESHOLD_MB=%d, MAX_FILE_SIZE_MB=%d", largeMB, maxMB)
	}
	cfg.LargeFileThreshold = int64(largeMB) * 1024 * 1024
	cfg.MaxFileSize = int64(maxMB) * 1024 * 1024

	cfg.TempDir = strings.TrimSpace(v.GetString("TEMP_DIR"))

	cfg.ForwardMode = strings.ToLower(strings.TrimSpace(v.GetString("FORWARD_MODE")))
	if cfg.ForwardMode != ForwardModeForward && cfg.ForwardMode != ForwardModeCopy {
		return MigrationConfig{}, fmt.Errorf("invalid FORWARD_MODE %q: must be forward or copy", cfg.ForwardMode)
	}

	if skip := strings.TrimSpace(v.GetString("SKIP_CONTENT_TYPES")); skip != "" {
		for _, part := range strings.Split(skip, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				cfg.SkipContentTypes = append(cfg.SkipContentTypes, part)
			}
		}
	}

	return cfg, nil
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return value, nil
}

func parseOptionalInt64(v *viper.Viper, key string) (int64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return value, nil
}
