package migration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"channel_migrator/internal/models"
)

// RunSettings 单次运行的配置快照，运行期间不变
type RunSettings struct {
	Source         ChannelRef
	Target         ChannelRef
	StartMessageID int64
	EndMessageID   int64 // 0 表示不限
	Delay          time.Duration
	MaxRetries     int
	FloodProtect   bool
}

// ResolveSettings 在默认值之上叠加存储的设置
func ResolveSettings(defaults RunSettings, stored map[string]string) (RunSettings, error) {
	resolved := defaults

	for key, raw := range stored {
		if err := applySetting(&resolved, key, raw); err != nil {
			return RunSettings{}, err
		}
	}
	return resolved, nil
}

// ValidateSetting 校验单个设置值
func ValidateSetting(key, value string) error {
	var scratch RunSettings
	if !isKnownSetting(key) {
		return fmt.Errorf("unknown setting %q", key)
	}
	return applySetting(&scratch, key, value)
}

func isKnownSetting(key string) bool {
	for _, known := range models.KnownSettingKeys {
		if key == known {
			return true
		}
	}
	return false
}

func applySetting(s *RunSettings, key, raw string) error {
	value := strings.TrimSpace(raw)

	switch key {
	case models.SettingSourceChannel:
		s.Source = ChannelRef(value)
	case models.SettingTargetChannel:
		s.Target = ChannelRef(value)
	case models.SettingStartMessageID:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid setting %s=%q: must be an integer >= 1", key, raw)
		}
		s.StartMessageID = id
	case models.SettingEndMessageID:
		if value == "" {
			s.EndMessageID = 0
			return nil
		}
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id < 0 {
			return fmt.Errorf("invalid setting %s=%q: must be a non-negative integer", key, raw)
		}
		s.EndMessageID = id
	case models.SettingDelay:
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil || seconds < 0 {
			return fmt.Errorf("invalid setting %s=%q: must be a non-negative number of seconds", key, raw)
		}
		s.Delay = time.Duration(seconds * float64(time.Second))
	case models.SettingMaxRetries:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid setting %s=%q: must be a non-negative integer", key, raw)
		}
		s.MaxRetries = n
	case models.SettingFloodProtect:
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid setting %s=%q: must be true or false", key, raw)
		}
		s.FloodProtect = enabled
	default:
		// 未知键忽略，兼容旧数据
	}
	return nil
}

// Validate 新会话的参数校验
func (s RunSettings) Validate() error {
	if strings.TrimSpace(string(s.Source)) == "" || strings.TrimSpace(string(s.Target)) == "" {
		return errors.New("source and target channels are required")
	}
	if s.StartMessageID < 1 {
		return fmt.Errorf("%w: start message id must be >= 1", ErrInvalidRange)
	}
	if s.EndMessageID != 0 && s.EndMessageID < s.StartMessageID {
		return fmt.Errorf("%w: end message id %d is before start %d", ErrInvalidRange, s.EndMessageID, s.StartMessageID)
	}
	return nil
}
