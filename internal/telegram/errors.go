package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"channel_migrator/internal/migration"

	"github.com/go-telegram/bot"
)

// 限流但未给出等待时间时的默认值
const defaultRetryAfter = 5 * time.Second

var notFoundMarkers = []string{
	"message to forward not found",
	"message to copy not found",
	"message_id_invalid",
	"message not found",
}

var restrictedMarkers = []string{
	"can't be forwarded",
	"can't be copied",
	"protected content",
}

var deniedMarkers = []string{
	"chat not found",
	"chat_write_forbidden",
	"not enough rights",
	"have no rights",
	"peer_id_invalid",
	"channel_private",
}

var tooLargeMarkers = []string{
	"file is too big",
	"request entity too large",
}

// classifyError 将 Bot API 错误转换为迁移引擎可识别的错误
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		retryAfter := time.Duration(tooMany.RetryAfter) * time.Second
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		return &migration.RateLimitedError{RetryAfter: retryAfter, Err: err}
	}

	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return fmt.Errorf("%w: chat migrated to %d: %w", migration.ErrPermanentlyDenied, migrate.MigrateToChatID, err)
	}

	switch {
	case errors.Is(err, bot.ErrorForbidden), errors.Is(err, bot.ErrorUnauthorized), errors.Is(err, bot.ErrorNotFound):
		return fmt.Errorf("%w: %w", migration.ErrPermanentlyDenied, err)
	case errors.Is(err, bot.ErrorBadRequest):
		return classifyBadRequest(err)
	}

	if containsAny(strings.ToLower(err.Error()), tooLargeMarkers) {
		return fmt.Errorf("%w: %w", migration.ErrFileTooLarge, err)
	}
	return err
}

func classifyBadRequest(err error) error {
	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, notFoundMarkers):
		return fmt.Errorf("%w: %w", migration.ErrNotFound, err)
	case containsAny(text, restrictedMarkers):
		return fmt.Errorf("%w: %w", migration.ErrForwardRestricted, err)
	case containsAny(text, deniedMarkers):
		return fmt.Errorf("%w: %w", migration.ErrPermanentlyDenied, err)
	case containsAny(text, tooLargeMarkers):
		return fmt.Errorf("%w: %w", migration.ErrFileTooLarge, err)
	}
	return err
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
