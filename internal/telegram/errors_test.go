package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"channel_migrator/internal/migration"

	"github.com/go-telegram/bot"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want migration.ErrorClass
	}{
		{
			name: "too many requests is rate limited",
			err:  &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 3},
			want: migration.ClassRateLimited,
		},
		{
			name: "forbidden is fatal",
			err:  fmt.Errorf("%w, bot was kicked from the channel chat", bot.ErrorForbidden),
			want: migration.ClassFatal,
		},
		{
			name: "unauthorized is fatal",
			err:  fmt.Errorf("%w, invalid token", bot.ErrorUnauthorized),
			want: migration.ClassFatal,
		},
		{
			name: "migrate error is fatal",
			err: &bot.MigrateError{
				Message:         "bad request: group upgraded",
				MigrateToChatID: -1001234567890,
			},
			want: migration.ClassFatal,
		},
		{
			name: "chat not found is fatal",
			err:  fmt.Errorf("%w, Bad Request: chat not found", bot.ErrorBadRequest),
			want: migration.ClassFatal,
		},
		{
			name: "message to forward not found",
			err:  fmt.Errorf("%w, Bad Request: message to forward not found", bot.ErrorBadRequest),
			want: migration.ClassNotFound,
		},
		{
			name: "message to copy not found",
			err:  fmt.Errorf("%w, Bad Request: message to copy not found", bot.ErrorBadRequest),
			want: migration.ClassNotFound,
		},
		{
			name: "protected content is terminal",
			err:  fmt.Errorf("%w, Bad Request: message has protected content and can't be forwarded", bot.ErrorBadRequest),
			want: migration.ClassTerminal,
		},
		{
			name: "file too big is terminal",
			err:  fmt.Errorf("%w, Bad Request: file is too big", bot.ErrorBadRequest),
			want: migration.ClassTerminal,
		},
		{
			name: "other bad request is transient",
			err:  fmt.Errorf("%w, Bad Request: wrong file identifier", bot.ErrorBadRequest),
			want: migration.ClassTransient,
		},
		{
			name: "network error is transient",
			err:  errors.New("temporary network error"),
			want: migration.ClassTransient,
		},
		{
			name: "cancellation is stopped",
			err:  context.Canceled,
			want: migration.ClassStopped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := migration.Classify(classifyError(tt.err))
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifyErrorRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{
			name: "explicit wait",
			err:  &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 4},
			want: 4 * time.Second,
		},
		{
			name: "missing wait falls back",
			err:  &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 0},
			want: defaultRetryAfter,
		},
		{
			name: "wrapped",
			err:  fmt.Errorf("forward: %w", &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 30}),
			want: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rateErr *migration.RateLimitedError
			if !errors.As(classifyError(tt.err), &rateErr) {
				t.Fatalf("expected rate limited error")
			}
			if rateErr.RetryAfter != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, rateErr.RetryAfter)
			}
		})
	}
}

func TestClassifyErrorNil(t *testing.T) {
	if err := classifyError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
