package ctxutil

import (
	"context"
	"time"
)

// приватные ключи, чтобы исключить коллизии
type key int

const keyChatID key = iota

// WithChatID /ChatID — прокидываем chatID в контекст;
// клиент бэкенда читает его обратно для логов отказов
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, keyChatID, chatID)
}

func ChatID(ctx context.Context) (int64, bool) {
	v := ctx.Value(keyChatID)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// Таймауты: бэкенд и локальная БД сессий.
var (
	DefaultAPITimeout = 10 * time.Second
	DefaultDBTimeout  = 5 * time.Second
)

// WithAPITimeout — стандартный таймаут обращения к бэкенду.
// Если у родителя дедлайн ближе — берём остаток.
func WithAPITimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return withBoundedTimeout(parent, DefaultAPITimeout)
}

// WithDBTimeout — стандартный таймаут для БД сессий.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return withBoundedTimeout(parent, DefaultDBTimeout)
}

func withBoundedTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		if remain := time.Until(dl); remain < d {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, d)
}
