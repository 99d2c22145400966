package fsmutil

import (
	"strings"
	"sync"

	"github.com/Spok95/telegram-attendance-bot/internal/metrics"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// pending — защита от повторного запуска "тяжёлых" действий (экспорт, логин).
// Ключ — chatID; значение — ключ контекста (например "export:X" или "login").
var pending = struct {
	mu sync.Mutex
	m  map[int64]string
}{
	m: make(map[int64]string),
}

// SetPending помечает чат как "в обработке" для ключа key.
// Возвращает false, если что-то уже обрабатывается.
func SetPending(chatID int64, key string) bool {
	pending.mu.Lock()
	defer pending.mu.Unlock()

	if _, ok := pending.m[chatID]; ok {
		return false
	}
	pending.m[chatID] = key
	return true
}

// ClearPending снимает флаг "в обработке", если ключ совпал.
func ClearPending(chatID int64, key string) {
	pending.mu.Lock()
	defer pending.mu.Unlock()

	if cur, ok := pending.m[chatID]; ok && cur == key {
		delete(pending.m, chatID)
	}
}

// DisableMarkup "гасит" inline-клавиатуру у сообщения (one-shot клавиатура).
func DisableMarkup(bot *tgbotapi.BotAPI, chatID int64, messageID int) {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: make([][]tgbotapi.InlineKeyboardButton, 0)}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)
	if _, err := bot.Send(edit); err != nil {
		metrics.HandlerErrors.Inc()
	}
}

// BackCancelRow — готовая строка с кнопками "Назад" и "Отмена".
func BackCancelRow(backData, cancelData string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", backData),
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", cancelData),
	)
}

// IsCancelText — "текстовая" отмена на шагах со свободным вводом.
func IsCancelText(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "отмена" || s == "/cancel" || s == "cancel"
}
