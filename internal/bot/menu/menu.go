package menu

import (
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	BtnMark       = "📝 Отметить посещаемость"
	BtnMyCalendar = "📅 Моя посещаемость"
	BtnReport     = "📤 Отчёт за месяц"
	BtnProfile    = "👤 Профиль"
	BtnLogout     = "🚪 Выйти"
)

// GetRoleMenu возвращает клавиатуру в зависимости от роли пользователя.
func GetRoleMenu(role models.Role) tgbotapi.ReplyKeyboardMarkup {
	if role.IsStaff() {
		return staffMenu()
	}
	return studentMenu()
}

func studentMenu() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnMyCalendar),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnProfile),
			tgbotapi.NewKeyboardButton(BtnLogout),
		),
	)
}

func staffMenu() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnMark),
			tgbotapi.NewKeyboardButton(BtnReport),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnProfile),
			tgbotapi.NewKeyboardButton(BtnLogout),
		),
	)
}
