package handlers

import (
	"database/sql"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/api"
	"github.com/Spok95/telegram-attendance-bot/internal/cache"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Deps — зависимости обработчиков. Кэши и клиент бэкенда передаются явно,
// а не через пакетные переменные, чтобы сценарии в разных чатах не делили
// состояние случайно.
type Deps struct {
	Bot    *tgbotapi.BotAPI
	DB     *sql.DB
	API    *api.Client
	Caches *cache.Registry
	Loc    *time.Location
	Log    *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log != nil {
		return d.Log
	}
	return zap.NewNop()
}

func (d Deps) location() *time.Location {
	if d.Loc != nil {
		return d.Loc
	}
	return time.Local
}
