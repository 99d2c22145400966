package app

import (
	"context"
	"strings"

	"github.com/Spok95/telegram-attendance-bot/internal/bot/auth"
	"github.com/Spok95/telegram-attendance-bot/internal/bot/handlers"
	"github.com/Spok95/telegram-attendance-bot/internal/bot/menu"
	"github.com/Spok95/telegram-attendance-bot/internal/ctxutil"
	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/logging"
	"github.com/Spok95/telegram-attendance-bot/internal/tg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var limiter = NewChatLimiter()

// runScenario запускает сценарий в фоне, сериализуя запуски внутри чата.
func runScenario(chatID int64, fn func()) {
	go func() {
		unlock := limiter.Lock(chatID)
		defer unlock()
		fn()
	}()
}

// session достаёт сохранённую сессию чата; nil — пользователь не вошёл.
func session(d handlers.Deps, chatID int64) *db.Session {
	ctx, cancel := ctxutil.WithDBTimeout(context.Background())
	defer cancel()
	s, err := db.GetSession(ctx, d.DB, chatID)
	if err != nil {
		logging.WithChat(d.Log, chatID, "session").Warn("не удалось прочитать сессию", zap.Error(err))
		return nil
	}
	return s
}

func HandleMessage(d handlers.Deps, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := msg.Text

	if text == "/start" {
		handleStart(d, chatID)
		return
	}

	sess := session(d, chatID)
	if sess == nil {
		if auth.GetLoginState(chatID) != "" {
			auth.HandleLoginText(d, msg)
			return
		}
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⚠️ Вы не вошли. Нажмите /start, чтобы войти."))
		return
	}

	// активные сценарии получают текст первыми, но только если ждут ввода:
	// редактор отметок на шаге контролов живёт в своём сообщении, а текст
	// чата (команды, кнопки меню) должен проходить дальше
	if st := handlers.GetMarkState(chatID); st != nil && st.AwaitingInput() {
		handlers.HandleMarkText(d, sess, msg)
		return
	}
	if handlers.GetProfileState(chatID) != nil {
		handlers.HandleProfileText(d, sess, msg)
		return
	}

	switch text {
	case "/mark", menu.BtnMark:
		runScenario(chatID, func() { handlers.StartMarkFSM(d, sess, msg) })
	case "/calendar", menu.BtnMyCalendar:
		runScenario(chatID, func() { handlers.HandleMyCalendar(d, sess, msg) })
	case "/report", menu.BtnReport:
		runScenario(chatID, func() { handlers.StartReportFSM(d, sess, msg) })
	case "/profile", menu.BtnProfile:
		runScenario(chatID, func() { handlers.HandleProfile(d, sess, msg) })
	case "/logout", menu.BtnLogout:
		handleLogout(d, chatID)
	default:
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⚠️ Неизвестная команда. Используйте /start"))
	}
}

// handleStart проверяет сохранённую сессию у бэкенда: токен мог протухнуть,
// а блокировки профиля — поменяться.
func handleStart(d handlers.Deps, chatID int64) {
	sess := session(d, chatID)
	if sess == nil {
		auth.StartLogin(d, &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}})
		return
	}

	ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
	defer cancel()
	user, res := d.API.Me(ctx, sess.Token)
	if !res.Success {
		// токен больше не принимают — чистим сессию и просим войти заново
		dbCtx, dbCancel := ctxutil.WithDBTimeout(context.Background())
		defer dbCancel()
		_ = db.DeleteSession(dbCtx, d.DB, chatID)
		d.Caches.Drop(chatID)
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Сессия устарела: "+res.Message))
		auth.StartLogin(d, &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}})
		return
	}

	sess.User = *user
	dbCtx, dbCancel := ctxutil.WithDBTimeout(context.Background())
	defer dbCancel()
	if err := db.SaveUser(dbCtx, d.DB, chatID, *user); err != nil {
		logging.WithChat(d.Log, chatID, "start").Warn("не удалось обновить профиль сессии", zap.Error(err))
	}

	out := tgbotapi.NewMessage(chatID, "С возвращением, "+user.Name+"! Выберите действие:")
	out.ReplyMarkup = menu.GetRoleMenu(user.Role)
	_, _ = tg.Send(d.Bot, out)
}

func handleLogout(d handlers.Deps, chatID int64) {
	ctx, cancel := ctxutil.WithDBTimeout(context.Background())
	defer cancel()
	if err := db.DeleteSession(ctx, d.DB, chatID); err != nil {
		logging.WithChat(d.Log, chatID, "logout").Warn("не удалось удалить сессию", zap.Error(err))
	}
	d.Caches.Drop(chatID)

	out := tgbotapi.NewMessage(chatID, "Вы вышли. Нажмите /start, чтобы войти снова.")
	out.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, _ = tg.Send(d.Bot, out)
}

func HandleCallback(d handlers.Deps, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	// всегда отвечаем на колбэк, чтобы Telegram «разморозил» кнопку
	_, _ = tg.Request(d.Bot, tgbotapi.NewCallback(cq.ID, ""))

	sess := session(d, chatID)
	if sess == nil {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⚠️ Сессия не найдена. Нажмите /start, чтобы войти."))
		return
	}

	data := cq.Data
	switch {
	case strings.HasPrefix(data, "att_"):
		handlers.HandleMarkCallback(d, sess, cq)
	case strings.HasPrefix(data, "cal_"):
		handlers.HandleCalendarCallback(d, cq)
	case strings.HasPrefix(data, "prof_"):
		handlers.HandleProfileCallback(d, sess, cq)
	case strings.HasPrefix(data, "exp_"):
		handlers.HandleReportCallback(d, sess, cq)
	default:
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⚠️ Неизвестная команда. Используйте /start"))
	}
}
