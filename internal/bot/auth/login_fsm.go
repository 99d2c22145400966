package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/Spok95/telegram-attendance-bot/internal/bot/handlers"
	"github.com/Spok95/telegram-attendance-bot/internal/bot/menu"
	"github.com/Spok95/telegram-attendance-bot/internal/bot/shared/fsmutil"
	"github.com/Spok95/telegram-attendance-bot/internal/ctxutil"
	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/tg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	StateLoginID       = "login_id"
	StateLoginPassword = "login_password"
)

type LoginData struct {
	LoginID string
}

var (
	loginMu   sync.Mutex
	loginFSM  = make(map[int64]string)
	loginData = make(map[int64]*LoginData)
)

func GetLoginState(chatID int64) string {
	loginMu.Lock()
	defer loginMu.Unlock()
	return loginFSM[chatID]
}

func clearLogin(chatID int64) {
	loginMu.Lock()
	defer loginMu.Unlock()
	delete(loginFSM, chatID)
	delete(loginData, chatID)
}

// StartLogin запускает цепочку логин → пароль.
func StartLogin(d handlers.Deps, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	loginMu.Lock()
	loginFSM[chatID] = StateLoginID
	loginData[chatID] = &LoginData{}
	loginMu.Unlock()
	_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Введите логин (номер ученика или email):\n(или напишите Отмена)"))
}

func HandleLoginText(d handlers.Deps, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if fsmutil.IsCancelText(msg.Text) {
		clearLogin(chatID)
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "🚫 Вход отменён. Напишите /start, чтобы попробовать снова."))
		return
	}

	loginMu.Lock()
	state := loginFSM[chatID]
	data := loginData[chatID]
	loginMu.Unlock()
	if data == nil {
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch state {
	case StateLoginID:
		if text == "" {
			_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Логин не может быть пустым. Введите ещё раз:"))
			return
		}
		loginMu.Lock()
		data.LoginID = text
		loginFSM[chatID] = StateLoginPassword
		loginMu.Unlock()
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Введите пароль:"))
	case StateLoginPassword:
		finishLogin(d, chatID, data.LoginID, text)
	}
}

func finishLogin(d handlers.Deps, chatID int64, loginID, password string) {
	key := "login"
	if !fsmutil.SetPending(chatID, key) {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⏳ Запрос уже обрабатывается…"))
		return
	}
	defer fsmutil.ClearPending(chatID, key)

	ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
	defer cancel()

	token, user, res := d.API.Login(ctx, loginID, password)
	if !res.Success {
		// остаёмся на шаге пароля: пусть пользователь попробует ещё раз
		loginMu.Lock()
		loginFSM[chatID] = StateLoginID
		loginMu.Unlock()
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ "+res.Message+"\nВведите логин ещё раз:"))
		return
	}

	dbCtx, dbCancel := ctxutil.WithDBTimeout(context.Background())
	defer dbCancel()
	if err := db.SaveSession(dbCtx, d.DB, db.Session{ChatID: chatID, Token: token, User: *user}); err != nil {
		d.Log.Warn("не удалось сохранить сессию: " + err.Error())
	}
	clearLogin(chatID)

	out := tgbotapi.NewMessage(chatID, "✅ Вы вошли как "+user.Name+".")
	out.ReplyMarkup = menu.GetRoleMenu(user.Role)
	_, _ = tg.Send(d.Bot, out)
}
