package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Spok95/telegram-attendance-bot/internal/api"
	"github.com/Spok95/telegram-attendance-bot/internal/bot/shared/fsmutil"
	"github.com/Spok95/telegram-attendance-bot/internal/ctxutil"
	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	"github.com/Spok95/telegram-attendance-bot/internal/tg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	profStepName = iota + 1
	profStepPhone
)

type ProfileFSMState struct {
	Step  int
	Name  string
	Phone string
}

var profStates = struct {
	mu sync.Mutex
	m  map[int64]*ProfileFSMState
}{m: make(map[int64]*ProfileFSMState)}

func GetProfileState(chatID int64) *ProfileFSMState {
	profStates.mu.Lock()
	defer profStates.mu.Unlock()
	return profStates.m[chatID]
}

func setProfileState(chatID int64, st *ProfileFSMState) {
	profStates.mu.Lock()
	defer profStates.mu.Unlock()
	if st == nil {
		delete(profStates.m, chatID)
		return
	}
	profStates.m[chatID] = st
}

// HandleProfile показывает профиль из кэша сессии. Набор доступных действий
// пересчитывается по блокировкам при каждом показе: профиль мог обновиться.
func HandleProfile(d Deps, sess *db.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	u := sess.User

	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", u.Name)
	fmt.Fprintf(&b, "Номер: %s\n", u.RollNumber)
	fmt.Fprintf(&b, "Роль: %s\n", u.Role)
	if u.EnrolledClass != "" {
		fmt.Fprintf(&b, "Класс: %s\n", u.EnrolledClass)
	} else {
		b.WriteString("Класс: не зачислен\n")
	}
	if u.Phone != "" {
		fmt.Fprintf(&b, "Телефон: %s\n", u.Phone)
	}

	var locked []string
	if !u.CanUpdateProfile() {
		locked = append(locked, "изменение профиля")
	}
	if !u.CanUploadPhoto() {
		locked = append(locked, "загрузка фото")
	}
	if !u.CanRegisterFace() {
		locked = append(locked, "регистрация лица")
	}
	if len(locked) > 0 {
		fmt.Fprintf(&b, "\n🔒 Заблокировано администратором: %s.", strings.Join(locked, ", "))
	}

	out := tgbotapi.NewMessage(chatID, b.String())
	out.ReplyMarkup = profileMarkup(&u)
	_, _ = tg.Send(d.Bot, out)
}

// profileMarkup — только разрешённые действия попадают на клавиатуру.
func profileMarkup(u *models.UserRecord) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if u.CanUpdateProfile() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить профиль", "prof_edit"),
		))
	}
	var extras []tgbotapi.InlineKeyboardButton
	if u.CanUploadPhoto() {
		extras = append(extras, tgbotapi.NewInlineKeyboardButtonData("🖼 Фото", "prof_photo"))
	}
	if u.CanRegisterFace() {
		extras = append(extras, tgbotapi.NewInlineKeyboardButtonData("🧑 Face ID", "prof_face"))
	}
	if len(extras) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(extras...))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Закрыть", "prof_close"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func HandleProfileCallback(d Deps, sess *db.Session, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID

	switch cq.Data {
	case "prof_close":
		fsmutil.DisableMarkup(d.Bot, chatID, cq.Message.MessageID)
		return
	case "prof_edit":
		// защёлка могла появиться после отрисовки кнопок — проверяем ещё раз
		if !sess.User.CanUpdateProfile() {
			_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "🔒 Изменение профиля заблокировано администратором."))
			return
		}
		setProfileState(chatID, &ProfileFSMState{Step: profStepName})
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Введите новое имя (или «-», чтобы оставить прежнее):"))
		return
	case "prof_photo":
		if !sess.User.CanUploadPhoto() {
			_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "🔒 Загрузка фото заблокирована администратором."))
			return
		}
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Фото профиля загружается через веб-версию журнала."))
		return
	case "prof_face":
		if !sess.User.CanRegisterFace() {
			_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "🔒 Регистрация лица заблокирована администратором."))
			return
		}
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Образец лица регистрируется через веб-версию журнала."))
		return
	}
}

func HandleProfileText(d Deps, sess *db.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	state := GetProfileState(chatID)
	if state == nil {
		return
	}

	if fsmutil.IsCancelText(msg.Text) {
		setProfileState(chatID, nil)
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "🚫 Правка профиля отменена."))
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch state.Step {
	case profStepName:
		if text != "-" {
			state.Name = text
		}
		state.Step = profStepPhone
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Введите телефон (или «-», чтобы оставить прежний):"))
	case profStepPhone:
		if text != "-" {
			state.Phone = text
		}
		saveProfile(d, sess, state, chatID)
		setProfileState(chatID, nil)
	}
}

func saveProfile(d Deps, sess *db.Session, state *ProfileFSMState, chatID int64) {
	key := "profile"
	if !fsmutil.SetPending(chatID, key) {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⏳ Запрос уже обрабатывается…"))
		return
	}
	defer fsmutil.ClearPending(chatID, key)

	ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
	defer cancel()

	user, res := d.API.UpdateProfile(ctx, sess.Token, api.ProfileUpdate{
		Name:  state.Name,
		Phone: state.Phone,
	})
	if !res.Success {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ "+res.Message))
		return
	}

	// профиль меняется только успешным ответом сервера
	sess.User = *user
	dbCtx, dbCancel := ctxutil.WithDBTimeout(context.Background())
	defer dbCancel()
	if err := db.SaveUser(dbCtx, d.DB, chatID, *user); err != nil {
		d.logger().Warn("не удалось сохранить профиль в сессию: " + err.Error())
	}

	_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "✅ Профиль обновлён."))
}
