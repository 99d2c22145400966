package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/bot/shared/fsmutil"
	"github.com/Spok95/telegram-attendance-bot/internal/ctxutil"
	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/metrics"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	"github.com/Spok95/telegram-attendance-bot/internal/tg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Шаги сценария отметки.
const (
	markStepClass      = 1
	markStepDate       = 2
	markStepCustomDate = 3
	markStepControls   = 4
)

// MarkFSMState — состояние редактора посещаемости одного чата.
// mu закрывает все изменяемые поля; ClassOptions заполняется один раз при
// создании и дальше не меняется.
// Statuses — только то, что сейчас показано на кнопках; сервер это состояние
// не правит, сверка с ним происходит лишь при перестроении среза.
// Seq растёт при каждой смене выбора (класс/дата/обновление): ответ среза,
// пришедший с другим Seq, относится к уже брошенному виду и отбрасывается.
type MarkFSMState struct {
	mu           sync.Mutex
	Step         int
	ClassOptions []string
	ClassName    string
	Date         string
	Seq          int64
	MessageID    int
	Roster       []models.UserRecord
	Statuses     map[string]models.Status
}

var markStates = struct {
	mu sync.Mutex
	m  map[int64]*MarkFSMState
}{m: make(map[int64]*MarkFSMState)}

func GetMarkState(chatID int64) *MarkFSMState {
	markStates.mu.Lock()
	defer markStates.mu.Unlock()
	return markStates.m[chatID]
}

func setMarkState(chatID int64, st *MarkFSMState) {
	markStates.mu.Lock()
	defer markStates.mu.Unlock()
	if st == nil {
		delete(markStates.m, chatID)
		return
	}
	markStates.m[chatID] = st
}

// MarkableStudents — кого можно отмечать: только ученики выбранного класса.
// Персонал и владельца в срез не включаем.
func MarkableStudents(users []models.UserRecord, className string) []models.UserRecord {
	var out []models.UserRecord
	for _, u := range users {
		if u.Role == models.Student && u.EnrolledClass == className {
			out = append(out, u)
		}
	}
	return out
}

// SeedStatuses — левое соединение реестра класса с отметками за день.
// У кого записи нет — "не отмечен".
func SeedStatuses(roster []models.UserRecord, records []models.AttendanceRecord) map[string]models.Status {
	byRoll := make(map[string]models.Status, len(records))
	for _, r := range records {
		byRoll[r.RollNumber] = r.Status
	}
	seed := make(map[string]models.Status, len(roster))
	for _, u := range roster {
		seed[u.RollNumber] = byRoll[u.RollNumber]
	}
	return seed
}

func (s *MarkFSMState) step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Step
}

func (s *MarkFSMState) setStep(v int) {
	s.mu.Lock()
	s.Step = v
	s.mu.Unlock()
}

// selection — согласованный снимок текущего выбора.
func (s *MarkFSMState) selection() (className, date string, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ClassName, s.Date, s.MessageID
}

// AwaitingInput — ждёт ли редактор текстового ввода. На шаге контролов
// сценарий «висит» без завершающего шага, и текст чата ему не принадлежит.
func (s *MarkFSMState) AwaitingInput() bool {
	return s.step() == markStepCustomDate
}

// beginSelection фиксирует смену выбора и возвращает её номер.
// Всё локальное состояние контролов при этом выбрасывается.
func (s *MarkFSMState) beginSelection() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Seq++
	s.Statuses = nil
	s.Roster = nil
	return s.Seq
}

// commitSeed применяет пришедший срез, только если выбор с тех пор не менялся.
func (s *MarkFSMState) commitSeed(seq int64, roster []models.UserRecord, seed map[string]models.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Seq != seq {
		return false
	}
	s.Roster = roster
	s.Statuses = seed
	return true
}

// advance — сериализованное локальное переключение контрола по кругу.
// Две быстрые активации всегда дают два шага цикла от исходного значения,
// независимо от порядка завершения записей на сервере.
func (s *MarkFSMState) advance(idx int) (models.UserRecord, models.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Statuses == nil || idx < 0 || idx >= len(s.Roster) {
		return models.UserRecord{}, models.StatusUnset, false
	}
	u := s.Roster[idx]
	next := models.NextStatus(s.Statuses[u.RollNumber])
	s.Statuses[u.RollNumber] = next
	return u, next, true
}

// ==== start ====

func StartMarkFSM(d Deps, sess *db.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !sess.User.Role.IsStaff() {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⚠️ Отмечать посещаемость может только персонал."))
		return
	}

	st := d.Caches.For(chatID)
	classes := st.Classes()
	if len(classes) == 0 {
		ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
		defer cancel()
		classes, _ = st.RefreshClasses(ctx, sess.Token)
	}
	if len(classes) == 0 {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ Справочник классов недоступен. Попробуйте позже."))
		return
	}

	state := &MarkFSMState{Step: markStepClass, ClassOptions: classes}
	setMarkState(chatID, state)

	out := tgbotapi.NewMessage(chatID, "Выберите класс:")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(markClassRows(classes)...)
	sent, err := tg.Send(d.Bot, out)
	if err != nil {
		metrics.HandlerErrors.Inc()
		return
	}
	state.mu.Lock()
	state.MessageID = sent.MessageID
	state.mu.Unlock()
}

// ==== callbacks ====

func HandleMarkCallback(d Deps, sess *db.Session, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID
	state := GetMarkState(chatID)
	if state == nil {
		return
	}
	data := cq.Data

	if data == "att_cancel" {
		setMarkState(chatID, nil)
		fsmutil.DisableMarkup(d.Bot, chatID, cq.Message.MessageID)
		edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, "🚫 Отметка отменена.")
		_, _ = tg.Send(d.Bot, edit)
		return
	}

	if data == "att_back" {
		switch state.step() {
		case markStepDate, markStepCustomDate:
			state.setStep(markStepClass)
			markEditMenu(d, chatID, cq.Message.MessageID, "Выберите класс:", markClassRows(state.ClassOptions))
		case markStepControls:
			// уходим с контролов — их состояние выбрасывается
			state.beginSelection()
			state.setStep(markStepDate)
			className, _, _ := state.selection()
			markEditMenu(d, chatID, cq.Message.MessageID, dateTitle(className), markDateRows())
		default:
			setMarkState(chatID, nil)
			fsmutil.DisableMarkup(d.Bot, chatID, cq.Message.MessageID)
		}
		return
	}

	if strings.HasPrefix(data, "att_class_") {
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "att_class_"))
		if err != nil || idx < 0 || idx >= len(state.ClassOptions) {
			return
		}
		state.beginSelection()
		className := state.ClassOptions[idx]
		state.mu.Lock()
		state.ClassName = className
		state.Step = markStepDate
		state.mu.Unlock()
		markEditMenu(d, chatID, cq.Message.MessageID, dateTitle(className), markDateRows())
		return
	}

	switch data {
	case "att_date_today":
		selectMarkDate(d, sess, state, chatID, cq.Message.MessageID, todayIn(d.location()))
		return
	case "att_date_yesterday":
		selectMarkDate(d, sess, state, chatID, cq.Message.MessageID, dayIn(d.location(), -1))
		return
	case "att_date_custom":
		state.setStep(markStepCustomDate)
		rows := [][]tgbotapi.InlineKeyboardButton{fsmutil.BackCancelRow("att_back", "att_cancel")}
		markEditMenu(d, chatID, cq.Message.MessageID, "Введите дату в формате ГГГГ-ММ-ДД:", rows)
		return
	case "att_refresh":
		// принудительная сверка с сервером: вся локальная картина выбрасывается
		rebuildMarkView(d, sess, state, chatID)
		return
	}

	if strings.HasPrefix(data, "att_mark_") {
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "att_mark_"))
		if err != nil {
			return
		}
		applyMark(d, sess, state, chatID, idx)
		return
	}
}

// ==== текстовый шаг (своя дата) ====

func HandleMarkText(d Deps, sess *db.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	state := GetMarkState(chatID)
	if state == nil || !state.AwaitingInput() {
		return
	}

	if fsmutil.IsCancelText(msg.Text) {
		setMarkState(chatID, nil)
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "🚫 Отметка отменена."))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if _, err := time.Parse(models.DateLayout, text); err != nil {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⚠️ Не похоже на дату. Нужен формат ГГГГ-ММ-ДД, например 2026-09-01."))
		return
	}
	_, _, messageID := state.selection()
	selectMarkDate(d, sess, state, chatID, messageID, text)
}

// ==== построение среза ====

func selectMarkDate(d Deps, sess *db.Session, state *MarkFSMState, chatID int64, messageID int, date string) {
	state.beginSelection()
	state.mu.Lock()
	state.Date = date
	state.Step = markStepControls
	state.MessageID = messageID
	state.mu.Unlock()
	rebuildMarkView(d, sess, state, chatID)
}

// rebuildMarkView собирает срез (класс, дата) заново: реестр из кэша
// (с ленивым первым обновлением), отметки за день — с сервера.
// Контролы не показываются, пока срез не получен или не признан пустым.
func rebuildMarkView(d Deps, sess *db.Session, state *MarkFSMState, chatID int64) {
	seq := state.beginSelection()
	className, date, messageID := state.selection()

	log := d.logger().With(zap.Int64("chat_id", chatID), zap.String("class", className), zap.String("date", date))

	st := d.Caches.For(chatID)
	users := st.Users()
	if len(users) == 0 {
		// одноразовый bootstrap реестра, не пер-рендерное обновление
		ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
		users, _ = st.RefreshUsers(ctx, sess.Token)
		cancel()
	}

	roster := MarkableStudents(users, className)
	if len(roster) == 0 {
		rows := [][]tgbotapi.InlineKeyboardButton{fsmutil.BackCancelRow("att_back", "att_cancel")}
		markEditMenu(d, chatID, messageID, fmt.Sprintf("В классе %s нет учеников.", className), rows)
		return
	}

	ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
	records, res := d.API.AttendanceByDate(ctx, sess.Token, className, date)
	cancel()
	if !res.Success {
		// отсутствие среза читаем как "отметок ещё нет", рендерим пустые контролы
		log.Warn("срез посещаемости недоступен, считаем что отметок нет", zap.String("msg", res.Message))
		records = nil
	}
	seed := SeedStatuses(roster, records)

	if !state.commitSeed(seq, roster, seed) {
		// выбор уже сменился, этот ответ относится к брошенному виду
		log.Debug("срез пришёл после смены выбора, отброшен")
		return
	}
	rows := controlRows(roster, seed)

	title := fmt.Sprintf("Класс %s, %s. Нажатие меняет отметку по кругу:\n%s", className, date, legendLine())
	markEditMenu(d, chatID, messageID, title, rows)
}

// applyMark — активация контрола: локальный статус меняется сразу и
// сериализованно, запись на сервер уходит асинхронно. Отката при неудачной
// записи нет — расхождение снимет следующее перестроение среза.
func applyMark(d Deps, sess *db.Session, state *MarkFSMState, chatID int64, idx int) {
	student, next, ok := state.advance(idx)
	if !ok {
		return
	}
	state.mu.Lock()
	rows := controlRows(state.Roster, state.Statuses)
	className := state.ClassName
	date := state.Date
	messageID := state.MessageID
	state.mu.Unlock()

	// мгновенный оптимистичный рендер, сети не ждём
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup)
	if _, err := tg.Send(d.Bot, edit); err != nil {
		metrics.HandlerErrors.Inc()
	}

	go func() {
		ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
		defer cancel()
		res := d.API.WriteMark(ctx, sess.Token, models.AttendanceRecord{
			RollNumber: student.RollNumber,
			ClassName:  className,
			Date:       date,
			Status:     next,
		})
		if !res.Success {
			metrics.HandlerErrors.Inc()
			notice := fmt.Sprintf("⚠️ Отметка для %s не сохранена: %s", student.Name, res.Message)
			_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, notice))
		}
	}()
}

// ==== клавиатуры ====

func markClassRows(classes []string) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, name := range classes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, fmt.Sprintf("att_class_%d", i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "att_cancel"),
	))
	return rows
}

func markDateRows() [][]tgbotapi.InlineKeyboardButton {
	return [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Сегодня", "att_date_today"),
			tgbotapi.NewInlineKeyboardButtonData("Вчера", "att_date_yesterday"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📆 Другая дата", "att_date_custom"),
		),
		fsmutil.BackCancelRow("att_back", "att_cancel"),
	}
}

func controlRows(roster []models.UserRecord, statuses map[string]models.Status) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, u := range roster {
		label := fmt.Sprintf("%s %s (%s)", models.StatusBadge(statuses[u.RollNumber]), u.Name, u.RollNumber)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("att_mark_%d", i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить с сервера", "att_refresh"),
	))
	rows = append(rows, fsmutil.BackCancelRow("att_back", "att_cancel"))
	return rows
}

func markEditMenu(d Deps, chatID int64, messageID int, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	mk := tgbotapi.NewInlineKeyboardMarkup(rows...)
	cfg.ReplyMarkup = &mk
	if _, err := tg.Send(d.Bot, cfg); err != nil {
		metrics.HandlerErrors.Inc()
	}
}

func dateTitle(className string) string {
	return fmt.Sprintf("Класс %s. Выберите дату:", className)
}

func legendLine() string {
	parts := make([]string, 0, len(models.StatusOrder))
	for _, s := range models.StatusOrder {
		parts = append(parts, models.StatusBadge(s)+" "+models.StatusLabel(s))
	}
	return strings.Join(parts, " · ")
}

// ==== даты ====

func todayIn(loc *time.Location) string {
	return time.Now().In(loc).Format(models.DateLayout)
}

func dayIn(loc *time.Location, offset int) string {
	return time.Now().In(loc).AddDate(0, 0, offset).Format(models.DateLayout)
}
