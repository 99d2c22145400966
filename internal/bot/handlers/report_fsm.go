package handlers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/bot/shared/fsmutil"
	"github.com/Spok95/telegram-attendance-bot/internal/ctxutil"
	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/export"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	"github.com/Spok95/telegram-attendance-bot/internal/tg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type ReportFSMState struct {
	ClassOptions []string
	MessageID    int
}

var repStates = struct {
	mu sync.Mutex
	m  map[int64]*ReportFSMState
}{m: make(map[int64]*ReportFSMState)}

func GetReportState(chatID int64) *ReportFSMState {
	repStates.mu.Lock()
	defer repStates.mu.Unlock()
	return repStates.m[chatID]
}

func setReportState(chatID int64, st *ReportFSMState) {
	repStates.mu.Lock()
	defer repStates.mu.Unlock()
	if st == nil {
		delete(repStates.m, chatID)
		return
	}
	repStates.m[chatID] = st
}

// StartReportFSM — выбор класса для табеля за текущий месяц.
func StartReportFSM(d Deps, sess *db.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !sess.User.Role.IsStaff() {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⛔ Отчёты доступны только сотрудникам."))
		return
	}

	store := d.Caches.For(chatID)
	classes := store.Classes()
	if len(classes) == 0 {
		ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
		defer cancel()
		fresh, ok := store.RefreshClasses(ctx, sess.Token)
		if !ok {
			_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ Не удалось получить список классов. Попробуйте позже."))
			return
		}
		classes = fresh
	}
	if len(classes) == 0 {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Список классов пуст."))
		return
	}

	state := &ReportFSMState{ClassOptions: classes}
	setReportState(chatID, state)

	out := tgbotapi.NewMessage(chatID, "Выберите класс для табеля за текущий месяц:")
	out.ReplyMarkup = reportClassRows(classes)
	sent, err := tg.Send(d.Bot, out)
	if err == nil {
		state.MessageID = sent.MessageID
	}
}

func reportClassRows(classes []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, name := range classes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, fmt.Sprintf("exp_class_%d", i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "exp_cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func HandleReportCallback(d Deps, sess *db.Session, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID
	data := cq.Data

	if data == "exp_cancel" {
		setReportState(chatID, nil)
		fsmutil.DisableMarkup(d.Bot, chatID, cq.Message.MessageID)
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "🚫 Отчёт отменён."))
		return
	}

	state := GetReportState(chatID)
	if state == nil {
		return
	}

	if strings.HasPrefix(data, "exp_class_") {
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "exp_class_"))
		if err != nil || idx < 0 || idx >= len(state.ClassOptions) {
			return
		}
		className := state.ClassOptions[idx]
		setReportState(chatID, nil)
		fsmutil.DisableMarkup(d.Bot, chatID, cq.Message.MessageID)
		// до 31 запроса к бэкенду: уводим с цикла обновлений, чтобы медленный
		// сервер не замораживал остальные чаты; от повторного запуска
		// защищает pending-флаг внутри
		go sendMonthReport(d, sess, chatID, className)
	}
}

// sendMonthReport тянет табель по дням: бэкенд отдаёт посещаемость только
// срезом (класс, дата), поэтому месяц собирается циклом запросов.
func sendMonthReport(d Deps, sess *db.Session, chatID int64, className string) {
	key := "report"
	if !fsmutil.SetPending(chatID, key) {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⏳ Отчёт уже формируется…"))
		return
	}
	defer fsmutil.ClearPending(chatID, key)

	_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "⏳ Формирую табель по классу "+className+"…"))

	now := time.Now().In(d.location())
	year, month := now.Year(), now.Month()
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, d.location()).Day()
	upTo := lastDay
	if now.Day() < upTo {
		upTo = now.Day()
	}

	store := d.Caches.For(chatID)
	users := store.Users()
	if len(users) == 0 {
		ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
		fresh, ok := store.RefreshUsers(ctx, sess.Token)
		cancel()
		if !ok {
			_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ Не удалось получить список учеников."))
			return
		}
		users = fresh
	}
	roster := MarkableStudents(users, className)
	if len(roster) == 0 {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "В классе "+className+" нет учеников."))
		return
	}

	byDay := monthMarks(d, sess.Token, chatID, className, year, month, upTo)

	report := &export.MonthReport{
		ClassName: className,
		Year:      year,
		Month:     month,
		Days:      lastDay,
		Roster:    roster,
		ByDay:     byDay,
	}
	path, err := report.SaveTemp()
	if err != nil {
		d.logger().Error("не удалось собрать xlsx", zap.Error(err))
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ Не удалось сформировать файл отчёта."))
		return
	}
	defer os.Remove(path)

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = fmt.Sprintf("Табель посещаемости, %s", className)
	if _, err := tg.Send(d.Bot, doc); err != nil {
		d.logger().Error("не удалось отправить отчёт", zap.Error(err))
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ Не удалось отправить файл отчёта."))
	}
}

// monthMarks собирает отметки месяца по дням 1..upTo: бэкенд отдаёт
// посещаемость только срезом (класс, дата). Недоступный день пропускается —
// табель с пробелом полезнее, чем никакого.
func monthMarks(d Deps, token string, chatID int64, className string, year int, month time.Month, upTo int) map[int]map[string]models.Status {
	byDay := make(map[int]map[string]models.Status, upTo)
	for day := 1; day <= upTo; day++ {
		date := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
		ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
		records, res := d.API.AttendanceByDate(ctx, token, className, date)
		cancel()
		if !res.Success {
			d.logger().Warn("день недоступен для табеля",
				zap.String("class", className), zap.String("date", date), zap.String("reason", res.Message))
			continue
		}
		marks := make(map[string]models.Status, len(records))
		for _, rec := range records {
			marks[rec.RollNumber] = rec.Status
		}
		byDay[day] = marks
	}
	return byDay
}
