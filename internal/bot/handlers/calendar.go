package handlers

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/ctxutil"
	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/metrics"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	"github.com/Spok95/telegram-attendance-bot/internal/tg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CalendarCell — одна клетка месячной сетки. Day == 0 — ведущая пустая клетка
// до первого числа. Сетка каждый раз строится заново и не мутируется.
type CalendarCell struct {
	Day     int
	Status  models.Status
	Marked  bool
	InMonth bool
}

// MonthGrid строит сетку месяца: столько пустых клеток, какой день недели
// у первого числа (воскресенье = 0), затем по клетке на каждый день.
// Отметка ищется по точному ключу ГГГГ-ММ-ДД.
func MonthGrid(year int, month time.Month, byDate map[string]models.Status) []CalendarCell {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lead := int(first.Weekday())

	cells := make([]CalendarCell, 0, lead+31)
	for i := 0; i < lead; i++ {
		cells = append(cells, CalendarCell{})
	}
	for day := 1; day <= daysIn(year, month); day++ {
		key := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
		status, marked := byDate[key]
		cells = append(cells, CalendarCell{Day: day, Status: status, Marked: marked, InMonth: true})
	}
	return cells
}

// daysIn — длина месяца; нулевой день следующего месяца, високосные годы
// time сам считает.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RecordsByDate раскладывает записи по дню. Бэкенд держит не больше одной
// записи на день, при дубле побеждает последняя.
func RecordsByDate(records []models.AttendanceRecord) map[string]models.Status {
	byDate := make(map[string]models.Status, len(records))
	for _, r := range records {
		byDate[r.Date] = r.Status
	}
	return byDate
}

// AttendancePercent — процент посещения на включительном диапазоне дат.
// Present и On Duty считаются посещением. Пустая выборка — 0, не ошибка.
// Порядок записей значения не имеет.
func AttendancePercent(records []models.AttendanceRecord, from, to string) int {
	total, present := 0, 0
	for _, r := range records {
		// ГГГГ-ММ-ДД сравнивается лексикографически корректно
		if r.Date < from || r.Date > to {
			continue
		}
		total++
		if r.Status.CountsAsPresent() {
			present++
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(present) / float64(total)))
}

// DefaultRange — диапазон по умолчанию: первое число показанного месяца —
// сегодня, но не дальше конца месяца. Для будущего месяца получается
// to < from: такой диапазон пуст, и процент по нему равен нулю.
func DefaultRange(year int, month time.Month, now time.Time) (string, string) {
	from := fmt.Sprintf("%04d-%02d-01", year, int(month))
	to := now.Format(models.DateLayout)
	last := fmt.Sprintf("%04d-%02d-%02d", year, int(month), daysIn(year, month))
	if to > last {
		to = last
	}
	return from, to
}

// ==== состояние просмотра ====

// calView хранит выбранный месяц и уже загруженную историю. Сетка и процент
// каждый раз пересчитываются заново, навигация по месяцам сеть не трогает.
type calView struct {
	Year      int
	Month     time.Month
	MessageID int
	Records   []models.AttendanceRecord
}

var calStates = struct {
	mu sync.Mutex
	m  map[int64]*calView
}{m: make(map[int64]*calView)}

func getCalView(chatID int64) *calView {
	calStates.mu.Lock()
	defer calStates.mu.Unlock()
	return calStates.m[chatID]
}

func setCalView(chatID int64, v *calView) {
	calStates.mu.Lock()
	defer calStates.mu.Unlock()
	if v == nil {
		delete(calStates.m, chatID)
		return
	}
	calStates.m[chatID] = v
}

// ==== handlers ====

// HandleMyCalendar — "моя посещаемость": тянем историю и показываем текущий месяц.
func HandleMyCalendar(d Deps, sess *db.Session, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	ctx, cancel := ctxutil.WithAPITimeout(ctxutil.WithChatID(context.Background(), chatID))
	records, res := d.API.MyAttendance(ctx, sess.Token)
	cancel()
	if !res.Success {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "❌ "+res.Message))
		return
	}
	if len(records) == 0 {
		_, _ = tg.Send(d.Bot, tgbotapi.NewMessage(chatID, "Пока нет ни одной отметки."))
		return
	}

	now := time.Now().In(d.location())
	view := &calView{Year: now.Year(), Month: now.Month(), Records: records}
	setCalView(chatID, view)

	out := tgbotapi.NewMessage(chatID, renderCalendar(d, view))
	out.ReplyMarkup = calNavMarkup()
	sent, err := tg.Send(d.Bot, out)
	if err != nil {
		metrics.HandlerErrors.Inc()
		return
	}
	view.MessageID = sent.MessageID
}

func HandleCalendarCallback(d Deps, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID
	view := getCalView(chatID)
	if view == nil {
		return
	}

	switch cq.Data {
	case "cal_prev":
		view.Year, view.Month = prevMonth(view.Year, view.Month)
	case "cal_next":
		view.Year, view.Month = nextMonth(view.Year, view.Month)
	case "cal_close":
		setCalView(chatID, nil)
		edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, "Календарь закрыт.")
		_, _ = tg.Send(d.Bot, edit)
		return
	default:
		return
	}

	cfg := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, renderCalendar(d, view))
	mk := calNavMarkup()
	cfg.ReplyMarkup = &mk
	if _, err := tg.Send(d.Bot, cfg); err != nil {
		metrics.HandlerErrors.Inc()
	}
}

// ==== рендер ====

var monthNames = [...]string{"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь"}

func renderCalendar(d Deps, view *calView) string {
	cells := MonthGrid(view.Year, view.Month, RecordsByDate(view.Records))

	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s %d\n", monthNames[int(view.Month)], view.Year)
	b.WriteString("Вс Пн Вт Ср Чт Пт Сб\n")

	col := 0
	for _, c := range cells {
		if !c.InMonth {
			b.WriteString(" · ")
		} else if c.Marked {
			b.WriteString(models.StatusBadge(c.Status))
		} else {
			fmt.Fprintf(&b, "%2d ", c.Day)
		}
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		}
	}
	if col != 0 {
		b.WriteString("\n")
	}

	now := time.Now().In(d.location())
	from, to := DefaultRange(view.Year, view.Month, now)
	fmt.Fprintf(&b, "\nПосещаемость: %d%% (%s — %s)\n%s", AttendancePercent(view.Records, from, to), from, to, legendLine())
	return b.String()
}

func calNavMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️", "cal_prev"),
			tgbotapi.NewInlineKeyboardButtonData("❌", "cal_close"),
			tgbotapi.NewInlineKeyboardButtonData("▶️", "cal_next"),
		),
	)
}

func prevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}
