package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/observability"
	"github.com/Spok95/telegram-attendance-bot/internal/tg"
)

// Reminder раз в день напоминает сотрудникам отметить посещаемость.
type Reminder struct {
	Bot  *tgbotapi.BotAPI
	DB   *sql.DB
	Loc  *time.Location
	Hour int // локальный час отправки; -1 — напоминания выключены

	mu       sync.Mutex
	lastSent string // дата последней отправки, защита от повторов в тот же день
}

// Start вешает напоминание на раннер. Проверка ежеминутная: так перезапуск
// бота в течение нужного часа не теряет напоминание.
func (r *Reminder) Start(runner *Runner) {
	if r.Hour < 0 {
		return
	}
	runner.Every(time.Minute, "attendance_remind", r.tick)
}

func (r *Reminder) tick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in reminder job: %v", rec)
			observability.CaptureErr(err)
		}
	}()

	now := time.Now().In(r.Loc)
	if now.Hour() != r.Hour {
		return nil
	}
	today := now.Format("2006-01-02")

	r.mu.Lock()
	if r.lastSent == today {
		r.mu.Unlock()
		return nil
	}
	r.lastSent = today
	r.mu.Unlock()

	ids, err := db.StaffChatIDs(ctx, r.DB)
	if err != nil {
		// не нашли адресатов — снимем пометку, следующая минута повторит
		r.mu.Lock()
		r.lastSent = ""
		r.mu.Unlock()
		observability.CaptureErr(err)
		return err
	}

	text := "🔔 Напоминание: отметьте посещаемость за сегодня."
	for _, chatID := range ids {
		if _, err := tg.Send(r.Bot, tgbotapi.NewMessage(chatID, text)); err != nil {
			observability.CaptureErr(fmt.Errorf("reminder to %d: %w", chatID, err))
		}
	}
	return nil
}
