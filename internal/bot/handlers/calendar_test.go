package handlers

import (
	"math/rand"
	"testing"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/models"
)

func TestMonthGridFebruaryLeapYear(t *testing.T) {
	cells := MonthGrid(2024, time.February, nil)

	days := 0
	for _, c := range cells {
		if c.InMonth {
			days++
		}
	}
	if days != 29 {
		t.Fatalf("февраль 2024 високосный, ожидали 29 дней, получили %d", days)
	}

	// 2024-02-01 — четверг, weekday 4 → четыре ведущие пустые клетки
	wantLead := int(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC).Weekday())
	for i := 0; i < wantLead; i++ {
		if cells[i].InMonth {
			t.Fatalf("клетка %d должна быть пустой", i)
		}
	}
	if !cells[wantLead].InMonth || cells[wantLead].Day != 1 {
		t.Fatalf("после %d пустых клеток должно идти 1-е число", wantLead)
	}
}

func TestMonthGridLengths(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		days  int
	}{
		{2023, time.February, 28},
		{2024, time.February, 29},
		{2100, time.February, 28}, // вековой невисокосный
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tc := range cases {
		if got := daysIn(tc.year, tc.month); got != tc.days {
			t.Fatalf("%d-%02d: ожидали %d дней, получили %d", tc.year, tc.month, tc.days, got)
		}
	}
}

func TestMonthGridStatusByExactKey(t *testing.T) {
	byDate := map[string]models.Status{
		"2024-02-10": models.StatusPresent,
		"2024-03-10": models.StatusAbsent, // другой месяц, в сетку не попадает
	}
	cells := MonthGrid(2024, time.February, byDate)
	for _, c := range cells {
		if !c.InMonth {
			continue
		}
		switch c.Day {
		case 10:
			if !c.Marked || c.Status != models.StatusPresent {
				t.Fatalf("10-е должно быть Present: %+v", c)
			}
		default:
			if c.Marked {
				t.Fatalf("день %d не должен быть отмечен", c.Day)
			}
		}
	}
}

func TestAttendancePercent(t *testing.T) {
	records := []models.AttendanceRecord{
		{Date: "2024-02-10", Status: models.StatusPresent},
		{Date: "2024-02-11", Status: models.StatusAbsent},
		{Date: "2024-02-12", Status: models.StatusOnDuty},
	}

	t.Run("on_duty_counts", func(t *testing.T) {
		if got := AttendancePercent(records, "2024-02-01", "2024-02-29"); got != 67 {
			t.Fatalf("round(100*2/3) == 67, получили %d", got)
		}
	})

	t.Run("empty_is_zero", func(t *testing.T) {
		if got := AttendancePercent(nil, "2024-02-01", "2024-02-29"); got != 0 {
			t.Fatalf("пустая выборка — 0, получили %d", got)
		}
		if got := AttendancePercent(records, "2025-01-01", "2025-01-31"); got != 0 {
			t.Fatalf("диапазон без записей — 0, получили %d", got)
		}
	})

	t.Run("order_invariant", func(t *testing.T) {
		shuffled := make([]models.AttendanceRecord, len(records))
		copy(shuffled, records)
		r := rand.New(rand.NewSource(1))
		for i := 0; i < 10; i++ {
			r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
			if got := AttendancePercent(shuffled, "2024-02-01", "2024-02-29"); got != 67 {
				t.Fatalf("перестановка изменила результат: %d", got)
			}
		}
	})

	t.Run("range_inclusive", func(t *testing.T) {
		if got := AttendancePercent(records, "2024-02-10", "2024-02-10"); got != 100 {
			t.Fatalf("границы включаются, получили %d", got)
		}
	})

	t.Run("leave_not_counted", func(t *testing.T) {
		leave := []models.AttendanceRecord{{Date: "2024-02-10", Status: models.StatusLeave}}
		if got := AttendancePercent(leave, "2024-02-01", "2024-02-29"); got != 0 {
			t.Fatalf("Leave не посещение, получили %d", got)
		}
	})
}

func TestDefaultRange(t *testing.T) {
	now := time.Date(2024, time.February, 15, 12, 0, 0, 0, time.UTC)

	t.Run("current_month_through_today", func(t *testing.T) {
		from, to := DefaultRange(2024, time.February, now)
		if from != "2024-02-01" || to != "2024-02-15" {
			t.Fatalf("получили %s..%s", from, to)
		}
	})

	t.Run("past_month_clamped_to_month_end", func(t *testing.T) {
		from, to := DefaultRange(2024, time.January, now)
		if from != "2024-01-01" || to != "2024-01-31" {
			t.Fatalf("получили %s..%s", from, to)
		}
	})

	t.Run("future_month_empty", func(t *testing.T) {
		from, to := DefaultRange(2024, time.March, now)
		if to >= from {
			t.Fatalf("диапазон будущего месяца должен быть пуст: %s..%s", from, to)
		}
		if got := AttendancePercent([]models.AttendanceRecord{
			{Date: "2024-03-01", Status: models.StatusPresent},
		}, from, to); got != 0 {
			t.Fatalf("пустой диапазон — 0%%, получили %d", got)
		}
	})
}

func TestMonthNavigationWraps(t *testing.T) {
	if y, m := prevMonth(2024, time.January); y != 2023 || m != time.December {
		t.Fatalf("назад из января: %d-%v", y, m)
	}
	if y, m := nextMonth(2024, time.December); y != 2025 || m != time.January {
		t.Fatalf("вперёд из декабря: %d-%v", y, m)
	}
}
