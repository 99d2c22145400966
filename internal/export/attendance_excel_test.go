package export

import (
	"testing"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/models"
)

func sampleReport() *MonthReport {
	return &MonthReport{
		ClassName: "7Б",
		Year:      2024,
		Month:     time.February,
		Days:      29,
		Roster: []models.UserRecord{
			{RollNumber: "A1", Name: "Иванов Иван", Role: models.Student, EnrolledClass: "7Б"},
			{RollNumber: "A2", Name: "Петрова Анна", Role: models.Student, EnrolledClass: "7Б"},
		},
		ByDay: map[int]map[string]models.Status{
			1: {"A1": models.StatusPresent, "A2": models.StatusAbsent},
			2: {"A1": models.StatusOnDuty},
			3: {"A1": models.StatusLeave, "A2": models.StatusPresent},
		},
	}
}

func TestMonthReportBuild(t *testing.T) {
	f, err := sampleReport().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sheet := "Посещаемость"

	got, err := f.GetCellValue(sheet, "A2")
	if err != nil || got != "Иванов Иван" {
		t.Fatalf("A2 = %q, err=%v", got, err)
	}
	// день 1 — колонка C
	if v, _ := f.GetCellValue(sheet, "C2"); v != "П" {
		t.Errorf("день 1 для A1 = %q, ожидали П", v)
	}
	if v, _ := f.GetCellValue(sheet, "C3"); v != "Н" {
		t.Errorf("день 1 для A2 = %q, ожидали Н", v)
	}
	if v, _ := f.GetCellValue(sheet, "D2"); v != "Д" {
		t.Errorf("день 2 для A1 = %q, ожидали Д", v)
	}
	// день 2 для A2 не отмечен — пусто
	if v, _ := f.GetCellValue(sheet, "D3"); v != "" {
		t.Errorf("день 2 для A2 = %q, ожидали пусто", v)
	}
}

func TestMonthReportPercent(t *testing.T) {
	f, err := sampleReport().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sheet := "Посещаемость"
	// 31 колонка статусов (29 дней + 2) => процент в AF
	// A1: П, Д, О => 2 из 3 => 67
	if v, _ := f.GetCellValue(sheet, "AF2"); v != "67" {
		t.Errorf("процент A1 = %q, ожидали 67", v)
	}
	// A2: Н, П => 1 из 2 => 50
	if v, _ := f.GetCellValue(sheet, "AF3"); v != "50" {
		t.Errorf("процент A2 = %q, ожидали 50", v)
	}
}

func TestMonthReportPercentNoMarks(t *testing.T) {
	r := sampleReport()
	r.ByDay = map[int]map[string]models.Status{}
	f, err := r.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if v, _ := f.GetCellValue("Посещаемость", "AF2"); v != "0" {
		t.Errorf("процент без отметок = %q, ожидали 0", v)
	}
}

func TestFilenameSanitized(t *testing.T) {
	r := &MonthReport{ClassName: `7"Б"/х`, Year: 2024, Month: time.March}
	name := r.Filename()
	for _, bad := range `\/:*?"<>|` {
		if containsRune(name, bad) {
			t.Fatalf("имя файла содержит запрещённый символ %q: %s", bad, name)
		}
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestColName(t *testing.T) {
	cases := map[int]string{1: "A", 2: "B", 26: "Z", 27: "AA", 28: "AB", 32: "AF", 52: "AZ", 53: "BA"}
	for n, want := range cases {
		if got := colName(n); got != want {
			t.Errorf("colName(%d) = %s, ожидали %s", n, got, want)
		}
	}
}
