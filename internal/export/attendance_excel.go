package export

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/models"
	"github.com/xuri/excelize/v2"
)

// MonthReport — табель посещаемости класса за месяц: по строке на ученика,
// по колонке на день, в конце — процент посещаемости.
type MonthReport struct {
	ClassName string
	Year      int
	Month     time.Month
	Days      int
	Roster    []models.UserRecord
	// ByDay: день месяца (1..Days) → roll number → статус
	ByDay map[int]map[string]models.Status
}

// Build собирает книгу xlsx. Пустая ячейка — ученик в этот день не отмечен.
func (r *MonthReport) Build() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Посещаемость"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []string{"Ученик", "Номер"}
	for d := 1; d <= r.Days; d++ {
		header = append(header, fmt.Sprintf("%d", d))
	}
	header = append(header, "Посещаемость, %")
	for c, h := range header {
		cell := fmt.Sprintf("%s1", colName(c+1))
		if err := f.SetCellStr(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	end := colName(len(header)) + "1"
	_ = f.SetCellStyle(sheet, "A1", end, bold)
	_ = f.AutoFilter(sheet, "A1:"+end, nil)

	for i, u := range r.Roster {
		row := i + 2
		if err := f.SetCellStr(sheet, "A"+fmt.Sprint(row), u.Name); err != nil {
			return nil, fmt.Errorf("set name row %d: %w", row, err)
		}
		_ = f.SetCellStr(sheet, "B"+fmt.Sprint(row), u.RollNumber)

		marked, present := 0, 0
		for d := 1; d <= r.Days; d++ {
			st := r.ByDay[d][u.RollNumber]
			if st == models.StatusUnset {
				continue
			}
			marked++
			if st.CountsAsPresent() {
				present++
			}
			cell := fmt.Sprintf("%s%d", colName(d+2), row)
			_ = f.SetCellStr(sheet, cell, statusMark(st))
		}
		pct := 0
		if marked > 0 {
			pct = int(math.Round(float64(present) / float64(marked) * 100))
		}
		cell := fmt.Sprintf("%s%d", colName(len(header)), row)
		_ = f.SetCellValue(sheet, cell, pct)
	}

	// ширина: имя пошире, дни узкие
	_ = f.SetColWidth(sheet, "A", "A", nameColWidth(r.Roster))
	_ = f.SetColWidth(sheet, "B", "B", 12)
	_ = f.SetColWidth(sheet, colName(3), colName(r.Days+2), 4)
	_ = f.SetColWidth(sheet, colName(len(header)), colName(len(header)), 18)

	return f, nil
}

// SaveTemp сохраняет книгу во временный файл и возвращает путь.
func (r *MonthReport) SaveTemp() (string, error) {
	f, err := r.Build()
	if err != nil {
		return "", err
	}
	path := os.TempDir() + "/" + r.Filename()
	return path, f.SaveAs(path)
}

func (r *MonthReport) Filename() string {
	base := fmt.Sprintf("Посещаемость — %s — %s %d.xlsx",
		cleanName(r.ClassName), monthTitle(r.Month), r.Year)
	return sanitizeFileName(base)
}

var ruMonths = [...]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

func monthTitle(m time.Month) string {
	return ruMonths[int(m)-1]
}

// statusMark — односимвольные коды для ячеек табеля.
func statusMark(st models.Status) string {
	switch st {
	case models.StatusPresent:
		return "П"
	case models.StatusAbsent:
		return "Н"
	case models.StatusOnDuty:
		return "Д"
	case models.StatusLeave:
		return "О"
	}
	return ""
}

func nameColWidth(roster []models.UserRecord) float64 {
	maxim := len("Ученик")
	for _, u := range roster {
		if l := len([]rune(u.Name)); l > maxim {
			maxim = l
		}
	}
	w := float64(maxim) * 1.1
	if w < 16 {
		w = 16
	}
	if w > 45 {
		w = 45
	}
	return w
}

func colName(n int) string {
	// 1 -> A; 27 -> AA
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

var invalidFileRe = regexp.MustCompile(`[\\/:*?"<>|]+`)

func sanitizeFileName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	return invalidFileRe.ReplaceAllString(s, "_")
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "—"
	}
	return s
}
