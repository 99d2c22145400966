package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/api"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
)

// Бэкенд отдаёт посещаемость только срезом (класс, дата); табель собирается
// циклом по дням, и недоступный день оставляет в табеле пробел.
func TestMonthMarksAssembly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/owner/attendance/by-date" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		var req struct {
			ClassName string `json:"className"`
			Date      string `json:"date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("тело запроса: %v", err)
		}
		if req.ClassName != "X" {
			t.Errorf("класс %q, ожидали X", req.ClassName)
		}
		switch req.Date {
		case "2024-02-01":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"records": []map[string]string{
					{"rollNumber": "A1", "className": "X", "date": req.Date, "status": "Absent"},
				},
			})
		case "2024-02-02":
			// сервер отказал — день должен быть пропущен, не обнулён
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "нет данных"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "records": []any{}})
		}
	}))
	defer srv.Close()

	d := Deps{API: api.New(srv.URL, time.Second, nil)}
	byDay := monthMarks(d, "tok", 1, "X", 2024, time.February, 3)

	if byDay[1]["A1"] != models.StatusAbsent {
		t.Fatalf("день 1: A1 должен быть Absent, получили %q", byDay[1]["A1"])
	}
	if _, ok := byDay[2]; ok {
		t.Fatal("недоступный день 2 не должен попасть в табель")
	}
	marks, ok := byDay[3]
	if !ok || len(marks) != 0 {
		t.Fatalf("день 3 без отметок должен присутствовать пустым, получили %v, ok=%v", marks, ok)
	}
}
