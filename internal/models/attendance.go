package models

// DateLayout — формат календарного дня на проводе и в ключах. Без времени и зоны.
const DateLayout = "2006-01-02"

// AttendanceRecord — одна отметка ученика за день.
// Бэкенд гарантирует не больше одной записи на пару (rollNumber, date).
type AttendanceRecord struct {
	RollNumber string `json:"rollNumber"`
	ClassName  string `json:"className"`
	Date       string `json:"date"`
	Status     Status `json:"status"`
}
