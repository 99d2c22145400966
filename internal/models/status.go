package models

// Status — отметка посещаемости за день. Пустая строка = не отмечен.
type Status string

const (
	StatusUnset   Status = ""
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusOnDuty  Status = "On Duty"
	StatusLeave   Status = "Leave"
)

// StatusOrder — порядок, по которому кнопка циклически переключает отметку.
var StatusOrder = []Status{StatusPresent, StatusAbsent, StatusOnDuty, StatusLeave}

// NextStatus возвращает следующую отметку по кругу.
// Неизвестное или пустое значение всегда начинает цикл с Present.
func NextStatus(cur Status) Status {
	for i, s := range StatusOrder {
		if s == cur {
			return StatusOrder[(i+1)%len(StatusOrder)]
		}
	}
	return StatusPresent
}

// CountsAsPresent — "На выезде" считается посещением при расчёте процента.
func (s Status) CountsAsPresent() bool {
	return s == StatusPresent || s == StatusOnDuty
}

// StatusBadge — значок для кнопок и календаря.
func StatusBadge(s Status) string {
	switch s {
	case StatusPresent:
		return "🟢"
	case StatusAbsent:
		return "🔴"
	case StatusOnDuty:
		return "🟡"
	case StatusLeave:
		return "🔵"
	default:
		return "⚪"
	}
}

// StatusLabel — подпись отметки в сообщениях.
func StatusLabel(s Status) string {
	switch s {
	case StatusPresent:
		return "Присутствует"
	case StatusAbsent:
		return "Отсутствует"
	case StatusOnDuty:
		return "На выезде"
	case StatusLeave:
		return "Отпущен"
	default:
		return "Не отмечен"
	}
}
