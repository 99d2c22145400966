package handlers

import (
	"sync"
	"testing"

	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func rosterX() []models.UserRecord {
	return []models.UserRecord{
		{Name: "Иванов", RollNumber: "A1", Role: models.Student, EnrolledClass: "X"},
		{Name: "Петров", RollNumber: "A2", Role: models.Student, EnrolledClass: "X"},
		{Name: "Сидоров", RollNumber: "A3", Role: models.Student, EnrolledClass: "Y"},
		{Name: "Классрук", RollNumber: "T1", Role: models.Staff, EnrolledClass: "X"},
		{Name: "Директор", RollNumber: "O1", Role: models.Owner},
	}
}

func TestMarkableStudents(t *testing.T) {
	got := MarkableStudents(rosterX(), "X")
	if len(got) != 2 {
		t.Fatalf("в классе X два ученика, получили %d", len(got))
	}
	for _, u := range got {
		if u.Role != models.Student {
			t.Fatalf("в срез попал не ученик: %s", u.RollNumber)
		}
	}
}

func TestSeedStatusesLeftJoin(t *testing.T) {
	roster := MarkableStudents(rosterX(), "X")
	records := []models.AttendanceRecord{
		{RollNumber: "A1", ClassName: "X", Date: "2024-02-10", Status: models.StatusLeave},
		// A3 из другого класса: в срез X не попадает
		{RollNumber: "A3", ClassName: "Y", Date: "2024-02-10", Status: models.StatusPresent},
	}

	seed := SeedStatuses(roster, records)
	if len(seed) != 2 {
		t.Fatalf("по одной записи на каждого ученика класса, получили %d", len(seed))
	}
	if seed["A1"] != models.StatusLeave {
		t.Fatalf("A1 должен быть Leave, получили %q", seed["A1"])
	}
	if seed["A2"] != models.StatusUnset {
		t.Fatalf("A2 без записи должен быть не отмечен, получили %q", seed["A2"])
	}
}

func TestSeedStatusesFetchFailure(t *testing.T) {
	// срез не получен → считаем, что отметок нет; контролы всё равно строятся
	roster := MarkableStudents(rosterX(), "X")
	seed := SeedStatuses(roster, nil)
	if len(seed) != 2 {
		t.Fatalf("пустой срез не должен ронять построение, получили %d", len(seed))
	}
	for roll, s := range seed {
		if s != models.StatusUnset {
			t.Fatalf("%s должен быть не отмечен, получили %q", roll, s)
		}
	}
}

func TestDoubleActivationSerialized(t *testing.T) {
	state := &MarkFSMState{}
	seq := state.beginSelection()
	roster := MarkableStudents(rosterX(), "X")
	if !state.commitSeed(seq, roster, SeedStatuses(roster, nil)) {
		t.Fatal("свежий срез должен примениться")
	}

	// две активации подряд до завершения какой-либо записи:
	// итог на экране — ровно два шага цикла от исходного, без гонок
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok := state.advance(0); !ok {
				t.Error("активация не прошла")
			}
		}()
	}
	wg.Wait()

	want := models.NextStatus(models.NextStatus(models.StatusUnset))
	if got := state.Statuses["A1"]; got != want {
		t.Fatalf("после двух активаций ожидали %q, получили %q", want, got)
	}
}

func TestStaleSnapshotDiscarded(t *testing.T) {
	state := &MarkFSMState{}
	roster := MarkableStudents(rosterX(), "X")

	oldSeq := state.beginSelection() // выбор №1, срез улетел в сеть
	_ = state.beginSelection()       // пользователь успел сменить выбор

	stale := SeedStatuses(roster, []models.AttendanceRecord{
		{RollNumber: "A1", Status: models.StatusAbsent},
	})
	if state.commitSeed(oldSeq, roster, stale) {
		t.Fatal("устаревший срез не должен применяться к новому виду")
	}
	if state.Statuses != nil {
		t.Fatalf("состояние нового вида испорчено: %v", state.Statuses)
	}

	// а срез текущего выбора применяется
	fresh := SeedStatuses(roster, nil)
	if !state.commitSeed(state.Seq, roster, fresh) {
		t.Fatal("актуальный срез должен примениться")
	}
}

func TestAdvanceBeforeSeedIgnored(t *testing.T) {
	// контролы ещё не отрисованы — активация невозможна
	state := &MarkFSMState{}
	state.beginSelection()
	if _, _, ok := state.advance(0); ok {
		t.Fatal("до получения среза активация должна игнорироваться")
	}
}

func TestAwaitingInputOnlyOnCustomDate(t *testing.T) {
	// текст чата принадлежит редактору только на шаге ручного ввода даты;
	// на остальных шагах команды и кнопки меню должны проходить дальше
	state := &MarkFSMState{}
	for _, step := range []int{markStepClass, markStepDate, markStepControls} {
		state.setStep(step)
		if state.AwaitingInput() {
			t.Fatalf("шаг %d не должен перехватывать текст", step)
		}
	}
	state.setStep(markStepCustomDate)
	if !state.AwaitingInput() {
		t.Fatal("шаг ручной даты должен ждать текст")
	}
}

func TestMarkTextIgnoredOnControls(t *testing.T) {
	// открытый редактор на шаге контролов: текстовое сообщение не трогает
	// ни его состояние, ни бота
	chatID := int64(4242)
	state := &MarkFSMState{Step: markStepControls, ClassName: "X", Date: "2024-02-10"}
	seq := state.beginSelection()
	state.setStep(markStepControls)
	roster := MarkableStudents(rosterX(), "X")
	state.commitSeed(seq, roster, SeedStatuses(roster, nil))
	setMarkState(chatID, state)
	defer setMarkState(chatID, nil)

	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: "/calendar"}
	HandleMarkText(Deps{}, &db.Session{}, msg)

	if got := GetMarkState(chatID); got == nil || got.step() != markStepControls {
		t.Fatal("состояние редактора не должно меняться от постороннего текста")
	}
	if state.Statuses["A1"] != models.StatusUnset {
		t.Fatalf("статусы не должны меняться, получили %q", state.Statuses["A1"])
	}
}
