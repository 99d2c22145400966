//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"testing"

	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	"github.com/Spok95/telegram-attendance-bot/internal/testutil/testdb"
)

func TestSessionsRoundtrip(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if s, err := db.GetSession(ctx, h.DB, 42); err != nil || s != nil {
		t.Fatalf("до логина сессии нет: s=%v err=%v", s, err)
	}

	sess := db.Session{
		ChatID: 42,
		Token:  "tok-1",
		User: models.UserRecord{
			Name: "Иванов", RollNumber: "A1", Role: models.Student, EnrolledClass: "X",
		},
	}
	if err := db.SaveSession(ctx, h.DB, sess); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetSession(ctx, h.DB, 42)
	if err != nil || got == nil {
		t.Fatalf("сессия не прочиталась: %v", err)
	}
	if got.Token != "tok-1" || got.User.RollNumber != "A1" || got.User.Locks != nil {
		t.Fatalf("сессия исказилась: %#v", got)
	}

	// повторный логин перезаписывает, а не дублирует
	sess.Token = "tok-2"
	sess.User.Locks = &models.Locks{ProfileUpdate: true}
	if err := db.SaveSession(ctx, h.DB, sess); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetSession(ctx, h.DB, 42)
	if got.Token != "tok-2" || got.User.CanUpdateProfile() {
		t.Fatalf("перезапись не сработала: %#v", got)
	}
}

func TestSaveUserKeepsToken(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := db.SaveSession(ctx, h.DB, db.Session{
		ChatID: 7, Token: "tok",
		User: models.UserRecord{Name: "Петров", RollNumber: "B2", Role: models.Staff},
	}); err != nil {
		t.Fatal(err)
	}

	upd := models.UserRecord{Name: "Петров П.", RollNumber: "B2", Role: models.Staff}
	if err := db.SaveUser(ctx, h.DB, 7, upd); err != nil {
		t.Fatal(err)
	}

	got, _ := db.GetSession(ctx, h.DB, 7)
	if got.Token != "tok" || got.User.Name != "Петров П." {
		t.Fatalf("ожидали обновлённый профиль при старом токене: %#v", got)
	}
}

func TestStaffChatIDs(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	seed := []db.Session{
		{ChatID: 1, Token: "t", User: models.UserRecord{RollNumber: "S1", Role: models.Student}},
		{ChatID: 2, Token: "t", User: models.UserRecord{RollNumber: "T1", Role: models.Staff}},
		{ChatID: 3, Token: "t", User: models.UserRecord{RollNumber: "O1", Role: models.Owner}},
	}
	for _, s := range seed {
		if err := db.SaveSession(ctx, h.DB, s); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := db.StaffChatIDs(ctx, h.DB)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("ожидали чаты персонала (2 и 3), получили %v", ids)
	}
	for _, id := range ids {
		if id == 1 {
			t.Fatal("ученик попал в список персонала")
		}
	}
}
