package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/api"
)

// сервер, который отвечает успехом, пока flag=0, и ломается после
func flakyServer(t *testing.T, fail *atomic.Bool) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			_, _ = w.Write([]byte(`not json at all`))
			return
		}
		switch r.URL.Path {
		case "/owner/users":
			_, _ = w.Write([]byte(`{"success":true,"users":[{"name":"Иванов","rollNumber":"A1","role":"student","enrolledClass":"X"}]}`))
		case "/classes":
			_, _ = w.Write([]byte(`{"success":true,"classes":[{"name":"X"},{"name":"Y"}]}`))
		case "/subjects":
			_, _ = w.Write([]byte(`{"success":true,"subjects":[{"name":"Математика"}]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return api.New(srv.URL, time.Second, nil)
}

func TestRefreshReplacesWholesale(t *testing.T) {
	var fail atomic.Bool
	st := NewStore(flakyServer(t, &fail))

	if got := st.Users(); len(got) != 0 {
		t.Fatalf("до обновления кэш должен быть пуст, получили %d", len(got))
	}

	users, ok := st.RefreshUsers(context.Background(), "tok")
	if !ok || len(users) != 1 {
		t.Fatalf("обновление не удалось: ok=%v users=%v", ok, users)
	}
	if got := st.Users(); len(got) != 1 || got[0].RollNumber != "A1" {
		t.Fatalf("чтение не видит новый снимок: %v", got)
	}
}

func TestFailedRefreshKeepsOldSnapshot(t *testing.T) {
	var fail atomic.Bool
	st := NewStore(flakyServer(t, &fail))

	if _, ok := st.RefreshClasses(context.Background(), "tok"); !ok {
		t.Fatal("первое обновление должно пройти")
	}

	fail.Store(true)
	got, ok := st.RefreshClasses(context.Background(), "tok")
	if ok {
		t.Fatal("ожидали мягкий отказ")
	}
	if len(got) != 0 {
		t.Fatalf("при отказе вызывающему возвращаем пусто, получили %v", got)
	}
	// а старый снимок живёт
	if classes := st.Classes(); len(classes) != 2 {
		t.Fatalf("старый кэш потерян: %v", classes)
	}
}

func TestIndependentCaches(t *testing.T) {
	var fail atomic.Bool
	st := NewStore(flakyServer(t, &fail))

	if _, ok := st.RefreshSubjects(context.Background(), "tok"); !ok {
		t.Fatal("subjects не обновились")
	}
	if len(st.Classes()) != 0 || len(st.Users()) != 0 {
		t.Fatal("обновление предметов не должно трогать другие кэши")
	}
}

func TestRegistryPerChat(t *testing.T) {
	var fail atomic.Bool
	reg := NewRegistry(flakyServer(t, &fail))

	a, b := reg.For(1), reg.For(2)
	if a == b {
		t.Fatal("у разных чатов разные кэши")
	}
	if reg.For(1) != a {
		t.Fatal("повторный запрос должен вернуть тот же кэш")
	}
	reg.Drop(1)
	if reg.For(1) == a {
		t.Fatal("после Drop кэш пересоздаётся")
	}
}
