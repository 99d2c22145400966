package cache

import (
	"context"
	"sync"

	"github.com/Spok95/telegram-attendance-bot/internal/api"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
)

// Store — кэш справочников одной сессии (один чат = одна сессия).
// Обновление заменяет список целиком и только при успехе; читатели всегда видят
// либо прошлый снимок, либо новый, но никогда наполовину обновлённый.
// Сам кэш никогда не возвращает ошибку: не получилось — живём на старых данных.
type Store struct {
	api *api.Client

	mu       sync.RWMutex
	users    []models.UserRecord
	classes  []string
	subjects []string
}

func NewStore(client *api.Client) *Store {
	return &Store{api: client}
}

// Users — снимок последнего успешного обновления. Слайс не копируем:
// после подмены старый снимок никто не мутирует.
func (s *Store) Users() []models.UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users
}

func (s *Store) Classes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classes
}

func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subjects
}

// RefreshUsers перечитывает реестр с бэкенда. При любом сбое кэш не трогаем
// и возвращаем пустой список с ok=false.
func (s *Store) RefreshUsers(ctx context.Context, token string) ([]models.UserRecord, bool) {
	users, res := s.api.Users(ctx, token)
	if !res.Success {
		return nil, false
	}
	if users == nil {
		users = []models.UserRecord{}
	}
	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return users, true
}

func (s *Store) RefreshClasses(ctx context.Context, token string) ([]string, bool) {
	classes, res := s.api.Classes(ctx, token)
	if !res.Success {
		return nil, false
	}
	if classes == nil {
		classes = []string{}
	}
	s.mu.Lock()
	s.classes = classes
	s.mu.Unlock()
	return classes, true
}

func (s *Store) RefreshSubjects(ctx context.Context, token string) ([]string, bool) {
	subjects, res := s.api.Subjects(ctx, token)
	if !res.Success {
		return nil, false
	}
	if subjects == nil {
		subjects = []string{}
	}
	s.mu.Lock()
	s.subjects = subjects
	s.mu.Unlock()
	return subjects, true
}

// Registry раздаёт Store по чатам. Кэш живёт, пока жив процесс;
// Drop вызываем при выходе из аккаунта.
type Registry struct {
	api *api.Client

	mu     sync.Mutex
	byChat map[int64]*Store
}

func NewRegistry(client *api.Client) *Registry {
	return &Registry{api: client, byChat: make(map[int64]*Store)}
}

func (r *Registry) For(chatID int64) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byChat[chatID]
	if !ok {
		st = NewStore(r.api)
		r.byChat[chatID] = st
	}
	return st
}

func (r *Registry) Drop(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byChat, chatID)
}
