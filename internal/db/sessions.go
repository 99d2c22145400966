package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/Spok95/telegram-attendance-bot/internal/models"
)

// Session — авторизованная привязка чата к бэкенду: токен плюс последний
// известный профиль (аналог token/user из localStorage веб-версии).
// Профиль здесь read-mostly: перезаписывается только успешными ответами сервера.
type Session struct {
	ChatID int64
	Token  string
	User   models.UserRecord
}

func SaveSession(ctx context.Context, database *sql.DB, s Session) error {
	raw, err := json.Marshal(s.User)
	if err != nil {
		return err
	}
	query := `
INSERT INTO sessions (chat_id, token, roll_number, user_json, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (chat_id) DO UPDATE
SET token = excluded.token,
    roll_number = excluded.roll_number,
    user_json = excluded.user_json,
    updated_at = now();`
	_, err = database.ExecContext(ctx, query, s.ChatID, s.Token, s.User.RollNumber, raw)
	return err
}

// SaveUser обновляет закэшированный профиль, не трогая токен.
func SaveUser(ctx context.Context, database *sql.DB, chatID int64, u models.UserRecord) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	query := `
UPDATE sessions SET user_json = $2, roll_number = $3, updated_at = now()
WHERE chat_id = $1;`
	_, err = database.ExecContext(ctx, query, chatID, raw, u.RollNumber)
	return err
}

// GetSession возвращает nil без ошибки, если чат не авторизован.
func GetSession(ctx context.Context, database *sql.DB, chatID int64) (*Session, error) {
	query := `SELECT token, user_json FROM sessions WHERE chat_id = $1`
	var (
		token string
		raw   []byte
	)
	err := database.QueryRowContext(ctx, query, chatID).Scan(&token, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s := Session{ChatID: chatID, Token: token}
	if err := json.Unmarshal(raw, &s.User); err != nil {
		return nil, err
	}
	return &s, nil
}

func DeleteSession(ctx context.Context, database *sql.DB, chatID int64) error {
	_, err := database.ExecContext(ctx, `DELETE FROM sessions WHERE chat_id = $1`, chatID)
	return err
}

// StaffChatIDs — чаты персонала для напоминаний об отметке посещаемости.
func StaffChatIDs(ctx context.Context, database *sql.DB) ([]int64, error) {
	query := `SELECT chat_id FROM sessions WHERE user_json ->> 'role' IN ('staff', 'owner')`
	rows, err := database.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
