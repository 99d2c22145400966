package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Spok95/telegram-attendance-bot/internal/ctxutil"
	"github.com/Spok95/telegram-attendance-bot/internal/metrics"
	"github.com/Spok95/telegram-attendance-bot/internal/models"
	"go.uber.org/zap"
)

// Client — клиент REST-бэкенда журнала. Бэкенд — единственный источник истины,
// клиент никогда не видит «сырых» транспортных ошибок: любой сбой сводится к
// Result{Success:false, Message}, как это делал apiFetch в веб-версии.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Result — единая форма исхода любого вызова. Message заполняется при неуспехе:
// либо текстом сервера, либо нормализованным описанием сбоя.
type Result struct {
	Success bool
	Message string
}

func softFail(msg string) Result { return Result{Success: false, Message: msg} }

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e envelope) result() Result {
	if e.Success {
		return Result{Success: true}
	}
	msg := e.Message
	if msg == "" {
		msg = "Сервер отклонил запрос"
	}
	return softFail(msg)
}

// do выполняет запрос и разбирает ответ в out (out обязан встраивать envelope).
// HTTP-статус сам по себе не фатален: бэкенд кладёт отказ в {success:false,message}.
func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) Result {
	start := time.Now()
	res := c.doOnce(ctx, method, path, token, body, out)
	metrics.ObserveAPI(op, time.Since(start), res.Success)
	if !res.Success {
		fields := []zap.Field{zap.String("op", op), zap.String("msg", res.Message)}
		if id, ok := ctxutil.ChatID(ctx); ok {
			fields = append(fields, zap.Int64("chat_id", id))
		}
		c.log.Warn("api call failed", fields...)
	}
	return res
}

func (c *Client) doOnce(ctx context.Context, method, path, token string, body, out any) Result {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return softFail("Не удалось подготовить запрос")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return softFail("Не удалось подготовить запрос")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return softFail("Сеть недоступна, попробуйте позже")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return softFail("Обрыв при чтении ответа сервера")
	}

	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode/100 != 2 {
			return softFail(fmt.Sprintf("Сервер вернул HTTP %d", resp.StatusCode))
		}
		return softFail("Некорректный ответ сервера")
	}
	return outEnvelope(out).result()
}

type envelopeCarrier interface{ env() envelope }

func (e envelope) env() envelope { return e }

func outEnvelope(out any) envelope {
	if c, ok := out.(envelopeCarrier); ok {
		return c.env()
	}
	return envelope{}
}

// ==== ответы бэкенда ====

type loginResponse struct {
	envelope
	Token string            `json:"token"`
	User  models.UserRecord `json:"user"`
}

type userResponse struct {
	envelope
	User models.UserRecord `json:"user"`
}

type usersResponse struct {
	envelope
	Users []models.UserRecord `json:"users"`
}

type named struct {
	Name string `json:"name"`
}

type classesResponse struct {
	envelope
	Classes []named `json:"classes"`
}

type subjectsResponse struct {
	envelope
	Subjects []named `json:"subjects"`
}

type recordsResponse struct {
	envelope
	Records []models.AttendanceRecord `json:"records"`
}

// ==== операции ====

func (c *Client) Login(ctx context.Context, loginID, password string) (string, *models.UserRecord, Result) {
	var out loginResponse
	res := c.do(ctx, "login", http.MethodPost, "/login", "", map[string]string{
		"loginId":  loginID,
		"password": password,
	}, &out)
	if !res.Success {
		return "", nil, res
	}
	return out.Token, &out.User, res
}

func (c *Client) Me(ctx context.Context, token string) (*models.UserRecord, Result) {
	var out userResponse
	res := c.do(ctx, "me", http.MethodGet, "/me", token, nil, &out)
	if !res.Success {
		return nil, res
	}
	return &out.User, res
}

func (c *Client) Users(ctx context.Context, token string) ([]models.UserRecord, Result) {
	var out usersResponse
	res := c.do(ctx, "users", http.MethodGet, "/owner/users", token, nil, &out)
	if !res.Success {
		return nil, res
	}
	return out.Users, res
}

func (c *Client) Classes(ctx context.Context, token string) ([]string, Result) {
	var out classesResponse
	res := c.do(ctx, "classes", http.MethodGet, "/classes", token, nil, &out)
	if !res.Success {
		return nil, res
	}
	names := make([]string, 0, len(out.Classes))
	for _, cl := range out.Classes {
		names = append(names, cl.Name)
	}
	return names, res
}

func (c *Client) Subjects(ctx context.Context, token string) ([]string, Result) {
	var out subjectsResponse
	res := c.do(ctx, "subjects", http.MethodGet, "/subjects", token, nil, &out)
	if !res.Success {
		return nil, res
	}
	names := make([]string, 0, len(out.Subjects))
	for _, s := range out.Subjects {
		names = append(names, s.Name)
	}
	return names, res
}

// AttendanceByDate — отметки класса за конкретный день (срез для редактора).
func (c *Client) AttendanceByDate(ctx context.Context, token, className, date string) ([]models.AttendanceRecord, Result) {
	var out recordsResponse
	res := c.do(ctx, "attendance_by_date", http.MethodPost, "/owner/attendance/by-date", token, map[string]string{
		"className": className,
		"date":      date,
	}, &out)
	if !res.Success {
		return nil, res
	}
	return out.Records, res
}

// WriteMark — запись одной отметки. Сервер сам схлопывает повтор по (rollNumber, date).
func (c *Client) WriteMark(ctx context.Context, token string, rec models.AttendanceRecord) Result {
	var out struct{ envelope }
	return c.do(ctx, "write_mark", http.MethodPost, "/owner/attendance", token, rec, &out)
}

// MyAttendance — вся история отметок авторизованного ученика.
func (c *Client) MyAttendance(ctx context.Context, token string) ([]models.AttendanceRecord, Result) {
	var out recordsResponse
	res := c.do(ctx, "my_attendance", http.MethodGet, "/attendance", token, nil, &out)
	if !res.Success {
		return nil, res
	}
	return out.Records, res
}

// ProfileUpdate — изменяемые поля профиля; пустые не отправляются.
type ProfileUpdate struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c *Client) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (*models.UserRecord, Result) {
	var out userResponse
	res := c.do(ctx, "update_profile", http.MethodPost, "/profile", token, upd, &out)
	if !res.Success {
		return nil, res
	}
	return &out.User, res
}
