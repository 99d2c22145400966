package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BotToken    string
	APIBaseURL  string
	DatabaseURL string
	Location    *time.Location
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	APITimeout  time.Duration
	RemindHour  int // час локального времени для напоминания персоналу; -1 = выключено
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Europe/Moscow")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	remindHour, err := parseHour(getenv("REMIND_HOUR", "9"))
	if err != nil {
		return nil, fmt.Errorf("REMIND_HOUR: %w", err)
	}

	apiTimeout, err := time.ParseDuration(getenv("API_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("API_TIMEOUT: %w", err)
	}

	cfg := &Config{
		BotToken:    mustEnv("BOT_TOKEN"),
		APIBaseURL:  strings.TrimRight(mustEnv("API_BASE_URL"), "/"),
		DatabaseURL: mustEnv("DATABASE_URL"),
		Location:    loc,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("ENV", "dev"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		APITimeout:  apiTimeout,
		RemindHour:  remindHour,
	}
	return cfg, nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseHour(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-1" {
		return -1, nil
	}
	h, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad hour %q: %w", s, err)
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("hour %d out of range", h)
	}
	return h, nil
}
