package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Spok95/telegram-attendance-bot/internal/api"
	"github.com/Spok95/telegram-attendance-bot/internal/app"
	"github.com/Spok95/telegram-attendance-bot/internal/bot/handlers"
	"github.com/Spok95/telegram-attendance-bot/internal/cache"
	"github.com/Spok95/telegram-attendance-bot/internal/config"
	"github.com/Spok95/telegram-attendance-bot/internal/db"
	"github.com/Spok95/telegram-attendance-bot/internal/jobs"
	"github.com/Spok95/telegram-attendance-bot/internal/logging"
	"github.com/Spok95/telegram-attendance-bot/internal/metrics"
	"github.com/Spok95/telegram-attendance-bot/internal/observability"
)

// version подставляется при сборке через -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Загрузка переменных окружения
	if err := godotenv.Load(); err != nil {
		log.Println("Не удалось загрузить .env файл, используем переменные окружения")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Конфигурация: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Логгер: %v", err)
	}
	logger := lg.Base
	defer lg.Closer()

	if flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version); err != nil {
		logger.Warn("Sentry не инициализирован", zap.Error(err))
	} else {
		defer flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация Telegram бота
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Fatal("Ошибка запуска бота", zap.Error(err))
	}
	logger.Info("Бот запущен", zap.String("username", bot.Self.UserName))

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Ошибка подключения к БД", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		logger.Fatal("Миграция не удалась", zap.Error(err))
	}

	app.StartHTTP(ctx, cfg.HTTPAddr, database)

	apiClient := api.New(cfg.APIBaseURL, cfg.APITimeout, logger)
	deps := handlers.Deps{
		Bot:    bot,
		DB:     database,
		API:    apiClient,
		Caches: cache.NewRegistry(apiClient),
		Loc:    cfg.Location,
		Log:    logger,
	}

	runner := jobs.New(ctx)
	reminder := &jobs.Reminder{Bot: bot, DB: database, Loc: cfg.Location, Hour: cfg.RemindHour}
	reminder.Start(runner)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Остановка по сигналу")
			bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			metrics.BotUpdates.Inc()
			switch {
			case update.CallbackQuery != nil:
				app.HandleCallback(deps, update.CallbackQuery)
			case update.Message != nil:
				app.HandleMessage(deps, update.Message)
			}
		}
	}
}
