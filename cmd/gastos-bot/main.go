package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gastos/internal/bot"
	"gastos/internal/cli"
	applog "gastos/internal/log"
	"gastos/internal/services"
)

func main() {
	cli.LoadEnv()

	cfg, err := cli.LoadConfig()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.TelegramToken == "" {
		slog.Error("TELEGRAM_TOKEN is required")
		os.Exit(1)
	}

	logger := cli.SetupLogger(applog.ComponentBot, cfg.LogLevel)

	repo, err := cli.OpenRepository(cfg)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err)
		os.Exit(1)
	}
	defer repo.Close()

	// The bot only reads; it never publishes summary notifications.
	summaryService := services.NewSummaryService(repo, nil)

	botService, err := bot.New(cfg.TelegramToken, repo, summaryService)
	if err != nil {
		logger.Error("Failed to start bot", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := botService.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Bot failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Bot stopped gracefully")
}
