package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/bot"
	"gastos/internal/cli"
	applog "gastos/internal/log"
	"gastos/internal/notify"
	"gastos/internal/scheduler"
	"gastos/internal/services"
	"gastos/internal/worker"
)

func main() {
	cli.LoadEnv()

	cfg, err := cli.LoadConfig()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	logger := cli.SetupLogger(applog.ComponentWorker, cfg.LogLevel)
	logger.Info("Starting gastos-worker")

	repo, err := cli.OpenRepository(cfg)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	summaryService := services.NewSummaryService(repo, amqpClient)

	sched, err := scheduler.New(cfg.SummarizeCron, summaryService)
	if err != nil {
		logger.Error("Failed to schedule summary job", applog.FieldError, err, "cron", cfg.SummarizeCron)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start()
	defer sched.Stop()

	var mailer worker.Sender
	if cfg.SMTPHost != "" {
		mailer = notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	} else {
		logger.Warn("SMTP not configured, statement emails disabled")
	}

	var chat worker.ChatSender
	if cfg.TelegramToken != "" {
		notifier, err := bot.NewNotifier(cfg.TelegramToken)
		if err != nil {
			logger.Error("Failed to initialize Telegram notifier", applog.FieldError, err)
			os.Exit(1)
		}
		chat = notifier
	} else {
		logger.Warn("Telegram token not configured, chat pushes disabled")
	}

	// Without a delivery channel the scheduler still generates summaries,
	// but queued notifications stay on the broker for a configured
	// deployment.
	if mailer == nil && chat == nil {
		<-ctx.Done()
		logger.Info("Worker stopped gracefully")
		return
	}

	notifyWorker := worker.NewNotifyWorker(summaryService, repo, mailer, chat)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeSummaryNotifications(gctx, func(msg *amqp.SummaryNotification) error {
			return notifyWorker.HandleNotification(gctx, msg)
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
