// Package bot exposes the ledger over Telegram: a chat registers
// itself against a user account, then pulls monthly statements on
// demand. The bot is read-only; expenses are entered over HTTP.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gastos/internal/core"
	"gastos/internal/notify"
)

// Directory maps chats to user accounts.
type Directory interface {
	UserByUsername(ctx context.Context, username string) (core.User, error)
	UserByChatID(ctx context.Context, chatID int64) (core.User, error)
	RegisterChat(ctx context.Context, userID, chatID int64) error
}

// Statements assembles monthly breakdowns for registered users.
type Statements interface {
	Statement(ctx context.Context, p core.Period, userID int64) (core.Statement, error)
}

// Service dispatches bot commands. The Telegram transport is kept at
// the edge so command handling is testable without the network.
type Service struct {
	api        *tgbotapi.BotAPI
	directory  Directory
	statements Statements
}

func New(token string, directory Directory, statements Statements) (*Service, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect Telegram: %w", err)
	}

	return &Service{
		api:        api,
		directory:  directory,
		statements: statements,
	}, nil
}

// Start polls for updates until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30

	updates := s.api.GetUpdatesChan(cfg)
	slog.InfoContext(ctx, "Bot started", "username", s.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			s.api.StopReceivingUpdates()
			slog.InfoContext(ctx, "Bot stopped", "reason", ctx.Err())
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			chatID := update.Message.Chat.ID
			reply := s.handleCommand(ctx, chatID,
				update.Message.Command(),
				update.Message.CommandArguments())
			if reply == "" {
				continue
			}

			msg := tgbotapi.NewMessage(chatID, reply)
			msg.ParseMode = tgbotapi.ModeMarkdown
			if _, err := s.api.Send(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to send bot reply",
					"chat_id", chatID,
					"error", err)
			}
		}
	}
}

func (s *Service) handleCommand(ctx context.Context, chatID int64, command, args string) string {
	switch command {
	case "registrar":
		return s.handleRegister(ctx, chatID, args)
	case "gastos":
		return s.handleStatement(ctx, chatID, args)
	case "start", "help":
		return helpText
	default:
		return ""
	}
}

const helpText = "Commands:\n" +
	"/registrar <username> — link this chat to your account\n" +
	"/gastos <month> <year> — your statement for that month"

func (s *Service) handleRegister(ctx context.Context, chatID int64, args string) string {
	username := strings.TrimSpace(args)
	if username == "" {
		return "Usage: /registrar <username>"
	}

	user, err := s.directory.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Sprintf("User %q does not exist", username)
		}
		slog.ErrorContext(ctx, "Register lookup failed", "chat_id", chatID, "error", err)
		return "Something went wrong, try again later"
	}

	if err := s.directory.RegisterChat(ctx, user.ID, chatID); err != nil {
		slog.WarnContext(ctx, "Chat registration rejected",
			"chat_id", chatID,
			"user_id", user.ID,
			"error", err)
		return "This chat or user is already registered"
	}

	return fmt.Sprintf("Registered as %s", user.Username)
}

func (s *Service) handleStatement(ctx context.Context, chatID int64, args string) string {
	user, err := s.directory.UserByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "This chat is not registered, use /registrar <username> first"
		}
		slog.ErrorContext(ctx, "Chat lookup failed", "chat_id", chatID, "error", err)
		return "Something went wrong, try again later"
	}

	p, err := parsePeriod(args)
	if err != nil {
		return "Usage: /gastos <month> <year>, e.g. /gastos 3 2024"
	}

	statement, err := s.statements.Statement(ctx, p, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Statement failed",
			"chat_id", chatID,
			"user_id", user.ID,
			"error", err)
		return "Something went wrong, try again later"
	}

	return fmt.Sprintf("Expenses %04d-%02d for %s:\n```\n%s```",
		p.Year, p.Month, statement.Username, notify.RenderStatement(statement))
}

// parsePeriod reads "<month> <year>" free-text arguments.
func parsePeriod(args string) (core.Period, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return core.Period{}, core.ErrInvalidPeriod
	}

	month, err := strconv.Atoi(fields[0])
	if err != nil {
		return core.Period{}, core.ErrInvalidPeriod
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil {
		return core.Period{}, core.ErrInvalidPeriod
	}

	p := core.Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}
