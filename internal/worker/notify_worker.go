// Package worker turns summary notifications into statement deliveries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/notify"
)

// StatementSource loads stored summaries and assembles statements.
type StatementSource interface {
	SummaryByID(ctx context.Context, id int64) (core.ExpenseShareSummary, error)
	Statement(ctx context.Context, p core.Period, userID int64) (core.Statement, error)
}

// UserSource resolves user accounts and their registered chats.
type UserSource interface {
	UserByID(ctx context.Context, id int64) (core.User, error)
	ChatIDForUser(ctx context.Context, userID int64) (int64, bool, error)
}

// Sender delivers a rendered statement to one email recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ChatSender pushes a rendered statement to a chat.
type ChatSender interface {
	SendStatement(chatID int64, title, table string) error
}

// NotifyWorker consumes summary notifications and delivers each user
// their monthly statement over email and, when a chat is registered,
// over Telegram. Either channel may be nil when not configured.
type NotifyWorker struct {
	statements StatementSource
	users      UserSource
	mail       Sender
	chat       ChatSender
}

func NewNotifyWorker(statements StatementSource, users UserSource, mail Sender, chat ChatSender) *NotifyWorker {
	return &NotifyWorker{
		statements: statements,
		users:      users,
		mail:       mail,
		chat:       chat,
	}
}

// HandleNotification processes a single summary notification. A stale
// notification whose summary row was replaced by a later run is
// dropped, not retried. Email failures are returned so the message is
// redelivered; chat push failures are only logged, the email is the
// channel of record.
func (w *NotifyWorker) HandleNotification(ctx context.Context, msg *amqp.SummaryNotification) error {
	summary, err := w.statements.SummaryByID(ctx, msg.SummaryID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Summary no longer exists, dropping notification",
				"summary_id", msg.SummaryID)
			return nil
		}
		return fmt.Errorf("load summary: %w", err)
	}

	user, err := w.users.UserByID(ctx, summary.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", summary.UserID, err)
	}

	chatID, hasChat, err := w.users.ChatIDForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("lookup chat for user %d: %w", user.ID, err)
	}

	wantEmail := w.mail != nil && user.Email != ""
	wantChat := w.chat != nil && hasChat
	if !wantEmail && !wantChat {
		slog.InfoContext(ctx, "User has no delivery channel, skipping statement",
			"user_id", user.ID,
			"summary_id", summary.ID)
		return nil
	}

	p := core.Period{Year: summary.Year, Month: summary.Month}
	statement, err := w.statements.Statement(ctx, p, user.ID)
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}

	subject := notify.StatementSubject(statement)
	body := notify.RenderStatement(statement)

	if wantEmail {
		if err := w.mail.Send(ctx, user.Email, subject, body); err != nil {
			return fmt.Errorf("send statement: %w", err)
		}
		slog.InfoContext(ctx, "Emailed monthly statement",
			"user_id", user.ID,
			"summary_id", summary.ID,
			"email", user.Email)
	}

	if wantChat {
		if err := w.chat.SendStatement(chatID, subject, body); err != nil {
			slog.WarnContext(ctx, "Chat push failed",
				"user_id", user.ID,
				"chat_id", chatID,
				"error", err)
		} else {
			slog.InfoContext(ctx, "Pushed statement to chat",
				"user_id", user.ID,
				"chat_id", chatID)
		}
	}

	return nil
}
