package services

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/core"
)

// SummaryService computes and stores monthly balances, and announces
// freshly generated summaries on the broker for the notification worker.
type SummaryService struct {
	store     SummaryStore
	publisher NotificationPublisher
}

// NewSummaryService creates a summary service. publisher may be nil; in
// that case summaries are generated without broker notifications.
func NewSummaryService(store SummaryStore, publisher NotificationPublisher) *SummaryService {
	return &SummaryService{
		store:     store,
		publisher: publisher,
	}
}

// Summarize recomputes every active user's balance for the period and
// replaces any previously stored rows. Re-running for the same period
// is idempotent, except that paid flags are reset to unpaid.
func (s *SummaryService) Summarize(ctx context.Context, p core.Period) ([]core.ExpenseShareSummary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	users, err := s.store.ActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active users: %w", err)
	}

	total, err := s.store.MonthlyTotal(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("monthly total: %w", err)
	}

	discounts, err := s.store.DiscountTotals(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("discount totals: %w", err)
	}

	summaries, err := core.BuildSummaries(p, total, users, discounts)
	if err != nil {
		return nil, err
	}

	inserted, err := s.store.ReplaceSummaries(ctx, p, summaries)
	if err != nil {
		return nil, fmt.Errorf("replace summaries: %w", err)
	}

	slog.InfoContext(ctx, "Generated monthly summaries",
		"year", p.Year,
		"month", p.Month,
		"summaries", len(inserted),
		"total", total.String())

	s.publishNotifications(ctx, inserted)

	return inserted, nil
}

// publishNotifications announces each summary on the broker. Failures
// are logged, not returned: the summaries are already committed and the
// worker can be re-triggered by re-running the period.
func (s *SummaryService) publishNotifications(ctx context.Context, summaries []core.ExpenseShareSummary) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping summary notifications")
		return
	}

	for _, sum := range summaries {
		err := s.publisher.PublishSummaryNotification(ctx, sum.ID, sum.UserID, sum.Year, sum.Month)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to publish summary notification",
				"summary_id", sum.ID,
				"user_id", sum.UserID,
				"error", err)
		}
	}
}

// PerUserMonthlyTotal returns the flat per-user share of the month's
// spending: the month total divided by the active-user count.
func (s *SummaryService) PerUserMonthlyTotal(ctx context.Context, p core.Period) (core.Money, error) {
	if err := p.Validate(); err != nil {
		return core.Money{}, err
	}

	users, err := s.store.ActiveUsers(ctx)
	if err != nil {
		return core.Money{}, fmt.Errorf("load active users: %w", err)
	}
	if len(users) == 0 {
		return core.Money{}, core.ErrNoActiveUsers
	}

	total, err := s.store.MonthlyTotal(ctx, p)
	if err != nil {
		return core.Money{}, fmt.Errorf("monthly total: %w", err)
	}

	return total.DivBy(len(users)), nil
}

// MonthlyDiscountedTotal returns what one user owes for the month: the
// flat per-user share minus that user's accumulated payer discount.
func (s *SummaryService) MonthlyDiscountedTotal(ctx context.Context, p core.Period, userID int64) (core.Money, error) {
	perUser, err := s.PerUserMonthlyTotal(ctx, p)
	if err != nil {
		return core.Money{}, err
	}

	discount, err := s.store.DiscountTotalForUser(ctx, p, userID)
	if err != nil {
		return core.Money{}, fmt.Errorf("discount total: %w", err)
	}

	return perUser.Sub(discount), nil
}

// Statement assembles one user's monthly breakdown: a line per share
// plus the summary totals. It is the single source for both the email
// body and the chat reply.
func (s *SummaryService) Statement(ctx context.Context, p core.Period, userID int64) (core.Statement, error) {
	if err := p.Validate(); err != nil {
		return core.Statement{}, err
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return core.Statement{}, err
	}

	lines, err := s.store.ShareLines(ctx, p, userID)
	if err != nil {
		return core.Statement{}, fmt.Errorf("share lines: %w", err)
	}

	subtotal, err := s.PerUserMonthlyTotal(ctx, p)
	if err != nil {
		return core.Statement{}, err
	}

	discount, err := s.store.DiscountTotalForUser(ctx, p, userID)
	if err != nil {
		return core.Statement{}, fmt.Errorf("discount total: %w", err)
	}

	return core.Statement{
		UserID:   user.ID,
		Username: user.Username,
		Period:   p,
		Lines:    lines,
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}, nil
}

// SummariesByPeriod lists the stored summaries of one period.
func (s *SummaryService) SummariesByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseShareSummary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.store.SummariesByPeriod(ctx, p)
}

// SummaryByID returns a single stored summary.
func (s *SummaryService) SummaryByID(ctx context.Context, id int64) (core.ExpenseShareSummary, error) {
	return s.store.SummaryByID(ctx, id)
}

// MarkPaid flips a summary to paid. Marking an already-paid summary is
// a no-op; there is no way back to unpaid.
func (s *SummaryService) MarkPaid(ctx context.Context, id int64) error {
	if err := s.store.SetSummaryPaid(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Marked summary paid", "summary_id", id)
	return nil
}
