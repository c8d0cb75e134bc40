// Package services provides business logic and orchestration services.
package services

import (
	"context"

	"gastos/internal/core"
	"gastos/internal/storage"
)

// ExpenseStore is the storage surface the expense service depends on.
type ExpenseStore interface {
	ActiveUsers(ctx context.Context) ([]core.User, error)
	CategoryByID(ctx context.Context, id int64) (core.Category, error)
	CreateExpense(ctx context.Context, e *core.Expense, shares []core.ExpenseShare) error
	UpdateExpense(ctx context.Context, e core.Expense, shares []core.ExpenseShare) error
	ExpenseByID(ctx context.Context, id int64) (core.Expense, error)
	ExpensesByMonth(ctx context.Context, p core.Period) ([]core.Expense, error)
	MonthlyTotal(ctx context.Context, p core.Period) (core.Money, error)
	MonthlyTotalsByYear(ctx context.Context, year int) ([]storage.MonthTotal, error)
	ShareCountForExpense(ctx context.Context, expenseID int64) (int, error)
}

// SummaryStore is the storage surface the summary service depends on.
type SummaryStore interface {
	ActiveUsers(ctx context.Context) ([]core.User, error)
	UserByID(ctx context.Context, id int64) (core.User, error)
	MonthlyTotal(ctx context.Context, p core.Period) (core.Money, error)
	DiscountTotals(ctx context.Context, p core.Period) (map[int64]core.Money, error)
	DiscountTotalForUser(ctx context.Context, p core.Period, userID int64) (core.Money, error)
	ShareLines(ctx context.Context, p core.Period, userID int64) ([]core.ShareLine, error)
	ReplaceSummaries(ctx context.Context, p core.Period, summaries []core.ExpenseShareSummary) ([]core.ExpenseShareSummary, error)
	SummariesByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseShareSummary, error)
	SummaryByID(ctx context.Context, id int64) (core.ExpenseShareSummary, error)
	SetSummaryPaid(ctx context.Context, id int64) error
}

// NotificationPublisher hands freshly generated summaries to the broker.
type NotificationPublisher interface {
	PublishSummaryNotification(ctx context.Context, summaryID, userID int64, year, month int) error
}
