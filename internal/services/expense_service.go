package services

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/core"
	"gastos/internal/storage"
)

// ExpenseService orchestrates expense writes: every create or edit
// reallocates shares across the current active-user set and persists
// expense and shares in one transaction.
type ExpenseService struct {
	store ExpenseStore
}

func NewExpenseService(store ExpenseStore) *ExpenseService {
	return &ExpenseService{store: store}
}

// CreateExpense validates the expense, allocates shares across active
// users and persists everything atomically.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := s.store.CategoryByID(ctx, e.CategoryID); err != nil {
		return core.Expense{}, fmt.Errorf("category %d: %w", e.CategoryID, err)
	}

	shares, err := s.allocate(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}

	if err := s.store.CreateExpense(ctx, &e, shares); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Created expense",
		"expense_id", e.ID,
		"amount", e.Amount.String(),
		"shares", len(shares))

	return e, nil
}

// UpdateExpense rewrites the expense and regenerates its shares from
// the current active-user set. Shares computed at creation time are
// discarded; a user activated or deactivated since then changes the
// share composition of this historical expense.
func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == 0 {
		return core.Expense{}, core.ErrNotFound
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := s.store.CategoryByID(ctx, e.CategoryID); err != nil {
		return core.Expense{}, fmt.Errorf("category %d: %w", e.CategoryID, err)
	}

	shares, err := s.allocate(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}

	if err := s.store.UpdateExpense(ctx, e, shares); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	// The transaction replaced all shares; a mismatch here means the
	// storage layer broke the one-share-per-active-user contract.
	count, err := s.store.ShareCountForExpense(ctx, e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("verify shares: %w", err)
	}
	if count != len(shares) {
		return core.Expense{}, core.ErrInconsistentShares
	}

	slog.InfoContext(ctx, "Updated expense",
		"expense_id", e.ID,
		"amount", e.Amount.String(),
		"shares", len(shares))

	return e, nil
}

func (s *ExpenseService) allocate(ctx context.Context, e core.Expense) ([]core.ExpenseShare, error) {
	users, err := s.store.ActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active users: %w", err)
	}
	return core.Allocate(e, users)
}

// ExpenseByID returns a single expense.
func (s *ExpenseService) ExpenseByID(ctx context.Context, id int64) (core.Expense, error) {
	return s.store.ExpenseByID(ctx, id)
}

// ExpensesForMonth lists the expenses of one calendar month.
func (s *ExpenseService) ExpensesForMonth(ctx context.Context, p core.Period) ([]core.Expense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.store.ExpensesByMonth(ctx, p)
}

// MonthlyTotal returns the total spending of one calendar month.
func (s *ExpenseService) MonthlyTotal(ctx context.Context, p core.Period) (core.Money, error) {
	if err := p.Validate(); err != nil {
		return core.Money{}, err
	}
	return s.store.MonthlyTotal(ctx, p)
}

// YearOverview returns one spending total per month of the year.
func (s *ExpenseService) YearOverview(ctx context.Context, year int) ([]storage.MonthTotal, error) {
	if year < 1 {
		return nil, core.ErrInvalidPeriod
	}
	return s.store.MonthlyTotalsByYear(ctx, year)
}
