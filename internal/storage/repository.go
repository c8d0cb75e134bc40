// Package storage persists the ledger in SQLite.
//
// Monetary columns hold the exact decimal text produced by Money.Exact;
// every aggregate (monthly totals, discount sums) is computed in Go with
// decimal arithmetic because SQL SUM() over these columns would degrade
// to floating point.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gastos/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ---- users ----

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, is_active) VALUES (?, ?, ?)`,
		u.Username, u.Email, u.IsActive)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("create user id: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, is_active FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) UserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, email, is_active FROM users WHERE username = ?`, username))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// ActiveUsers returns the users currently participating in allocation,
// ordered by id for deterministic share generation.
func (r *SQLiteRepository) ActiveUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, is_active FROM users WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsActive); err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// ---- categories ----

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	c := core.Category{Name: name}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, name)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("create category id: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CategoryByID(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ---- expenses and shares ----

const dateLayout = "2006-01-02"

// CreateExpense inserts the expense and its freshly allocated shares in a
// single transaction, so a reader never sees an expense without shares.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense, shares []core.ExpenseShare) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (category_id, paid_by, created_by, amount, description, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.CategoryID, e.PaidBy, e.CreatedBy, e.Amount.Exact(), e.Description, e.Date.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("expense id: %w", err)
	}

	if err := insertShares(ctx, tx, e.ID, shares); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID, "amount", e.Amount.String(), "shares", len(shares))
	return nil
}

// UpdateExpense rewrites the expense row and regenerates its shares from
// scratch inside one transaction. Shares are never patched in place: any
// edit, including a change in who is active, can move every amount.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense, shares []core.ExpenseShare) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET category_id = ?, paid_by = ?, amount = ?, description = ?, date = ?
		 WHERE id = ?`,
		e.CategoryID, e.PaidBy, e.Amount.Exact(), e.Description, e.Date.Format(dateLayout), e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %d: %w", e.ID, core.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM expense_shares WHERE expense_id = ?`, e.ID); err != nil {
		return fmt.Errorf("delete stale shares: %w", err)
	}
	if err := insertShares(ctx, tx, e.ID, shares); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expense update: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated and shares regenerated",
		"id", e.ID, "amount", e.Amount.String(), "shares", len(shares))
	return nil
}

func insertShares(ctx context.Context, tx *sql.Tx, expenseID int64, shares []core.ExpenseShare) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expense_shares (expense_id, user_id, amount, discount) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare share insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range shares {
		if _, err := stmt.ExecContext(ctx, expenseID, s.UserID, s.Amount.Exact(), s.Discount.Exact()); err != nil {
			return fmt.Errorf("insert share for user %d: %w", s.UserID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ExpenseByID(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, category_id, paid_by, created_by, amount, description, date
		 FROM expenses WHERE id = ?`, id)

	e, err := scanExpense(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ExpensesByMonth(ctx context.Context, p core.Period) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category_id, paid_by, created_by, amount, description, date
		 FROM expenses
		 WHERE substr(date, 1, 7) = ?
		 ORDER BY date, id`, monthKey(p))
	if err != nil {
		return nil, fmt.Errorf("query expenses by month: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// MonthlyTotal sums all expense amounts in the period with decimal
// arithmetic; the column is TEXT precisely so this never goes through
// SQLite's float SUM.
func (r *SQLiteRepository) MonthlyTotal(ctx context.Context, p core.Period) (core.Money, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT amount FROM expenses WHERE substr(date, 1, 7) = ?`, monthKey(p))
	if err != nil {
		return core.Money{}, fmt.Errorf("query monthly total: %w", err)
	}
	defer rows.Close()

	total := core.ZeroMoney()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return core.Money{}, fmt.Errorf("scan amount: %w", err)
		}
		m, err := core.MoneyFromStored(raw)
		if err != nil {
			return core.Money{}, fmt.Errorf("stored amount %q: %w", raw, err)
		}
		total = total.Add(m)
	}
	return total, rows.Err()
}

// MonthTotal pairs a month number with its spending total.
type MonthTotal struct {
	Month int
	Total core.Money
}

// MonthlyTotalsByYear returns one total per month that saw spending,
// ordered by month.
func (r *SQLiteRepository) MonthlyTotalsByYear(ctx context.Context, year int) ([]MonthTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(date, 6, 2), amount FROM expenses WHERE substr(date, 1, 4) = ?
		 ORDER BY date`, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, fmt.Errorf("query yearly totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[int]core.Money)
	for rows.Next() {
		var monthRaw, amountRaw string
		if err := rows.Scan(&monthRaw, &amountRaw); err != nil {
			return nil, fmt.Errorf("scan yearly total: %w", err)
		}
		var month int
		if _, err := fmt.Sscanf(monthRaw, "%d", &month); err != nil {
			return nil, fmt.Errorf("stored month %q: %w", monthRaw, err)
		}
		m, err := core.MoneyFromStored(amountRaw)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", amountRaw, err)
		}
		if t, ok := totals[month]; ok {
			totals[month] = t.Add(m)
		} else {
			totals[month] = m
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]MonthTotal, 0, len(totals))
	for month := 1; month <= 12; month++ {
		if t, ok := totals[month]; ok {
			result = append(result, MonthTotal{Month: month, Total: t})
		}
	}
	return result, nil
}

// DiscountTotals aggregates each user's discounts for the period, keyed
// by user id.
func (r *SQLiteRepository) DiscountTotals(ctx context.Context, p core.Period) (map[int64]core.Money, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.user_id, s.discount
		 FROM expense_shares s
		 JOIN expenses e ON e.id = s.expense_id
		 WHERE substr(e.date, 1, 7) = ?`, monthKey(p))
	if err != nil {
		return nil, fmt.Errorf("query discount totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]core.Money)
	for rows.Next() {
		var userID int64
		var raw string
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		m, err := core.MoneyFromStored(raw)
		if err != nil {
			return nil, fmt.Errorf("stored discount %q: %w", raw, err)
		}
		if t, ok := totals[userID]; ok {
			totals[userID] = t.Add(m)
		} else {
			totals[userID] = m
		}
	}
	return totals, rows.Err()
}

func (r *SQLiteRepository) DiscountTotalForUser(ctx context.Context, p core.Period, userID int64) (core.Money, error) {
	totals, err := r.DiscountTotals(ctx, p)
	if err != nil {
		return core.Money{}, err
	}
	if t, ok := totals[userID]; ok {
		return t, nil
	}
	return core.ZeroMoney(), nil
}

// ShareLines returns a user's shares for the period joined with their
// parent expenses and categories, ready for statement rendering.
func (r *SQLiteRepository) ShareLines(ctx context.Context, p core.Period, userID int64) ([]core.ShareLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.date, c.name, e.description, e.amount, s.amount, s.discount
		 FROM expense_shares s
		 JOIN expenses e ON e.id = s.expense_id
		 JOIN categories c ON c.id = e.category_id
		 WHERE substr(e.date, 1, 7) = ? AND s.user_id = ?
		 ORDER BY e.date, e.id`, monthKey(p), userID)
	if err != nil {
		return nil, fmt.Errorf("query share lines: %w", err)
	}
	defer rows.Close()

	var lines []core.ShareLine
	for rows.Next() {
		var (
			dateRaw, category, description     string
			expenseRaw, amountRaw, discountRaw string
		)
		if err := rows.Scan(&dateRaw, &category, &description, &expenseRaw, &amountRaw, &discountRaw); err != nil {
			return nil, fmt.Errorf("scan share line: %w", err)
		}
		date, err := time.Parse(dateLayout, dateRaw)
		if err != nil {
			return nil, fmt.Errorf("stored date %q: %w", dateRaw, err)
		}
		expenseAmount, err := core.MoneyFromStored(expenseRaw)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", expenseRaw, err)
		}
		amount, err := core.MoneyFromStored(amountRaw)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", amountRaw, err)
		}
		discount, err := core.MoneyFromStored(discountRaw)
		if err != nil {
			return nil, fmt.Errorf("stored discount %q: %w", discountRaw, err)
		}
		lines = append(lines, core.ShareLine{
			Date:          core.Date{Time: date},
			Category:      category,
			Description:   description,
			ExpenseAmount: expenseAmount,
			Amount:        amount,
			Discount:      discount,
		})
	}
	return lines, rows.Err()
}

func (r *SQLiteRepository) ShareCountForExpense(ctx context.Context, expenseID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expense_shares WHERE expense_id = ?`, expenseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count shares: %w", err)
	}
	return n, nil
}

// ---- summaries ----

// ReplaceSummaries deletes the period's summary rows and inserts the
// fresh set in one transaction. Re-running a period is idempotent; a paid
// flag set on an old row does not survive regeneration.
func (r *SQLiteRepository) ReplaceSummaries(ctx context.Context, p core.Period, summaries []core.ExpenseShareSummary) ([]core.ExpenseShareSummary, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM expense_share_summaries WHERE year = ? AND month = ?`, p.Year, p.Month); err != nil {
		return nil, fmt.Errorf("delete stale summaries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expense_share_summaries (user_id, year, month, total_amount, total_discount, to_pay, paid)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare summary insert: %w", err)
	}
	defer stmt.Close()

	inserted := make([]core.ExpenseShareSummary, 0, len(summaries))
	for _, s := range summaries {
		res, err := stmt.ExecContext(ctx, s.UserID, s.Year, s.Month,
			s.TotalAmount.Exact(), s.TotalDiscount.Exact(), s.ToPay.Exact(), s.Paid)
		if err != nil {
			return nil, fmt.Errorf("insert summary for user %d: %w", s.UserID, err)
		}
		s.ID, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("summary id: %w", err)
		}
		inserted = append(inserted, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit summaries: %w", err)
	}

	slog.InfoContext(ctx, "Summaries regenerated",
		"year", p.Year, "month", p.Month, "count", len(inserted))
	return inserted, nil
}

func (r *SQLiteRepository) SummariesByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseShareSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, year, month, total_amount, total_discount, to_pay, paid
		 FROM expense_share_summaries WHERE year = ? AND month = ? ORDER BY user_id`,
		p.Year, p.Month)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []core.ExpenseShareSummary
	for rows.Next() {
		s, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *SQLiteRepository) SummaryByID(ctx context.Context, id int64) (core.ExpenseShareSummary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, year, month, total_amount, total_discount, to_pay, paid
		 FROM expense_share_summaries WHERE id = ?`, id)

	s, err := scanSummary(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseShareSummary{}, fmt.Errorf("summary: %w", core.ErrNotFound)
	}
	return s, err
}

// SetSummaryPaid flips the paid flag. Marking an already-paid summary is
// a no-op, not an error; there is no way back to unpaid.
func (r *SQLiteRepository) SetSummaryPaid(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expense_share_summaries SET paid = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("set summary paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set summary paid: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("summary %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// ---- chat identities ----

func (r *SQLiteRepository) RegisterChat(ctx context.Context, userID, chatID int64) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_users (user_id, chat_id) VALUES (?, ?)`, userID, chatID); err != nil {
		return fmt.Errorf("register chat: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserByChatID(ctx context.Context, chatID int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.email, u.is_active
		 FROM users u JOIN chat_users c ON c.user_id = u.id
		 WHERE c.chat_id = ?`, chatID))
}

func (r *SQLiteRepository) ChatIDForUser(ctx context.Context, userID int64) (int64, bool, error) {
	var chatID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT chat_id FROM chat_users WHERE user_id = ?`, userID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("chat id for user: %w", err)
	}
	return chatID, true, nil
}

// ---- helpers ----

func monthKey(p core.Period) string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func scanExpense(scan func(...any) error) (core.Expense, error) {
	var (
		e                  core.Expense
		amountRaw, dateRaw string
	)
	if err := scan(&e.ID, &e.CategoryID, &e.PaidBy, &e.CreatedBy, &amountRaw, &e.Description, &dateRaw); err != nil {
		return core.Expense{}, err
	}
	amount, err := core.MoneyFromStored(amountRaw)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored amount %q: %w", amountRaw, err)
	}
	date, err := time.Parse(dateLayout, dateRaw)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored date %q: %w", dateRaw, err)
	}
	e.Amount = amount
	e.Date = core.Date{Time: date}
	return e, nil
}

func scanSummary(scan func(...any) error) (core.ExpenseShareSummary, error) {
	var (
		s                               core.ExpenseShareSummary
		totalRaw, discountRaw, toPayRaw string
	)
	if err := scan(&s.ID, &s.UserID, &s.Year, &s.Month, &totalRaw, &discountRaw, &toPayRaw, &s.Paid); err != nil {
		return core.ExpenseShareSummary{}, err
	}
	total, err := core.MoneyFromStored(totalRaw)
	if err != nil {
		return core.ExpenseShareSummary{}, fmt.Errorf("stored total %q: %w", totalRaw, err)
	}
	discount, err := core.MoneyFromStored(discountRaw)
	if err != nil {
		return core.ExpenseShareSummary{}, fmt.Errorf("stored discount %q: %w", discountRaw, err)
	}
	toPay, err := core.MoneyFromStored(toPayRaw)
	if err != nil {
		return core.ExpenseShareSummary{}, fmt.Errorf("stored to_pay %q: %w", toPayRaw, err)
	}
	s.TotalAmount = total
	s.TotalDiscount = discount
	s.ToPay = toPay
	return s, nil
}
