package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPeriod      = errors.New("invalid period")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyName          = errors.New("empty name")
	ErrNoActiveUsers      = errors.New("no active users")
	ErrNotFound           = errors.New("not found")
	ErrInconsistentShares = errors.New("share count does not match active user count")
)

type (
	// Date is a calendar date; the time-of-day part is always midnight UTC.
	Date struct {
		time.Time
	}

	// Period identifies one calendar month.
	Period struct {
		Year  int
		Month int // 1-12
	}

	// User is the slice of an externally-owned identity the ledger needs:
	// only active users take part in allocation and aggregation, and the
	// email address is where monthly statements go.
	User struct {
		ID       int64
		Username string
		Email    string
		IsActive bool
	}

	// Category is a descriptive tag on an expense.
	Category struct {
		ID   int64
		Name string
	}

	// Expense is one shared payment fronted by a single user.
	// CreatedBy is an audit field and never changes after creation.
	Expense struct {
		ID          int64
		CategoryID  int64
		PaidBy      int64
		CreatedBy   int64
		Amount      Money
		Description string
		Date        Date
	}

	// ExpenseShare is one user's portion of a single expense. The payer's
	// share carries a zero amount and the whole discount; everyone else
	// carries an equal amount and no discount.
	ExpenseShare struct {
		ID        int64
		ExpenseID int64
		UserID    int64
		Amount    Money
		Discount  Money
	}

	// ExpenseShareSummary is the per-user rollup of one month: the flat
	// per-user total, the user's accumulated discounts and the net amount
	// left to pay. It is a derived snapshot, regenerated wholesale, and
	// keeps no references back to individual shares.
	ExpenseShareSummary struct {
		ID            int64
		UserID        int64
		Year          int
		Month         int
		TotalAmount   Money
		TotalDiscount Money
		ToPay         Money
		Paid          bool
	}

	// ShareLine is the read model behind statements: one share joined with
	// its parent expense and category, ready for rendering.
	ShareLine struct {
		Date          Date
		Category      string
		Description   string
		ExpenseAmount Money
		Amount        Money
		Discount      Money
	}

	// Statement is everything needed to render one user's month: the share
	// lines plus the three totals shown at the bottom of the table.
	Statement struct {
		UserID   int64
		Username string
		Period   Period
		Lines    []ShareLine
		Subtotal Money // flat per-user total for the month
		Discount Money // user's accumulated discounts
		Total    Money // Subtotal - Discount
	}
)

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Year returns the calendar year.
func (d Date) Year() int {
	return d.Time.Year()
}

// Month returns the calendar month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidPeriod
	}
	if p.Year < 1 {
		return ErrInvalidPeriod
	}
	return nil
}

// PreviousPeriod returns the calendar month before the one containing now.
// The periodic job targets the month that just closed, never the running one.
func PreviousPeriod(now time.Time) Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, 0, -1)
	return Period{Year: prev.Year(), Month: int(prev.Month())}
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.CategoryID == 0 {
		return errors.New("missing category")
	}
	if e.PaidBy == 0 {
		return errors.New("missing payer")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// SetPaid marks the summary as settled. The transition is one-way and
// idempotent: marking an already-paid summary again is a no-op.
func (s *ExpenseShareSummary) SetPaid() {
	s.Paid = true
}
