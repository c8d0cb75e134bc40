package services

import (
	"context"
	"errors"
	"sort"
	"testing"

	"gastos/internal/core"
	"gastos/internal/storage"
)

// fakeStore keeps everything in maps and derives monthly totals and
// discounts the same way the SQLite layer does, so the services can be
// tested without a database.
type fakeStore struct {
	users      []core.User
	categories map[int64]core.Category
	expenses   map[int64]core.Expense
	shares     map[int64][]core.ExpenseShare
	summaries  map[int64]core.ExpenseShareSummary
	nextID     int64
}

func newFakeStore(users ...core.User) *fakeStore {
	return &fakeStore{
		users:      users,
		categories: map[int64]core.Category{1: {ID: 1, Name: "groceries"}},
		expenses:   make(map[int64]core.Expense),
		shares:     make(map[int64][]core.ExpenseShare),
		summaries:  make(map[int64]core.ExpenseShareSummary),
	}
}

func (f *fakeStore) ActiveUsers(context.Context) ([]core.User, error) {
	var active []core.User
	for _, u := range f.users {
		if u.IsActive {
			active = append(active, u)
		}
	}
	return active, nil
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (core.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (f *fakeStore) CategoryByID(_ context.Context, id int64) (core.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) CreateExpense(_ context.Context, e *core.Expense, shares []core.ExpenseShare) error {
	f.nextID++
	e.ID = f.nextID
	f.expenses[e.ID] = *e
	f.shares[e.ID] = shares
	return nil
}

func (f *fakeStore) UpdateExpense(_ context.Context, e core.Expense, shares []core.ExpenseShare) error {
	if _, ok := f.expenses[e.ID]; !ok {
		return core.ErrNotFound
	}
	f.expenses[e.ID] = e
	f.shares[e.ID] = shares
	return nil
}

func (f *fakeStore) ExpenseByID(_ context.Context, id int64) (core.Expense, error) {
	e, ok := f.expenses[id]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) inPeriod(e core.Expense, p core.Period) bool {
	return e.Date.Year() == p.Year && e.Date.Month() == p.Month
}

func (f *fakeStore) ExpensesByMonth(_ context.Context, p core.Period) ([]core.Expense, error) {
	var out []core.Expense
	for _, e := range f.expenses {
		if f.inPeriod(e, p) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) MonthlyTotal(_ context.Context, p core.Period) (core.Money, error) {
	total := core.ZeroMoney()
	for _, e := range f.expenses {
		if f.inPeriod(e, p) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (f *fakeStore) MonthlyTotalsByYear(_ context.Context, year int) ([]storage.MonthTotal, error) {
	byMonth := make(map[int]core.Money)
	for _, e := range f.expenses {
		if e.Date.Year() == year {
			m := e.Date.Month()
			if _, ok := byMonth[m]; !ok {
				byMonth[m] = core.ZeroMoney()
			}
			byMonth[m] = byMonth[m].Add(e.Amount)
		}
	}
	var out []storage.MonthTotal
	for m, t := range byMonth {
		out = append(out, storage.MonthTotal{Month: m, Total: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (f *fakeStore) DiscountTotals(_ context.Context, p core.Period) (map[int64]core.Money, error) {
	out := make(map[int64]core.Money)
	for expenseID, shares := range f.shares {
		if !f.inPeriod(f.expenses[expenseID], p) {
			continue
		}
		for _, sh := range shares {
			if sh.Discount.IsZero() {
				continue
			}
			cur, ok := out[sh.UserID]
			if !ok {
				cur = core.ZeroMoney()
			}
			out[sh.UserID] = cur.Add(sh.Discount)
		}
	}
	return out, nil
}

func (f *fakeStore) DiscountTotalForUser(ctx context.Context, p core.Period, userID int64) (core.Money, error) {
	totals, err := f.DiscountTotals(ctx, p)
	if err != nil {
		return core.Money{}, err
	}
	if t, ok := totals[userID]; ok {
		return t, nil
	}
	return core.ZeroMoney(), nil
}

func (f *fakeStore) ShareLines(_ context.Context, p core.Period, userID int64) ([]core.ShareLine, error) {
	var out []core.ShareLine
	for expenseID, shares := range f.shares {
		e := f.expenses[expenseID]
		if !f.inPeriod(e, p) {
			continue
		}
		for _, sh := range shares {
			if sh.UserID != userID {
				continue
			}
			out = append(out, core.ShareLine{
				Date:          e.Date,
				Category:      f.categories[e.CategoryID].Name,
				Description:   e.Description,
				ExpenseAmount: e.Amount,
				Amount:        sh.Amount,
				Discount:      sh.Discount,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (f *fakeStore) ShareCountForExpense(_ context.Context, expenseID int64) (int, error) {
	return len(f.shares[expenseID]), nil
}

func (f *fakeStore) ReplaceSummaries(_ context.Context, p core.Period, summaries []core.ExpenseShareSummary) ([]core.ExpenseShareSummary, error) {
	for id, s := range f.summaries {
		if s.Year == p.Year && s.Month == p.Month {
			delete(f.summaries, id)
		}
	}
	out := make([]core.ExpenseShareSummary, 0, len(summaries))
	for _, s := range summaries {
		f.nextID++
		s.ID = f.nextID
		f.summaries[s.ID] = s
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) SummariesByPeriod(_ context.Context, p core.Period) ([]core.ExpenseShareSummary, error) {
	var out []core.ExpenseShareSummary
	for _, s := range f.summaries {
		if s.Year == p.Year && s.Month == p.Month {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) SummaryByID(_ context.Context, id int64) (core.ExpenseShareSummary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return core.ExpenseShareSummary{}, core.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) SetSummaryPaid(_ context.Context, id int64) error {
	s, ok := f.summaries[id]
	if !ok {
		return core.ErrNotFound
	}
	s.SetPaid()
	f.summaries[id] = s
	return nil
}

type fakePublisher struct {
	published []int64 // summary IDs in publish order
	err       error
}

func (p *fakePublisher) PublishSummaryNotification(_ context.Context, summaryID, _ int64, _, _ int) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, summaryID)
	return nil
}

func testUsers() (core.User, core.User, core.User) {
	return core.User{ID: 1, Username: "alice", Email: "alice@example.com", IsActive: true},
		core.User{ID: 2, Username: "bob", Email: "bob@example.com", IsActive: true},
		core.User{ID: 3, Username: "carol", IsActive: true}
}

func money(t *testing.T, s string) core.Money {
	t.Helper()
	m, err := core.ParseMoney(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return m
}

func newExpense(t *testing.T, paidBy int64, amount string, date core.Date) core.Expense {
	t.Helper()
	return core.Expense{
		CategoryID:  1,
		PaidBy:      paidBy,
		CreatedBy:   paidBy,
		Amount:      money(t, amount),
		Description: "test expense",
		Date:        date,
	}
}

func TestExpenseServiceCreate(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	svc := NewExpenseService(store)
	ctx := context.Background()

	created, err := svc.CreateExpense(ctx, newExpense(t, alice.ID, "90.00", core.NewDate(2024, 3, 10)))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned expense ID")
	}

	shares := store.shares[created.ID]
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}
	for _, sh := range shares {
		if sh.UserID == alice.ID {
			if !sh.Amount.IsZero() || sh.Discount.String() != "60.00" {
				t.Errorf("payer share = %s/%s, want 0.00/60.00", sh.Amount, sh.Discount)
			}
		} else if sh.Amount.String() != "30.00" {
			t.Errorf("share for user %d = %s, want 30.00", sh.UserID, sh.Amount)
		}
	}
}

func TestExpenseServiceCreateValidation(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	svc := NewExpenseService(store)
	ctx := context.Background()

	t.Run("zero amount", func(t *testing.T) {
		e := newExpense(t, alice.ID, "10.00", core.NewDate(2024, 3, 10))
		e.Amount = core.ZeroMoney()
		if _, err := svc.CreateExpense(ctx, e); !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		e := newExpense(t, alice.ID, "10.00", core.NewDate(2024, 3, 10))
		e.CategoryID = 99
		if _, err := svc.CreateExpense(ctx, e); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("no active users", func(t *testing.T) {
		empty := newFakeStore()
		emptySvc := NewExpenseService(empty)
		e := newExpense(t, alice.ID, "10.00", core.NewDate(2024, 3, 10))
		if _, err := emptySvc.CreateExpense(ctx, e); !errors.Is(err, core.ErrNoActiveUsers) {
			t.Fatalf("expected ErrNoActiveUsers, got %v", err)
		}
	})
}

func TestExpenseServiceUpdateUsesCurrentActiveSet(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	svc := NewExpenseService(store)
	ctx := context.Background()

	created, err := svc.CreateExpense(ctx, newExpense(t, alice.ID, "90.00", core.NewDate(2024, 3, 10)))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// Deactivate bob, then touch the expense: shares regenerate over
	// the remaining two users.
	store.users[1].IsActive = false

	updated, err := svc.UpdateExpense(ctx, created)
	if err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}

	shares := store.shares[updated.ID]
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares after update, got %d", len(shares))
	}
	for _, sh := range shares {
		if sh.UserID == bob.ID {
			t.Fatal("deactivated user received a share")
		}
		if sh.UserID == carol.ID && sh.Amount.String() != "45.00" {
			t.Errorf("carol's share = %s, want 45.00", sh.Amount)
		}
		if sh.UserID == alice.ID && sh.Discount.String() != "45.00" {
			t.Errorf("alice's discount = %s, want 45.00", sh.Discount)
		}
	}
}

func TestExpenseServiceUpdateMissing(t *testing.T) {
	alice, bob, carol := testUsers()
	svc := NewExpenseService(newFakeStore(alice, bob, carol))

	e := newExpense(t, alice.ID, "10.00", core.NewDate(2024, 3, 10))
	if _, err := svc.UpdateExpense(context.Background(), e); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unsaved expense, got %v", err)
	}

	e.ID = 999
	if _, err := svc.UpdateExpense(context.Background(), e); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestSummaryServiceSummarize(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	expenses := NewExpenseService(store)
	publisher := &fakePublisher{}
	svc := NewSummaryService(store, publisher)
	ctx := context.Background()

	if _, err := expenses.CreateExpense(ctx, newExpense(t, alice.ID, "90.00", core.NewDate(2024, 3, 10))); err != nil {
		t.Fatalf("seed expense: %v", err)
	}

	p := core.Period{Year: 2024, Month: 3}
	summaries, err := svc.Summarize(ctx, p)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}

	byUser := make(map[int64]core.ExpenseShareSummary)
	for _, s := range summaries {
		byUser[s.UserID] = s
	}

	for _, s := range byUser {
		if s.TotalAmount.String() != "30.00" {
			t.Errorf("user %d total = %s, want 30.00", s.UserID, s.TotalAmount)
		}
		if !s.ToPay.Equal(s.TotalAmount.Sub(s.TotalDiscount)) {
			t.Errorf("user %d to_pay is not total minus discount", s.UserID)
		}
	}
	if got := byUser[alice.ID].TotalDiscount.String(); got != "60.00" {
		t.Errorf("alice discount = %s, want 60.00", got)
	}
	if got := byUser[bob.ID].ToPay.String(); got != "30.00" {
		t.Errorf("bob to_pay = %s, want 30.00", got)
	}

	if len(publisher.published) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(publisher.published))
	}
}

func TestSummaryServiceSummarizeIsIdempotent(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	expenses := NewExpenseService(store)
	svc := NewSummaryService(store, nil)
	ctx := context.Background()

	if _, err := expenses.CreateExpense(ctx, newExpense(t, alice.ID, "90.00", core.NewDate(2024, 3, 10))); err != nil {
		t.Fatalf("seed expense: %v", err)
	}

	p := core.Period{Year: 2024, Month: 3}
	first, err := svc.Summarize(ctx, p)
	if err != nil {
		t.Fatalf("first Summarize failed: %v", err)
	}
	if err := svc.MarkPaid(ctx, first[0].ID); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}

	second, err := svc.Summarize(ctx, p)
	if err != nil {
		t.Fatalf("second Summarize failed: %v", err)
	}

	stored, err := svc.SummariesByPeriod(ctx, p)
	if err != nil {
		t.Fatalf("SummariesByPeriod failed: %v", err)
	}
	if len(stored) != len(second) {
		t.Fatalf("expected %d stored summaries, got %d", len(second), len(stored))
	}
	for _, s := range stored {
		if s.Paid {
			t.Errorf("summary %d should be unpaid after regeneration", s.ID)
		}
	}
}

func TestSummaryServicePublishFailureDoesNotFail(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	expenses := NewExpenseService(store)
	publisher := &fakePublisher{err: errors.New("broker down")}
	svc := NewSummaryService(store, publisher)
	ctx := context.Background()

	if _, err := expenses.CreateExpense(ctx, newExpense(t, alice.ID, "30.00", core.NewDate(2024, 3, 1))); err != nil {
		t.Fatalf("seed expense: %v", err)
	}

	summaries, err := svc.Summarize(ctx, core.Period{Year: 2024, Month: 3})
	if err != nil {
		t.Fatalf("Summarize should not fail on publish errors, got: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
}

func TestSummaryServiceNoActiveUsers(t *testing.T) {
	svc := NewSummaryService(newFakeStore(), nil)

	_, err := svc.Summarize(context.Background(), core.Period{Year: 2024, Month: 3})
	if !errors.Is(err, core.ErrNoActiveUsers) {
		t.Fatalf("expected ErrNoActiveUsers, got %v", err)
	}
}

func TestPerUserAndDiscountedTotals(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	expenses := NewExpenseService(store)
	svc := NewSummaryService(store, nil)
	ctx := context.Background()

	if _, err := expenses.CreateExpense(ctx, newExpense(t, alice.ID, "90.00", core.NewDate(2024, 3, 10))); err != nil {
		t.Fatalf("seed expense: %v", err)
	}

	p := core.Period{Year: 2024, Month: 3}

	perUser, err := svc.PerUserMonthlyTotal(ctx, p)
	if err != nil {
		t.Fatalf("PerUserMonthlyTotal failed: %v", err)
	}
	if perUser.String() != "30.00" {
		t.Errorf("per-user total = %s, want 30.00", perUser)
	}

	aliceTotal, err := svc.MonthlyDiscountedTotal(ctx, p, alice.ID)
	if err != nil {
		t.Fatalf("MonthlyDiscountedTotal failed: %v", err)
	}
	if aliceTotal.String() != "-30.00" {
		t.Errorf("alice discounted total = %s, want -30.00", aliceTotal)
	}

	bobTotal, err := svc.MonthlyDiscountedTotal(ctx, p, bob.ID)
	if err != nil {
		t.Fatalf("MonthlyDiscountedTotal failed: %v", err)
	}
	if bobTotal.String() != "30.00" {
		t.Errorf("bob discounted total = %s, want 30.00", bobTotal)
	}
}

func TestStatement(t *testing.T) {
	alice, bob, carol := testUsers()
	store := newFakeStore(alice, bob, carol)
	expenses := NewExpenseService(store)
	svc := NewSummaryService(store, nil)
	ctx := context.Background()

	if _, err := expenses.CreateExpense(ctx, newExpense(t, alice.ID, "90.00", core.NewDate(2024, 3, 10))); err != nil {
		t.Fatalf("seed expense: %v", err)
	}
	if _, err := expenses.CreateExpense(ctx, newExpense(t, bob.ID, "30.00", core.NewDate(2024, 3, 15))); err != nil {
		t.Fatalf("seed expense: %v", err)
	}

	p := core.Period{Year: 2024, Month: 3}
	st, err := svc.Statement(ctx, p, bob.ID)
	if err != nil {
		t.Fatalf("Statement failed: %v", err)
	}

	if st.Username != "bob" || st.Period != p {
		t.Errorf("statement header = %s %d-%d", st.Username, st.Period.Year, st.Period.Month)
	}
	if len(st.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(st.Lines))
	}
	// 120 total over 3 users = 40 each; bob paid 30, discount 20.
	if st.Subtotal.String() != "40.00" {
		t.Errorf("subtotal = %s, want 40.00", st.Subtotal)
	}
	if st.Discount.String() != "20.00" {
		t.Errorf("discount = %s, want 20.00", st.Discount)
	}
	if st.Total.String() != "20.00" {
		t.Errorf("total = %s, want 20.00", st.Total)
	}

	if _, err := svc.Statement(ctx, p, 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}
