package core

import (
	"errors"
	"testing"
	"time"
)

func TestBuildSummaries(t *testing.T) {
	users := []User{
		{ID: 3, Username: "carol"},
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
	}
	discounts := map[int64]Money{
		1: mustMoney(t, "60.00"),
	}

	summaries, err := BuildSummaries(Period{Year: 2024, Month: 3}, mustMoney(t, "90.00"), users, discounts)
	if err != nil {
		t.Fatalf("BuildSummaries failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}

	// Ordered by user ID regardless of input order.
	for i, want := range []int64{1, 2, 3} {
		if summaries[i].UserID != want {
			t.Fatalf("summary %d: expected user %d, got %d", i, want, summaries[i].UserID)
		}
	}

	for _, s := range summaries {
		if got := s.TotalAmount.String(); got != "30.00" {
			t.Errorf("user %d total should be 30.00, got %s", s.UserID, got)
		}
		if s.Paid {
			t.Errorf("user %d summary should start unpaid", s.UserID)
		}
		if !s.ToPay.Equal(s.TotalAmount.Sub(s.TotalDiscount)) {
			t.Errorf("user %d to_pay must equal total - discount", s.UserID)
		}
	}

	if got := summaries[0].ToPay.String(); got != "-30.00" {
		t.Errorf("payer to_pay should be -30.00 (owed money back), got %s", got)
	}
	if got := summaries[1].ToPay.String(); got != "30.00" {
		t.Errorf("bob to_pay should be 30.00, got %s", got)
	}
}

func TestBuildSummariesPairsDiscountsByUserID(t *testing.T) {
	// The discount aggregate arrives keyed by user; a user absent from the
	// aggregate gets zero, and no discount can land on the wrong user even
	// when the two inputs are ordered differently.
	users := []User{
		{ID: 5, Username: "eve"},
		{ID: 2, Username: "bob"},
	}
	discounts := map[int64]Money{
		2: mustMoney(t, "10.00"),
	}

	summaries, err := BuildSummaries(Period{Year: 2024, Month: 1}, mustMoney(t, "40.00"), users, discounts)
	if err != nil {
		t.Fatalf("BuildSummaries failed: %v", err)
	}

	for _, s := range summaries {
		switch s.UserID {
		case 2:
			if got := s.TotalDiscount.String(); got != "10.00" {
				t.Errorf("bob discount should be 10.00, got %s", got)
			}
		case 5:
			if !s.TotalDiscount.IsZero() {
				t.Errorf("eve discount should be 0, got %s", s.TotalDiscount)
			}
		}
	}
}

func TestBuildSummariesNoActiveUsers(t *testing.T) {
	_, err := BuildSummaries(Period{Year: 2024, Month: 3}, ZeroMoney(), nil, nil)
	if !errors.Is(err, ErrNoActiveUsers) {
		t.Fatalf("expected ErrNoActiveUsers, got %v", err)
	}
}

func TestBuildSummariesInvalidPeriod(t *testing.T) {
	users := []User{{ID: 1}}
	for _, p := range []Period{{Year: 2024, Month: 0}, {Year: 2024, Month: 13}, {Year: 0, Month: 5}} {
		if _, err := BuildSummaries(p, ZeroMoney(), users, nil); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("period %+v: expected ErrInvalidPeriod, got %v", p, err)
		}
	}
}

func TestPreviousPeriod(t *testing.T) {
	cases := []struct {
		now   time.Time
		year  int
		month int
	}{
		{time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), 2024, 2},
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 2023, 12},
		{time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), 2024, 11},
	}
	for _, tc := range cases {
		p := PreviousPeriod(tc.now)
		if p.Year != tc.year || p.Month != tc.month {
			t.Errorf("PreviousPeriod(%s) = %d/%d, want %d/%d",
				tc.now.Format("2006-01-02"), p.Month, p.Year, tc.month, tc.year)
		}
	}
}

func TestSetPaidIsIdempotent(t *testing.T) {
	s := ExpenseShareSummary{UserID: 1, Year: 2024, Month: 3}

	s.SetPaid()
	if !s.Paid {
		t.Fatal("expected paid after SetPaid")
	}
	s.SetPaid()
	if !s.Paid {
		t.Fatal("SetPaid twice must leave the summary paid")
	}
}
