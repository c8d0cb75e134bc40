package core

import (
	"errors"
	"testing"
)

func TestAllocateThreeUsers(t *testing.T) {
	alice := User{ID: 1, Username: "alice", IsActive: true}
	bob := User{ID: 2, Username: "bob", IsActive: true}
	carol := User{ID: 3, Username: "carol", IsActive: true}

	expense := Expense{
		ID:     10,
		PaidBy: alice.ID,
		Amount: mustMoney(t, "90.00"),
	}

	shares, err := Allocate(expense, []User{alice, bob, carol})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}

	byUser := sharesByUser(shares)

	if !byUser[alice.ID].Amount.IsZero() {
		t.Errorf("payer amount should be 0, got %s", byUser[alice.ID].Amount)
	}
	if got := byUser[alice.ID].Discount.String(); got != "60.00" {
		t.Errorf("payer discount should be 60.00, got %s", got)
	}
	for _, id := range []int64{bob.ID, carol.ID} {
		if got := byUser[id].Amount.String(); got != "30.00" {
			t.Errorf("user %d amount should be 30.00, got %s", id, got)
		}
		if !byUser[id].Discount.IsZero() {
			t.Errorf("user %d discount should be 0, got %s", id, byUser[id].Discount)
		}
	}
}

func TestAllocateAfterDeactivation(t *testing.T) {
	alice := User{ID: 1, Username: "alice", IsActive: true}
	carol := User{ID: 3, Username: "carol", IsActive: true}

	// Bob deactivated: the same expense reallocated across the remaining
	// two users shifts every amount, shares are not patched incrementally.
	expense := Expense{
		ID:     10,
		PaidBy: alice.ID,
		Amount: mustMoney(t, "90.00"),
	}

	shares, err := Allocate(expense, []User{alice, carol})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}

	byUser := sharesByUser(shares)
	if got := byUser[alice.ID].Discount.String(); got != "45.00" {
		t.Errorf("payer discount should be 45.00, got %s", got)
	}
	if got := byUser[carol.ID].Amount.String(); got != "45.00" {
		t.Errorf("carol amount should be 45.00, got %s", got)
	}
}

func TestAllocateNoActiveUsers(t *testing.T) {
	expense := Expense{ID: 1, PaidBy: 1, Amount: mustMoney(t, "10.00")}

	_, err := Allocate(expense, nil)
	if !errors.Is(err, ErrNoActiveUsers) {
		t.Fatalf("expected ErrNoActiveUsers, got %v", err)
	}
}

func TestAllocateRejectsNonPositiveAmount(t *testing.T) {
	expense := Expense{ID: 1, PaidBy: 1}
	_, err := Allocate(expense, []User{{ID: 1}})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAllocateCoversAmount(t *testing.T) {
	// The non-payer amounts plus the payer discount reconstruct the
	// expense exactly when the user count divides the amount evenly.
	cases := []struct {
		amount string
		users  int
	}{
		{"90.00", 3},
		{"100.00", 4},
		{"0.02", 2},
		{"150.50", 2},
	}
	for _, tc := range cases {
		users := make([]User, tc.users)
		for i := range users {
			users[i] = User{ID: int64(i + 1), IsActive: true}
		}
		expense := Expense{ID: 1, PaidBy: 1, Amount: mustMoney(t, tc.amount)}

		shares, err := Allocate(expense, users)
		if err != nil {
			t.Fatalf("Allocate(%s, %d users) failed: %v", tc.amount, tc.users, err)
		}

		covered := ZeroMoney()
		for _, s := range shares {
			covered = covered.Add(s.Amount).Add(s.Discount)
		}
		if !covered.Equal(expense.Amount) {
			t.Errorf("amount %s over %d users: shares cover %s", tc.amount, tc.users, covered.Exact())
		}
	}
}

func TestAllocateSingleUser(t *testing.T) {
	// The payer alone: nothing owed, nothing discounted.
	expense := Expense{ID: 1, PaidBy: 7, Amount: mustMoney(t, "42.00")}

	shares, err := Allocate(expense, []User{{ID: 7, IsActive: true}})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(shares) != 1 {
		t.Fatalf("expected 1 share, got %d", len(shares))
	}
	if !shares[0].Amount.IsZero() || !shares[0].Discount.IsZero() {
		t.Errorf("single payer should owe 0 with 0 discount, got amount=%s discount=%s",
			shares[0].Amount, shares[0].Discount)
	}
}

func TestAllocateUnevenSplitKeepsRemainder(t *testing.T) {
	// 100 across 3 users: each non-payer share is 33.33..., stored at full
	// precision with no reconciliation step.
	expense := Expense{ID: 1, PaidBy: 1, Amount: mustMoney(t, "100.00")}
	users := []User{{ID: 1}, {ID: 2}, {ID: 3}}

	shares, err := Allocate(expense, users)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	byUser := sharesByUser(shares)
	if got := byUser[2].Amount.String(); got != "33.33" {
		t.Errorf("displayed share should be 33.33, got %s", got)
	}
	if byUser[2].Amount.MulBy(3).Equal(expense.Amount) {
		t.Error("expected the stored share to carry a sub-cent remainder")
	}
}

func sharesByUser(shares []ExpenseShare) map[int64]ExpenseShare {
	m := make(map[int64]ExpenseShare, len(shares))
	for _, s := range shares {
		m[s.UserID] = s
	}
	return m
}
