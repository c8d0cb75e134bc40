package core

// Allocate splits an expense equally across the active users and credits
// the payer with an offsetting discount.
//
// With N active users, every non-payer owes amount/N and the payer owes
// nothing but earns a discount of amount*(N-1)/N — the combined value of
// the other users' shares. The per-user amounts are not rounded, so an
// amount that does not divide evenly leaves sub-cent remainders in the
// shares; rounding is applied only when amounts are displayed.
//
// Allocate is pure: persisting the shares is the caller's job. An empty
// user set fails with ErrNoActiveUsers rather than producing zero shares.
func Allocate(e Expense, activeUsers []User) ([]ExpenseShare, error) {
	if len(activeUsers) == 0 {
		return nil, ErrNoActiveUsers
	}
	if err := e.Amount.Validate(); err != nil {
		return nil, err
	}

	n := len(activeUsers)
	perUser := e.Amount.DivBy(n)
	payerDiscount := e.Amount.MulBy(n - 1).DivBy(n)

	shares := make([]ExpenseShare, 0, n)
	for _, u := range activeUsers {
		share := ExpenseShare{
			ExpenseID: e.ID,
			UserID:    u.ID,
		}
		if u.ID == e.PaidBy {
			share.Amount = ZeroMoney()
			share.Discount = payerDiscount
		} else {
			share.Amount = perUser
			share.Discount = ZeroMoney()
		}
		shares = append(shares, share)
	}
	return shares, nil
}
