package core

import "sort"

// BuildSummaries computes one ExpenseShareSummary per active user for a
// month, given the month's total spending and each user's accumulated
// discount.
//
// Every user gets the same flat TotalAmount — the month total divided by
// the active user count — regardless of how individual expenses were
// allocated. Discounts are paired to users strictly by user ID: a user
// missing from the discounts map simply has nothing to discount. ToPay is
// always TotalAmount - TotalDiscount.
//
// The result is ordered by user ID so regeneration is deterministic.
func BuildSummaries(p Period, monthTotal Money, activeUsers []User, discounts map[int64]Money) ([]ExpenseShareSummary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(activeUsers) == 0 {
		return nil, ErrNoActiveUsers
	}

	perUser := monthTotal.DivBy(len(activeUsers))

	summaries := make([]ExpenseShareSummary, 0, len(activeUsers))
	for _, u := range activeUsers {
		discount, ok := discounts[u.ID]
		if !ok {
			discount = ZeroMoney()
		}
		summaries = append(summaries, ExpenseShareSummary{
			UserID:        u.ID,
			Year:          p.Year,
			Month:         p.Month,
			TotalAmount:   perUser,
			TotalDiscount: discount,
			ToPay:         perUser.Sub(discount),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UserID < summaries[j].UserID
	})
	return summaries, nil
}
