// Package core holds the domain model of the shared-expense ledger:
// money arithmetic, expense allocation and the monthly summary math.
//
// All monetary computation goes through the Money type, which wraps an
// exact decimal. Converting an amount to a float at any point between
// input parsing and display rendering is a correctness bug.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal currency amount. The zero value is zero money.
//
// Amounts are displayed with two fractional digits but stored and computed
// at full precision: dividing an expense across users may leave sub-cent
// remainders in individual shares, and those remainders are kept as-is
// rather than rounded away.
type Money struct {
	Amount decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Amount: d}
}

func ZeroMoney() Money {
	return Money{Amount: decimal.Zero}
}

// ParseMoney parses a user-entered amount. Both dot (12.34) and comma
// (12,34) decimal separators are accepted. The value must be strictly
// positive; zero and negative amounts fail with ErrInvalidAmount.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	return Money{Amount: d}, nil
}

// MoneyFromStored reconstructs an amount persisted by Exact. Unlike
// ParseMoney it accepts zero, since stored shares and discounts may
// legitimately be zero.
func MoneyFromStored(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Amount: d}, nil
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount)}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount.Sub(o.Amount)}
}

// DivBy splits the amount n ways at decimal precision. No rounding is
// applied here; rounding happens only at display time.
func (m Money) DivBy(n int) Money {
	return Money{Amount: m.Amount.Div(decimal.NewFromInt(int64(n)))}
}

func (m Money) MulBy(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n)))}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) Equal(o Money) bool {
	return m.Amount.Equal(o.Amount)
}

// String renders the amount rounded to two fractional digits, the form
// shown in statements, emails and chat replies.
func (m Money) String() string {
	return m.Amount.StringFixed(2)
}

// Exact renders the amount at full precision for storage.
func (m Money) Exact() string {
	return m.Amount.String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return m.Amount.MarshalJSON()
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return m.Amount.UnmarshalJSON(data)
}

func (m Money) Validate() error {
	if !m.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
