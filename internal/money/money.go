// Package money implements exact fixed-point arithmetic over ISO-4217 minor
// units, plus the banker's-rounding tax step spec'd for order totals.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a currency amount expressed as an integer count of minor units
// (cents for USD, etc). Arithmetic across different currencies is rejected.
type Money struct {
	Currency string
	Amount   int64
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: currency, Amount: 0}
}

// New constructs a Money value from a minor-unit amount.
func New(currency string, amount int64) Money {
	return Money{Currency: currency, Amount: amount}
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("money: currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return nil
}

// Add returns m + other. Both must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Currency: m.Currency, Amount: m.Amount + other.Amount}, nil
}

// Sub returns m - other. Both must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Currency: m.Currency, Amount: m.Amount - other.Amount}, nil
}

// Negate returns -m.
func (m Money) Negate() Money {
	return Money{Currency: m.Currency, Amount: -m.Amount}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// MultiplyQty returns unit price * quantity, exact (no rounding needed since
// both operands are already integers).
func (m Money) MultiplyQty(qty int64) Money {
	return Money{Currency: m.Currency, Amount: m.Amount * qty}
}

// MultiplyRate multiplies the amount by a fractional rate (e.g. a tax rate)
// and rounds the result to the nearest minor unit using banker's rounding
// (round-half-to-even), matching spec.md's "$0.015 rounds to $0.02 only when
// the prior digit is odd" requirement.
func (m Money) MultiplyRate(rate decimal.Decimal) Money {
	amount := decimal.NewFromInt(m.Amount)
	product := amount.Mul(rate)
	rounded := product.RoundBank(0)
	return Money{Currency: m.Currency, Amount: rounded.IntPart()}
}

// Sum adds a slice of Money values, all of which must share a currency. An
// empty slice with an explicit currency returns Zero(currency).
func Sum(currency string, values ...Money) (Money, error) {
	total := Zero(currency)
	for _, v := range values {
		var err error
		total, err = total.Add(v)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// String renders the amount as a human string, e.g. "19.99 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s.%02d %s", fmt.Sprintf("%d", m.Amount/100), abs(m.Amount%100), m.Currency)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
