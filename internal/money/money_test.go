package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSubRequireSameCurrency(t *testing.T) {
	usd := New("USD", 1000)
	eur := New("EUR", 500)

	_, err := usd.Add(eur)
	require.Error(t, err)

	_, err = usd.Sub(eur)
	require.Error(t, err)

	sum, err := usd.Add(New("USD", 250))
	require.NoError(t, err)
	assert.Equal(t, int64(1250), sum.Amount)
}

func TestMultiplyQtyExact(t *testing.T) {
	unit := New("USD", 1999)
	line := unit.MultiplyQty(2)
	assert.Equal(t, int64(3998), line.Amount)
}

func TestMultiplyRateBankersRounding(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		rate   string
		want   int64
	}{
		// 0.015 rounded to nearest even cent: 1.5 -> 2 (1 is odd, rounds up)
		{"round up from odd predecessor", 150, "0.01", 2},
		// 2.5 -> 2 (2 is even, stays)
		{"round down to even predecessor", 250, "0.01", 2},
		{"exact no rounding", 10000, "0.08", 800},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := decimal.NewFromString(tc.rate)
			require.NoError(t, err)
			got := New("USD", tc.amount).MultiplyRate(rate)
			assert.Equal(t, tc.want, got.Amount)
		})
	}
}

func TestSumEmptyReturnsZero(t *testing.T) {
	total, err := Sum("USD")
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestHappyCheckoutTotals(t *testing.T) {
	// From spec.md scenario 1: 2x19.99 USD, 8% tax, 5.00 shipping.
	unit := New("USD", 1999)
	subtotal := unit.MultiplyQty(2)
	require.Equal(t, int64(3998), subtotal.Amount)

	rate, err := decimal.NewFromString("0.08")
	require.NoError(t, err)
	tax := subtotal.MultiplyRate(rate)
	require.Equal(t, int64(320), tax.Amount)

	shipping := New("USD", 500)
	total, err := subtotal.Add(tax)
	require.NoError(t, err)
	total, err = total.Add(shipping)
	require.NoError(t, err)

	assert.Equal(t, int64(4818), total.Amount)
}
