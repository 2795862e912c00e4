package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/timour/stateset-core/internal/money"
)

func TestRecomputeTotalsSumsLinesAndAppliesTax(t *testing.T) {
	o := &Order{
		Currency: "USD",
		Items: []Item{
			{UnitPrice: money.New("USD", 1000), Quantity: 2, LineDiscount: money.New("USD", 0)},
			{UnitPrice: money.New("USD", 500), Quantity: 1, LineDiscount: money.New("USD", 100)},
		},
		Shipping: money.New("USD", 250),
		Discount: money.New("USD", 50),
	}
	err := RecomputeTotals(o, decimal.NewFromFloat(0.1))
	require.NoError(t, err)

	require.Equal(t, int64(2400), o.Subtotal.Amount) // (1000*2) + (500-100)
	require.Equal(t, int64(240), o.Tax.Amount)        // 2400 * 0.1
	require.Equal(t, int64(2840), o.Total.Amount)     // 2400+240+250-50
}

func TestRecomputeTotalsZeroTaxRate(t *testing.T) {
	o := &Order{
		Currency: "USD",
		Items:    []Item{{UnitPrice: money.New("USD", 999), Quantity: 1}},
		Shipping: money.Zero("USD"),
		Discount: money.Zero("USD"),
	}
	err := RecomputeTotals(o, decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, int64(999), o.Subtotal.Amount)
	require.Equal(t, int64(0), o.Tax.Amount)
	require.Equal(t, int64(999), o.Total.Amount)
}

func TestRecomputeTotalsRejectsCurrencyMismatch(t *testing.T) {
	o := &Order{
		Currency: "USD",
		Items:    []Item{{UnitPrice: money.New("EUR", 100), Quantity: 1}},
	}
	err := RecomputeTotals(o, decimal.Zero)
	require.Error(t, err)
}

func TestLineSubtotalSubtractsDiscount(t *testing.T) {
	item := Item{UnitPrice: money.New("USD", 500), Quantity: 3, LineDiscount: money.New("USD", 200)}
	sub, err := item.LineSubtotal()
	require.NoError(t, err)
	require.Equal(t, int64(1300), sub.Amount)
}
