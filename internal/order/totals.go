package order

import (
	"github.com/shopspring/decimal"

	"github.com/timour/stateset-core/internal/money"
)

// RecomputeTotals deterministically derives subtotal/tax/total from o.Items
// and o.Shipping/o.Discount, per spec.md §4.6:
//
//	line_subtotal = round(unit_price*quantity - line_discount)
//	subtotal = Σ line_subtotal
//	tax = round(subtotal * tax_rate)
//	total = subtotal + tax + shipping - discount
//
// Rounding is banker's rounding to minor-unit precision, done by
// money.MultiplyRate. Returns an error if any line or the shipping/discount
// figures are in a different currency than o.Currency (spec.md §3: "mixing
// currencies within a single aggregate is forbidden").
func RecomputeTotals(o *Order, taxRate decimal.Decimal) error {
	if o.Shipping.Currency == "" {
		o.Shipping = money.Zero(o.Currency)
	}
	if o.Discount.Currency == "" {
		o.Discount = money.Zero(o.Currency)
	}

	subtotal := money.Zero(o.Currency)
	for _, item := range o.Items {
		lineSubtotal, err := item.LineSubtotal()
		if err != nil {
			return err
		}
		subtotal, err = subtotal.Add(lineSubtotal)
		if err != nil {
			return err
		}
	}

	tax := subtotal.MultiplyRate(taxRate)

	total, err := subtotal.Add(tax)
	if err != nil {
		return err
	}
	if total, err = total.Add(o.Shipping); err != nil {
		return err
	}
	if total, err = total.Sub(o.Discount); err != nil {
		return err
	}

	o.Subtotal = subtotal
	o.Tax = tax
	o.Total = total
	return nil
}
