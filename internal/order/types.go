// Package order is the Order Aggregate (spec.md §4.6): the order state
// machine, its owned line items, totals, holds/cancellation/refund, and
// split/merge. Grounded on Tim275-oms's orders/types.go and orders/store.go
// service/store split, with the storage layer rewritten from MongoDB
// documents onto the Postgres/optimistic-version model internal/gateway
// provides, since spec.md requires a version column and exact invariant
// checking a schemaless store can't enforce.
package order

import (
	"time"

	"github.com/timour/stateset-core/internal/money"
)

// Status is one state in spec.md §4.6's order state machine.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPending   Status = "PENDING"
	StatusAllocated Status = "ALLOCATED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusClosed    Status = "CLOSED"
	StatusOnHold    Status = "ON_HOLD"
	StatusCanceled  Status = "CANCELED"
	StatusRefunded  Status = "REFUNDED"
	StatusArchived  Status = "ARCHIVED"
)

// terminal reports whether no further transition is possible.
func (s Status) terminal() bool {
	return s == StatusClosed || s == StatusCanceled || s == StatusRefunded || s == StatusArchived
}

// Address is a shipping or billing address.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Item is one owned line of an Order. Immutable once the order's status is
// Shipped or later (spec.md §3).
type Item struct {
	ID           string
	ProductID    string
	SKU          string
	Quantity     int64
	UnitPrice    money.Money
	LineDiscount money.Money
	LineTax      money.Money
}

// LineSubtotal returns unit_price*quantity - line_discount, exact (no
// rounding: both operands are already integer minor units). A zero-value
// LineDiscount (no discount set) is treated as zero in the item's own
// currency rather than tripping the cross-currency guard.
func (i Item) LineSubtotal() (money.Money, error) {
	discount := i.LineDiscount
	if discount.Currency == "" {
		discount = money.Zero(i.UnitPrice.Currency)
	}
	return i.UnitPrice.MultiplyQty(i.Quantity).Sub(discount)
}

// Order is the transactional consistency boundary of spec.md §3: it
// exclusively owns its Items (deleting an order deletes them) and links to
// its inventory reservations and payment intent by surrogate id only
// (spec.md §9 "cyclic references"), never a direct pointer.
type Order struct {
	ID          string
	OrderNumber int64
	TenantID    string
	CustomerID  string
	Status      Status
	// PriorStatus is the status OnHold was entered from, so Release can
	// restore it (spec.md §4.6: "OnHold -> release -> prior").
	PriorStatus Status

	Currency string
	Subtotal money.Money
	Tax      money.Money
	Shipping money.Money
	Discount money.Money
	Total    money.Money

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	BillingAddress  *Address
	ShippingAddress *Address
	Notes           []string
	Tags            []string

	PaymentIntentID string
	// MergedInto, when set, names the surviving order a merge() absorbed
	// this one into; Status is Canceled in that case.
	MergedInto string

	Items []Item
}

// ReservationRefs is the surrogate link from an order to the inventory
// reservations it holds, persisted in the order_reservations join table
// rather than embedded, per spec.md §9.
type ReservationRefs struct {
	OrderID        string
	ReservationIDs []string
}
