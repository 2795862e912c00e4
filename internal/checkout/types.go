// Package checkout is the Checkout/Payment Engine (spec.md §4.7): session
// lifecycle, fulfillment option resolution, and the two-phase
// authorize/capture payment protocol. Grounded on Tim275-oms's
// payments/service.go and payments/processor/stripe.go for the provider
// port shape, with the Checkout Session hosted-page flow replaced by the
// spec's own two-phase PaymentIntent protocol and the reliability wrapping
// (circuit breaker, bulkhead) adapted from kvishalv-reliable-orders.
package checkout

import (
	"time"

	"github.com/timour/stateset-core/internal/money"
)

// SessionStatus is a CheckoutSession's lifecycle state (spec.md §3).
type SessionStatus string

const (
	SessionNotReady SessionStatus = "NOT_READY_FOR_PAYMENT"
	SessionReady    SessionStatus = "READY_FOR_PAYMENT"
	SessionComplete SessionStatus = "COMPLETED"
	SessionCanceled SessionStatus = "CANCELED"
)

func (s SessionStatus) terminal() bool {
	return s == SessionComplete || s == SessionCanceled
}

// Buyer identifies the person completing checkout.
type Buyer struct {
	Email string
	Name  string
	Phone string
}

// Address is a fulfillment destination, a type distinct from order.Address;
// the checkout engine's createOrderFromSession maps one onto the other when
// it creates the order.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// SessionItem is one line the buyer is checking out with.
type SessionItem struct {
	ProductID string
	SKU       string
	Name      string
	Quantity  int64
	UnitPrice money.Money
}

// FulfillmentOption is one resolved way to fulfill the session's items,
// priced in the session's currency.
type FulfillmentOption struct {
	ID         string
	LocationID string
	Label      string
	Shipping   money.Money
}

// Message is a human-readable note surfaced to the buyer (e.g. "item out of
// stock everywhere"), spec.md §3's `messages[]`.
type Message struct {
	Code string
	Text string
}

// Totals holds the session's recomputed total breakdown.
type Totals struct {
	Subtotal money.Money
	Tax      money.Money
	Shipping money.Money
	Discount money.Money
	Total    money.Money
}

// Session is the CheckoutSession aggregate of spec.md §3: transient,
// stored in the session cache rather than Postgres, with a bounded TTL.
type Session struct {
	ID                  string
	Status              SessionStatus
	Buyer               *Buyer
	Items               []SessionItem
	FulfillmentAddress  *Address
	FulfillmentOptionID string
	FulfillmentOptions  []FulfillmentOption
	PaymentProvider     string
	Currency            string
	Totals              Totals
	Messages            []Message
	Links               []string
	PaymentIntentID     string
	OrderID             string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// PaymentIntentStatus is a PaymentIntent's lifecycle state. Transitions only
// forward, per spec.md §3.
type PaymentIntentStatus string

const (
	IntentAuthorized PaymentIntentStatus = "AUTHORIZED"
	IntentCaptured   PaymentIntentStatus = "CAPTURED"
	IntentCanceled   PaymentIntentStatus = "CANCELED"
	IntentFailed     PaymentIntentStatus = "FAILED"
)

// PaymentIntent is the two-phase payment record spec.md §3 describes.
type PaymentIntent struct {
	ID           string
	SessionID    string
	OrderID      string
	Status       PaymentIntentStatus
	Amount       money.Money
	Provider     string
	ProviderRef  string
	AuthorizedAt time.Time
	CapturedAt   *time.Time
	LastError    string
}
