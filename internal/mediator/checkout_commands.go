package mediator

import (
	"context"

	"github.com/timour/stateset-core/internal/checkout"
	"github.com/timour/stateset-core/internal/core"
)

// Permission names for checkout commands. Checkout sessions are
// buyer-initiated, so the default wiring a caller picks for "who can run
// this" is looser than the back-office order/inventory permissions declared
// in order_commands.go and inventory_commands.go;
// the mediator itself is agnostic to that policy, it only checks the name.
const (
	PermCheckoutWrite    = "checkout:write"
	PermCheckoutComplete = "checkout:complete"
	PermCheckoutCancel   = "checkout:cancel"
)

// CreateCheckoutSession wraps checkout.Engine.CreateSession (spec.md §4.7
// create_session()).
type CreateCheckoutSession struct {
	Engine   *checkout.Engine
	Currency string
	Items    []checkout.SessionItem
	Buyer    *checkout.Buyer
	Address  *checkout.Address
}

func (c CreateCheckoutSession) Validate() error {
	if c.Currency == "" {
		return core.New(core.KindValidation, "MISSING_CURRENCY", "checkout session currency is required")
	}
	if len(c.Items) == 0 {
		return core.New(core.KindValidation, "NO_ITEMS", "checkout session must have at least one item")
	}
	return nil
}

func (c CreateCheckoutSession) Authorize(p Principal) error {
	return RequirePermission(p, PermCheckoutWrite)
}

func (c CreateCheckoutSession) Handle(ctx context.Context) (checkout.Session, error) {
	return c.Engine.CreateSession(ctx, c.Currency, c.Items, c.Buyer, c.Address)
}

// UpdateCheckoutSession wraps checkout.Engine.UpdateSession (spec.md §4.7
// "update_session merges partial patches").
type UpdateCheckoutSession struct {
	Engine *checkout.Engine
	ID     string
	Patch  checkout.SessionPatch
}

func (c UpdateCheckoutSession) Validate() error {
	if c.ID == "" {
		return core.New(core.KindValidation, "MISSING_SESSION_ID", "session id is required")
	}
	return nil
}

func (c UpdateCheckoutSession) Authorize(p Principal) error {
	return RequirePermission(p, PermCheckoutWrite)
}

func (c UpdateCheckoutSession) Handle(ctx context.Context) (checkout.Session, error) {
	return c.Engine.UpdateSession(ctx, c.ID, c.Patch)
}

// CompleteCheckoutSession wraps checkout.Engine.CompleteSession, spec.md
// §4.7's two-phase authorize/capture protocol. IdempotencyKey is required:
// the engine itself resolves it through the idempotency store (spec.md
// §4.7 "complete_session is guarded by the idempotency store"), so a
// caller retrying the exact same request never double-authorizes.
type CompleteCheckoutSession struct {
	Engine         *checkout.Engine
	SessionID      string
	IdempotencyKey string
	PaymentToken   string
}

func (c CompleteCheckoutSession) Validate() error {
	if c.SessionID == "" {
		return core.New(core.KindValidation, "MISSING_SESSION_ID", "session id is required")
	}
	if c.IdempotencyKey == "" {
		return core.New(core.KindValidation, "MISSING_IDEMPOTENCY_KEY", "an idempotency key is required to complete a checkout session")
	}
	if c.PaymentToken == "" {
		return core.New(core.KindValidation, "MISSING_PAYMENT_TOKEN", "a payment token is required")
	}
	return nil
}

func (c CompleteCheckoutSession) Authorize(p Principal) error {
	return RequirePermission(p, PermCheckoutComplete)
}

func (c CompleteCheckoutSession) Handle(ctx context.Context) (checkout.Session, error) {
	return c.Engine.CompleteSession(ctx, c.SessionID, c.IdempotencyKey, c.PaymentToken)
}

// CancelCheckoutSession wraps checkout.Engine.CancelSession (spec.md §4.7
// cancel_session()).
type CancelCheckoutSession struct {
	Engine *checkout.Engine
	ID     string
}

func (c CancelCheckoutSession) Validate() error {
	if c.ID == "" {
		return core.New(core.KindValidation, "MISSING_SESSION_ID", "session id is required")
	}
	return nil
}

func (c CancelCheckoutSession) Authorize(p Principal) error {
	return RequirePermission(p, PermCheckoutCancel)
}

func (c CancelCheckoutSession) Handle(ctx context.Context) (checkout.Session, error) {
	return c.Engine.CancelSession(ctx, c.ID)
}
