package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/timour/stateset-core/internal/catalog"
	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/gateway"
	"github.com/timour/stateset-core/internal/idempotency"
	"github.com/timour/stateset-core/internal/inventory"
	"github.com/timour/stateset-core/internal/metrics"
	"github.com/timour/stateset-core/internal/money"
	"github.com/timour/stateset-core/internal/order"
	"github.com/timour/stateset-core/internal/outbox"
	"github.com/timour/stateset-core/internal/tracing"
)

// Engine is the Checkout/Payment Engine (spec.md §4.7): session
// create/update/complete/cancel, fulfillment resolution, and the two-phase
// authorize/capture payment protocol, all coordinating the order and
// inventory engines it's built on top of.
type Engine struct {
	sessions    SessionStore
	intents     *IntentStore
	idempotency idempotency.Store
	gw          *gateway.Gateway
	orders      *order.Engine
	inv         *inventory.Engine
	catalog     catalog.Reader
	provider    PaymentProvider
	outbox      outbox.Appender
	logger      *slog.Logger
	metrics     *metrics.Core
	taxRate     decimal.Decimal
	locationIDs []string
}

// Config bundles Engine's dependencies, small enough for Go's usual
// multi-arg constructor but grouped here since the list has grown past
// what's comfortable as positional parameters.
type Config struct {
	Sessions        SessionStore
	Intents         *IntentStore
	Idempotency     idempotency.Store
	Gateway         *gateway.Gateway
	Orders          *order.Engine
	Inventory       *inventory.Engine
	Catalog         catalog.Reader
	Provider        PaymentProvider
	Outbox          outbox.Appender
	Logger          *slog.Logger
	Metrics         *metrics.Core
	TaxRate         decimal.Decimal
	LocationIDs     []string
	ProviderName    string
	MaxConcurrency  int64
}

// NewEngine wraps cfg.Provider with the circuit breaker and bulkhead before
// wiring it into the returned Engine.
func NewEngine(cfg Config) *Engine {
	guarded := newGuardedProvider(cfg.Provider, cfg.ProviderName, cfg.MaxConcurrency, cfg.Metrics)
	return &Engine{
		sessions: cfg.Sessions, intents: cfg.Intents, idempotency: cfg.Idempotency,
		gw: cfg.Gateway, orders: cfg.Orders, inv: cfg.Inventory, catalog: cfg.Catalog,
		provider: guarded, outbox: cfg.Outbox, logger: cfg.Logger, metrics: cfg.Metrics,
		taxRate: cfg.TaxRate, locationIDs: cfg.LocationIDs,
	}
}

// CreateSession opens a new session, eagerly computing totals and
// fulfillment options from the catalog/inventory, per spec.md §4.7.
func (e *Engine) CreateSession(ctx context.Context, currency string, items []SessionItem, buyer *Buyer, address *Address) (sess Session, err error) {
	ctx, span := tracing.Start(ctx, "checkout.create_session")
	defer tracing.End(span, &err)

	if currency == "" {
		return Session{}, core.New(core.KindValidation, "MISSING_CURRENCY", "checkout session currency is required")
	}
	sess = Session{
		ID: uuid.NewString(), Status: SessionNotReady, Currency: currency,
		Items: items, Buyer: buyer, FulfillmentAddress: address,
		CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(DefaultSessionTTL),
	}

	if err := e.recompute(ctx, &sess); err != nil {
		return Session{}, err
	}
	if err := e.sessions.Save(ctx, sess, DefaultSessionTTL); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// recompute runs fulfillment resolution and totals, then re-evaluates
// readiness, per spec.md §4.7's "any mutation recomputes totals and
// fulfillment options and re-evaluates readiness".
func (e *Engine) recompute(ctx context.Context, sess *Session) error {
	if err := resolveFulfillment(ctx, e.inv, e.catalog, e.locationIDs, sess); err != nil {
		return err
	}

	subtotal := money.Zero(sess.Currency)
	for _, item := range sess.Items {
		line := item.UnitPrice.MultiplyQty(item.Quantity)
		added, err := subtotal.Add(line)
		if err != nil {
			return err
		}
		subtotal = added
	}

	shipping := money.Zero(sess.Currency)
	for _, opt := range sess.FulfillmentOptions {
		if opt.ID == sess.FulfillmentOptionID {
			shipping = opt.Shipping
		}
	}

	tax := subtotal.MultiplyRate(e.taxRate)
	total, err := subtotal.Add(tax)
	if err != nil {
		return err
	}
	if total, err = total.Add(shipping); err != nil {
		return err
	}

	sess.Totals = Totals{Subtotal: subtotal, Tax: tax, Shipping: shipping, Total: total}

	if !sess.Status.terminal() {
		if isReady(*sess) {
			sess.Status = SessionReady
		} else {
			sess.Status = SessionNotReady
		}
	}
	return nil
}

// UpdateSession applies a partial patch (any nil field is left unchanged)
// and recomputes totals/fulfillment/readiness.
type SessionPatch struct {
	Buyer               *Buyer
	FulfillmentAddress  *Address
	FulfillmentOptionID *string
	Items               []SessionItem
}

// UpdateSession merges patch into the stored session (spec.md §4.7
// "update_session merges partial patches").
func (e *Engine) UpdateSession(ctx context.Context, id string, patch SessionPatch) (Session, error) {
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status.terminal() {
		return Session{}, core.InvalidTransition("checkout_session", string(sess.Status), "update")
	}

	if patch.Buyer != nil {
		sess.Buyer = patch.Buyer
	}
	if patch.FulfillmentAddress != nil {
		sess.FulfillmentAddress = patch.FulfillmentAddress
	}
	if patch.FulfillmentOptionID != nil {
		sess.FulfillmentOptionID = *patch.FulfillmentOptionID
	}
	if patch.Items != nil {
		sess.Items = patch.Items
	}

	if err := e.recompute(ctx, &sess); err != nil {
		return Session{}, err
	}
	if err := e.sessions.Save(ctx, sess, time.Until(sess.ExpiresAt)); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// CompleteSession runs spec.md §4.7's two-phase payment protocol, guarded
// by idempotencyKey so a retried request never double-authorizes.
func (e *Engine) CompleteSession(ctx context.Context, sessionID, idempotencyKey, paymentToken string) (sess Session, err error) {
	ctx, span := tracing.Start(ctx, "checkout.complete_session")
	defer tracing.End(span, &err)

	resolved, err := e.idempotency.Resolve(ctx, idempotencyKey, "checkout.complete_session", "POST", sessionID+paymentToken)
	if err != nil {
		return Session{}, err
	}
	if resolved.Outcome == idempotency.Conflict {
		return Session{}, core.Conflict("IDEMPOTENCY_KEY_REUSED", "idempotency key already used for a different request")
	}
	if resolved.Outcome == idempotency.Hit {
		return e.sessions.Get(ctx, sessionID)
	}

	sess, err = e.completeSession(ctx, sessionID, paymentToken)
	if err != nil {
		_ = e.idempotency.Release(ctx, idempotencyKey, "checkout.complete_session", "POST")
		return Session{}, err
	}
	_ = e.idempotency.Complete(ctx, idempotencyKey, "checkout.complete_session", "POST", 200, nil, idempotency.DefaultTTL)
	return sess, nil
}

func (e *Engine) completeSession(ctx context.Context, sessionID, paymentToken string) (Session, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != SessionReady {
		return Session{}, core.InvalidTransition("checkout_session", string(sess.Status), string(SessionComplete))
	}

	authResult, err := e.provider.Authorize(ctx, sess.Totals.Total, paymentToken)
	if err != nil {
		return Session{}, err
	}

	var intent PaymentIntent
	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		var txErr error
		intent, txErr = e.intents.Insert(ctx, tx, PaymentIntent{
			SessionID: sess.ID, Status: IntentAuthorized, Amount: sess.Totals.Total,
			Provider: "stripe", ProviderRef: authResult.ProviderRef, AuthorizedAt: time.Now().UTC(),
		})
		return txErr
	})
	if err != nil {
		return Session{}, err
	}
	sess.PaymentIntentID = intent.ID

	newOrder, err := e.createOrderFromSession(ctx, sess)
	if err != nil {
		e.voidAndLog(ctx, intent)
		return Session{}, err
	}
	sess.OrderID = newOrder.ID

	if _, err := e.orders.LinkPaymentIntent(ctx, newOrder.ID, intent.ID); err != nil {
		e.logger.Error("checkout: failed to link payment intent to order", slog.String("order_id", newOrder.ID), slog.Any("error", err))
	}
	newOrder, err = e.orders.Submit(ctx, newOrder.ID)
	if err != nil {
		e.voidAndLog(ctx, intent)
		e.cancelOrderAndLog(ctx, sess.OrderID)
		return Session{}, err
	}
	if newOrder, err = e.orders.Allocate(ctx, newOrder.ID, e.primaryLocation()); err != nil {
		e.voidAndLog(ctx, intent)
		e.cancelOrderAndLog(ctx, sess.OrderID)
		return Session{}, err
	}

	if err := e.provider.Capture(ctx, intent.ProviderRef, sess.Totals.Total); err != nil {
		if voidErr := e.provider.Void(ctx, intent.ProviderRef); voidErr != nil {
			e.logger.Error("checkout: failed to void payment intent after capture failure", slog.String("intent_id", intent.ID), slog.Any("error", voidErr))
		}
		e.markIntentFailed(ctx, intent.ID, err)
		e.cancelOrderAndLog(ctx, sess.OrderID)
		return Session{}, core.Wrap(core.KindProviderDeclined, "CAPTURE_FAILED", "payment capture failed after authorization", err)
	}

	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		if err := e.intents.UpdateStatus(ctx, tx, intent.ID, IntentCaptured, newOrder.ID, ""); err != nil {
			return err
		}
		evt, err := outbox.New("checkout_session", sess.ID, "checkout.completed", sess.ID, map[string]any{
			"session_id": sess.ID, "order_id": newOrder.ID,
		})
		if err != nil {
			return fmt.Errorf("checkout: failed to build checkout.completed event: %w", err)
		}
		return e.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return Session{}, err
	}

	sess.Status = SessionComplete
	if err := e.sessions.Save(ctx, sess, time.Until(sess.ExpiresAt)); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// primaryLocation returns the first configured location id, the default
// fulfillment location when no per-session location was chosen.
func (e *Engine) primaryLocation() string {
	if len(e.locationIDs) == 0 {
		return "default"
	}
	return e.locationIDs[0]
}

func (e *Engine) createOrderFromSession(ctx context.Context, sess Session) (order.Order, error) {
	items := make([]order.Item, 0, len(sess.Items))
	for _, it := range sess.Items {
		items = append(items, order.Item{
			ProductID: it.ProductID, SKU: it.SKU, Quantity: it.Quantity,
			UnitPrice: it.UnitPrice, LineDiscount: money.Zero(sess.Currency), LineTax: money.Zero(sess.Currency),
		})
	}
	var billing, shipping *order.Address
	if sess.FulfillmentAddress != nil {
		shipping = &order.Address{
			Name: sess.FulfillmentAddress.Name, Line1: sess.FulfillmentAddress.Line1, Line2: sess.FulfillmentAddress.Line2,
			City: sess.FulfillmentAddress.City, Region: sess.FulfillmentAddress.Region,
			PostalCode: sess.FulfillmentAddress.PostalCode, Country: sess.FulfillmentAddress.Country,
		}
		billing = shipping
	}
	customerID := ""
	if sess.Buyer != nil {
		customerID = sess.Buyer.Email
	}
	return e.orders.Create(ctx, order.Order{
		TenantID: "default", CustomerID: customerID, Currency: sess.Currency,
		Shipping: sess.Totals.Shipping, Items: items,
		BillingAddress: billing, ShippingAddress: shipping,
	})
}

// CancelSession implements spec.md §4.7's cancel_session: permitted from any
// non-terminal state, voiding an authorized intent if one exists.
func (e *Engine) CancelSession(ctx context.Context, id string) (Session, error) {
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status.terminal() {
		return Session{}, core.InvalidTransition("checkout_session", string(sess.Status), string(SessionCanceled))
	}

	if sess.PaymentIntentID != "" {
		intent, err := e.intents.Get(ctx, sess.PaymentIntentID)
		if err == nil && intent.Status == IntentAuthorized {
			e.voidAndLog(ctx, intent)
		}
	}

	sess.Status = SessionCanceled
	if err := e.sessions.Save(ctx, sess, time.Until(sess.ExpiresAt)); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (e *Engine) voidAndLog(ctx context.Context, intent PaymentIntent) {
	if err := e.provider.Void(ctx, intent.ProviderRef); err != nil {
		e.logger.Error("checkout: failed to void payment intent", slog.String("intent_id", intent.ID), slog.Any("error", err))
	}
	txErr := e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		return e.intents.UpdateStatus(ctx, tx, intent.ID, IntentCanceled, "", "")
	})
	if txErr != nil {
		e.logger.Error("checkout: failed to mark payment intent canceled", slog.String("intent_id", intent.ID), slog.Any("error", txErr))
	}
}

func (e *Engine) markIntentFailed(ctx context.Context, intentID string, cause error) {
	txErr := e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		return e.intents.UpdateStatus(ctx, tx, intentID, IntentFailed, "", cause.Error())
	})
	if txErr != nil {
		e.logger.Error("checkout: failed to mark payment intent failed", slog.String("intent_id", intentID), slog.Any("error", txErr))
	}
}

func (e *Engine) cancelOrderAndLog(ctx context.Context, orderID string) {
	if orderID == "" {
		return
	}
	if _, err := e.orders.Cancel(ctx, orderID); err != nil {
		e.logger.Error("checkout: failed to cancel order after payment failure", slog.String("order_id", orderID), slog.Any("error", err))
	}
}
