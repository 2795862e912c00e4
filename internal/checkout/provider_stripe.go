package checkout

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"

	"github.com/timour/stateset-core/internal/money"
)

// StripeProvider implements PaymentProvider against Stripe's PaymentIntents
// API with manual capture, the two-phase split spec.md §4.7 needs. Grounded
// on Tim275-oms's payments/processor/stripe.go (package-level `stripe.Key`
// assignment, `fmt.Errorf("failed to ...: %w", err)` wrapping), re-pointed
// from the hosted Checkout Session flow onto PaymentIntents because a
// Checkout Session has no separate authorize/capture step.
type StripeProvider struct{}

// NewStripeProvider sets the package-level Stripe API key and returns a
// provider. Stripe's Go client is a package singleton, the same pattern
// payments/processor/stripe.go uses for NewStripeProcessor.
func NewStripeProvider(apiKey string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{}
}

// Authorize implements PaymentProvider by creating and confirming a
// PaymentIntent with manual capture, leaving funds held but not captured.
func (p *StripeProvider) Authorize(ctx context.Context, amount money.Money, token string) (AuthorizeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount.Amount),
		Currency:      stripe.String(amount.Currency),
		PaymentMethod: stripe.String(token),
		Confirm:       stripe.Bool(true),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethodOptions: &stripe.PaymentIntentPaymentMethodOptionsParams{
			Card: &stripe.PaymentIntentPaymentMethodOptionsCardParams{
				RequestThreeDSecure: stripe.String("automatic"),
			},
		},
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		return AuthorizeResult{}, toDeclineOrError(err)
	}
	if intent.Status != stripe.PaymentIntentStatusRequiresCapture {
		return AuthorizeResult{}, &Declined{Reason: fmt.Sprintf("unexpected intent status %s", intent.Status)}
	}
	return AuthorizeResult{ProviderRef: intent.ID}, nil
}

// Capture implements PaymentProvider.
func (p *StripeProvider) Capture(ctx context.Context, providerRef string, amount money.Money) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amount.Amount),
	}
	params.Context = ctx
	if _, err := paymentintent.Capture(providerRef, params); err != nil {
		return fmt.Errorf("checkout: stripe capture failed for %s: %w", providerRef, err)
	}
	return nil
}

// Void implements PaymentProvider by canceling the PaymentIntent, releasing
// the held authorization.
func (p *StripeProvider) Void(ctx context.Context, providerRef string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(providerRef, params); err != nil {
		return fmt.Errorf("checkout: stripe void failed for %s: %w", providerRef, err)
	}
	return nil
}

// toDeclineOrError reclassifies Stripe's card_declined error code as a
// Declined (expected, not a circuit-breaker-worthy failure), leaving
// everything else (network, auth, rate-limit) as an ordinary error.
func toDeclineOrError(err error) error {
	if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Code == stripe.ErrorCodeCardDeclined {
		return &Declined{Reason: stripeErr.Msg}
	}
	return fmt.Errorf("checkout: stripe authorize failed: %w", err)
}
