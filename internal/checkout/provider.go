package checkout

import (
	"context"

	"github.com/timour/stateset-core/internal/money"
)

// AuthorizeResult is what a successful PaymentProvider.Authorize call
// returns: a provider-side reference the later Capture/Void calls use.
type AuthorizeResult struct {
	ProviderRef string
}

// PaymentProvider is the outbound port spec.md §4.7 calls for: a two-phase
// authorize/capture/void protocol, implemented by provider_mock.go (tests)
// and provider_stripe.go (production), selected by configuration per
// spec.md §9's "Dynamic dispatch" note.
type PaymentProvider interface {
	Authorize(ctx context.Context, amount money.Money, token string) (AuthorizeResult, error)
	Capture(ctx context.Context, providerRef string, amount money.Money) error
	Void(ctx context.Context, providerRef string) error
}

// Declined marks a provider decline as distinct from a transport error, so
// callers can tell "card declined" (expected, surfaces to the buyer) apart
// from "provider unreachable" (retryable/circuit-breaker territory).
type Declined struct {
	Reason string
}

func (d *Declined) Error() string {
	return "payment declined: " + d.Reason
}
