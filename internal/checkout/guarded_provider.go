package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/timour/stateset-core/internal/metrics"
	"github.com/timour/stateset-core/internal/money"
)

// guardedProvider wraps a PaymentProvider with a circuit breaker and
// bulkhead (SPEC_FULL.md's Checkout/Payment Engine expansion) and retries
// Authorize/Void, which are safe to repeat, with exponential backoff. Capture
// is never retried here: a capture that fails after a successful authorize
// is handled by the engine's own void-and-cancel path (see DESIGN.md's Open
// Question resolution), not by silently retrying against the provider.
type guardedProvider struct {
	inner PaymentProvider
	cb    *circuitBreaker
	bh    *bulkhead
	m     *metrics.Core
}

func newGuardedProvider(inner PaymentProvider, name string, maxConcurrent int64, m *metrics.Core) *guardedProvider {
	return &guardedProvider{
		inner: inner,
		cb:    newCircuitBreaker(name, m),
		bh:    newBulkhead(maxConcurrent),
		m:     m,
	}
}

func (g *guardedProvider) guard(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := g.bh.execute(ctx, func(ctx context.Context) error {
		return g.cb.execute(ctx, fn)
	})
	if g.m != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		g.m.PaymentOutcomes.WithLabelValues(operation, outcome).Inc()
	}
	return err
}

// Authorize implements PaymentProvider, retrying transport failures (not
// declines, which are terminal) for up to 3 attempts in all, with
// exponential backoff between them.
func (g *guardedProvider) Authorize(ctx context.Context, amount money.Money, token string) (result AuthorizeResult, err error) {
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}
		err = g.guard(ctx, "authorize", func(ctx context.Context) error {
			var innerErr error
			result, innerErr = g.inner.Authorize(ctx, amount, token)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		var declined *Declined
		if errors.As(err, &declined) {
			return AuthorizeResult{}, err
		}
	}
	return AuthorizeResult{}, err
}

// Capture implements PaymentProvider with no retry, per the guardedProvider
// type doc.
func (g *guardedProvider) Capture(ctx context.Context, providerRef string, amount money.Money) error {
	return g.guard(ctx, "capture", func(ctx context.Context) error {
		return g.inner.Capture(ctx, providerRef, amount)
	})
}

// Void implements PaymentProvider, retried since re-voiding an
// already-voided intent is a safe no-op for every provider this core
// targets.
func (g *guardedProvider) Void(ctx context.Context, providerRef string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}
		err = g.guard(ctx, "void", func(ctx context.Context) error {
			return g.inner.Void(ctx, providerRef)
		})
		if err == nil {
			return nil
		}
	}
	return err
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
