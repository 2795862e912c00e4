package checkout

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/timour/stateset-core/internal/tracing"
)

// DefaultProviderConcurrency bounds how many concurrent PaymentProvider
// calls the engine allows, so a slow provider can't exhaust every goroutine
// servicing checkout requests (kvishalv-reliable-orders'
// internal/reliability/bulkhead.go).
const DefaultProviderConcurrency = 32

type bulkhead struct {
	sem *semaphore.Weighted
}

func newBulkhead(maxConcurrent int64) *bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultProviderConcurrency
	}
	return &bulkhead{sem: semaphore.NewWeighted(maxConcurrent)}
}

func (b *bulkhead) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, span := tracing.Start(ctx, "checkout.bulkhead")
	defer span.End()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("checkout: bulkhead limit reached: %w", err)
	}
	defer b.sem.Release(1)
	return fn(ctx)
}
