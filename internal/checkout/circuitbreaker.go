package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/timour/stateset-core/internal/metrics"
	"github.com/timour/stateset-core/internal/tracing"
)

// circuitBreaker wraps gobreaker around a PaymentProvider call, grounded on
// kvishalv-reliable-orders' internal/reliability/circuit_breaker.go: it
// opens after 5 consecutive failures or a 60% failure rate with at least 10
// requests in the rolling window, giving a struggling provider time to
// recover instead of piling up latency on every checkout.
type circuitBreaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

func newCircuitBreaker(name string, m *metrics.Core) *circuitBreaker {
	c := &circuitBreaker{name: name}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 || (counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen && m != nil {
				m.CircuitBreakerTrips.WithLabelValues(name).Inc()
			}
		},
	})
	return c
}

func (c *circuitBreaker) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, span := tracing.Start(ctx, "checkout.circuit_breaker."+c.name)
	defer span.End()
	tracing.CircuitState(span, c.cb.State().String())

	// A provider decline is an expected outcome, not a provider failure, so
	// it is reported to gobreaker as a success and returned afterwards.
	var declinedErr error
	_, err := c.cb.Execute(func() (any, error) {
		fnErr := fn(ctx)
		var declined *Declined
		if errors.As(fnErr, &declined) {
			declinedErr = fnErr
			return nil, nil
		}
		return nil, fnErr
	})
	if declinedErr != nil {
		return declinedErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("checkout: circuit breaker %s open: %w", c.name, err)
		}
		return err
	}
	return nil
}
