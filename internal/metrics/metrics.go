// Package metrics exposes the Prometheus instruments for the transactional
// core's background machinery (outbox dispatch, webhook delivery, rate
// limiting), in the promauto style of Tim275-oms's common/metrics package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Core bundles every metric the transactional core emits. It is constructed
// once per process and passed into the components that need it.
type Core struct {
	OutboxEventsTotal    *prometheus.CounterVec
	OutboxDispatchLag    prometheus.Histogram
	WebhookDeliveryTotal *prometheus.CounterVec
	WebhookAttempts      prometheus.Histogram
	RateLimitDenials     *prometheus.CounterVec
	ReservationOutcomes  *prometheus.CounterVec
	GatewayRetries       prometheus.Counter
	PaymentOutcomes      *prometheus.CounterVec
	CircuitBreakerTrips  *prometheus.CounterVec
}

// New registers and returns the core metric set for serviceName.
func New(serviceName string) *Core {
	return &Core{
		OutboxEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_outbox_events_total",
				Help: "Outbox delivery outcomes by event type and resulting status (DELIVERED, PENDING on requeue, FAILED).",
			},
			[]string{"event_type", "status"},
		),
		OutboxDispatchLag: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    serviceName + "_outbox_dispatch_lag_seconds",
				Help:    "Time between an outbox event becoming available and being claimed.",
				Buckets: prometheus.DefBuckets,
			},
		),
		WebhookDeliveryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_webhook_deliveries_total",
				Help: "Webhook delivery attempts by subscriber and outcome.",
			},
			[]string{"subscriber", "outcome"},
		),
		WebhookAttempts: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    serviceName + "_webhook_delivery_attempts",
				Help:    "Attempt count of each failed outbox delivery, whether requeued or dead-lettered.",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
		),
		RateLimitDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_rate_limit_denials_total",
				Help: "Requests denied by the rate limiter, by bucket key.",
			},
			[]string{"bucket"},
		),
		ReservationOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_inventory_reservation_outcomes_total",
				Help: "Inventory reservation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		GatewayRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_gateway_serialization_retries_total",
				Help: "Transactions retried after a database serialization failure.",
			},
		),
		PaymentOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_payment_provider_outcomes_total",
				Help: "PaymentProvider calls by operation (authorize/capture/void) and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		CircuitBreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_circuit_breaker_trips_total",
				Help: "Circuit breaker state transitions to open, by breaker name.",
			},
			[]string{"breaker"},
		),
	}
}

// ObserveOutboxLag records the delay between an event becoming available and
// being claimed by the dispatcher.
func (c *Core) ObserveOutboxLag(d time.Duration) {
	c.OutboxDispatchLag.Observe(d.Seconds())
}
