// Package tracing wraps OpenTelemetry span creation for the core, grounded
// on Tim275-oms's common/tracing package and extended with the
// retry/circuit-breaker span attributes kvishalv-reliable-orders' reliability
// package attaches around external calls.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/timour/stateset-core")

// Start begins a span named name, returning the derived context and span.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// End records err (if non-nil) on the span and ends it. Intended to be
// deferred with a named error return: `defer tracing.End(span, &err)`.
func End(span trace.Span, err *error) {
	if span == nil {
		return
	}
	if err != nil && *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

// RetryAttempt annotates the active span with the current retry attempt
// number, mirroring kvishalv-reliable-orders' RetryableHTTPCall span usage.
func RetryAttempt(span trace.Span, attempt int) {
	span.SetAttributes(attribute.Int("retry.attempt", attempt))
}

// CircuitState annotates the active span with the circuit breaker's current
// state name.
func CircuitState(span trace.Span, state string) {
	span.SetAttributes(attribute.String("circuit_breaker.state", state))
}
