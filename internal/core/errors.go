// Package core holds cross-cutting types shared by every component of the
// transactional core: the error taxonomy and small id helpers.
package core

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy from spec.md §7. The mediator maps
// these to transport status codes; nothing below this package needs to know
// what a status code is.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindAuthorization    Kind = "AUTHORIZATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindInsufficient     Kind = "INSUFFICIENT"
	KindProviderDeclined Kind = "PROVIDER_DECLINED"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindTimeout          Kind = "TIMEOUT"
	KindUnavailable      Kind = "UNAVAILABLE"
	KindInternal         Kind = "INTERNAL"
)

// Error is the typed error every exported core operation returns for
// expected failure modes. Code is an UPPER_SNAKE machine code distinct from
// Kind when a caller needs finer granularity than the taxonomy (e.g.
// "INSUFFICIENT" kind, "ITEM_OUT_OF_STOCK" code).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no details and no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an *Error that wraps cause, preserving it for errors.Is/As.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver for
// chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting
// to KindInternal for anything else so callers never have to special-case
// foreign errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// Common reusable constructors for conditions named across multiple
// components (optimistic lock races, not-found lookups).

func NotFound(entity, id string) *Error {
	return New(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s %s not found", entity, id)).
		WithDetails(map[string]any{"entity": entity, "id": id})
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// StaleVersion is returned by the gateway's optimistic-update helper when the
// expected version no longer matches the stored row.
func StaleVersion(entity, id string, expected int64) *Error {
	return New(KindConflict, "STALE_VERSION", fmt.Sprintf("%s %s was modified concurrently", entity, id)).
		WithDetails(map[string]any{"entity": entity, "id": id, "expected_version": expected})
}

// Insufficient reports unmet inventory availability, carrying the first
// offending (item, requested, available) triple per spec.md §7.
func Insufficient(itemID string, requested, available int64) *Error {
	return New(KindInsufficient, "INSUFFICIENT_STOCK", fmt.Sprintf("insufficient stock for item %s", itemID)).
		WithDetails(map[string]any{"item_id": itemID, "requested": requested, "available": available})
}

// InvalidTransition reports an illegal state-machine edge.
func InvalidTransition(aggregate, from, to string) *Error {
	return New(KindConflict, "INVALID_TRANSITION", fmt.Sprintf("%s cannot transition from %s to %s", aggregate, from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
