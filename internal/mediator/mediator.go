// Package mediator implements the Command/Query Mediator (spec.md §4.9):
// the single dispatch point every mutating operation on the transactional
// core goes through, enforcing validation and permission checks ahead of
// the handler. Grounded on other_examples' LerianStudio-midaz command
// package (a UseCase aggregating repositories, one exported method per
// write operation) and trimmed to this core's single-process scope: there
// is no cross-service RabbitMQ command queue here, so "dispatch" means an
// ordinary Go call, not a wire hop.
//
// The mediator does not open its own database transaction around Handle.
// Every command below delegates to an Order/Inventory/Checkout Engine
// method that already wraps its own work in a gateway transaction and
// appends its own outbox events (see internal/gateway, internal/outbox);
// wrapping a second transaction around an already-transactional call would
// just be a no-op savepoint. What the mediator owns is the step spec.md
// §4.9 describes as happening before handle(): validate(), then
// authorize(principal). Authentication and RBAC policy themselves are out
// of scope (spec.md §1 assumes "an authenticated principal with a
// permission set" is handed to the core); the mediator only checks that
// the permission the command declares it needs is present in that set.
package mediator

import (
	"context"

	"github.com/timour/stateset-core/internal/core"
)

// Principal is the authenticated caller a command is dispatched on behalf
// of. Authentication itself happens upstream (out of scope per spec.md
// §1); the mediator only ever reads TenantID and Permissions.
type Principal struct {
	ID          string
	TenantID    string
	Permissions map[string]bool
}

// Can reports whether principal carries permission. A zero-value Principal
// (no Permissions map) carries nothing.
func (p Principal) Can(permission string) bool {
	return p.Permissions[permission]
}

// Command is a typed mutating operation: spec.md §4.9's
// "command.validate() → command.authorize(principal) → command.handle(ctx)".
// T is the result Handle returns on success (an Order, a ReservationBatch,
// a Session, ...). Every command in this package implements Authorize as a
// RequirePermission check of a single permission name.
type Command[T any] interface {
	// Validate checks the command's own fields are well-formed, before any
	// I/O or permission check. Returns a *core.Error of KindValidation.
	Validate() error
	// Authorize checks principal may run this command. Returns a
	// *core.Error of KindAuthorization.
	Authorize(principal Principal) error
	// Handle executes the command against its backing engine. By the time
	// Handle runs, Validate and Authorize have both already passed.
	Handle(ctx context.Context) (T, error)
}

// Dispatch runs cmd through spec.md §4.9's three-step pipeline and returns
// its result. A failure at any step short-circuits the next one: an
// invalid command is never authorized, an unauthorized one is never
// handled.
func Dispatch[T any](ctx context.Context, principal Principal, cmd Command[T]) (T, error) {
	var zero T
	if err := cmd.Validate(); err != nil {
		return zero, err
	}
	if err := cmd.Authorize(principal); err != nil {
		return zero, err
	}
	return cmd.Handle(ctx)
}

// RequirePermission is the shared Authorize body every concrete command in
// this package calls: fail closed with KindAuthorization unless principal
// carries permission.
func RequirePermission(principal Principal, permission string) error {
	if !principal.Can(permission) {
		return core.New(core.KindAuthorization, "FORBIDDEN", "principal lacks required permission").
			WithDetails(map[string]any{"permission": permission})
	}
	return nil
}

// Query is a read operation that bypasses the mediator's transaction
// machinery (there isn't any to bypass, in this implementation, since
// commands don't open one either) and may be served from a cache or a read
// replica at the caller's discretion (spec.md §2 "Queries bypass the
// mediator's transaction machinery and read directly"). Queries still pass
// through Authorize so a principal without read access is rejected before
// any lookup runs.
type Query[T any] interface {
	Authorize(principal Principal) error
	Handle(ctx context.Context) (T, error)
}

// Ask runs q's authorize/handle pair. There is no Validate step: queries
// have no side effect to protect from malformed input beyond what Handle's
// own lookup already rejects (e.g. NotFound).
func Ask[T any](ctx context.Context, principal Principal, q Query[T]) (T, error) {
	var zero T
	if err := q.Authorize(principal); err != nil {
		return zero, err
	}
	return q.Handle(ctx)
}
