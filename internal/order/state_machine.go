package order

import "github.com/timour/stateset-core/internal/core"

// Event names the transitions of spec.md §4.6's table, used only for error
// messages and outbox event-type suffixes (order.<event>).
type Event string

const (
	EventSubmit  Event = "submitted"
	EventAllocate Event = "allocated"
	EventShip    Event = "shipped"
	EventDeliver Event = "delivered"
	EventClose   Event = "closed"
	EventHold    Event = "held"
	EventRelease Event = "released"
	EventCancel  Event = "canceled"
	EventRefund  Event = "refunded"
)

// holdableFrom is the set of states spec.md §4.6 allows hold() from.
var holdableFrom = map[Status]bool{
	StatusPending:   true,
	StatusAllocated: true,
}

// cancelableFrom is the set of states cancel() is allowed from.
var cancelableFrom = map[Status]bool{
	StatusPending:   true,
	StatusAllocated: true,
	StatusOnHold:    true,
}

// refundableFrom is the set of states refund() is allowed from.
var refundableFrom = map[Status]bool{
	StatusShipped:   true,
	StatusDelivered: true,
}

// transitions is the table from spec.md §4.6, mapping (from, event) to the
// resulting status for every edge that doesn't depend on dynamic state
// (hold/cancel/refund are checked against the *From sets above instead,
// since their source set spans multiple states).
var transitions = map[Status]map[Event]Status{
	StatusDraft:     {EventSubmit: StatusPending},
	StatusPending:   {EventAllocate: StatusAllocated},
	StatusAllocated: {EventShip: StatusShipped},
	StatusShipped:   {EventDeliver: StatusDelivered},
	StatusDelivered: {EventClose: StatusClosed},
}

// checkTransition validates event is legal from o.Status, returning the
// destination status or an InvalidTransition error. It does not mutate o.
func checkTransition(o Order, event Event) (Status, error) {
	switch event {
	case EventHold:
		if !holdableFrom[o.Status] {
			return "", core.InvalidTransition("order", string(o.Status), string(StatusOnHold))
		}
		return StatusOnHold, nil
	case EventRelease:
		if o.Status != StatusOnHold {
			return "", core.InvalidTransition("order", string(o.Status), "prior")
		}
		return o.PriorStatus, nil
	case EventCancel:
		if !cancelableFrom[o.Status] {
			return "", core.InvalidTransition("order", string(o.Status), string(StatusCanceled))
		}
		return StatusCanceled, nil
	case EventRefund:
		if !refundableFrom[o.Status] {
			return "", core.InvalidTransition("order", string(o.Status), string(StatusRefunded))
		}
		return StatusRefunded, nil
	default:
		edges, ok := transitions[o.Status]
		if !ok {
			return "", core.InvalidTransition("order", string(o.Status), string(event))
		}
		to, ok := edges[event]
		if !ok {
			return "", core.InvalidTransition("order", string(o.Status), string(event))
		}
		return to, nil
	}
}
