// Package inventory is the Inventory Engine (spec.md §4.5): authoritative
// multi-location balances, reservations with TTL, lot layers, and the
// append-only transaction audit trail. It generalizes Tim275-oms's
// stock/store_reservations.go (a single on_hand-like quantity field) to the
// spec's on_hand/allocated/available triple, multi-location balances, and
// FIFO/LIFO/Explicit lot selection.
package inventory

import "time"

// ReservationStatus is the lifecycle state of an InventoryReservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationConsumed  ReservationStatus = "CONSUMED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// TransactionKind enumerates the audit-trail movement types of spec.md §3.
type TransactionKind string

const (
	TxReceive      TransactionKind = "RECEIVE"
	TxShip         TransactionKind = "SHIP"
	TxAdjust       TransactionKind = "ADJUST"
	TxTransferIn   TransactionKind = "TRANSFER_IN"
	TxTransferOut  TransactionKind = "TRANSFER_OUT"
	TxAllocate     TransactionKind = "ALLOCATE"
	TxDeallocate   TransactionKind = "DEALLOCATE"
	TxConsume      TransactionKind = "CONSUME"
)

// LotPolicy controls which lot layer a consume/ship operation draws from.
type LotPolicy string

const (
	LotFIFO     LotPolicy = "FIFO"
	LotLIFO     LotPolicy = "LIFO"
	LotExplicit LotPolicy = "EXPLICIT"
)

// Item is the catalog-facing SKU master.
type Item struct {
	ID            string
	SKU           string
	Description   string
	UoM           string
	ReorderPoint  int64
	SafetyStock   int64
	LotTracked    bool
	LotPolicy     LotPolicy
}

// Balance is the authoritative per-(item, location) quantity record.
// Available is derived, never stored (spec.md §4.5).
type Balance struct {
	ItemID         string
	LocationID     string
	OnHand         int64
	Allocated      int64
	Version        int64
	LastMovementAt time.Time
}

// Available returns on_hand - allocated.
func (b Balance) Available() int64 {
	return b.OnHand - b.Allocated
}

// Reservation is a soft claim on inventory linked to an external aggregate
// by a surrogate (reference_type, reference_id) pair rather than a direct
// pointer (spec.md §9 "cyclic references").
type Reservation struct {
	ID            string
	ItemID        string
	LocationID    string
	Quantity      int64
	ReferenceType string
	ReferenceID   string
	Status        ReservationStatus
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

// Transaction is an append-only audit record of a quantity change.
type Transaction struct {
	ID         string
	ItemID     string
	LocationID string
	Kind       TransactionKind
	Delta      int64
	Before     int64
	After      int64
	Reference  string
	Actor      string
	At         time.Time
}

// Lot is an optional granularity below Balance.
type Lot struct {
	LotNumber       string
	ItemID          string
	LocationID      string
	Quantity        int64
	ManufactureDate *time.Time
	ExpirationDate  *time.Time
	CostAmount      int64
	Status          string
}

// ExpiredLotAlert is surfaced (not just logged) when a lot-selecting
// operation skips an expired lot, per SPEC_FULL.md's lot-alert expansion.
type ExpiredLotAlert struct {
	ItemID         string
	LocationID     string
	LotNumber      string
	ExpirationDate time.Time
}

// ReservationLine is one line of a reserve() request.
type ReservationLine struct {
	ItemID      string
	LocationID  string
	Quantity    int64
	ReferenceType string
	ReferenceID string
}

// ReservationBatch is the result of a successful reserve() call.
type ReservationBatch struct {
	Reservations []Reservation
}
