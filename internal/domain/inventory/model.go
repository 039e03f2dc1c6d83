// Package inventory provides the stock ledger: per-product quantity records,
// the append-only movement log, and the operations that mutate them.
package inventory

import (
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Record is the current quantity state for one product.
//
// Invariant: 0 <= QuantityReserved <= QuantityOnHand at all times.
// Mutations go exclusively through the Service, which bumps Version on
// every write (optimistic concurrency token).
type Record struct {
	ID               id.ID     `db:"id" json:"id"`
	ProductID        string    `db:"product_id" json:"productId"`
	QuantityOnHand   int64     `db:"quantity_on_hand" json:"quantityOnHand"`
	QuantityReserved int64     `db:"quantity_reserved" json:"quantityReserved"`
	Version          int       `db:"version" json:"version"`
	Active           bool      `db:"active" json:"active"`
	Location         *string   `db:"location" json:"location,omitempty"`
	ReorderLevel     int64     `db:"reorder_level" json:"reorderLevel"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// Available returns the sellable quantity (on-hand minus reserved).
// Derived, never stored.
func (r *Record) Available() int64 {
	return r.QuantityOnHand - r.QuantityReserved
}

// LowStock reports whether available quantity fell to the reorder level.
func (r *Record) LowStock() bool {
	return r.ReorderLevel > 0 && r.Available() <= r.ReorderLevel
}

// CheckInvariant validates the quantity invariant. The engine fails closed:
// any state that violates this is rejected, never clamped.
func (r *Record) CheckInvariant() error {
	if r.QuantityReserved < 0 || r.QuantityOnHand < 0 || r.QuantityReserved > r.QuantityOnHand {
		return apperror.NewInternal(nil).
			WithDetail("product_id", r.ProductID).
			WithDetail("quantity_on_hand", r.QuantityOnHand).
			WithDetail("quantity_reserved", r.QuantityReserved)
	}
	return nil
}

// Touch increments version and refreshes the update timestamp.
func (r *Record) Touch(now time.Time) {
	r.Version++
	r.UpdatedAt = now
}

// MovementType classifies a quantity-changing event.
type MovementType string

const (
	MovementAdjustmentIn   MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut  MovementType = "ADJUSTMENT_OUT"
	MovementReserve        MovementType = "RESERVE"
	MovementReleaseCancel  MovementType = "RELEASE_CANCEL"
	MovementReleaseConsume MovementType = "RELEASE_CONSUME"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementAdjustmentIn, MovementAdjustmentOut, MovementReserve,
		MovementReleaseCancel, MovementReleaseConsume:
		return true
	}
	return false
}

// Deltas returns the signed effect of one movement of this type with
// magnitude quantity, as (onHand, reserved) deltas. Replaying all movements
// in ledger order reproduces the record state exactly.
func (t MovementType) Deltas(quantity int64) (onHand, reserved int64) {
	switch t {
	case MovementAdjustmentIn:
		return quantity, 0
	case MovementAdjustmentOut:
		return -quantity, 0
	case MovementReserve:
		return 0, quantity
	case MovementReleaseCancel:
		return 0, -quantity
	case MovementReleaseConsume:
		return -quantity, -quantity
	}
	return 0, 0
}

// Movement is one immutable ledger entry. The ledger is append-only; entries
// are never updated or deleted, and double as the idempotency record for
// reservations (keyed by ProductID + Reference + Type).
type Movement struct {
	ID                id.ID        `db:"id" json:"id"`
	ProductID         string       `db:"product_id" json:"productId"`
	Type              MovementType `db:"type" json:"type"`
	Quantity          int64        `db:"quantity" json:"quantity"`
	Reference         string       `db:"reference" json:"reference,omitempty"`
	Reason            *string      `db:"reason" json:"reason,omitempty"`
	ResultingOnHand   int64        `db:"resulting_on_hand" json:"resultingOnHand"`
	ResultingReserved int64        `db:"resulting_reserved" json:"resultingReserved"`
	Actor             string       `db:"actor" json:"actor"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
}

// Replay folds movements in order and returns the resulting quantities.
// Used for ledger-state reconciliation.
func Replay(movements []Movement) (onHand, reserved int64) {
	for _, m := range movements {
		dh, dr := m.Type.Deltas(m.Quantity)
		onHand += dh
		reserved += dr
	}
	return onHand, reserved
}

// ReleaseMode selects what happens to reserved stock on release.
type ReleaseMode string

const (
	// ReleaseCancel returns the held quantity to availability.
	ReleaseCancel ReleaseMode = "CANCEL"
	// ReleaseConsume removes the held quantity from stock (shipped).
	ReleaseConsume ReleaseMode = "CONSUME"
)

// Valid reports whether m is a known release mode.
func (m ReleaseMode) Valid() bool {
	return m == ReleaseCancel || m == ReleaseConsume
}

// MovementType maps the release mode to its ledger movement type.
func (m ReleaseMode) MovementType() MovementType {
	if m == ReleaseConsume {
		return MovementReleaseConsume
	}
	return MovementReleaseCancel
}

const maxProductIDLen = 128

// ValidateProductID checks identifier format only. Existence of the product
// is owned by the external catalog service and deliberately not checked here.
func ValidateProductID(productID string) error {
	if productID == "" {
		return apperror.NewValidation("productId is required")
	}
	if len(productID) > maxProductIDLen {
		return apperror.NewValidation("productId too long").
			WithDetail("max_length", maxProductIDLen)
	}
	if strings.ContainsAny(productID, " \t\n") {
		return apperror.NewValidation("productId must not contain whitespace")
	}
	return nil
}
