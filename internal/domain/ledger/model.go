// Package ledger provides the append-only stock ledger. Each IN row is a
// lot: a single stock receipt carrying its own cumulative used_qty. OUT rows
// reference the lot they draw from so lot-based costing survives edits.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
)

// Direction defines movement direction for ledger rows.
type Direction string

const (
	// DirectionIn increases balance (a receipt lot)
	DirectionIn Direction = "in"
	// DirectionOut decreases balance (an issue)
	DirectionOut Direction = "out"
)

// BatchInfo carries batch metadata on an IN lot.
type BatchInfo struct {
	Number          string     `db:"batch_number" json:"batchNumber,omitempty"`
	ManufactureDate time.Time  `db:"manufacture_date" json:"manufactureDate"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
}

// Lot is a stock ledger row.
//
// Invariant for IN rows: 0 <= used_qty <= quantity. used_qty is mutated only
// by reservation allocation and reversal; everything else on the row is
// immutable once written.
type Lot struct {
	entity.Base

	ItemID      id.ID     `db:"item_id" json:"itemId"`
	WarehouseID id.ID     `db:"warehouse_id" json:"warehouseId"`
	Direction   Direction `db:"direction" json:"direction"`

	// Unit is the primary unit; Quantity is always in base units.
	Unit     string         `db:"unit" json:"unit"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Valuation. OUT rows spawned by a reservation inherit these from the
	// parent lot, not from the document's entered price.
	Amount          types.Money `db:"amount" json:"amount"`
	ConvertedAmount types.Money `db:"converted_amount" json:"convertedAmount"`

	// Document is the source document reference.
	Document entity.DocumentRef `db:"-" json:"document"`

	// ParentLotID links an OUT row to the lot it draws from.
	ParentLotID *id.ID `db:"parent_lot_id" json:"parentLotId,omitempty"`

	// ReservationID is set when the row was spawned by a reservation
	// consumption.
	ReservationID *id.ID `db:"reservation_id" json:"reservationId,omitempty"`

	Batch BatchInfo `db:"-" json:"batch"`

	// UsedQty is the cumulative quantity drawn from this lot (IN rows only).
	UsedQty types.Quantity `db:"used_qty" json:"usedQty"`

	// ReceivedAt is the ordering key for oldest-first allocation. Ties are
	// broken by the time-ordered id.
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`
}

// Available returns the unallocated remainder of an IN lot.
func (l *Lot) Available() types.Quantity {
	return l.Quantity - l.UsedQty
}

// SignedQuantity returns quantity with sign based on direction.
// IN = positive, OUT = negative.
func (l *Lot) SignedQuantity() types.Quantity {
	if l.Direction == DirectionOut {
		return l.Quantity.Neg()
	}
	return l.Quantity
}

// UnitCost returns the per-base-unit valuation of the lot.
func (l *Lot) UnitCost() types.Money {
	if l.Quantity.IsZero() {
		return decimal.Zero
	}
	return l.Amount.Div(l.Quantity.Decimal())
}

// Validate implements entity.Validatable.
func (l *Lot) Validate(ctx context.Context) error {
	if id.IsNil(l.ItemID) {
		return apperror.NewValidation("item is required").
			WithDetail("field", "itemId")
	}
	if id.IsNil(l.WarehouseID) {
		return apperror.NewValidation("warehouse is required").
			WithDetail("field", "warehouseId")
	}
	if l.Direction != DirectionIn && l.Direction != DirectionOut {
		return apperror.NewValidation("invalid direction").
			WithDetail("field", "direction").
			WithDetail("value", string(l.Direction))
	}
	if !l.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if l.Document.IsZero() {
		return apperror.NewValidation("document reference is required").
			WithDetail("field", "document")
	}
	if l.UsedQty.IsNegative() || l.UsedQty > l.Quantity {
		return apperror.NewValidation("used quantity out of range").
			WithDetail("field", "usedQty")
	}
	if l.Direction == DirectionOut && !l.UsedQty.IsZero() {
		return apperror.NewValidation("out rows cannot carry used quantity").
			WithDetail("field", "usedQty")
	}
	return nil
}
