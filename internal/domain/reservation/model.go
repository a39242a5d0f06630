// Package reservation allocates stock against ledger lots on behalf of
// document lines and records consumption against those holds.
package reservation

import (
	"context"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
)

// Kind distinguishes a hold from its draw-down.
type Kind string

const (
	// KindReserved is a soft hold against a specific lot.
	KindReserved Kind = "reserved"
	// KindConsumed records a draw-down of a reserved row.
	KindConsumed Kind = "consumed"
)

// Reservation is a hold or consumption row.
//
// Invariant: approve_qty <= quantity; approve_qty == quantity implies
// fulfilled. Rows are created and soft-deleted in lockstep with the
// document line they represent.
type Reservation struct {
	entity.Base

	ItemID id.ID `db:"item_id" json:"itemId"`

	// LotID is the ledger lot this reservation draws on.
	LotID id.ID `db:"lot_id" json:"lotId"`

	// Document is the source document reference.
	Document entity.DocumentRef `db:"-" json:"document"`

	Kind Kind `db:"kind" json:"kind"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// ParentID links a CONSUMED row to the RESERVED row it draws down.
	ParentID *id.ID `db:"parent_id" json:"parentId,omitempty"`

	// ApproveQty is the cumulative consumed quantity (RESERVED rows only).
	ApproveQty types.Quantity `db:"approve_qty" json:"approveQty"`

	Fulfilled bool `db:"fulfilled" json:"fulfilled"`
}

// Remaining returns the unconsumed part of a RESERVED row.
func (r *Reservation) Remaining() types.Quantity {
	return r.Quantity - r.ApproveQty
}

// Validate implements entity.Validatable.
func (r *Reservation) Validate(ctx context.Context) error {
	if id.IsNil(r.ItemID) {
		return apperror.NewValidation("item is required").
			WithDetail("field", "itemId")
	}
	if id.IsNil(r.LotID) {
		return apperror.NewValidation("lot is required").
			WithDetail("field", "lotId")
	}
	if r.Kind != KindReserved && r.Kind != KindConsumed {
		return apperror.NewValidation("invalid reservation kind").
			WithDetail("field", "kind").
			WithDetail("value", string(r.Kind))
	}
	if !r.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if r.Document.IsZero() {
		return apperror.NewValidation("document reference is required").
			WithDetail("field", "document")
	}
	if r.ApproveQty.IsNegative() || r.ApproveQty > r.Quantity {
		return apperror.NewValidation("approved quantity out of range").
			WithDetail("field", "approveQty")
	}
	if r.Kind == KindConsumed && r.ParentID == nil {
		return apperror.NewValidation("consumed row requires a parent reservation").
			WithDetail("field", "parentId")
	}
	return nil
}
