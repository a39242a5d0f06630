package reservation

import (
	"context"

	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
)

// Repository defines storage operations for reservations.
type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, resID id.ID) (*Reservation, error)

	// ListActiveByDocument returns active rows keyed to a source document,
	// optionally narrowed to one item. CONSUMED rows sort before RESERVED
	// rows so reversal unwinds the chain child-first.
	ListActiveByDocument(ctx context.Context, ref entity.DocumentRef, itemID *id.ID) ([]*Reservation, error)

	// ListOpenReserved returns active unfulfilled RESERVED rows for
	// (item, document), oldest-first, row-locked for the transaction.
	ListOpenReserved(ctx context.Context, itemID id.ID, ref entity.DocumentRef) ([]*Reservation, error)

	// AddApproveQty increments approve_qty by delta as a conditional
	// atomic update guarded by approve_qty + delta <= quantity, setting
	// fulfilled when requested. Zero rows affected surfaces as a
	// CONCURRENCY_CONFLICT error.
	AddApproveQty(ctx context.Context, resID id.ID, delta types.Quantity, fulfilled bool) error

	// ReleaseApproveQty decrements approve_qty by delta, floored at zero,
	// and clears the fulfilled flag.
	ReleaseApproveQty(ctx context.Context, resID id.ID, delta types.Quantity) error

	// SoftDelete flips the row lifecycle to Deleted.
	SoftDelete(ctx context.Context, resID id.ID) error
}
