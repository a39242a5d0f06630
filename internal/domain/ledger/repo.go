package ledger

import (
	"context"
	"time"

	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
)

// Repository defines storage operations for the stock ledger.
//
// All mutations run inside the caller's transaction; reads that decide
// allocation must come from the same transaction, never a stale snapshot.
type Repository interface {
	Create(ctx context.Context, lot *Lot) error

	// CreateMany bulk-inserts pre-validated lots. Opening balance loads go
	// through here; the postgres implementation uses the COPY protocol.
	CreateMany(ctx context.Context, lots []*Lot) error

	GetByID(ctx context.Context, lotID id.ID) (*Lot, error)

	// ListActiveByDocument returns active rows keyed to a source document.
	ListActiveByDocument(ctx context.Context, ref entity.DocumentRef) ([]*Lot, error)

	// ListOpenLots returns active IN lots with remaining capacity for
	// (item, warehouse), oldest-first by received_at then id, row-locked
	// for the duration of the transaction.
	ListOpenLots(ctx context.Context, itemID, warehouseID id.ID) ([]*Lot, error)

	// AddUsedQty increments used_qty by delta as a conditional atomic
	// update guarded by used_qty + delta <= quantity. Zero rows affected
	// surfaces as a CONCURRENCY_CONFLICT error.
	AddUsedQty(ctx context.Context, lotID id.ID, delta types.Quantity) error

	// ReleaseUsedQty decrements used_qty by delta, floored at zero.
	ReleaseUsedQty(ctx context.Context, lotID id.ID, delta types.Quantity) error

	// SoftDelete flips the row lifecycle to Deleted.
	SoftDelete(ctx context.Context, lotID id.ID) error

	// ListMovements returns movement history for an item.
	ListMovements(ctx context.Context, itemID id.ID, filter MovementFilter) ([]*Lot, error)

	// SumActiveByItem returns the signed sum of active row quantities for
	// an item. The consistency job compares it against the cached balance.
	SumActiveByItem(ctx context.Context, itemID id.ID) (types.Quantity, error)
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	WarehouseID *id.ID
	Direction   *Direction
	FromDate    *time.Time
	ToDate      *time.Time
	Limit       int
	Offset      int
}
