package item

import (
	"context"

	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
)

// Repository defines storage operations for the item master.
type Repository interface {
	Create(ctx context.Context, it *Item) error
	Update(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, itemID id.ID) (*Item, error)
	GetByCode(ctx context.Context, code string) (*Item, error)
	SoftDelete(ctx context.Context, itemID id.ID) error
	List(ctx context.Context, filter ListFilter) ([]*Item, error)

	// AdjustStock applies a signed delta to current_stock as a single
	// atomic arithmetic update and returns the new balance. Never
	// implemented as fetch-then-save.
	AdjustStock(ctx context.Context, itemID id.ID, delta types.Quantity) (types.Quantity, error)

	// AdjustReserve applies a signed delta to reserve_stock atomically.
	AdjustReserve(ctx context.Context, itemID id.ID, delta types.Quantity) (types.Quantity, error)

	// ApplyBalancePatches overwrites current_stock for a set of items in
	// one round-trip. Only the offline consistency job uses this, after
	// recomputing balances from the ledger.
	ApplyBalancePatches(ctx context.Context, patches []BalancePatch) error

	// ListBelowMinimum returns active items whose balance is under their
	// configured minimum.
	ListBelowMinimum(ctx context.Context) ([]*Item, error)
}

// BalancePatch is one corrected balance produced by the consistency job.
type BalancePatch struct {
	ItemID       id.ID
	CurrentStock types.Quantity
}

// ListFilter narrows item listings.
type ListFilter struct {
	Code           string
	ParentItemID   *id.ID
	IncludeDeleted bool
	Limit          int
	Offset         int
}
