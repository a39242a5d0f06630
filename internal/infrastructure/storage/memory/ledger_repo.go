package memory

import (
	"context"
	"sort"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/ledger"
)

// LedgerRepo implements ledger.Repository on the store.
type LedgerRepo struct {
	store *Store
}

// NewLedgerRepo creates a stock ledger repository.
func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) Create(ctx context.Context, lot *ledger.Lot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.lots[lot.ID] = cloneLot(lot)
	r.store.lotOrder = append(r.store.lotOrder, lot.ID)
	return nil
}

func (r *LedgerRepo) CreateMany(ctx context.Context, lots []*ledger.Lot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, lot := range lots {
		r.store.lots[lot.ID] = cloneLot(lot)
		r.store.lotOrder = append(r.store.lotOrder, lot.ID)
	}
	return nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, lotID id.ID) (*ledger.Lot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	lot, ok := r.store.lots[lotID]
	if !ok || !inScope(ctx, lot.CompanyID) {
		return nil, apperror.NewNotFound("ledger row", lotID.String())
	}
	return cloneLot(lot), nil
}

func (r *LedgerRepo) ListActiveByDocument(ctx context.Context, ref entity.DocumentRef) ([]*ledger.Lot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*ledger.Lot
	for _, lotID := range r.store.lotOrder {
		lot := r.store.lots[lotID]
		if lot.IsActive() && lot.Document == ref && inScope(ctx, lot.CompanyID) {
			out = append(out, cloneLot(lot))
		}
	}
	return out, nil
}

func (r *LedgerRepo) ListOpenLots(ctx context.Context, itemID, warehouseID id.ID) ([]*ledger.Lot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*ledger.Lot
	for _, lot := range r.store.lots {
		if !lot.IsActive() || lot.Direction != ledger.DirectionIn {
			continue
		}
		if lot.ItemID != itemID || lot.WarehouseID != warehouseID {
			continue
		}
		if !inScope(ctx, lot.CompanyID) {
			continue
		}
		if lot.Available().IsPositive() {
			out = append(out, cloneLot(lot))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return lessID(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *LedgerRepo) AddUsedQty(ctx context.Context, lotID id.ID, delta types.Quantity) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	lot, ok := r.store.lots[lotID]
	if !ok || !lot.IsActive() || !inScope(ctx, lot.CompanyID) {
		return apperror.NewConcurrencyConflict("ledger row", lotID.String())
	}
	if lot.UsedQty+delta > lot.Quantity {
		return apperror.NewConcurrencyConflict("ledger row", lotID.String())
	}
	lot.UsedQty += delta
	lot.Touch()
	return nil
}

func (r *LedgerRepo) ReleaseUsedQty(ctx context.Context, lotID id.ID, delta types.Quantity) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	lot, ok := r.store.lots[lotID]
	if !ok || !inScope(ctx, lot.CompanyID) {
		return apperror.NewNotFound("ledger row", lotID.String())
	}
	lot.UsedQty -= delta
	if lot.UsedQty.IsNegative() {
		lot.UsedQty = 0
	}
	lot.Touch()
	return nil
}

func (r *LedgerRepo) SoftDelete(ctx context.Context, lotID id.ID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	lot, ok := r.store.lots[lotID]
	if !ok || !inScope(ctx, lot.CompanyID) {
		return apperror.NewNotFound("ledger row", lotID.String())
	}
	lot.MarkDeleted()
	return nil
}

func (r *LedgerRepo) ListMovements(ctx context.Context, itemID id.ID, filter ledger.MovementFilter) ([]*ledger.Lot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*ledger.Lot
	for _, lot := range r.store.lots {
		if !lot.IsActive() || lot.ItemID != itemID || !inScope(ctx, lot.CompanyID) {
			continue
		}
		if filter.WarehouseID != nil && lot.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.Direction != nil && lot.Direction != *filter.Direction {
			continue
		}
		if filter.FromDate != nil && lot.ReceivedAt.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && lot.ReceivedAt.After(*filter.ToDate) {
			continue
		}
		out = append(out, cloneLot(lot))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return lessID(out[j].ID, out[i].ID)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *LedgerRepo) SumActiveByItem(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var sum types.Quantity
	for _, lot := range r.store.lots {
		if lot.IsActive() && lot.ItemID == itemID && inScope(ctx, lot.CompanyID) {
			sum += lot.SignedQuantity()
		}
	}
	return sum, nil
}
