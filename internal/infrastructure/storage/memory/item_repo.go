package memory

import (
	"context"
	"sort"
	"strings"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
)

// ItemRepo implements item.Repository on the store.
type ItemRepo struct {
	store *Store
}

// NewItemRepo creates an item repository.
func NewItemRepo(store *Store) *ItemRepo {
	return &ItemRepo{store: store}
}

var _ item.Repository = (*ItemRepo)(nil)

func (r *ItemRepo) Create(ctx context.Context, it *item.Item) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.items[it.ID] = cloneItem(it)
	return nil
}

func (r *ItemRepo) Update(ctx context.Context, it *item.Item) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.items[it.ID]
	if !ok || !inScope(ctx, stored.CompanyID) {
		return apperror.NewNotFound("item", it.ID.String())
	}

	updated := cloneItem(it)
	// Balance columns change only through the adjust methods.
	updated.CurrentStock = stored.CurrentStock
	updated.ReserveStock = stored.ReserveStock
	updated.Touch()
	r.store.items[it.ID] = updated
	return nil
}

func (r *ItemRepo) GetByID(ctx context.Context, itemID id.ID) (*item.Item, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	it, ok := r.store.items[itemID]
	if !ok || !inScope(ctx, it.CompanyID) {
		return nil, apperror.NewNotFound("item", itemID.String())
	}
	return cloneItem(it), nil
}

func (r *ItemRepo) GetByCode(ctx context.Context, code string) (*item.Item, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, it := range r.store.items {
		if it.Code == code && it.IsActive() && inScope(ctx, it.CompanyID) {
			return cloneItem(it), nil
		}
	}
	return nil, apperror.NewNotFound("item", code)
}

func (r *ItemRepo) SoftDelete(ctx context.Context, itemID id.ID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	it, ok := r.store.items[itemID]
	if !ok || !inScope(ctx, it.CompanyID) {
		return apperror.NewNotFound("item", itemID.String())
	}
	it.MarkDeleted()
	return nil
}

func (r *ItemRepo) List(ctx context.Context, filter item.ListFilter) ([]*item.Item, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*item.Item
	for _, it := range r.store.items {
		if !inScope(ctx, it.CompanyID) {
			continue
		}
		if !filter.IncludeDeleted && !it.IsActive() {
			continue
		}
		if filter.Code != "" && !strings.Contains(it.Code, filter.Code) {
			continue
		}
		if filter.ParentItemID != nil &&
			(it.ParentItemID == nil || *it.ParentItemID != *filter.ParentItemID) {
			continue
		}
		out = append(out, cloneItem(it))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

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

func (r *ItemRepo) AdjustStock(ctx context.Context, itemID id.ID, delta types.Quantity) (types.Quantity, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	it, ok := r.store.items[itemID]
	if !ok || !inScope(ctx, it.CompanyID) {
		return 0, apperror.NewNotFound("item", itemID.String())
	}
	it.CurrentStock += delta
	it.Touch()
	return it.CurrentStock, nil
}

func (r *ItemRepo) AdjustReserve(ctx context.Context, itemID id.ID, delta types.Quantity) (types.Quantity, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	it, ok := r.store.items[itemID]
	if !ok || !inScope(ctx, it.CompanyID) {
		return 0, apperror.NewNotFound("item", itemID.String())
	}
	it.ReserveStock += delta
	it.Touch()
	return it.ReserveStock, nil
}

func (r *ItemRepo) ApplyBalancePatches(ctx context.Context, patches []item.BalancePatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, p := range patches {
		it, ok := r.store.items[p.ItemID]
		if !ok {
			return apperror.NewNotFound("item", p.ItemID.String())
		}
		it.CurrentStock = p.CurrentStock
		it.Touch()
	}
	return nil
}

func (r *ItemRepo) ListBelowMinimum(ctx context.Context) ([]*item.Item, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*item.Item
	for _, it := range r.store.items {
		if it.IsActive() && it.CurrentStock < it.MinimumStock && inScope(ctx, it.CompanyID) {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
