package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
)

const itemsTable = "cat_items"

var itemColumns = []string{
	"id", "status", "company_id", "branch_id", "created_by",
	"created_at", "updated_at",
	"code", "name", "primary_unit", "alternate_unit",
	"alternate_unit_qty", "purchase_qty",
	"current_stock", "reserve_stock", "minimum_stock",
	"parent_item_id", "shelf_life_days",
}

// ItemRepo implements item.Repository. TxManager is obtained from context.
type ItemRepo struct {
	builder squirrel.StatementBuilderType
}

// NewItemRepo creates a new item repository.
func NewItemRepo() *ItemRepo {
	return &ItemRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ item.Repository = (*ItemRepo)(nil)

func (r *ItemRepo) querier(ctx context.Context) Querier {
	return MustGetTxManager(ctx).GetQuerier(ctx)
}

func (r *ItemRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(itemColumns...).From(itemsTable)
}

// Create inserts a new item.
func (r *ItemRepo) Create(ctx context.Context, it *item.Item) error {
	q := r.builder.Insert(itemsTable).
		Columns(itemColumns...).
		Values(
			it.ID, it.Status, it.CompanyID, it.BranchID, it.CreatedBy,
			it.CreatedAt, it.UpdatedAt,
			it.Code, it.Name, it.PrimaryUnit, it.AlternateUnit,
			it.AlternateUnitQty, it.PurchaseQty,
			it.CurrentStock, it.ReserveStock, it.MinimumStock,
			it.ParentItemID, it.ShelfLifeDays,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// Update rewrites the item's master data. Balance columns are not touched
// here; they change only through the atomic adjust methods.
func (r *ItemRepo) Update(ctx context.Context, it *item.Item) error {
	it.Touch()

	q := scopedUpdate(ctx, r.builder.Update(itemsTable).
		Set("code", it.Code).
		Set("name", it.Name).
		Set("primary_unit", it.PrimaryUnit).
		Set("alternate_unit", it.AlternateUnit).
		Set("alternate_unit_qty", it.AlternateUnitQty).
		Set("purchase_qty", it.PurchaseQty).
		Set("minimum_stock", it.MinimumStock).
		Set("parent_item_id", it.ParentItemID).
		Set("shelf_life_days", it.ShelfLifeDays).
		Set("updated_at", it.UpdatedAt).
		Where(squirrel.Eq{"id": it.ID}))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(itemsTable, it.ID.String())
	}
	return nil
}

// GetByID retrieves an item by id.
func (r *ItemRepo) GetByID(ctx context.Context, itemID id.ID) (*item.Item, error) {
	q := scopedSelect(ctx, r.baseSelect().Where(squirrel.Eq{"id": itemID})).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var it item.Item
	if err := pgxscan.Get(ctx, r.querier(ctx), &it, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(itemsTable, itemID.String())
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

// GetByCode retrieves an active item by code.
func (r *ItemRepo) GetByCode(ctx context.Context, code string) (*item.Item, error) {
	q := scopedSelect(ctx, r.baseSelect().
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"status": entity.StatusActive})).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var it item.Item
	if err := pgxscan.Get(ctx, r.querier(ctx), &it, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(itemsTable, code)
		}
		return nil, fmt.Errorf("get item by code: %w", err)
	}
	return &it, nil
}

// SoftDelete flips the item lifecycle to Deleted.
func (r *ItemRepo) SoftDelete(ctx context.Context, itemID id.ID) error {
	q := scopedUpdate(ctx, r.builder.Update(itemsTable).
		Set("status", entity.StatusDeleted).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": itemID}))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("soft delete item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(itemsTable, itemID.String())
	}
	return nil
}

// List retrieves items with filtering and pagination.
func (r *ItemRepo) List(ctx context.Context, filter item.ListFilter) ([]*item.Item, error) {
	q := scopedSelect(ctx, r.baseSelect())

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"status": entity.StatusActive})
	}
	if filter.Code != "" {
		q = q.Where(squirrel.ILike{"code": "%" + filter.Code + "%"})
	}
	if filter.ParentItemID != nil {
		q = q.Where(squirrel.Eq{"parent_item_id": *filter.ParentItemID})
	}

	q = q.OrderBy("code")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*item.Item
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// AdjustStock applies a signed delta to current_stock in one arithmetic
// update and returns the new balance.
func (r *ItemRepo) AdjustStock(ctx context.Context, itemID id.ID, delta types.Quantity) (types.Quantity, error) {
	q := scopedUpdate(ctx, r.builder.Update(itemsTable).
		Set("current_stock", squirrel.Expr("current_stock + ?", int64(delta))).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": itemID})).
		Suffix("RETURNING current_stock")

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	var balance int64
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound(itemsTable, itemID.String())
		}
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	return types.Quantity(balance), nil
}

// AdjustReserve applies a signed delta to reserve_stock atomically.
func (r *ItemRepo) AdjustReserve(ctx context.Context, itemID id.ID, delta types.Quantity) (types.Quantity, error) {
	q := scopedUpdate(ctx, r.builder.Update(itemsTable).
		Set("reserve_stock", squirrel.Expr("reserve_stock + ?", int64(delta))).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": itemID})).
		Suffix("RETURNING reserve_stock")

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	var reserved int64
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound(itemsTable, itemID.String())
		}
		return 0, fmt.Errorf("adjust reserve: %w", err)
	}
	return types.Quantity(reserved), nil
}

// ApplyBalancePatches rewrites cached balances in a single batch
// round-trip. Requires a transaction in context.
func (r *ItemRepo) ApplyBalancePatches(ctx context.Context, patches []item.BalancePatch) error {
	if len(patches) == 0 {
		return nil
	}

	queries := make([]BatchQuery, 0, len(patches))
	for _, p := range patches {
		queries = append(queries, BatchQuery{
			SQL:  "UPDATE cat_items SET current_stock = $1, updated_at = now() WHERE id = $2",
			Args: []any{int64(p.CurrentStock), p.ItemID},
		})
	}

	executor := NewBatchExecutor(MustGetTxManager(ctx))
	if err := executor.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("apply balance patches: %w", err)
	}
	return nil
}

// ListBelowMinimum returns active items whose balance is under minimum.
func (r *ItemRepo) ListBelowMinimum(ctx context.Context) ([]*item.Item, error) {
	q := scopedSelect(ctx, r.baseSelect().
		Where(squirrel.Eq{"status": entity.StatusActive}).
		Where(squirrel.Expr("current_stock < minimum_stock"))).
		OrderBy("code")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*item.Item
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list below minimum: %w", err)
	}
	return items, nil
}
