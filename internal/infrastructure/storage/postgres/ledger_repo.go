package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/ledger"
)

const ledgerTable = "reg_stock_ledger"

var ledgerColumns = []string{
	"id", "status", "company_id", "branch_id", "created_by",
	"created_at", "updated_at",
	"item_id", "warehouse_id", "direction", "unit", "quantity",
	"amount", "converted_amount",
	"document_type", "document_id",
	"parent_lot_id", "reservation_id",
	"batch_number", "manufacture_date", "expiry_date",
	"used_qty", "received_at",
}

// lotRow is the flat scan target; Document and Batch are nested structs on
// the domain type and mapped by hand.
type lotRow struct {
	ID        id.ID                  `db:"id"`
	Status    entity.LifecycleStatus `db:"status"`
	CompanyID id.ID                  `db:"company_id"`
	BranchID  id.ID                  `db:"branch_id"`
	CreatedBy string                 `db:"created_by"`
	CreatedAt time.Time              `db:"created_at"`
	UpdatedAt time.Time              `db:"updated_at"`

	ItemID          id.ID            `db:"item_id"`
	WarehouseID     id.ID            `db:"warehouse_id"`
	Direction       ledger.Direction `db:"direction"`
	Unit            string           `db:"unit"`
	Quantity        types.Quantity   `db:"quantity"`
	Amount          types.Money      `db:"amount"`
	ConvertedAmount types.Money      `db:"converted_amount"`

	DocumentType string `db:"document_type"`
	DocumentID   id.ID  `db:"document_id"`

	ParentLotID   *id.ID `db:"parent_lot_id"`
	ReservationID *id.ID `db:"reservation_id"`

	BatchNumber     string     `db:"batch_number"`
	ManufactureDate *time.Time `db:"manufacture_date"`
	ExpiryDate      *time.Time `db:"expiry_date"`

	UsedQty    types.Quantity `db:"used_qty"`
	ReceivedAt time.Time      `db:"received_at"`
}

func (r lotRow) toDomain() *ledger.Lot {
	lot := &ledger.Lot{
		Base: entity.Base{
			ID:     r.ID,
			Status: r.Status,
			TenantFields: entity.TenantFields{
				CompanyID: r.CompanyID,
				BranchID:  r.BranchID,
				CreatedBy: r.CreatedBy,
			},
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ItemID:          r.ItemID,
		WarehouseID:     r.WarehouseID,
		Direction:       r.Direction,
		Unit:            r.Unit,
		Quantity:        r.Quantity,
		Amount:          r.Amount,
		ConvertedAmount: r.ConvertedAmount,
		Document:        entity.NewDocumentRef(r.DocumentType, r.DocumentID),
		ParentLotID:     r.ParentLotID,
		ReservationID:   r.ReservationID,
		UsedQty:         r.UsedQty,
		ReceivedAt:      r.ReceivedAt,
	}
	lot.Batch.Number = r.BatchNumber
	if r.ManufactureDate != nil {
		lot.Batch.ManufactureDate = *r.ManufactureDate
	}
	lot.Batch.ExpiryDate = r.ExpiryDate
	return lot
}

func lotValues(lot *ledger.Lot) []any {
	var manufactureDate *time.Time
	if !lot.Batch.ManufactureDate.IsZero() {
		d := lot.Batch.ManufactureDate
		manufactureDate = &d
	}
	return []any{
		lot.ID, lot.Status, lot.CompanyID, lot.BranchID, lot.CreatedBy,
		lot.CreatedAt, lot.UpdatedAt,
		lot.ItemID, lot.WarehouseID, lot.Direction, lot.Unit, lot.Quantity,
		lot.Amount, lot.ConvertedAmount,
		lot.Document.EntityType, lot.Document.EntityID,
		lot.ParentLotID, lot.ReservationID,
		lot.Batch.Number, manufactureDate, lot.Batch.ExpiryDate,
		lot.UsedQty, lot.ReceivedAt,
	}
}

// LedgerRepo implements ledger.Repository. TxManager is obtained from
// context.
type LedgerRepo struct {
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new stock ledger repository.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) querier(ctx context.Context) Querier {
	return MustGetTxManager(ctx).GetQuerier(ctx)
}

func (r *LedgerRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(ledgerColumns...).From(ledgerTable)
}

// Create inserts one ledger row.
func (r *LedgerRepo) Create(ctx context.Context, lot *ledger.Lot) error {
	q := r.builder.Insert(ledgerTable).
		Columns(ledgerColumns...).
		Values(lotValues(lot)...)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}

// CreateMany bulk-inserts lots. Inside a transaction the COPY protocol is
// used; outside, a multi-row insert.
func (r *LedgerRepo) CreateMany(ctx context.Context, lots []*ledger.Lot) error {
	if len(lots) == 0 {
		return nil
	}

	txm := MustGetTxManager(ctx)
	if txm.GetTx(ctx) != nil {
		rows := make([][]any, 0, len(lots))
		for _, lot := range lots {
			rows = append(rows, lotValues(lot))
		}
		inserter := NewBatchInserter(txm)
		if _, err := inserter.CopyFromSlice(ctx, ledgerTable, ledgerColumns, rows); err != nil {
			return fmt.Errorf("copy ledger rows: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(ledgerTable).Columns(ledgerColumns...)
	for _, lot := range lots {
		q = q.Values(lotValues(lot)...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert ledger rows: %w", err)
	}
	return nil
}

// GetByID retrieves a ledger row by id.
func (r *LedgerRepo) GetByID(ctx context.Context, lotID id.ID) (*ledger.Lot, error) {
	q := scopedSelect(ctx, r.baseSelect().Where(squirrel.Eq{"id": lotID})).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row lotRow
	if err := pgxscan.Get(ctx, r.querier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(ledgerTable, lotID.String())
		}
		return nil, fmt.Errorf("get ledger row: %w", err)
	}
	return row.toDomain(), nil
}

// ListActiveByDocument returns active rows keyed to a source document.
func (r *LedgerRepo) ListActiveByDocument(ctx context.Context, ref entity.DocumentRef) ([]*ledger.Lot, error) {
	q := scopedSelect(ctx, r.baseSelect().
		Where(squirrel.Eq{
			"document_type": ref.EntityType,
			"document_id":   ref.EntityID,
			"status":        entity.StatusActive,
		})).
		OrderBy("created_at", "id")

	return r.selectLots(ctx, q)
}

// ListOpenLots returns active IN lots with remaining capacity, oldest-first,
// locked for the transaction so concurrent allocators serialize.
func (r *LedgerRepo) ListOpenLots(ctx context.Context, itemID, warehouseID id.ID) ([]*ledger.Lot, error) {
	q := scopedSelect(ctx, r.baseSelect().
		Where(squirrel.Eq{
			"item_id":      itemID,
			"warehouse_id": warehouseID,
			"direction":    ledger.DirectionIn,
			"status":       entity.StatusActive,
		}).
		Where(squirrel.Expr("quantity > used_qty"))).
		OrderBy("received_at", "id").
		Suffix("FOR UPDATE")

	return r.selectLots(ctx, q)
}

// AddUsedQty increments used_qty guarded by the lot capacity. Zero rows
// affected means another transaction won the remainder.
func (r *LedgerRepo) AddUsedQty(ctx context.Context, lotID id.ID, delta types.Quantity) error {
	q := scopedUpdate(ctx, r.builder.Update(ledgerTable).
		Set("used_qty", squirrel.Expr("used_qty + ?", int64(delta))).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": lotID, "status": entity.StatusActive}).
		Where(squirrel.Expr("used_qty + ? <= quantity", int64(delta))))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("add used qty: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict(ledgerTable, lotID.String())
	}
	return nil
}

// ReleaseUsedQty decrements used_qty, floored at zero.
func (r *LedgerRepo) ReleaseUsedQty(ctx context.Context, lotID id.ID, delta types.Quantity) error {
	q := scopedUpdate(ctx, r.builder.Update(ledgerTable).
		Set("used_qty", squirrel.Expr("GREATEST(used_qty - ?, 0)", int64(delta))).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": lotID}))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("release used qty: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(ledgerTable, lotID.String())
	}
	return nil
}

// SoftDelete flips the row lifecycle to Deleted.
func (r *LedgerRepo) SoftDelete(ctx context.Context, lotID id.ID) error {
	q := scopedUpdate(ctx, r.builder.Update(ledgerTable).
		Set("status", entity.StatusDeleted).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": lotID}))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("soft delete ledger row: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(ledgerTable, lotID.String())
	}
	return nil
}

// ListMovements returns movement history for an item, newest first.
func (r *LedgerRepo) ListMovements(ctx context.Context, itemID id.ID, filter ledger.MovementFilter) ([]*ledger.Lot, error) {
	q := scopedSelect(ctx, r.baseSelect().
		Where(squirrel.Eq{"item_id": itemID, "status": entity.StatusActive}))

	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.Direction != nil {
		q = q.Where(squirrel.Eq{"direction": *filter.Direction})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"received_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"received_at": *filter.ToDate})
	}

	q = q.OrderBy("received_at DESC", "id DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	return r.selectLots(ctx, q)
}

// SumActiveByItem returns the signed sum of active row quantities.
func (r *LedgerRepo) SumActiveByItem(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	q := scopedSelect(ctx, r.builder.
		Select("COALESCE(SUM(CASE WHEN direction = 'in' THEN quantity ELSE -quantity END), 0)").
		From(ledgerTable).
		Where(squirrel.Eq{"item_id": itemID, "status": entity.StatusActive}))

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var sum int64
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum ledger rows: %w", err)
	}
	return types.Quantity(sum), nil
}

func (r *LedgerRepo) selectLots(ctx context.Context, q squirrel.SelectBuilder) ([]*ledger.Lot, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []lotRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select ledger rows: %w", err)
	}

	lots := make([]*ledger.Lot, 0, len(rows))
	for _, row := range rows {
		lots = append(lots, row.toDomain())
	}
	return lots, nil
}
