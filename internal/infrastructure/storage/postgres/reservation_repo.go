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
	"stockcore/internal/domain/reservation"
)

const reservationsTable = "reg_stock_reservations"

var reservationColumns = []string{
	"id", "status", "company_id", "branch_id", "created_by",
	"created_at", "updated_at",
	"item_id", "lot_id", "document_type", "document_id",
	"kind", "quantity", "parent_id", "approve_qty", "fulfilled",
}

type reservationRow struct {
	ID        id.ID                  `db:"id"`
	Status    entity.LifecycleStatus `db:"status"`
	CompanyID id.ID                  `db:"company_id"`
	BranchID  id.ID                  `db:"branch_id"`
	CreatedBy string                 `db:"created_by"`
	CreatedAt time.Time              `db:"created_at"`
	UpdatedAt time.Time              `db:"updated_at"`

	ItemID       id.ID            `db:"item_id"`
	LotID        id.ID            `db:"lot_id"`
	DocumentType string           `db:"document_type"`
	DocumentID   id.ID            `db:"document_id"`
	Kind         reservation.Kind `db:"kind"`
	Quantity     types.Quantity   `db:"quantity"`
	ParentID     *id.ID           `db:"parent_id"`
	ApproveQty   types.Quantity   `db:"approve_qty"`
	Fulfilled    bool             `db:"fulfilled"`
}

func (r reservationRow) toDomain() *reservation.Reservation {
	return &reservation.Reservation{
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
		ItemID:     r.ItemID,
		LotID:      r.LotID,
		Document:   entity.NewDocumentRef(r.DocumentType, r.DocumentID),
		Kind:       r.Kind,
		Quantity:   r.Quantity,
		ParentID:   r.ParentID,
		ApproveQty: r.ApproveQty,
		Fulfilled:  r.Fulfilled,
	}
}

// ReservationRepo implements reservation.Repository. TxManager is obtained
// from context.
type ReservationRepo struct {
	builder squirrel.StatementBuilderType
}

// NewReservationRepo creates a new reservation repository.
func NewReservationRepo() *ReservationRepo {
	return &ReservationRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ reservation.Repository = (*ReservationRepo)(nil)

func (r *ReservationRepo) querier(ctx context.Context) Querier {
	return MustGetTxManager(ctx).GetQuerier(ctx)
}

func (r *ReservationRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(reservationColumns...).From(reservationsTable)
}

// Create inserts a reservation row.
func (r *ReservationRepo) Create(ctx context.Context, res *reservation.Reservation) error {
	q := r.builder.Insert(reservationsTable).
		Columns(reservationColumns...).
		Values(
			res.ID, res.Status, res.CompanyID, res.BranchID, res.CreatedBy,
			res.CreatedAt, res.UpdatedAt,
			res.ItemID, res.LotID, res.Document.EntityType, res.Document.EntityID,
			res.Kind, res.Quantity, res.ParentID, res.ApproveQty, res.Fulfilled,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetByID retrieves a reservation by id.
func (r *ReservationRepo) GetByID(ctx context.Context, resID id.ID) (*reservation.Reservation, error) {
	q := scopedSelect(ctx, r.baseSelect().Where(squirrel.Eq{"id": resID})).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row reservationRow
	if err := pgxscan.Get(ctx, r.querier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(reservationsTable, resID.String())
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return row.toDomain(), nil
}

// ListActiveByDocument returns active rows for a document, consumptions
// before holds so reversal unwinds the chain child-first.
func (r *ReservationRepo) ListActiveByDocument(ctx context.Context, ref entity.DocumentRef, itemID *id.ID) ([]*reservation.Reservation, error) {
	q := scopedSelect(ctx, r.baseSelect().
		Where(squirrel.Eq{
			"document_type": ref.EntityType,
			"document_id":   ref.EntityID,
			"status":        entity.StatusActive,
		}))

	if itemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *itemID})
	}

	// 'consumed' < 'reserved' lexically, which is exactly the unwind order.
	q = q.OrderBy("kind", "created_at", "id")

	return r.selectReservations(ctx, q)
}

// ListOpenReserved returns active unfulfilled holds for (item, document),
// oldest-first, locked for the transaction.
func (r *ReservationRepo) ListOpenReserved(ctx context.Context, itemID id.ID, ref entity.DocumentRef) ([]*reservation.Reservation, error) {
	q := scopedSelect(ctx, r.baseSelect().
		Where(squirrel.Eq{
			"item_id":       itemID,
			"document_type": ref.EntityType,
			"document_id":   ref.EntityID,
			"kind":          reservation.KindReserved,
			"status":        entity.StatusActive,
			"fulfilled":     false,
		})).
		OrderBy("created_at", "id").
		Suffix("FOR UPDATE")

	return r.selectReservations(ctx, q)
}

// AddApproveQty increments approve_qty guarded by the reserved quantity.
func (r *ReservationRepo) AddApproveQty(ctx context.Context, resID id.ID, delta types.Quantity, fulfilled bool) error {
	q := scopedUpdate(ctx, r.builder.Update(reservationsTable).
		Set("approve_qty", squirrel.Expr("approve_qty + ?", int64(delta))).
		Set("fulfilled", fulfilled).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": resID, "status": entity.StatusActive}).
		Where(squirrel.Expr("approve_qty + ? <= quantity", int64(delta))))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("add approve qty: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrencyConflict(reservationsTable, resID.String())
	}
	return nil
}

// ReleaseApproveQty decrements approve_qty, floored at zero, and reopens
// the hold.
func (r *ReservationRepo) ReleaseApproveQty(ctx context.Context, resID id.ID, delta types.Quantity) error {
	q := scopedUpdate(ctx, r.builder.Update(reservationsTable).
		Set("approve_qty", squirrel.Expr("GREATEST(approve_qty - ?, 0)", int64(delta))).
		Set("fulfilled", false).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": resID}))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("release approve qty: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(reservationsTable, resID.String())
	}
	return nil
}

// SoftDelete flips the row lifecycle to Deleted.
func (r *ReservationRepo) SoftDelete(ctx context.Context, resID id.ID) error {
	q := scopedUpdate(ctx, r.builder.Update(reservationsTable).
		Set("status", entity.StatusDeleted).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": resID}))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("soft delete reservation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(reservationsTable, resID.String())
	}
	return nil
}

func (r *ReservationRepo) selectReservations(ctx context.Context, q squirrel.SelectBuilder) ([]*reservation.Reservation, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []reservationRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}

	out := make([]*reservation.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
