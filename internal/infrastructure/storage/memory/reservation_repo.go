package memory

import (
	"context"
	"sort"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/reservation"
)

// ReservationRepo implements reservation.Repository on the store.
type ReservationRepo struct {
	store *Store
}

// NewReservationRepo creates a reservation repository.
func NewReservationRepo(store *Store) *ReservationRepo {
	return &ReservationRepo{store: store}
}

var _ reservation.Repository = (*ReservationRepo)(nil)

func (r *ReservationRepo) Create(ctx context.Context, res *reservation.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.reservations[res.ID] = cloneReservation(res)
	r.store.reservationOrder = append(r.store.reservationOrder, res.ID)
	return nil
}

func (r *ReservationRepo) GetByID(ctx context.Context, resID id.ID) (*reservation.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	res, ok := r.store.reservations[resID]
	if !ok || !inScope(ctx, res.CompanyID) {
		return nil, apperror.NewNotFound("reservation", resID.String())
	}
	return cloneReservation(res), nil
}

func (r *ReservationRepo) ListActiveByDocument(ctx context.Context, ref entity.DocumentRef, itemID *id.ID) ([]*reservation.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*reservation.Reservation
	for _, resID := range r.store.reservationOrder {
		res := r.store.reservations[resID]
		if !res.IsActive() || res.Document != ref || !inScope(ctx, res.CompanyID) {
			continue
		}
		if itemID != nil && res.ItemID != *itemID {
			continue
		}
		out = append(out, cloneReservation(res))
	}

	// Consumptions before holds so reversal unwinds the chain child-first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind == reservation.KindConsumed && out[j].Kind == reservation.KindReserved
	})
	return out, nil
}

func (r *ReservationRepo) ListOpenReserved(ctx context.Context, itemID id.ID, ref entity.DocumentRef) ([]*reservation.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*reservation.Reservation
	for _, resID := range r.store.reservationOrder {
		res := r.store.reservations[resID]
		if !res.IsActive() || res.Kind != reservation.KindReserved || res.Fulfilled {
			continue
		}
		if res.ItemID != itemID || res.Document != ref || !inScope(ctx, res.CompanyID) {
			continue
		}
		out = append(out, cloneReservation(res))
	}
	return out, nil
}

func (r *ReservationRepo) AddApproveQty(ctx context.Context, resID id.ID, delta types.Quantity, fulfilled bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	res, ok := r.store.reservations[resID]
	if !ok || !res.IsActive() || !inScope(ctx, res.CompanyID) {
		return apperror.NewConcurrencyConflict("reservation", resID.String())
	}
	if res.ApproveQty+delta > res.Quantity {
		return apperror.NewConcurrencyConflict("reservation", resID.String())
	}
	res.ApproveQty += delta
	res.Fulfilled = fulfilled
	res.Touch()
	return nil
}

func (r *ReservationRepo) ReleaseApproveQty(ctx context.Context, resID id.ID, delta types.Quantity) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	res, ok := r.store.reservations[resID]
	if !ok || !inScope(ctx, res.CompanyID) {
		return apperror.NewNotFound("reservation", resID.String())
	}
	res.ApproveQty -= delta
	if res.ApproveQty.IsNegative() {
		res.ApproveQty = 0
	}
	res.Fulfilled = false
	res.Touch()
	return nil
}

func (r *ReservationRepo) SoftDelete(ctx context.Context, resID id.ID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	res, ok := r.store.reservations[resID]
	if !ok || !inScope(ctx, res.CompanyID) {
		return apperror.NewNotFound("reservation", resID.String())
	}
	res.MarkDeleted()
	return nil
}
