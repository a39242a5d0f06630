package reservation

import (
	"context"
	"fmt"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/pkg/logger"
)

// Service allocates requested quantity across open lots oldest-first and
// records consumption against existing holds. All methods run inside the
// caller's transaction.
type Service struct {
	repo  Repository
	lots  ledger.Repository
	stock *ledger.Service
	items *item.Service
}

// NewService creates a new reservation manager.
func NewService(repo Repository, lots ledger.Repository, stock *ledger.Service, items *item.Service) *Service {
	return &Service{
		repo:  repo,
		lots:  lots,
		stock: stock,
		items: items,
	}
}

// Reserve allocates requiredQty base units for (item, warehouse) against
// open lots, oldest-first.
//
// Re-invoking for the same (item, document) is idempotent: the previous
// allocation is reversed first and the new quantity allocated from scratch,
// never additively. When total availability is short the whole operation
// fails with InsufficientStock and no partial allocation survives (the
// enclosing transaction rolls back any released holds too).
func (s *Service) Reserve(ctx context.Context, it *item.Item, requiredQty types.Quantity, warehouseID id.ID, ref entity.DocumentRef) ([]*Reservation, error) {
	if !requiredQty.IsPositive() {
		return nil, apperror.NewValidation("required quantity must be positive").
			WithDetail("item", it.Code)
	}

	if err := s.releaseReserved(ctx, it, ref); err != nil {
		return nil, err
	}

	open, err := s.lots.ListOpenLots(ctx, it.ID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("list open lots for %s: %w", it.Code, err)
	}

	var available types.Quantity
	for _, lot := range open {
		available += lot.Available()
	}
	if available < requiredQty {
		return nil, apperror.NewInsufficientStock(it.Code, requiredQty, available)
	}

	reservations := make([]*Reservation, 0, 2)
	remaining := requiredQty
	for _, lot := range open {
		if remaining.IsZero() {
			break
		}
		alloc := remaining.Min(lot.Available())
		if !alloc.IsPositive() {
			continue
		}

		if err := s.lots.AddUsedQty(ctx, lot.ID, alloc); err != nil {
			return nil, err
		}

		res := &Reservation{
			Base:     entity.NewBase(ctx),
			ItemID:   it.ID,
			LotID:    lot.ID,
			Document: ref,
			Kind:     KindReserved,
			Quantity: alloc,
		}
		if err := res.Validate(ctx); err != nil {
			return nil, err
		}
		if err := s.repo.Create(ctx, res); err != nil {
			return nil, fmt.Errorf("create reservation: %w", err)
		}

		reservations = append(reservations, res)
		remaining -= alloc
	}

	if err := s.items.ApplyReserveDelta(ctx, it, requiredQty); err != nil {
		return nil, err
	}

	logger.Debug(ctx, "stock reserved",
		"item", it.Code,
		"quantity", requiredQty,
		"lots", len(reservations),
		"document", ref.String(),
	)

	return reservations, nil
}

// Consume draws qty down from a RESERVED row on behalf of doc: it records a
// CONSUMED child row, advances approve_qty (marking fulfilled at the
// boundary), and appends a matching OUT ledger row whose parent is the
// originally reserved lot so lot costing carries over.
func (s *Service) Consume(ctx context.Context, it *item.Item, reserved *Reservation, qty types.Quantity, doc entity.DocumentRef) (*ledger.Lot, error) {
	if reserved.Kind != KindReserved || !reserved.IsActive() {
		return nil, apperror.NewInvalidReservationState(reserved.ID.String(), reserved.Remaining(), qty)
	}
	if !qty.IsPositive() || qty > reserved.Remaining() {
		return nil, apperror.NewInvalidReservationState(reserved.ID.String(), reserved.Remaining(), qty)
	}

	fulfilled := reserved.ApproveQty+qty == reserved.Quantity
	if err := s.repo.AddApproveQty(ctx, reserved.ID, qty, fulfilled); err != nil {
		return nil, err
	}
	reserved.ApproveQty += qty
	reserved.Fulfilled = fulfilled

	consumed := &Reservation{
		Base:     entity.NewBase(ctx),
		ItemID:   reserved.ItemID,
		LotID:    reserved.LotID,
		Document: doc,
		Kind:     KindConsumed,
		Quantity: qty,
		ParentID: &reserved.ID,
	}
	if err := consumed.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, consumed); err != nil {
		return nil, fmt.Errorf("create consumption: %w", err)
	}

	parentLot, err := s.lots.GetByID(ctx, reserved.LotID)
	if err != nil {
		return nil, fmt.Errorf("load reserved lot %s: %w", reserved.LotID, err)
	}

	// Valuation comes from the parent lot, not the document's entered
	// price, preserving lot-based costing.
	amount := types.RoundMoney(parentLot.UnitCost().Mul(qty.Decimal()))

	out, err := s.stock.Append(ctx, ledger.AppendInput{
		Item:          it,
		WarehouseID:   parentLot.WarehouseID,
		Direction:     ledger.DirectionOut,
		Quantity:      qty,
		Amount:        amount,
		Document:      doc,
		ParentLotID:   &parentLot.ID,
		ReservationID: &consumed.ID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.items.ApplyReserveDelta(ctx, it, qty.Neg()); err != nil {
		return nil, err
	}

	return out, nil
}

// ReleaseDocument reverses every active reservation keyed to a document:
// CONSUMED rows restore approve_qty on their RESERVED parent, RESERVED rows
// restore the lot's used_qty. Calling it again is a no-op.
func (s *Service) ReleaseDocument(ctx context.Context, ref entity.DocumentRef) error {
	rows, err := s.repo.ListActiveByDocument(ctx, ref, nil)
	if err != nil {
		return fmt.Errorf("list reservations for %s: %w", ref.String(), err)
	}

	// A document that reserved and consumed under its own ref carries the
	// whole chain in rows. Consumptions are listed first and reopen their
	// parent hold, so a RESERVED row released later in the same pass must
	// count the reopened part on top of its stale Remaining().
	restored := make(map[id.ID]types.Quantity)

	items := make(map[id.ID]*item.Item)
	for _, r := range rows {
		it, ok := items[r.ItemID]
		if !ok {
			it, err = s.items.GetByID(ctx, r.ItemID)
			if err != nil {
				return err
			}
			items[r.ItemID] = it
		}

		switch r.Kind {
		case KindConsumed:
			if r.ParentID != nil {
				if err := s.repo.ReleaseApproveQty(ctx, *r.ParentID, r.Quantity); err != nil {
					return err
				}
				// The parent hold is live again.
				if err := s.items.ApplyReserveDelta(ctx, it, r.Quantity); err != nil {
					return err
				}
				restored[*r.ParentID] += r.Quantity
			}
		case KindReserved:
			if err := s.lots.ReleaseUsedQty(ctx, r.LotID, r.Quantity); err != nil {
				return err
			}
			release := r.Remaining() + restored[r.ID]
			if err := s.items.ApplyReserveDelta(ctx, it, release.Neg()); err != nil {
				return err
			}
		}

		if err := s.repo.SoftDelete(ctx, r.ID); err != nil {
			return fmt.Errorf("void reservation %s: %w", r.ID, err)
		}
	}

	if len(rows) > 0 {
		logger.Debug(ctx, "reservations released",
			"document", ref.String(),
			"count", len(rows),
		)
	}

	return nil
}

// OpenReserved returns the active unfulfilled holds for (item, document),
// oldest-first, for progressive consumption.
func (s *Service) OpenReserved(ctx context.Context, itemID id.ID, ref entity.DocumentRef) ([]*Reservation, error) {
	return s.repo.ListOpenReserved(ctx, itemID, ref)
}

// releaseReserved reverses a previous allocation for (item, document)
// before re-allocating. Only RESERVED rows are touched; consumption rows
// belong to the consuming document and are reversed with it.
func (s *Service) releaseReserved(ctx context.Context, it *item.Item, ref entity.DocumentRef) error {
	rows, err := s.repo.ListActiveByDocument(ctx, ref, &it.ID)
	if err != nil {
		return fmt.Errorf("list prior reservations: %w", err)
	}

	for _, r := range rows {
		if r.Kind != KindReserved {
			continue
		}
		if err := s.lots.ReleaseUsedQty(ctx, r.LotID, r.Quantity); err != nil {
			return err
		}
		if err := s.items.ApplyReserveDelta(ctx, it, r.Remaining().Neg()); err != nil {
			return err
		}
		if err := s.repo.SoftDelete(ctx, r.ID); err != nil {
			return fmt.Errorf("void prior reservation %s: %w", r.ID, err)
		}
	}

	return nil
}
