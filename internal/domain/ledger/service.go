package ledger

import (
	"context"
	"fmt"
	"time"

	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
	"stockcore/pkg/logger"
)

// BalanceObserver is notified after every balance mutation. Observer
// failures must never fail the mutation; implementations log and swallow.
type BalanceObserver interface {
	AfterBalanceChange(ctx context.Context, it *item.Item, newBalance types.Quantity)
}

// AppendInput describes a ledger row to append. Quantity is in base units;
// callers normalize through the unit converter first.
type AppendInput struct {
	Item        *item.Item
	WarehouseID id.ID
	Direction   Direction
	Quantity    types.Quantity
	Amount      types.Money
	Rate        types.Money // currency rate for converted amount, 1 when unset
	Document    entity.DocumentRef

	// ParentLotID and ReservationID link consumption OUT rows back to the
	// lot and reservation they draw from.
	ParentLotID   *id.ID
	ReservationID *id.ID

	// Batch is optional; IN rows get defaults when nil.
	Batch *BatchInfo

	ReceivedAt time.Time // zero means now
}

// Service provides append and reversal operations over the stock ledger.
// Transactions are managed by the caller (the effect coordinator).
type Service struct {
	repo     Repository
	items    *item.Service
	observer BalanceObserver
}

// NewService creates a new stock ledger service. Observer may be nil.
func NewService(repo Repository, items *item.Service, observer BalanceObserver) *Service {
	return &Service{
		repo:     repo,
		items:    items,
		observer: observer,
	}
}

// Append writes a ledger row and applies the signed balance delta to the
// item's cached stock (with variant rollup) in the same transaction.
//
// OUT rows tied to a reservation must carry the valuation inherited from
// the parent lot; the reservation manager computes it before calling here.
func (s *Service) Append(ctx context.Context, in AppendInput) (*Lot, error) {
	lot := &Lot{
		Base:          entity.NewBase(ctx),
		ItemID:        in.Item.ID,
		WarehouseID:   in.WarehouseID,
		Direction:     in.Direction,
		Unit:          in.Item.PrimaryUnit,
		Quantity:      in.Quantity,
		Amount:        types.RoundMoney(in.Amount),
		Document:      in.Document,
		ParentLotID:   in.ParentLotID,
		ReservationID: in.ReservationID,
		ReceivedAt:    in.ReceivedAt,
	}
	if lot.ReceivedAt.IsZero() {
		lot.ReceivedAt = time.Now().UTC()
	}

	rate := in.Rate
	if rate.IsZero() {
		rate = types.MustMoney("1")
	}
	lot.ConvertedAmount = types.RoundMoney(lot.Amount.Mul(rate))

	if in.Direction == DirectionIn {
		lot.Batch = s.defaultBatch(in)
	}

	if err := lot.Validate(ctx); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, lot); err != nil {
		return nil, fmt.Errorf("append ledger row: %w", err)
	}

	balance, err := s.items.ApplyStockDelta(ctx, in.Item, lot.SignedQuantity())
	if err != nil {
		return nil, err
	}

	s.notifyBalance(ctx, in.Item, balance)

	logger.Debug(ctx, "ledger row appended",
		"lot_id", lot.ID,
		"item", in.Item.Code,
		"direction", lot.Direction,
		"quantity", lot.Quantity,
		"document", lot.Document.String(),
	)

	return lot, nil
}

// LoadOpening bulk-loads opening balance IN lots. Lots are validated up
// front, inserted in one batch, and balance deltas applied per item
// afterwards. Intended for initial stock takeover, not document posting.
func (s *Service) LoadOpening(ctx context.Context, inputs []AppendInput) ([]*Lot, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	lots := make([]*Lot, 0, len(inputs))
	for _, in := range inputs {
		lot := &Lot{
			Base:        entity.NewBase(ctx),
			ItemID:      in.Item.ID,
			WarehouseID: in.WarehouseID,
			Direction:   DirectionIn,
			Unit:        in.Item.PrimaryUnit,
			Quantity:    in.Quantity,
			Amount:      types.RoundMoney(in.Amount),
			Document:    in.Document,
			Batch:       s.defaultBatch(in),
			ReceivedAt:  in.ReceivedAt,
		}
		if lot.ReceivedAt.IsZero() {
			lot.ReceivedAt = time.Now().UTC()
		}
		lot.ConvertedAmount = lot.Amount
		if err := lot.Validate(ctx); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}

	if err := s.repo.CreateMany(ctx, lots); err != nil {
		return nil, fmt.Errorf("bulk insert opening lots: %w", err)
	}

	for i, lot := range lots {
		balance, err := s.items.ApplyStockDelta(ctx, inputs[i].Item, lot.SignedQuantity())
		if err != nil {
			return nil, err
		}
		s.notifyBalance(ctx, inputs[i].Item, balance)
	}

	logger.Info(ctx, "opening balances loaded", "lots", len(lots))
	return lots, nil
}

// Reverse voids a ledger row: flips it to Deleted, applies the inverse
// balance delta, and for OUT rows drawn directly from a parent lot (no
// reservation chain) restores the parent's used_qty floored at zero.
//
// OUT rows spawned by a reservation leave the parent's used_qty alone here;
// the coordinator restores the reservation chain instead, otherwise the
// hold placed by the originating order would be silently released.
func (s *Service) Reverse(ctx context.Context, it *item.Item, lot *Lot) error {
	if !lot.IsActive() {
		return nil
	}

	if err := s.repo.SoftDelete(ctx, lot.ID); err != nil {
		return fmt.Errorf("void ledger row %s: %w", lot.ID, err)
	}
	lot.MarkDeleted()

	if lot.Direction == DirectionOut && lot.ParentLotID != nil && lot.ReservationID == nil {
		if err := s.repo.ReleaseUsedQty(ctx, *lot.ParentLotID, lot.Quantity); err != nil {
			return fmt.Errorf("release parent lot %s: %w", lot.ParentLotID, err)
		}
	}

	balance, err := s.items.ApplyStockDelta(ctx, it, lot.SignedQuantity().Neg())
	if err != nil {
		return err
	}

	s.notifyBalance(ctx, it, balance)

	logger.Debug(ctx, "ledger row reversed",
		"lot_id", lot.ID,
		"item", it.Code,
		"document", lot.Document.String(),
	)

	return nil
}

// Repo exposes the repository for read paths (handlers, reservation walk).
func (s *Service) Repo() Repository {
	return s.repo
}

func (s *Service) defaultBatch(in AppendInput) BatchInfo {
	if in.Batch != nil {
		b := *in.Batch
		if b.ManufactureDate.IsZero() {
			b.ManufactureDate = time.Now().UTC()
		}
		return b
	}

	b := BatchInfo{ManufactureDate: time.Now().UTC()}
	if in.Item.ShelfLifeDays > 0 {
		expiry := b.ManufactureDate.AddDate(0, 0, in.Item.ShelfLifeDays)
		b.ExpiryDate = &expiry
	}
	return b
}

func (s *Service) notifyBalance(ctx context.Context, it *item.Item, balance types.Quantity) {
	if s.observer == nil {
		return
	}
	s.observer.AfterBalanceChange(ctx, it, balance)
}
