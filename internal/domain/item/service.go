package item

import (
	"context"
	"fmt"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
	"stockcore/internal/core/types"
	"stockcore/pkg/logger"
)

// Service provides business operations for the item master.
type Service struct {
	repo Repository
}

// NewService creates a new item service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create creates a new item.
func (s *Service) Create(ctx context.Context, it *Item) error {
	if err := it.Validate(ctx); err != nil {
		return err
	}

	txm, err := tenant.GetTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, it); err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "item created", "id", it.ID, "code", it.Code)
	return nil
}

// Update updates an existing item.
func (s *Service) Update(ctx context.Context, it *Item) error {
	if err := it.Validate(ctx); err != nil {
		return err
	}

	txm, err := tenant.GetTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, it); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return nil
	})
}

// GetByID retrieves an item by id.
func (s *Service) GetByID(ctx context.Context, itemID id.ID) (*Item, error) {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("item", itemID.String())
		}
		return nil, err
	}
	return it, nil
}

// Delete soft-deletes an item.
func (s *Service) Delete(ctx context.Context, itemID id.ID) error {
	if _, err := s.GetByID(ctx, itemID); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, itemID)
}

// List retrieves items with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	return s.repo.List(ctx, filter)
}

// ApplyStockDelta adjusts the item's cached balance by a signed delta and
// rolls the same delta up to the parent item for variants. Returns the new
// balance of the item itself.
func (s *Service) ApplyStockDelta(ctx context.Context, it *Item, delta types.Quantity) (types.Quantity, error) {
	if delta.IsZero() {
		return it.CurrentStock, nil
	}

	balance, err := s.repo.AdjustStock(ctx, it.ID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust stock for %s: %w", it.Code, err)
	}

	if it.ParentItemID != nil && !id.IsNil(*it.ParentItemID) {
		if _, err := s.repo.AdjustStock(ctx, *it.ParentItemID, delta); err != nil {
			return 0, fmt.Errorf("roll up stock to parent %s: %w", it.ParentItemID, err)
		}
	}

	it.CurrentStock = balance
	return balance, nil
}

// ApplyReserveDelta adjusts the item's reserved quantity by a signed delta.
func (s *Service) ApplyReserveDelta(ctx context.Context, it *Item, delta types.Quantity) error {
	if delta.IsZero() {
		return nil
	}
	reserved, err := s.repo.AdjustReserve(ctx, it.ID, delta)
	if err != nil {
		return fmt.Errorf("adjust reserve for %s: %w", it.Code, err)
	}
	it.ReserveStock = reserved
	return nil
}

// ListBelowMinimum returns active items whose balance is under minimum.
func (s *Service) ListBelowMinimum(ctx context.Context) ([]*Item, error) {
	return s.repo.ListBelowMinimum(ctx)
}
