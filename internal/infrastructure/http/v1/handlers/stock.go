package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/infrastructure/http/v1/dto"
)

// StockHandler serves balance, lot, and movement queries plus the opening
// balance load.
type StockHandler struct {
	BaseHandler
	items *item.Service
	stock *ledger.Service
}

// NewStockHandler creates a stock handler.
func NewStockHandler(items *item.Service, stock *ledger.Service) *StockHandler {
	return &StockHandler{items: items, stock: stock}
}

// Balance handles GET /stock/balance/:itemId.
func (h *StockHandler) Balance(c *gin.Context) {
	itemID, ok := h.ParseID(c, "itemId")
	if !ok {
		return
	}
	it, err := h.items.GetByID(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BalanceResponse{
		ItemID:       it.ID.String(),
		Code:         it.Code,
		CurrentStock: it.CurrentStock,
		ReserveStock: it.ReserveStock,
		MinimumStock: it.MinimumStock,
		Available:    it.CurrentStock - it.ReserveStock,
	})
}

// Lots handles GET /stock/lots. Returns open receipt lots for an item in
// a warehouse, oldest-first, the same order allocation walks them in.
func (h *StockHandler) Lots(c *gin.Context) {
	itemID, err := id.Parse(c.Query("itemId"))
	if err != nil {
		h.Error(c, invalidIDError("itemId", c.Query("itemId")))
		return
	}
	warehouseID, err := id.Parse(c.Query("warehouseId"))
	if err != nil {
		h.Error(c, invalidIDError("warehouseId", c.Query("warehouseId")))
		return
	}

	lots, err := h.stock.Repo().ListOpenLots(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.LotsToResponse(lots))
}

// Movements handles GET /stock/movements.
func (h *StockHandler) Movements(c *gin.Context) {
	var q dto.MovementsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	itemID, err := id.Parse(q.ItemID)
	if err != nil {
		h.Error(c, invalidIDError("itemId", q.ItemID))
		return
	}

	filter := ledger.MovementFilter{
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.WarehouseID != "" {
		warehouseID, err := id.Parse(q.WarehouseID)
		if err != nil {
			h.Error(c, invalidIDError("warehouseId", q.WarehouseID))
			return
		}
		filter.WarehouseID = &warehouseID
	}
	if q.Direction != "" {
		dir := ledger.Direction(q.Direction)
		if dir != ledger.DirectionIn && dir != ledger.DirectionOut {
			h.Error(c, apperror.NewValidation("invalid direction").WithDetail("direction", q.Direction))
			return
		}
		filter.Direction = &dir
	}
	if q.From != "" {
		from, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid from date").WithDetail("from", q.From))
			return
		}
		filter.FromDate = &from
	}
	if q.To != "" {
		to, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid to date").WithDetail("to", q.To))
			return
		}
		filter.ToDate = &to
	}

	lots, err := h.stock.Repo().ListMovements(c.Request.Context(), itemID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.LotsToResponse(lots))
}

// Low handles GET /stock/low.
func (h *StockHandler) Low(c *gin.Context) {
	items, err := h.items.ListBelowMinimum(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ItemsToResponse(items))
}

// LoadOpening handles POST /stock/opening-balances.
func (h *StockHandler) LoadOpening(c *gin.Context) {
	var req dto.OpeningBalanceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ref, err := req.Document.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	txm, err := tenant.GetTxManager(ctx)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	var loaded int
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		inputs := make([]ledger.AppendInput, 0, len(req.Lines))
		for _, line := range req.Lines {
			itemID, err := id.Parse(line.ItemID)
			if err != nil {
				return invalidIDError("itemId", line.ItemID)
			}
			warehouseID, err := id.Parse(line.WarehouseID)
			if err != nil {
				return invalidIDError("warehouseId", line.WarehouseID)
			}
			it, err := h.items.GetByID(ctx, itemID)
			if err != nil {
				return err
			}

			in := ledger.AppendInput{
				Item:        it,
				WarehouseID: warehouseID,
				Quantity:    line.Quantity,
				Amount:      line.Amount,
				Document:    ref,
			}
			if line.BatchNumber != "" {
				in.Batch = &ledger.BatchInfo{Number: line.BatchNumber}
			}
			if line.ReceivedAt != nil {
				in.ReceivedAt = *line.ReceivedAt
			}
			inputs = append(inputs, in)
		}

		lots, err := h.stock.LoadOpening(ctx, inputs)
		if err != nil {
			return err
		}
		loaded = len(lots)
		return nil
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{"loaded": loaded})
}
