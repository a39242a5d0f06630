package dto

import (
	"time"

	"stockcore/internal/core/types"
	"stockcore/internal/domain/ledger"
)

// BalanceResponse reports an item's cached balance.
type BalanceResponse struct {
	ItemID       string         `json:"itemId"`
	Code         string         `json:"code"`
	CurrentStock types.Quantity `json:"currentStock"`
	ReserveStock types.Quantity `json:"reserveStock"`
	MinimumStock types.Quantity `json:"minimumStock"`
	Available    types.Quantity `json:"available"`
}

// LotResponse is the API shape of a ledger row.
type LotResponse struct {
	ID              string         `json:"id"`
	ItemID          string         `json:"itemId"`
	WarehouseID     string         `json:"warehouseId"`
	Direction       string         `json:"direction"`
	Unit            string         `json:"unit"`
	Quantity        types.Quantity `json:"quantity"`
	UsedQty         types.Quantity `json:"usedQty"`
	Available       types.Quantity `json:"available"`
	Amount          types.Money    `json:"amount"`
	ConvertedAmount types.Money    `json:"convertedAmount"`
	DocumentType    string         `json:"documentType"`
	DocumentID      string         `json:"documentId"`
	BatchNumber     string         `json:"batchNumber,omitempty"`
	ExpiryDate      *time.Time     `json:"expiryDate,omitempty"`
	ReceivedAt      time.Time      `json:"receivedAt"`
	Status          string         `json:"status"`
}

// LotToResponse converts a domain lot.
func LotToResponse(lot *ledger.Lot) LotResponse {
	return LotResponse{
		ID:              lot.ID.String(),
		ItemID:          lot.ItemID.String(),
		WarehouseID:     lot.WarehouseID.String(),
		Direction:       string(lot.Direction),
		Unit:            lot.Unit,
		Quantity:        lot.Quantity,
		UsedQty:         lot.UsedQty,
		Available:       lot.Available(),
		Amount:          lot.Amount,
		ConvertedAmount: lot.ConvertedAmount,
		DocumentType:    lot.Document.EntityType,
		DocumentID:      lot.Document.EntityID.String(),
		BatchNumber:     lot.Batch.Number,
		ExpiryDate:      lot.Batch.ExpiryDate,
		ReceivedAt:      lot.ReceivedAt,
		Status:          string(lot.Status),
	}
}

// LotsToResponse converts a list of lots.
func LotsToResponse(lots []*ledger.Lot) []LotResponse {
	out := make([]LotResponse, 0, len(lots))
	for _, lot := range lots {
		out = append(out, LotToResponse(lot))
	}
	return out
}

// MovementsQuery narrows movement history.
type MovementsQuery struct {
	ItemID      string `form:"itemId" binding:"required"`
	WarehouseID string `form:"warehouseId"`
	Direction   string `form:"direction"`
	From        string `form:"from"`
	To          string `form:"to"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

// OpeningBalanceLine is one lot of an opening stock load.
type OpeningBalanceLine struct {
	ItemID      string         `json:"itemId" binding:"required"`
	WarehouseID string         `json:"warehouseId" binding:"required"`
	Quantity    types.Quantity `json:"quantity" binding:"required"`
	Amount      types.Money    `json:"amount"`
	BatchNumber string         `json:"batchNumber"`
	ReceivedAt  *time.Time     `json:"receivedAt"`
}

// OpeningBalanceRequest bulk-loads opening stock.
type OpeningBalanceRequest struct {
	Document DocumentRef          `json:"document" binding:"required"`
	Lines    []OpeningBalanceLine `json:"lines" binding:"required,min=1"`
}
