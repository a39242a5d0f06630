package dto

import (
	"github.com/shopspring/decimal"

	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
)

// CreateItemRequest creates a stock-keeping item.
type CreateItemRequest struct {
	Code             string          `json:"code" binding:"required"`
	Name             string          `json:"name" binding:"required"`
	PrimaryUnit      string          `json:"primaryUnit" binding:"required"`
	AlternateUnit    string          `json:"alternateUnit"`
	AlternateUnitQty decimal.Decimal `json:"alternateUnitQty"`
	PurchaseQty      decimal.Decimal `json:"purchaseQty"`
	MinimumStock     types.Quantity  `json:"minimumStock"`
	ParentItemID     string          `json:"parentItemId"`
	ShelfLifeDays    int             `json:"shelfLifeDays"`
}

// UpdateItemRequest rewrites an item's master data.
type UpdateItemRequest struct {
	Code             string          `json:"code" binding:"required"`
	Name             string          `json:"name" binding:"required"`
	PrimaryUnit      string          `json:"primaryUnit" binding:"required"`
	AlternateUnit    string          `json:"alternateUnit"`
	AlternateUnitQty decimal.Decimal `json:"alternateUnitQty"`
	PurchaseQty      decimal.Decimal `json:"purchaseQty"`
	MinimumStock     types.Quantity  `json:"minimumStock"`
	ParentItemID     string          `json:"parentItemId"`
	ShelfLifeDays    int             `json:"shelfLifeDays"`
}

// ItemResponse is the API shape of an item.
type ItemResponse struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	PrimaryUnit      string          `json:"primaryUnit"`
	AlternateUnit    string          `json:"alternateUnit,omitempty"`
	AlternateUnitQty decimal.Decimal `json:"alternateUnitQty"`
	PurchaseQty      decimal.Decimal `json:"purchaseQty"`
	CurrentStock     types.Quantity  `json:"currentStock"`
	ReserveStock     types.Quantity  `json:"reserveStock"`
	MinimumStock     types.Quantity  `json:"minimumStock"`
	ParentItemID     string          `json:"parentItemId,omitempty"`
	ShelfLifeDays    int             `json:"shelfLifeDays,omitempty"`
	Status           string          `json:"status"`
}

// ItemToResponse converts a domain item.
func ItemToResponse(it *item.Item) ItemResponse {
	resp := ItemResponse{
		ID:               it.ID.String(),
		Code:             it.Code,
		Name:             it.Name,
		PrimaryUnit:      it.PrimaryUnit,
		AlternateUnit:    it.AlternateUnit,
		AlternateUnitQty: it.AlternateUnitQty,
		PurchaseQty:      it.PurchaseQty,
		CurrentStock:     it.CurrentStock,
		ReserveStock:     it.ReserveStock,
		MinimumStock:     it.MinimumStock,
		ShelfLifeDays:    it.ShelfLifeDays,
		Status:           string(it.Status),
	}
	if it.ParentItemID != nil {
		resp.ParentItemID = it.ParentItemID.String()
	}
	return resp
}

// ItemsToResponse converts a list of domain items.
func ItemsToResponse(items []*item.Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, ItemToResponse(it))
	}
	return out
}
