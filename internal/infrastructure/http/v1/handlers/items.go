package handlers

import (
	"github.com/gin-gonic/gin"

	"stockcore/internal/core/id"
	"stockcore/internal/domain/item"
	"stockcore/internal/infrastructure/http/v1/dto"
)

// ItemHandler serves the item master endpoints.
type ItemHandler struct {
	BaseHandler
	items *item.Service
}

// NewItemHandler creates an item handler.
func NewItemHandler(items *item.Service) *ItemHandler {
	return &ItemHandler{items: items}
}

// Create handles POST /items.
func (h *ItemHandler) Create(c *gin.Context) {
	var req dto.CreateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	it := item.New(ctx, req.Code, req.Name, req.PrimaryUnit)
	it.AlternateUnit = req.AlternateUnit
	it.AlternateUnitQty = req.AlternateUnitQty
	it.PurchaseQty = req.PurchaseQty
	it.MinimumStock = req.MinimumStock
	it.ShelfLifeDays = req.ShelfLifeDays
	if req.ParentItemID != "" {
		parentID, ok := h.parseParent(c, req.ParentItemID)
		if !ok {
			return
		}
		it.ParentItemID = &parentID
	}

	if err := h.items.Create(ctx, it); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, it.ID.String())
}

// Update handles PUT /items/:id. Cached balances are never writable here;
// only the ledger mutates them.
func (h *ItemHandler) Update(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	it, err := h.items.GetByID(ctx, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	it.Code = req.Code
	it.Name = req.Name
	it.PrimaryUnit = req.PrimaryUnit
	it.AlternateUnit = req.AlternateUnit
	it.AlternateUnitQty = req.AlternateUnitQty
	it.PurchaseQty = req.PurchaseQty
	it.MinimumStock = req.MinimumStock
	it.ShelfLifeDays = req.ShelfLifeDays
	it.ParentItemID = nil
	if req.ParentItemID != "" {
		parentID, ok := h.parseParent(c, req.ParentItemID)
		if !ok {
			return
		}
		it.ParentItemID = &parentID
	}

	if err := h.items.Update(ctx, it); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ItemToResponse(it))
}

// Get handles GET /items/:id.
func (h *ItemHandler) Get(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	it, err := h.items.GetByID(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ItemToResponse(it))
}

// List handles GET /items.
func (h *ItemHandler) List(c *gin.Context) {
	filter := item.ListFilter{
		Code:   c.Query("code"),
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	items, err := h.items.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ItemsToResponse(items))
}

// Delete handles DELETE /items/:id.
func (h *ItemHandler) Delete(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.items.Delete(c.Request.Context(), itemID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

func (h *ItemHandler) parseParent(c *gin.Context, raw string) (id.ID, bool) {
	parentID, err := id.Parse(raw)
	if err != nil {
		h.Error(c, invalidIDError("parentItemId", raw))
		return id.Nil(), false
	}
	return parentID, true
}
