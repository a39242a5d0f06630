package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/domain/stockeffect"
	"stockcore/internal/infrastructure/http/v1/dto"
)

// AuditHistory reads back recorded coordinator actions. The postgres audit
// service implements it; deployments without audit storage pass nil.
type AuditHistory interface {
	History(ctx context.Context, documentType string, documentID id.ID, limit int) ([]stockeffect.AuditEntry, error)
}

// EffectHandler exposes the stock effect coordinator.
type EffectHandler struct {
	BaseHandler
	coordinator *stockeffect.Coordinator
	history     AuditHistory
}

// NewEffectHandler creates an effect handler. History may be nil.
func NewEffectHandler(coordinator *stockeffect.Coordinator, history AuditHistory) *EffectHandler {
	return &EffectHandler{coordinator: coordinator, history: history}
}

// Apply handles POST /stock-effects/apply.
func (h *EffectHandler) Apply(c *gin.Context) {
	ref, lines, ok := h.bindLines(c)
	if !ok {
		return
	}
	if err := h.coordinator.Apply(c.Request.Context(), ref, lines); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "stock effects applied")
}

// Update handles POST /stock-effects/update.
func (h *EffectHandler) Update(c *gin.Context) {
	ref, lines, ok := h.bindLines(c)
	if !ok {
		return
	}
	if err := h.coordinator.Update(c.Request.Context(), ref, lines); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "stock effects updated")
}

// Remove handles POST /stock-effects/remove.
func (h *EffectHandler) Remove(c *gin.Context) {
	var req dto.RemoveEffectsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ref, err := req.Document.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.coordinator.Remove(c.Request.Context(), ref); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "stock effects removed")
}

// Delete handles POST /stock-effects/delete.
func (h *EffectHandler) Delete(c *gin.Context) {
	var req dto.RemoveEffectsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ref, err := req.Document.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.coordinator.Delete(c.Request.Context(), ref); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "stock effects deleted")
}

// History handles GET /stock-effects/audit/:entityType/:id.
func (h *EffectHandler) History(c *gin.Context) {
	docID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 50)

	entries, err := h.history.History(c.Request.Context(), c.Param("entityType"), docID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AuditEntriesToResponse(entries))
}

func (h *EffectHandler) bindLines(c *gin.Context) (entity.DocumentRef, []stockeffect.Line, bool) {
	var req dto.ApplyEffectsRequest
	if !h.BindJSON(c, &req) {
		return entity.DocumentRef{}, nil, false
	}
	ref, err := req.Document.ToDomain()
	if err != nil {
		h.Error(c, err)
		return entity.DocumentRef{}, nil, false
	}
	lines, err := dto.LinesToDomain(req.Lines)
	if err != nil {
		h.Error(c, err)
		return entity.DocumentRef{}, nil, false
	}
	return ref, lines, true
}
