package dto

import (
	"time"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/domain/stockeffect"
)

// EffectLine is one document line's stock instruction.
type EffectLine struct {
	ItemID      string         `json:"itemId" binding:"required"`
	WarehouseID string         `json:"warehouseId" binding:"required"`
	Effect      string         `json:"effect" binding:"required"`
	Unit        string         `json:"unit" binding:"required"`
	Quantity    types.Quantity `json:"quantity" binding:"required"`
	Amount      types.Money    `json:"amount"`
	Rate        types.Money    `json:"rate"`
	AgainstRef  *DocumentRef   `json:"againstRef"`
	BatchNumber string         `json:"batchNumber"`
	ReceivedAt  *time.Time     `json:"receivedAt"`
}

// ApplyEffectsRequest posts or replaces a document's stock effects.
type ApplyEffectsRequest struct {
	Document DocumentRef  `json:"document" binding:"required"`
	Lines    []EffectLine `json:"lines" binding:"required,min=1"`
}

// RemoveEffectsRequest reverses a document's stock effects.
type RemoveEffectsRequest struct {
	Document DocumentRef `json:"document" binding:"required"`
}

// ToDomain converts the line, validating ids and the effect kind.
func (l EffectLine) ToDomain() (stockeffect.Line, error) {
	itemID, err := id.Parse(l.ItemID)
	if err != nil {
		return stockeffect.Line{}, apperror.NewValidation("invalid item id").
			WithDetail("itemId", l.ItemID)
	}
	warehouseID, err := id.Parse(l.WarehouseID)
	if err != nil {
		return stockeffect.Line{}, apperror.NewValidation("invalid warehouse id").
			WithDetail("warehouseId", l.WarehouseID)
	}

	line := stockeffect.Line{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Effect:      stockeffect.Effect(l.Effect),
		Unit:        l.Unit,
		Quantity:    l.Quantity,
		Amount:      l.Amount,
		Rate:        l.Rate,
	}

	if l.AgainstRef != nil {
		ref, err := l.AgainstRef.ToDomain()
		if err != nil {
			return stockeffect.Line{}, err
		}
		line.AgainstRef = &ref
	}
	if l.BatchNumber != "" {
		line.Batch = &ledger.BatchInfo{Number: l.BatchNumber}
	}
	if l.ReceivedAt != nil {
		line.ReceivedAt = *l.ReceivedAt
	}
	return line, nil
}

// LinesToDomain converts all lines of a request.
func LinesToDomain(lines []EffectLine) ([]stockeffect.Line, error) {
	out := make([]stockeffect.Line, 0, len(lines))
	for _, l := range lines {
		line, err := l.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

// AuditEntryResponse is one recorded coordinator action.
type AuditEntryResponse struct {
	DocumentType string    `json:"documentType"`
	DocumentID   string    `json:"documentId"`
	Action       string    `json:"action"`
	Lines        int       `json:"lines"`
	At           time.Time `json:"at"`
}

// AuditEntriesToResponse converts audit history.
func AuditEntriesToResponse(entries []stockeffect.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			DocumentType: e.Document.EntityType,
			DocumentID:   e.Document.EntityID.String(),
			Action:       e.Action,
			Lines:        len(e.Lines),
			At:           e.At,
		})
	}
	return out
}
