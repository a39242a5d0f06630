// Package dto defines the request and response shapes of the v1 API.
package dto

import (
	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
)

// IDResponse returns the id of a created entity.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a generic acknowledgment.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DocumentRef identifies the source document of a stock effect.
type DocumentRef struct {
	EntityType string `json:"entityType" binding:"required"`
	EntityID   string `json:"entityId" binding:"required"`
}

// ToDomain validates and converts the reference.
func (r DocumentRef) ToDomain() (entity.DocumentRef, error) {
	entityID, err := id.Parse(r.EntityID)
	if err != nil {
		return entity.DocumentRef{}, apperror.NewValidation("invalid document entity id").
			WithDetail("entityId", r.EntityID)
	}
	return entity.NewDocumentRef(r.EntityType, entityID), nil
}
