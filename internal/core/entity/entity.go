// Package entity provides core domain entities shared by the engine.
package entity

import (
	"context"
	"fmt"
	"time"

	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// LifecycleStatus is the row lifecycle tag. Rows are never physically
// removed by the engine; reversal flips them to Deleted and queries filter
// on Active by default, preserving the audit trail.
type LifecycleStatus string

const (
	StatusActive  LifecycleStatus = "active"
	StatusDeleted LifecycleStatus = "deleted"
)

// DocumentRef identifies the source document a ledger or reservation row
// belongs to, e.g. {"sales_order", <uuid>} or {"invoice", <uuid>}.
type DocumentRef struct {
	EntityType string `db:"entity_type" json:"entityType"`
	EntityID   id.ID  `db:"entity_id" json:"entityId"`
}

// NewDocumentRef creates a document reference.
func NewDocumentRef(entityType string, entityID id.ID) DocumentRef {
	return DocumentRef{EntityType: entityType, EntityID: entityID}
}

// IsZero reports whether the reference is unset.
func (r DocumentRef) IsZero() bool {
	return r.EntityType == "" && id.IsNil(r.EntityID)
}

// String renders the reference for logs and error details.
func (r DocumentRef) String() string {
	return fmt.Sprintf("%s/%s", r.EntityType, r.EntityID)
}

// TenantFields are the scoping columns carried by every engine row.
type TenantFields struct {
	CompanyID id.ID  `db:"company_id" json:"companyId"`
	BranchID  id.ID  `db:"branch_id" json:"branchId"`
	CreatedBy string `db:"created_by" json:"createdBy,omitempty"`
}

// TenantFieldsFromScope builds row scoping columns from the request scope.
func TenantFieldsFromScope(s tenant.Scope) TenantFields {
	return TenantFields{
		CompanyID: s.CompanyID,
		BranchID:  s.BranchID,
		CreatedBy: s.UserID,
	}
}

// Base contains common fields for all engine rows.
type Base struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Status is the lifecycle tag; Deleted rows are excluded from queries
	// by default but kept for audit.
	Status LifecycleStatus `db:"status" json:"status"`

	TenantFields

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewBase creates a Base row scoped to the context tenant.
func NewBase(ctx context.Context) Base {
	now := time.Now().UTC()
	return Base{
		ID:           id.New(),
		Status:       StatusActive,
		TenantFields: TenantFieldsFromScope(tenant.ScopeOrZero(ctx)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsActive reports whether the row is in the active lifecycle state.
func (b *Base) IsActive() bool {
	return b.Status == StatusActive
}

// MarkDeleted flips the row to the deleted lifecycle state.
func (b *Base) MarkDeleted() {
	b.Status = StatusDeleted
	b.Touch()
}

// Touch updates the UpdatedAt timestamp.
func (b *Base) Touch() {
	b.UpdatedAt = time.Now().UTC()
}
