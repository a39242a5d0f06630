// Package item provides the item master: unit configuration, stock
// minimums, variant rollup, and the cached running balance mutated by the
// stock ledger.
package item

import (
	"context"

	"github.com/shopspring/decimal"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/types"
)

// Item represents a stock-keeping item.
//
// CurrentStock is a transactionally maintained cache: it always equals the
// signed sum of active ledger quantities for the item. It is adjusted only
// through atomic arithmetic updates, never read-modify-write.
type Item struct {
	entity.Base

	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// PrimaryUnit is the canonical unit all ledger balances are stored in.
	PrimaryUnit string `db:"primary_unit" json:"primaryUnit"`

	// AlternateUnit is an optional secondary unit (e.g. BOX over PCS).
	AlternateUnit string `db:"alternate_unit" json:"alternateUnit,omitempty"`

	// AlternateUnitQty is the conversion factor: how many alternate units
	// correspond to PurchaseQty primary units. Zero means no alternate
	// unit conversion is configured.
	AlternateUnitQty decimal.Decimal `db:"alternate_unit_qty" json:"alternateUnitQty"`

	// PurchaseQty is the base factor paired with AlternateUnitQty.
	PurchaseQty decimal.Decimal `db:"purchase_qty" json:"purchaseQty"`

	// CurrentStock is the cached running balance in primary units.
	CurrentStock types.Quantity `db:"current_stock" json:"currentStock"`

	// ReserveStock is the quantity currently held by open reservations.
	ReserveStock types.Quantity `db:"reserve_stock" json:"reserveStock"`

	// MinimumStock triggers a low-stock alert when the balance drops below it.
	MinimumStock types.Quantity `db:"minimum_stock" json:"minimumStock"`

	// ParentItemID is set for a variant; balance deltas roll up to the parent.
	ParentItemID *id.ID `db:"parent_item_id" json:"parentItemId,omitempty"`

	// ShelfLifeDays derives a batch expiry date when a receipt carries none.
	ShelfLifeDays int `db:"shelf_life_days" json:"shelfLifeDays,omitempty"`
}

// New creates an item scoped to the context tenant.
func New(ctx context.Context, code, name, primaryUnit string) *Item {
	return &Item{
		Base:             entity.NewBase(ctx),
		Code:             code,
		Name:             name,
		PrimaryUnit:      primaryUnit,
		AlternateUnitQty: decimal.Zero,
		PurchaseQty:      decimal.Zero,
	}
}

// HasAlternateUnit reports whether an alternate unit conversion is configured.
func (i *Item) HasAlternateUnit() bool {
	return i.AlternateUnit != "" && i.AlternateUnitQty.IsPositive()
}

// Validate implements entity.Validatable.
func (i *Item) Validate(ctx context.Context) error {
	if i.Code == "" {
		return apperror.NewValidation("item code is required").
			WithDetail("field", "code")
	}
	if i.Name == "" {
		return apperror.NewValidation("item name is required").
			WithDetail("field", "name")
	}
	if i.PrimaryUnit == "" {
		return apperror.NewValidation("primary unit is required").
			WithDetail("field", "primaryUnit")
	}
	if i.AlternateUnitQty.IsNegative() {
		return apperror.NewValidation("alternate unit quantity cannot be negative").
			WithDetail("field", "alternateUnitQty")
	}
	if i.PurchaseQty.IsNegative() {
		return apperror.NewValidation("purchase quantity cannot be negative").
			WithDetail("field", "purchaseQty")
	}
	if i.AlternateUnit != "" && i.AlternateUnit == i.PrimaryUnit {
		return apperror.NewValidation("alternate unit must differ from primary unit").
			WithDetail("field", "alternateUnit")
	}
	if i.MinimumStock.IsNegative() {
		return apperror.NewValidation("minimum stock cannot be negative").
			WithDetail("field", "minimumStock")
	}
	if i.ShelfLifeDays < 0 {
		return apperror.NewValidation("shelf life cannot be negative").
			WithDetail("field", "shelfLifeDays")
	}
	return nil
}
