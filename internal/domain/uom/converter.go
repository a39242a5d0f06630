// Package uom converts document line quantities between an item's primary
// and alternate units. Base (primary-unit) values are canonical; display
// values are derived and never authoritative for balance math.
package uom

import (
	"context"

	"github.com/shopspring/decimal"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
)

// SettingsProvider supplies per-company conversion settings. Implementations
// read company configuration; tests plug in a fixed value.
type SettingsProvider interface {
	// QuantityPrecision returns the decimal precision quantities are
	// rounded to, between 0 and types.MaxQuantityPrecision.
	QuantityPrecision(ctx context.Context) int32
}

// StaticSettings is a SettingsProvider with a fixed precision.
type StaticSettings struct {
	Precision int32
}

func (s StaticSettings) QuantityPrecision(ctx context.Context) int32 { return s.Precision }

// DefaultSettings returns the stock default of 2 decimals.
func DefaultSettings() SettingsProvider {
	return StaticSettings{Precision: 2}
}

// Conversion is the result of normalizing a line quantity.
type Conversion struct {
	BaseUnit    string
	BaseQty     types.Quantity
	DisplayUnit string
	DisplayQty  types.Quantity
}

// Converter normalizes quantities to an item's primary unit.
type Converter struct {
	settings SettingsProvider
}

// NewConverter creates a converter backed by the given settings provider.
func NewConverter(settings SettingsProvider) *Converter {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Converter{settings: settings}
}

// Convert normalizes quantity entered in unit to the item's primary unit.
//
// Primary unit input: baseQty is the rounded input; if an alternate unit is
// configured, displayQty = qty * alternateUnitQty / purchaseQty.
// Alternate unit input: requires a positive conversion factor;
// baseQty = qty / alternateUnitQty * purchaseQty.
// Any other unit fails with UnitMismatch.
func (c *Converter) Convert(ctx context.Context, qty types.Quantity, it *item.Item, unit string) (Conversion, error) {
	precision := c.settings.QuantityPrecision(ctx)
	d := qty.Decimal()

	switch unit {
	case it.PrimaryUnit:
		base := types.NewQuantityFromDecimal(d, precision)
		display := base
		displayUnit := it.PrimaryUnit
		if it.HasAlternateUnit() {
			if !it.PurchaseQty.IsPositive() {
				return Conversion{}, apperror.NewInvalidConversionFactor(it.Code)
			}
			displayUnit = it.AlternateUnit
			display = types.NewQuantityFromDecimal(
				d.Mul(it.AlternateUnitQty).Div(it.PurchaseQty), precision)
		}
		return Conversion{
			BaseUnit:    it.PrimaryUnit,
			BaseQty:     base,
			DisplayUnit: displayUnit,
			DisplayQty:  display,
		}, nil

	case it.AlternateUnit:
		if unit == "" {
			break
		}
		if !it.AlternateUnitQty.IsPositive() || !it.PurchaseQty.IsPositive() {
			return Conversion{}, apperror.NewInvalidConversionFactor(it.Code)
		}
		base := types.NewQuantityFromDecimal(
			d.Div(it.AlternateUnitQty).Mul(it.PurchaseQty), precision)
		return Conversion{
			BaseUnit:    it.PrimaryUnit,
			BaseQty:     base,
			DisplayUnit: it.AlternateUnit,
			DisplayQty:  types.NewQuantityFromDecimal(d, precision),
		}, nil
	}

	return Conversion{}, apperror.NewUnitMismatch(it.Code, unit)
}

// UnitPriceOf derives a per-base-unit price from a line total, used when a
// receipt line's valuation must be spread across base units.
func UnitPriceOf(amount types.Money, baseQty types.Quantity) types.Money {
	if baseQty.IsZero() {
		return decimal.Zero
	}
	return amount.Div(baseQty.Decimal())
}
