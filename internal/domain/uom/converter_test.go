package uom

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
)

func boxedItem(t *testing.T) *item.Item {
	t.Helper()
	it := item.New(context.Background(), "TSHIRT-M", "T-Shirt M", "PCS")
	// 5 BOX correspond to 60 PCS: one box holds 12 pieces.
	it.AlternateUnit = "BOX"
	it.AlternateUnitQty = decimal.NewFromInt(5)
	it.PurchaseQty = decimal.NewFromInt(60)
	return it
}

func TestConvertPrimaryUnit(t *testing.T) {
	conv := NewConverter(nil)
	it := boxedItem(t)

	got, err := conv.Convert(context.Background(), types.NewQuantityFromFloat64(24), it, "PCS")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if got.BaseUnit != "PCS" || got.BaseQty != types.NewQuantityFromFloat64(24) {
		t.Errorf("base = %s %s, want 24.0000 PCS", got.BaseQty, got.BaseUnit)
	}
	// 24 PCS * 5 BOX / 60 PCS = 2 BOX
	if got.DisplayUnit != "BOX" || got.DisplayQty != types.NewQuantityFromFloat64(2) {
		t.Errorf("display = %s %s, want 2.0000 BOX", got.DisplayQty, got.DisplayUnit)
	}
}

func TestConvertAlternateUnit(t *testing.T) {
	conv := NewConverter(nil)
	it := boxedItem(t)

	got, err := conv.Convert(context.Background(), types.NewQuantityFromFloat64(2), it, "BOX")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	// 2 BOX / 5 * 60 = 24 PCS
	if got.BaseQty != types.NewQuantityFromFloat64(24) {
		t.Errorf("base = %s, want 24.0000", got.BaseQty)
	}
	if got.DisplayQty != types.NewQuantityFromFloat64(2) || got.DisplayUnit != "BOX" {
		t.Errorf("display = %s %s, want 2.0000 BOX", got.DisplayQty, got.DisplayUnit)
	}
}

func TestConvertPrimaryWithoutAlternate(t *testing.T) {
	conv := NewConverter(nil)
	it := item.New(context.Background(), "BOLT", "Bolt", "PCS")

	got, err := conv.Convert(context.Background(), types.NewQuantityFromFloat64(7), it, "PCS")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if got.DisplayUnit != "PCS" || got.DisplayQty != got.BaseQty {
		t.Errorf("display should mirror base when no alternate unit is configured")
	}
}

func TestConvertUnitMismatch(t *testing.T) {
	conv := NewConverter(nil)
	it := boxedItem(t)

	_, err := conv.Convert(context.Background(), types.NewQuantityFromFloat64(1), it, "KG")
	if err == nil {
		t.Fatal("expected unit mismatch error")
	}
	if !apperror.IsCode(err, apperror.CodeUnitMismatch) {
		t.Errorf("error code = %v, want unit mismatch", err)
	}
}

func TestConvertEmptyUnitMismatch(t *testing.T) {
	// An item without an alternate unit must not treat "" as a match.
	conv := NewConverter(nil)
	it := item.New(context.Background(), "BOLT", "Bolt", "PCS")

	_, err := conv.Convert(context.Background(), types.NewQuantityFromFloat64(1), it, "")
	if err == nil {
		t.Fatal("expected unit mismatch error for empty unit")
	}
}

func TestConvertInvalidFactor(t *testing.T) {
	conv := NewConverter(nil)
	it := boxedItem(t)
	it.AlternateUnitQty = decimal.Zero

	_, err := conv.Convert(context.Background(), types.NewQuantityFromFloat64(1), it, "BOX")
	if err == nil {
		t.Fatal("expected invalid conversion factor error")
	}
	if !apperror.IsCode(err, apperror.CodeInvalidConversionFactor) {
		t.Errorf("error code = %v, want invalid conversion factor", err)
	}
}

func TestConvertRespectsPrecision(t *testing.T) {
	conv := NewConverter(StaticSettings{Precision: 0})
	it := boxedItem(t)

	// 1 BOX / 5 * 60 = 12 exactly, but the input itself is rounded first.
	got, err := conv.Convert(context.Background(), types.NewQuantityFromFloat64(1.4), it, "PCS")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if got.BaseQty != types.NewQuantityFromFloat64(1) {
		t.Errorf("base = %s, want 1.0000 at precision 0", got.BaseQty)
	}
}

func TestUnitPriceOf(t *testing.T) {
	price := UnitPriceOf(types.MustMoney("120"), types.NewQuantityFromFloat64(24))
	if !price.Equal(types.MustMoney("5")) {
		t.Errorf("unit price = %s, want 5", price)
	}

	if !UnitPriceOf(types.MustMoney("120"), 0).IsZero() {
		t.Error("unit price of zero quantity should be zero")
	}
}
