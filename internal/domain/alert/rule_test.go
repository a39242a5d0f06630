package alert

import (
	"context"
	"testing"

	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
)

func TestDefaultRule(t *testing.T) {
	rule := MustRule(DefaultRuleExpr)

	it := item.New(context.Background(), "TSHIRT-M", "T-Shirt M", "PCS")
	it.MinimumStock = types.NewQuantityFromFloat64(10)

	tests := []struct {
		name    string
		current types.Quantity
		want    bool
	}{
		{"below minimum", types.NewQuantityFromFloat64(5), true},
		{"at minimum", types.NewQuantityFromFloat64(10), false},
		{"above minimum", types.NewQuantityFromFloat64(15), false},
		{"negative balance", types.NewQuantityFromFloat64(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fire, err := rule.Eval(it, tt.current)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if fire != tt.want {
				t.Errorf("Eval(current=%s) = %v, want %v", tt.current, fire, tt.want)
			}
		})
	}
}

func TestCustomRuleSeesReserve(t *testing.T) {
	rule, err := NewRule("current_stock - reserve_stock < minimum_stock")
	if err != nil {
		t.Fatalf("NewRule failed: %v", err)
	}

	it := item.New(context.Background(), "TSHIRT-M", "T-Shirt M", "PCS")
	it.MinimumStock = types.NewQuantityFromFloat64(10)
	it.ReserveStock = types.NewQuantityFromFloat64(8)

	// 15 on hand but 8 reserved leaves 7 available, under the minimum.
	fire, err := rule.Eval(it, types.NewQuantityFromFloat64(15))
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if !fire {
		t.Error("rule should fire when available stock is under minimum")
	}

	it.ReserveStock = 0
	fire, err = rule.Eval(it, types.NewQuantityFromFloat64(15))
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if fire {
		t.Error("rule should not fire without reservations")
	}
}

func TestNewRuleRejectsInvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax error", "current_stock <"},
		{"unknown variable", "total_stock < minimum_stock"},
		{"non-boolean result", "current_stock - minimum_stock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRule(tt.expr); err == nil {
				t.Errorf("NewRule(%q) should fail", tt.expr)
			}
		})
	}
}

func TestRuleString(t *testing.T) {
	rule := MustRule(DefaultRuleExpr)
	if rule.String() != DefaultRuleExpr {
		t.Errorf("String() = %q, want %q", rule.String(), DefaultRuleExpr)
	}
}
