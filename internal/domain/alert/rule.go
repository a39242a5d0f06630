package alert

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
)

// DefaultRuleExpr is the stock condition used when a company has no
// custom rule configured.
const DefaultRuleExpr = "current_stock < minimum_stock"

// Rule is a compiled CEL predicate over an item's stock figures. The
// expression sees three double variables:
//
//	current_stock  balance after the mutation
//	minimum_stock  the item's configured threshold
//	reserve_stock  quantity currently held by reservations
type Rule struct {
	expr    string
	program cel.Program
}

// NewRule compiles expr into an evaluable rule.
func NewRule(expr string) (*Rule, error) {
	env, err := cel.NewEnv(
		cel.Variable("current_stock", cel.DoubleType),
		cel.Variable("minimum_stock", cel.DoubleType),
		cel.Variable("reserve_stock", cel.DoubleType),
	)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("create rule environment: %w", err))
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, apperror.NewValidation("invalid alert rule expression").
			WithDetail("expression", expr).
			WithDetail("error", issues.Err().Error())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, apperror.NewValidation("alert rule must evaluate to a boolean").
			WithDetail("expression", expr)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("build rule program: %w", err))
	}

	return &Rule{expr: expr, program: program}, nil
}

// MustRule compiles expr and panics on error. For package defaults only.
func MustRule(expr string) *Rule {
	r, err := NewRule(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// Eval runs the rule against an item's figures.
func (r *Rule) Eval(it *item.Item, currentStock types.Quantity) (bool, error) {
	out, _, err := r.program.Eval(map[string]any{
		"current_stock": currentStock.Decimal().InexactFloat64(),
		"minimum_stock": it.MinimumStock.Decimal().InexactFloat64(),
		"reserve_stock": it.ReserveStock.Decimal().InexactFloat64(),
	})
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("evaluate alert rule: %w", err)).
			WithDetail("expression", r.expr)
	}

	fire, ok := out.Value().(bool)
	if !ok {
		return false, apperror.NewInternal(fmt.Errorf("alert rule returned non-boolean value")).
			WithDetail("expression", r.expr)
	}
	return fire, nil
}

// String returns the source expression.
func (r *Rule) String() string {
	return r.expr
}
