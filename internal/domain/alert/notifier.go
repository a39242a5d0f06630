// Package alert raises best-effort low-stock notifications. Evaluation and
// delivery failures are logged and swallowed; they never roll back the
// stock mutation that triggered them.
package alert

import (
	"context"
	"fmt"

	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
	"stockcore/pkg/logger"
)

// Notification is the fire-and-forget payload sent to the external
// notification service.
type Notification struct {
	Receiver string `json:"receiver"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Link     string `json:"link"`
}

// Notifier delivers notifications. Implementations are external
// collaborators (mail, push, in-app).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// AdminReceiver addresses notifications to administrative users; the
// notification service resolves the group.
const AdminReceiver = "administrators"

// Evaluator checks the alert rule after every balance mutation and
// notifies when it fires.
type Evaluator struct {
	rule     *Rule
	notifier Notifier
}

// NewEvaluator creates an evaluator. A nil rule falls back to the default
// low-stock condition.
func NewEvaluator(rule *Rule, notifier Notifier) *Evaluator {
	if rule == nil {
		rule = MustRule(DefaultRuleExpr)
	}
	return &Evaluator{rule: rule, notifier: notifier}
}

// AfterBalanceChange implements ledger.BalanceObserver.
func (e *Evaluator) AfterBalanceChange(ctx context.Context, it *item.Item, newBalance types.Quantity) {
	if e.notifier == nil {
		return
	}

	fire, err := e.rule.Eval(it, newBalance)
	if err != nil {
		logger.Warn(ctx, "low stock rule evaluation failed",
			"item", it.Code,
			"error", err,
		)
		return
	}
	if !fire {
		return
	}

	n := Notification{
		Receiver: AdminReceiver,
		Title:    "Low stock alert",
		Message: fmt.Sprintf("Item %s is below minimum stock: current %s, minimum %s",
			it.Name, newBalance, it.MinimumStock),
		Link: fmt.Sprintf("/items/%s", it.ID),
	}

	if err := e.notifier.Notify(ctx, n); err != nil {
		logger.Warn(ctx, "low stock notification failed",
			"item", it.Code,
			"error", err,
		)
	}
}
