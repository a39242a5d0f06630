// Package stockeffect coordinates the stock side effects of document
// postings. A document's lines are translated into ledger rows and
// reservations inside one transaction; removing the document reverses
// everything it produced.
package stockeffect

import (
	"context"
	"fmt"
	"time"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/domain/reservation"
	"stockcore/internal/domain/uom"
	"stockcore/pkg/logger"
)

// Effect is what a document line does to stock.
type Effect string

const (
	// EffectReceipt appends an IN lot.
	EffectReceipt Effect = "receipt"
	// EffectIssue draws stock down, consuming reservations when the line
	// points at an originating order.
	EffectIssue Effect = "issue"
	// EffectReserve places a hold without moving stock.
	EffectReserve Effect = "reserve"
)

// Line is one document line's stock instruction. Quantity is in the
// entered unit; the coordinator normalizes it through the converter.
type Line struct {
	ItemID      id.ID          `json:"itemId"`
	WarehouseID id.ID          `json:"warehouseId"`
	Effect      Effect         `json:"effect"`
	Unit        string         `json:"unit"`
	Quantity    types.Quantity `json:"quantity"`

	// Amount is the line's total valuation in document currency.
	Amount types.Money `json:"amount"`
	// Rate converts Amount to company currency, 1 when unset.
	Rate types.Money `json:"rate"`

	// AgainstRef points an issue line at the order whose holds it fulfills.
	AgainstRef *entity.DocumentRef `json:"againstRef,omitempty"`

	// Batch overrides the generated batch info on receipts.
	Batch *ledger.BatchInfo `json:"batch,omitempty"`

	// ReceivedAt overrides the lot's aging timestamp, zero means now.
	ReceivedAt time.Time `json:"receivedAt,omitzero"`
}

// AuditEntry is one coordinator action recorded for traceability.
type AuditEntry struct {
	Document entity.DocumentRef `json:"document"`
	Action   string             `json:"action"`
	Lines    []Line             `json:"lines,omitempty"`
	At       time.Time          `json:"at"`
}

// EffectAuditor persists audit entries. Failures are logged and never
// fail the posting.
type EffectAuditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// maxAttempts bounds retries when a conditional lot update loses a race.
const maxAttempts = 3

// Coordinator is the single entry point for document stock effects.
type Coordinator struct {
	items        *item.Service
	converter    *uom.Converter
	stock        *ledger.Service
	reservations *reservation.Service
	auditor      EffectAuditor
}

// NewCoordinator creates a coordinator. Auditor may be nil.
func NewCoordinator(
	items *item.Service,
	converter *uom.Converter,
	stock *ledger.Service,
	reservations *reservation.Service,
	auditor EffectAuditor,
) *Coordinator {
	return &Coordinator{
		items:        items,
		converter:    converter,
		stock:        stock,
		reservations: reservations,
		auditor:      auditor,
	}
}

// Apply posts a document's stock effects. The whole document succeeds or
// fails as a unit; a single short line rolls back every other line.
func (c *Coordinator) Apply(ctx context.Context, ref entity.DocumentRef, lines []Line) error {
	if ref.IsZero() {
		return apperror.NewValidation("document reference is required")
	}
	return c.run(ctx, func(ctx context.Context) error {
		if err := c.applyTx(ctx, ref, lines); err != nil {
			return err
		}
		c.audit(ctx, ref, "apply", lines)
		return nil
	})
}

// Remove reverses everything a document produced: reservation chains
// first, then every active ledger row. Removing a document that has no
// effects is a no-op.
func (c *Coordinator) Remove(ctx context.Context, ref entity.DocumentRef) error {
	if ref.IsZero() {
		return apperror.NewValidation("document reference is required")
	}
	return c.run(ctx, func(ctx context.Context) error {
		if err := c.removeTx(ctx, ref); err != nil {
			return err
		}
		c.audit(ctx, ref, "remove", nil)
		return nil
	})
}

// Update replaces a document's stock effects with a new set of lines in
// one transaction. Partial deltas are never computed; the previous state
// is fully reversed and the new lines applied from scratch.
func (c *Coordinator) Update(ctx context.Context, ref entity.DocumentRef, lines []Line) error {
	if ref.IsZero() {
		return apperror.NewValidation("document reference is required")
	}
	return c.run(ctx, func(ctx context.Context) error {
		if err := c.removeTx(ctx, ref); err != nil {
			return err
		}
		if err := c.applyTx(ctx, ref, lines); err != nil {
			return err
		}
		c.audit(ctx, ref, "update", lines)
		return nil
	})
}

// Delete reverses a deleted document's effects. Same mechanics as Remove,
// recorded under its own audit action.
func (c *Coordinator) Delete(ctx context.Context, ref entity.DocumentRef) error {
	if ref.IsZero() {
		return apperror.NewValidation("document reference is required")
	}
	return c.run(ctx, func(ctx context.Context) error {
		if err := c.removeTx(ctx, ref); err != nil {
			return err
		}
		c.audit(ctx, ref, "delete", nil)
		return nil
	})
}

func (c *Coordinator) applyTx(ctx context.Context, ref entity.DocumentRef, lines []Line) error {
	for i, line := range lines {
		if err := c.applyLine(ctx, ref, line); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return appErr.WithDetail("line", i)
			}
			return fmt.Errorf("line %d: %w", i, err)
		}
	}
	return nil
}

func (c *Coordinator) applyLine(ctx context.Context, ref entity.DocumentRef, line Line) error {
	if !line.Quantity.IsPositive() {
		return apperror.NewValidation("line quantity must be positive")
	}

	it, err := c.items.GetByID(ctx, line.ItemID)
	if err != nil {
		return err
	}

	conv, err := c.converter.Convert(ctx, line.Quantity, it, line.Unit)
	if err != nil {
		return err
	}

	switch line.Effect {
	case EffectReceipt:
		_, err := c.stock.Append(ctx, ledger.AppendInput{
			Item:        it,
			WarehouseID: line.WarehouseID,
			Direction:   ledger.DirectionIn,
			Quantity:    conv.BaseQty,
			Amount:      line.Amount,
			Rate:        line.Rate,
			Document:    ref,
			Batch:       line.Batch,
			ReceivedAt:  line.ReceivedAt,
		})
		return err

	case EffectReserve:
		_, err := c.reservations.Reserve(ctx, it, conv.BaseQty, line.WarehouseID, ref)
		return err

	case EffectIssue:
		return c.issue(ctx, it, line, conv.BaseQty, ref)

	default:
		return apperror.NewValidation("unknown stock effect").
			WithDetail("effect", string(line.Effect))
	}
}

// issue draws baseQty down. With AgainstRef the originating order's open
// holds are consumed oldest-first; any remainder (and issues without an
// order) goes through an immediate reserve-then-consume so every draw-down
// traces back to a hold on a specific lot.
func (c *Coordinator) issue(ctx context.Context, it *item.Item, line Line, baseQty types.Quantity, ref entity.DocumentRef) error {
	remaining := baseQty

	if line.AgainstRef != nil {
		open, err := c.reservations.OpenReserved(ctx, it.ID, *line.AgainstRef)
		if err != nil {
			return err
		}
		for _, r := range open {
			if remaining.IsZero() {
				break
			}
			alloc := remaining.Min(r.Remaining())
			if !alloc.IsPositive() {
				continue
			}
			if _, err := c.reservations.Consume(ctx, it, r, alloc, ref); err != nil {
				return err
			}
			remaining -= alloc
		}
	}

	if remaining.IsZero() {
		return nil
	}

	holds, err := c.reservations.Reserve(ctx, it, remaining, line.WarehouseID, ref)
	if err != nil {
		return err
	}
	for _, r := range holds {
		if _, err := c.reservations.Consume(ctx, it, r, r.Remaining(), ref); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) removeTx(ctx context.Context, ref entity.DocumentRef) error {
	if err := c.reservations.ReleaseDocument(ctx, ref); err != nil {
		return err
	}

	lots, err := c.stock.Repo().ListActiveByDocument(ctx, ref)
	if err != nil {
		return fmt.Errorf("list ledger rows for %s: %w", ref.String(), err)
	}

	items := make(map[id.ID]*item.Item)
	for _, lot := range lots {
		it, ok := items[lot.ItemID]
		if !ok {
			it, err = c.items.GetByID(ctx, lot.ItemID)
			if err != nil {
				return err
			}
			items[lot.ItemID] = it
		}
		if err := c.stock.Reverse(ctx, it, lot); err != nil {
			return err
		}
	}

	return nil
}

// run executes fn in a transaction, retrying the whole transaction when a
// conditional lot or reservation update loses a race.
func (c *Coordinator) run(ctx context.Context, fn func(ctx context.Context) error) error {
	txm, err := tenant.GetTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := txm.RunInTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !apperror.IsConcurrencyConflict(err) {
			return err
		}
		lastErr = err
		logger.Warn(ctx, "stock effect lost an allocation race",
			"attempt", attempt,
			"error", err,
		)
	}
	return lastErr
}

func (c *Coordinator) audit(ctx context.Context, ref entity.DocumentRef, action string, lines []Line) {
	if c.auditor == nil {
		return
	}
	entry := AuditEntry{
		Document: ref,
		Action:   action,
		Lines:    lines,
		At:       time.Now().UTC(),
	}
	if err := c.auditor.Record(ctx, entry); err != nil {
		logger.Warn(ctx, "stock effect audit failed",
			"document", ref.String(),
			"action", action,
			"error", err,
		)
	}
}
