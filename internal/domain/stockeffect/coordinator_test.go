package stockeffect_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/domain/reservation"
	"stockcore/internal/domain/stockeffect"
	"stockcore/internal/domain/uom"
	"stockcore/internal/infrastructure/storage/memory"
)

type fixture struct {
	ctx         context.Context
	store       *memory.Store
	items       *item.Service
	lots        ledger.Repository
	coordinator *stockeffect.Coordinator
	warehouse   id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	itemRepo := memory.NewItemRepo(store)
	lotRepo := memory.NewLedgerRepo(store)
	resRepo := memory.NewReservationRepo(store)

	items := item.NewService(itemRepo)
	stock := ledger.NewService(lotRepo, items, nil)
	reservations := reservation.NewService(resRepo, lotRepo, stock, items)
	coordinator := stockeffect.NewCoordinator(
		items,
		uom.NewConverter(nil),
		stock,
		reservations,
		memory.NewAuditor(store),
	)

	ctx := tenant.WithTxManager(context.Background(), memory.NewTxManager(store))
	return &fixture{
		ctx:         ctx,
		store:       store,
		items:       items,
		lots:        lotRepo,
		coordinator: coordinator,
		warehouse:   id.New(),
	}
}

func (f *fixture) createItem(t *testing.T, code string) *item.Item {
	t.Helper()
	it := item.New(f.ctx, code, code, "PCS")
	require.NoError(t, f.items.Create(f.ctx, it))
	return it
}

func (f *fixture) balance(t *testing.T, itemID id.ID) (current, reserved types.Quantity) {
	t.Helper()
	it, err := f.items.GetByID(f.ctx, itemID)
	require.NoError(t, err)
	return it.CurrentStock, it.ReserveStock
}

func (f *fixture) receiptLine(it *item.Item, quantity float64, amount string) stockeffect.Line {
	return stockeffect.Line{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectReceipt,
		Unit:        "PCS",
		Quantity:    qty(quantity),
		Amount:      types.MustMoney(amount),
	}
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func docRef(entityType string) entity.DocumentRef {
	return entity.NewDocumentRef(entityType, id.New())
}

func TestApplyReceipt(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	receipt := docRef("purchase_receipt")

	err := f.coordinator.Apply(f.ctx, receipt, []stockeffect.Line{
		f.receiptLine(it, 10, "100"),
	})
	require.NoError(t, err)

	current, reserved := f.balance(t, it.ID)
	assert.Equal(t, qty(10), current)
	assert.True(t, reserved.IsZero())

	lots, err := f.lots.ListActiveByDocument(f.ctx, receipt)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, ledger.DirectionIn, lots[0].Direction)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "apply", entries[0].Action)
	assert.Equal(t, receipt, entries[0].Document)
	assert.Len(t, entries[0].Lines, 1)
}

func TestApplyIssueWithoutOrder(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	require.NoError(t, f.coordinator.Apply(f.ctx, docRef("purchase_receipt"), []stockeffect.Line{
		f.receiptLine(it, 10, "100"),
	}))

	issue := docRef("goods_issue")
	err := f.coordinator.Apply(f.ctx, issue, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectIssue,
		Unit:        "PCS",
		Quantity:    qty(4),
	}})
	require.NoError(t, err)

	current, reserved := f.balance(t, it.ID)
	assert.Equal(t, qty(6), current)
	assert.True(t, reserved.IsZero(), "immediate reserve-then-consume nets out")

	outs, err := f.lots.ListActiveByDocument(f.ctx, issue)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, ledger.DirectionOut, outs[0].Direction)
	assert.NotNil(t, outs[0].ParentLotID, "every draw-down traces to a lot")
	assert.NotNil(t, outs[0].ReservationID)
	// Valuation from the lot: 100 / 10 * 4.
	assert.True(t, outs[0].Amount.Equal(types.MustMoney("40")))
}

func TestIssueAgainstOrderConsumesHolds(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	require.NoError(t, f.coordinator.Apply(f.ctx, docRef("purchase_receipt"), []stockeffect.Line{
		f.receiptLine(it, 20, "200"),
	}))

	order := docRef("sales_order")
	require.NoError(t, f.coordinator.Apply(f.ctx, order, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectReserve,
		Unit:        "PCS",
		Quantity:    qty(10),
	}}))

	current, reserved := f.balance(t, it.ID)
	assert.Equal(t, qty(20), current)
	assert.Equal(t, qty(10), reserved)

	invoice := docRef("invoice")
	require.NoError(t, f.coordinator.Apply(f.ctx, invoice, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectIssue,
		Unit:        "PCS",
		Quantity:    qty(6),
		AgainstRef:  &order,
	}}))

	current, reserved = f.balance(t, it.ID)
	assert.Equal(t, qty(14), current)
	assert.Equal(t, qty(4), reserved, "the order's hold shrank by the issued quantity")
}

func TestIssueAgainstOrderWithRemainder(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	require.NoError(t, f.coordinator.Apply(f.ctx, docRef("purchase_receipt"), []stockeffect.Line{
		f.receiptLine(it, 20, "200"),
	}))

	order := docRef("sales_order")
	require.NoError(t, f.coordinator.Apply(f.ctx, order, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectReserve,
		Unit:        "PCS",
		Quantity:    qty(10),
	}}))

	// Issue 12 against a 10-unit hold: the extra 2 come off free stock.
	invoice := docRef("invoice")
	require.NoError(t, f.coordinator.Apply(f.ctx, invoice, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectIssue,
		Unit:        "PCS",
		Quantity:    qty(12),
		AgainstRef:  &order,
	}}))

	current, reserved := f.balance(t, it.ID)
	assert.Equal(t, qty(8), current)
	assert.True(t, reserved.IsZero())

	outs, err := f.lots.ListActiveByDocument(f.ctx, invoice)
	require.NoError(t, err)
	assert.Len(t, outs, 2, "one draw-down per consumed hold")
}

func TestApplyRollsBackWholeDocument(t *testing.T) {
	f := newFixture(t)
	shirts := f.createItem(t, "TSHIRT-M")
	milk := f.createItem(t, "MILK")
	require.NoError(t, f.coordinator.Apply(f.ctx, docRef("purchase_receipt"), []stockeffect.Line{
		f.receiptLine(milk, 3, "6"),
	}))

	// Line 1 would succeed, line 2 is short. Nothing may stick.
	err := f.coordinator.Apply(f.ctx, docRef("goods_issue"), []stockeffect.Line{
		f.receiptLine(shirts, 10, "100"),
		{
			ItemID:      milk.ID,
			WarehouseID: f.warehouse,
			Effect:      stockeffect.EffectIssue,
			Unit:        "PCS",
			Quantity:    qty(5),
		},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	current, _ := f.balance(t, shirts.ID)
	assert.True(t, current.IsZero(), "receipt line rolled back with the failing line")
	current, _ = f.balance(t, milk.ID)
	assert.Equal(t, qty(3), current)
}

func TestRemoveReversesEverything(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	receipt := docRef("purchase_receipt")
	require.NoError(t, f.coordinator.Apply(f.ctx, receipt, []stockeffect.Line{
		f.receiptLine(it, 20, "200"),
	}))

	order := docRef("sales_order")
	require.NoError(t, f.coordinator.Apply(f.ctx, order, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectReserve,
		Unit:        "PCS",
		Quantity:    qty(5),
	}}))

	require.NoError(t, f.coordinator.Remove(f.ctx, order))

	current, reserved := f.balance(t, it.ID)
	assert.Equal(t, qty(20), current)
	assert.True(t, reserved.IsZero())

	// Removing a document with no effects is a no-op.
	require.NoError(t, f.coordinator.Remove(f.ctx, order))
}

func TestRemoveConsumingDocumentRestoresStock(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	require.NoError(t, f.coordinator.Apply(f.ctx, docRef("purchase_receipt"), []stockeffect.Line{
		f.receiptLine(it, 20, "200"),
	}))

	order := docRef("sales_order")
	require.NoError(t, f.coordinator.Apply(f.ctx, order, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectReserve,
		Unit:        "PCS",
		Quantity:    qty(10),
	}}))

	invoice := docRef("invoice")
	require.NoError(t, f.coordinator.Apply(f.ctx, invoice, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectIssue,
		Unit:        "PCS",
		Quantity:    qty(6),
		AgainstRef:  &order,
	}}))

	require.NoError(t, f.coordinator.Remove(f.ctx, invoice))

	current, reserved := f.balance(t, it.ID)
	assert.Equal(t, qty(20), current, "issued stock returned")
	assert.Equal(t, qty(10), reserved, "the order's hold is whole again")
}

func TestRemoveDirectIssueClearsReserve(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	require.NoError(t, f.coordinator.Apply(f.ctx, docRef("purchase_receipt"), []stockeffect.Line{
		f.receiptLine(it, 10, "100"),
	}))

	issue := docRef("goods_issue")
	require.NoError(t, f.coordinator.Apply(f.ctx, issue, []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.EffectIssue,
		Unit:        "PCS",
		Quantity:    qty(5),
	}}))

	require.NoError(t, f.coordinator.Remove(f.ctx, issue))

	current, reserved := f.balance(t, it.ID)
	assert.Equal(t, qty(10), current, "issued stock returned")
	assert.True(t, reserved.IsZero(),
		"the issue's own reserve-then-consume chain unwinds to zero")

	// Removing again stays a no-op.
	require.NoError(t, f.coordinator.Remove(f.ctx, issue))
	_, reserved = f.balance(t, it.ID)
	assert.True(t, reserved.IsZero())
}

func TestUpdateReplacesEffects(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	receipt := docRef("purchase_receipt")

	require.NoError(t, f.coordinator.Apply(f.ctx, receipt, []stockeffect.Line{
		f.receiptLine(it, 10, "100"),
	}))
	require.NoError(t, f.coordinator.Update(f.ctx, receipt, []stockeffect.Line{
		f.receiptLine(it, 7, "70"),
	}))

	current, _ := f.balance(t, it.ID)
	assert.Equal(t, qty(7), current)

	lots, err := f.lots.ListActiveByDocument(f.ctx, receipt)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, qty(7), lots[0].Quantity)
}

func TestDeleteRecordsOwnAuditAction(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	receipt := docRef("purchase_receipt")

	require.NoError(t, f.coordinator.Apply(f.ctx, receipt, []stockeffect.Line{
		f.receiptLine(it, 10, "100"),
	}))
	require.NoError(t, f.coordinator.Delete(f.ctx, receipt))

	current, _ := f.balance(t, it.ID)
	assert.True(t, current.IsZero())

	entries := f.store.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "apply", entries[0].Action)
	assert.Equal(t, "delete", entries[1].Action)
}

func TestApplyRejectsBadLines(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")

	err := f.coordinator.Apply(f.ctx, docRef("purchase_receipt"), []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Effect:      stockeffect.Effect("teleport"),
		Unit:        "PCS",
		Quantity:    qty(1),
	}})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	err = f.coordinator.Apply(f.ctx, entity.DocumentRef{}, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

type failingAuditor struct{}

func (failingAuditor) Record(ctx context.Context, entry stockeffect.AuditEntry) error {
	return errors.New("audit store down")
}

func TestAuditFailureDoesNotFailPosting(t *testing.T) {
	store := memory.NewStore()
	itemRepo := memory.NewItemRepo(store)
	lotRepo := memory.NewLedgerRepo(store)
	resRepo := memory.NewReservationRepo(store)

	items := item.NewService(itemRepo)
	stock := ledger.NewService(lotRepo, items, nil)
	reservations := reservation.NewService(resRepo, lotRepo, stock, items)
	coordinator := stockeffect.NewCoordinator(
		items, uom.NewConverter(nil), stock, reservations, failingAuditor{})

	ctx := tenant.WithTxManager(context.Background(), memory.NewTxManager(store))
	it := item.New(ctx, "TSHIRT-M", "T-Shirt M", "PCS")
	require.NoError(t, items.Create(ctx, it))

	err := coordinator.Apply(ctx, docRef("purchase_receipt"), []stockeffect.Line{{
		ItemID:      it.ID,
		WarehouseID: id.New(),
		Effect:      stockeffect.EffectReceipt,
		Unit:        "PCS",
		Quantity:    qty(10),
		Amount:      types.MustMoney("100"),
	}})
	require.NoError(t, err, "audit failures are logged and swallowed")

	stored, err := items.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(10), stored.CurrentStock)
}
