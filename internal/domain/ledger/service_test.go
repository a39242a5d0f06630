package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcore/internal/core/entity"
	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
	"stockcore/internal/core/types"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/infrastructure/storage/memory"
)

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	items    *item.Service
	itemRepo item.Repository
	lots     ledger.Repository
	stock    *ledger.Service
}

type recordingObserver struct {
	calls []types.Quantity
}

func (o *recordingObserver) AfterBalanceChange(ctx context.Context, it *item.Item, newBalance types.Quantity) {
	o.calls = append(o.calls, newBalance)
}

func newFixture(t *testing.T, observer ledger.BalanceObserver) *fixture {
	t.Helper()

	store := memory.NewStore()
	itemRepo := memory.NewItemRepo(store)
	lotRepo := memory.NewLedgerRepo(store)
	items := item.NewService(itemRepo)
	stock := ledger.NewService(lotRepo, items, observer)

	ctx := tenant.WithTxManager(context.Background(), memory.NewTxManager(store))
	return &fixture{
		ctx:      ctx,
		store:    store,
		items:    items,
		itemRepo: itemRepo,
		lots:     lotRepo,
		stock:    stock,
	}
}

func (f *fixture) createItem(t *testing.T, code string) *item.Item {
	t.Helper()
	it := item.New(f.ctx, code, code, "PCS")
	require.NoError(t, f.items.Create(f.ctx, it))
	return it
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func docRef(entityType string) entity.DocumentRef {
	return entity.NewDocumentRef(entityType, id.New())
}

func TestAppendUpdatesBalance(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "TSHIRT-M")
	warehouse := id.New()

	lot, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: warehouse,
		Direction:   ledger.DirectionIn,
		Quantity:    qty(10),
		Amount:      types.MustMoney("100"),
		Document:    docRef("purchase_receipt"),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.DirectionIn, lot.Direction)
	assert.Equal(t, "PCS", lot.Unit)
	assert.True(t, lot.ConvertedAmount.Equal(types.MustMoney("100")), "rate defaults to 1")
	assert.Equal(t, qty(10), it.CurrentStock)

	stored, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(10), stored.CurrentStock)

	_, err = f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: warehouse,
		Direction:   ledger.DirectionOut,
		Quantity:    qty(4),
		Amount:      types.MustMoney("40"),
		Document:    docRef("goods_issue"),
	})
	require.NoError(t, err)
	assert.Equal(t, qty(6), it.CurrentStock)

	sum, err := f.lots.SumActiveByItem(f.ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.CurrentStock, sum, "cached balance must equal ledger sum")
}

func TestAppendAppliesCurrencyRate(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "TSHIRT-M")

	lot, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: id.New(),
		Direction:   ledger.DirectionIn,
		Quantity:    qty(3),
		Amount:      types.MustMoney("10"),
		Rate:        types.MustMoney("41.5"),
		Document:    docRef("purchase_receipt"),
	})
	require.NoError(t, err)
	assert.True(t, lot.ConvertedAmount.Equal(types.MustMoney("415")),
		"converted = %s", lot.ConvertedAmount)
}

func TestAppendDefaultsBatch(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "MILK")
	it.ShelfLifeDays = 30
	require.NoError(t, f.items.Update(f.ctx, it))

	lot, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: id.New(),
		Direction:   ledger.DirectionIn,
		Quantity:    qty(5),
		Amount:      types.MustMoney("50"),
		Document:    docRef("purchase_receipt"),
	})
	require.NoError(t, err)
	require.NotNil(t, lot.Batch.ExpiryDate)
	assert.False(t, lot.Batch.ManufactureDate.IsZero())

	wantExpiry := lot.Batch.ManufactureDate.AddDate(0, 0, 30)
	assert.WithinDuration(t, wantExpiry, *lot.Batch.ExpiryDate, time.Second)
}

func TestAppendKeepsExplicitBatch(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "MILK")

	manufactured := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lot, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: id.New(),
		Direction:   ledger.DirectionIn,
		Quantity:    qty(5),
		Amount:      types.MustMoney("50"),
		Document:    docRef("purchase_receipt"),
		Batch:       &ledger.BatchInfo{Number: "B-042", ManufactureDate: manufactured},
	})
	require.NoError(t, err)
	assert.Equal(t, "B-042", lot.Batch.Number)
	assert.True(t, manufactured.Equal(lot.Batch.ManufactureDate))
}

func TestAppendRollsUpToParent(t *testing.T) {
	f := newFixture(t, nil)
	parent := f.createItem(t, "TSHIRT")
	variant := f.createItem(t, "TSHIRT-M")
	variant.ParentItemID = &parent.ID
	require.NoError(t, f.items.Update(f.ctx, variant))

	_, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        variant,
		WarehouseID: id.New(),
		Direction:   ledger.DirectionIn,
		Quantity:    qty(10),
		Amount:      types.MustMoney("100"),
		Document:    docRef("purchase_receipt"),
	})
	require.NoError(t, err)

	storedParent, err := f.items.GetByID(f.ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(10), storedParent.CurrentStock, "variant receipt rolls up")

	storedVariant, err := f.items.GetByID(f.ctx, variant.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(10), storedVariant.CurrentStock)
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "TSHIRT-M")

	_, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: id.New(),
		Direction:   ledger.DirectionIn,
		Quantity:    qty(-1),
		Document:    docRef("purchase_receipt"),
	})
	require.Error(t, err)

	stored, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentStock.IsZero(), "failed append must not move the balance")
}

func TestReverse(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "TSHIRT-M")
	ref := docRef("purchase_receipt")

	lot, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: id.New(),
		Direction:   ledger.DirectionIn,
		Quantity:    qty(10),
		Amount:      types.MustMoney("100"),
		Document:    ref,
	})
	require.NoError(t, err)

	require.NoError(t, f.stock.Reverse(f.ctx, it, lot))
	assert.True(t, it.CurrentStock.IsZero())
	assert.False(t, lot.IsActive())

	// Reversing an already reversed row is a no-op.
	require.NoError(t, f.stock.Reverse(f.ctx, it, lot))
	assert.True(t, it.CurrentStock.IsZero())

	active, err := f.lots.ListActiveByDocument(f.ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReverseRestoresParentUsedQty(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "TSHIRT-M")
	warehouse := id.New()

	parent, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: warehouse,
		Direction:   ledger.DirectionIn,
		Quantity:    qty(10),
		Amount:      types.MustMoney("100"),
		Document:    docRef("purchase_receipt"),
	})
	require.NoError(t, err)

	// A direct draw-down without a reservation chain.
	require.NoError(t, f.lots.AddUsedQty(f.ctx, parent.ID, qty(4)))
	out, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: warehouse,
		Direction:   ledger.DirectionOut,
		Quantity:    qty(4),
		Amount:      types.MustMoney("40"),
		Document:    docRef("goods_issue"),
		ParentLotID: &parent.ID,
	})
	require.NoError(t, err)

	require.NoError(t, f.stock.Reverse(f.ctx, it, out))

	restored, err := f.lots.GetByID(f.ctx, parent.ID)
	require.NoError(t, err)
	assert.True(t, restored.UsedQty.IsZero(), "used quantity released back to the parent lot")
	assert.Equal(t, qty(10), it.CurrentStock)
}

func TestLoadOpening(t *testing.T) {
	observer := &recordingObserver{}
	f := newFixture(t, observer)
	shirts := f.createItem(t, "TSHIRT-M")
	milk := f.createItem(t, "MILK")
	ref := docRef("opening_balance")
	warehouse := id.New()

	lots, err := f.stock.LoadOpening(f.ctx, []ledger.AppendInput{
		{Item: shirts, WarehouseID: warehouse, Quantity: qty(100), Amount: types.MustMoney("1000"), Document: ref},
		{Item: milk, WarehouseID: warehouse, Quantity: qty(40), Amount: types.MustMoney("80"), Document: ref},
	})
	require.NoError(t, err)
	require.Len(t, lots, 2)

	for _, lot := range lots {
		assert.Equal(t, ledger.DirectionIn, lot.Direction)
		assert.False(t, lot.ReceivedAt.IsZero())
	}
	assert.Equal(t, qty(100), shirts.CurrentStock)
	assert.Equal(t, qty(40), milk.CurrentStock)
	assert.Len(t, observer.calls, 2, "observer notified per item")
}

func TestLoadOpeningValidatesBeforeInsert(t *testing.T) {
	f := newFixture(t, nil)
	it := f.createItem(t, "TSHIRT-M")
	ref := docRef("opening_balance")

	_, err := f.stock.LoadOpening(f.ctx, []ledger.AppendInput{
		{Item: it, WarehouseID: id.New(), Quantity: qty(10), Document: ref},
		{Item: it, WarehouseID: id.New(), Quantity: qty(-5), Document: ref},
	})
	require.Error(t, err)

	sum, err := f.lots.SumActiveByItem(f.ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, sum.IsZero(), "nothing persisted when a line fails validation")
}

func TestObserverNotifiedOnAppend(t *testing.T) {
	observer := &recordingObserver{}
	f := newFixture(t, observer)
	it := f.createItem(t, "TSHIRT-M")

	_, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: id.New(),
		Direction:   ledger.DirectionIn,
		Quantity:    qty(10),
		Amount:      types.MustMoney("100"),
		Document:    docRef("purchase_receipt"),
	})
	require.NoError(t, err)

	require.Len(t, observer.calls, 1)
	assert.Equal(t, qty(10), observer.calls[0])
}
