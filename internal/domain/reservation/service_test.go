package reservation_test

import (
	"context"
	"testing"
	"time"

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
	"stockcore/internal/infrastructure/storage/memory"
)

type fixture struct {
	ctx          context.Context
	items        *item.Service
	lots         ledger.Repository
	stock        *ledger.Service
	reservations *reservation.Service
	warehouse    id.ID
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

	ctx := tenant.WithTxManager(context.Background(), memory.NewTxManager(store))
	return &fixture{
		ctx:          ctx,
		items:        items,
		lots:         lotRepo,
		stock:        stock,
		reservations: reservations,
		warehouse:    id.New(),
	}
}

func (f *fixture) createItem(t *testing.T, code string) *item.Item {
	t.Helper()
	it := item.New(f.ctx, code, code, "PCS")
	require.NoError(t, f.items.Create(f.ctx, it))
	return it
}

// receive appends an IN lot with an explicit age so allocation order is
// deterministic.
func (f *fixture) receive(t *testing.T, it *item.Item, quantity types.Quantity, amount string, age time.Duration) *ledger.Lot {
	t.Helper()
	lot, err := f.stock.Append(f.ctx, ledger.AppendInput{
		Item:        it,
		WarehouseID: f.warehouse,
		Direction:   ledger.DirectionIn,
		Quantity:    quantity,
		Amount:      types.MustMoney(amount),
		Document:    docRef("purchase_receipt"),
		ReceivedAt:  time.Now().UTC().Add(-age),
	})
	require.NoError(t, err)
	return lot
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func docRef(entityType string) entity.DocumentRef {
	return entity.NewDocumentRef(entityType, id.New())
}

func TestReserveAllocatesOldestFirst(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	older := f.receive(t, it, qty(10), "100", 48*time.Hour)
	newer := f.receive(t, it, qty(10), "120", 24*time.Hour)
	order := docRef("sales_order")

	holds, err := f.reservations.Reserve(f.ctx, it, qty(15), f.warehouse, order)
	require.NoError(t, err)
	require.Len(t, holds, 2)

	assert.Equal(t, older.ID, holds[0].LotID)
	assert.Equal(t, qty(10), holds[0].Quantity)
	assert.Equal(t, newer.ID, holds[1].LotID)
	assert.Equal(t, qty(5), holds[1].Quantity)

	olderStored, err := f.lots.GetByID(f.ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(10), olderStored.UsedQty)

	newerStored, err := f.lots.GetByID(f.ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(5), newerStored.UsedQty)

	stored, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(15), stored.ReserveStock)
	assert.Equal(t, qty(20), stored.CurrentStock, "reservation does not move stock")
}

func TestReserveSkipsExhaustedLot(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	older := f.receive(t, it, qty(10), "100", 48*time.Hour)
	newer := f.receive(t, it, qty(20), "240", 24*time.Hour)

	// The oldest lot is fully held by an earlier order.
	_, err := f.reservations.Reserve(f.ctx, it, qty(10), f.warehouse, docRef("sales_order"))
	require.NoError(t, err)

	holds, err := f.reservations.Reserve(f.ctx, it, qty(15), f.warehouse, docRef("sales_order"))
	require.NoError(t, err)
	require.Len(t, holds, 1, "the exhausted lot contributes nothing")
	assert.Equal(t, newer.ID, holds[0].LotID)
	assert.Equal(t, qty(15), holds[0].Quantity)

	olderStored, err := f.lots.GetByID(f.ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(10), olderStored.UsedQty, "the full lot stays untouched")
}

func TestReserveInsufficientStock(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	f.receive(t, it, qty(10), "100", time.Hour)

	_, err := f.reservations.Reserve(f.ctx, it, qty(25), f.warehouse, docRef("sales_order"))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	stored, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReserveStock.IsZero(), "short reservation leaves no partial hold")
}

func TestReserveIsIdempotentPerDocument(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	lot := f.receive(t, it, qty(20), "200", time.Hour)
	order := docRef("sales_order")

	_, err := f.reservations.Reserve(f.ctx, it, qty(5), f.warehouse, order)
	require.NoError(t, err)

	// Re-posting the same order replaces the hold, never stacks it.
	_, err = f.reservations.Reserve(f.ctx, it, qty(8), f.warehouse, order)
	require.NoError(t, err)

	stored, err := f.lots.GetByID(f.ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(8), stored.UsedQty)

	storedItem, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(8), storedItem.ReserveStock)

	open, err := f.reservations.OpenReserved(f.ctx, it.ID, order)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, qty(8), open[0].Quantity)
}

func TestConsume(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	lot := f.receive(t, it, qty(10), "100", time.Hour)
	order := docRef("sales_order")
	invoice := docRef("invoice")

	holds, err := f.reservations.Reserve(f.ctx, it, qty(10), f.warehouse, order)
	require.NoError(t, err)
	require.Len(t, holds, 1)

	out, err := f.reservations.Consume(f.ctx, it, holds[0], qty(4), invoice)
	require.NoError(t, err)

	assert.Equal(t, ledger.DirectionOut, out.Direction)
	assert.Equal(t, qty(4), out.Quantity)
	require.NotNil(t, out.ParentLotID)
	assert.Equal(t, lot.ID, *out.ParentLotID)
	assert.NotNil(t, out.ReservationID)
	// Valuation inherited from the lot: 100 / 10 * 4 = 40.
	assert.True(t, out.Amount.Equal(types.MustMoney("40")), "amount = %s", out.Amount)

	assert.Equal(t, qty(4), holds[0].ApproveQty)
	assert.False(t, holds[0].Fulfilled)

	stored, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(6), stored.CurrentStock)
	assert.Equal(t, qty(6), stored.ReserveStock)

	// Consuming the remainder fulfills the hold.
	_, err = f.reservations.Consume(f.ctx, it, holds[0], qty(6), invoice)
	require.NoError(t, err)
	assert.True(t, holds[0].Fulfilled)
	assert.True(t, holds[0].Remaining().IsZero())
}

func TestConsumeOverRemaining(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	f.receive(t, it, qty(10), "100", time.Hour)

	holds, err := f.reservations.Reserve(f.ctx, it, qty(5), f.warehouse, docRef("sales_order"))
	require.NoError(t, err)

	_, err = f.reservations.Consume(f.ctx, it, holds[0], qty(6), docRef("invoice"))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidReservationState))
}

func TestReleaseDocumentReserved(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	lot := f.receive(t, it, qty(10), "100", time.Hour)
	order := docRef("sales_order")

	_, err := f.reservations.Reserve(f.ctx, it, qty(7), f.warehouse, order)
	require.NoError(t, err)

	require.NoError(t, f.reservations.ReleaseDocument(f.ctx, order))

	stored, err := f.lots.GetByID(f.ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, stored.UsedQty.IsZero())

	storedItem, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, storedItem.ReserveStock.IsZero())

	// Releasing again is a no-op.
	require.NoError(t, f.reservations.ReleaseDocument(f.ctx, order))
}

func TestReleaseConsumingDocumentRestoresHold(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	f.receive(t, it, qty(10), "100", time.Hour)
	order := docRef("sales_order")
	invoice := docRef("invoice")

	holds, err := f.reservations.Reserve(f.ctx, it, qty(10), f.warehouse, order)
	require.NoError(t, err)
	_, err = f.reservations.Consume(f.ctx, it, holds[0], qty(10), invoice)
	require.NoError(t, err)

	fulfilled, err := f.reservations.OpenReserved(f.ctx, it.ID, order)
	require.NoError(t, err)
	assert.Empty(t, fulfilled, "a fully consumed hold is no longer open")

	require.NoError(t, f.reservations.ReleaseDocument(f.ctx, invoice))

	open, err := f.reservations.OpenReserved(f.ctx, it.ID, order)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].ApproveQty.IsZero(), "approve quantity restored on the parent")
	assert.False(t, open[0].Fulfilled)

	storedItem, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(10), storedItem.ReserveStock, "the order's hold is live again")
}

func TestReleaseDocumentUnwindsOwnChain(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")
	lot := f.receive(t, it, qty(10), "100", time.Hour)
	issue := docRef("goods_issue")

	// The issuing document holds and draws down under its own ref, the
	// shape an immediate issue produces.
	holds, err := f.reservations.Reserve(f.ctx, it, qty(10), f.warehouse, issue)
	require.NoError(t, err)
	_, err = f.reservations.Consume(f.ctx, it, holds[0], qty(4), issue)
	require.NoError(t, err)

	require.NoError(t, f.reservations.ReleaseDocument(f.ctx, issue))

	stored, err := f.lots.GetByID(f.ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, stored.UsedQty.IsZero())

	storedItem, err := f.items.GetByID(f.ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, storedItem.ReserveStock.IsZero(),
		"releasing the chain must not leave the reopened hold counted")
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	it := f.createItem(t, "TSHIRT-M")

	_, err := f.reservations.Reserve(f.ctx, it, qty(0), f.warehouse, docRef("sales_order"))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
