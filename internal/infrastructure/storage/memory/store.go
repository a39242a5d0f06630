// Package memory implements the storage contracts on in-process maps with
// snapshot-based transaction rollback. It backs unit tests and worker
// dry-runs; production uses the postgres package.
package memory

import (
	"bytes"
	"context"
	"sync"

	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
	"stockcore/internal/core/tx"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/domain/reservation"
	"stockcore/internal/domain/stockeffect"
)

// Store holds all engine state. A single mutex serializes transactions;
// snapshots make rollback exact, so transactional semantics match the
// database implementation closely enough for domain tests.
type Store struct {
	// txMu serializes whole transactions; mu guards individual accesses.
	txMu sync.Mutex
	mu   sync.Mutex

	items        map[id.ID]*item.Item
	lots         map[id.ID]*ledger.Lot
	reservations map[id.ID]*reservation.Reservation

	// Insertion order, for deterministic scans.
	lotOrder         []id.ID
	reservationOrder []id.ID

	audit []stockeffect.AuditEntry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		items:        make(map[id.ID]*item.Item),
		lots:         make(map[id.ID]*ledger.Lot),
		reservations: make(map[id.ID]*reservation.Reservation),
	}
}

type snapshot struct {
	items        map[id.ID]*item.Item
	lots         map[id.ID]*ledger.Lot
	reservations map[id.ID]*reservation.Reservation

	lotOrder         []id.ID
	reservationOrder []id.ID

	audit []stockeffect.AuditEntry
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		items:            make(map[id.ID]*item.Item, len(s.items)),
		lots:             make(map[id.ID]*ledger.Lot, len(s.lots)),
		reservations:     make(map[id.ID]*reservation.Reservation, len(s.reservations)),
		lotOrder:         append([]id.ID(nil), s.lotOrder...),
		reservationOrder: append([]id.ID(nil), s.reservationOrder...),
		audit:            append([]stockeffect.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.items {
		snap.items[k] = cloneItem(v)
	}
	for k, v := range s.lots {
		snap.lots[k] = cloneLot(v)
	}
	for k, v := range s.reservations {
		snap.reservations[k] = cloneReservation(v)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.items = snap.items
	s.lots = snap.lots
	s.reservations = snap.reservations
	s.lotOrder = snap.lotOrder
	s.reservationOrder = snap.reservationOrder
	s.audit = snap.audit
}

// AuditEntries returns recorded audit entries in order.
func (s *Store) AuditEntries() []stockeffect.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stockeffect.AuditEntry(nil), s.audit...)
}

func cloneItem(src *item.Item) *item.Item {
	dst := *src
	dst.ParentItemID = cloneID(src.ParentItemID)
	return &dst
}

func cloneLot(src *ledger.Lot) *ledger.Lot {
	dst := *src
	dst.ParentLotID = cloneID(src.ParentLotID)
	dst.ReservationID = cloneID(src.ReservationID)
	if src.Batch.ExpiryDate != nil {
		t := *src.Batch.ExpiryDate
		dst.Batch.ExpiryDate = &t
	}
	return &dst
}

func cloneReservation(src *reservation.Reservation) *reservation.Reservation {
	dst := *src
	dst.ParentID = cloneID(src.ParentID)
	return &dst
}

func cloneID(src *id.ID) *id.ID {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func lessID(a, b id.ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// inScope reports whether a row is visible to the calling tenant. An
// unscoped context, as background jobs use, sees every company.
func inScope(ctx context.Context, companyID id.ID) bool {
	scope := tenant.ScopeOrZero(ctx)
	return id.IsNil(scope.CompanyID) || scope.CompanyID == companyID
}

type txKey struct{}

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// TxManager implements tx.Manager over the store: the whole store is
// snapshotted on begin and restored when fn fails. Nested calls reuse the
// open transaction, matching the database manager's behavior.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager for the store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// RunInTransaction executes fn, rolling the store back on error.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	m.store.mu.Lock()
	snap := m.store.snapshot()
	m.store.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, struct{}{}))
	if err != nil {
		m.store.mu.Lock()
		m.store.restore(snap)
		m.store.mu.Unlock()
	}
	return err
}

// ReadOnly executes fn; the store is restored afterwards regardless, so
// writes inside a read-only transaction never stick.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	m.store.mu.Lock()
	snap := m.store.snapshot()
	m.store.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, struct{}{}))

	m.store.mu.Lock()
	m.store.restore(snap)
	m.store.mu.Unlock()
	return err
}

// Auditor records coordinator audit entries in the store.
type Auditor struct {
	store *Store
}

// NewAuditor creates a store-backed auditor.
func NewAuditor(store *Store) *Auditor {
	return &Auditor{store: store}
}

var _ stockeffect.EffectAuditor = (*Auditor)(nil)

// Record implements stockeffect.EffectAuditor.
func (a *Auditor) Record(ctx context.Context, entry stockeffect.AuditEntry) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	a.store.audit = append(a.store.audit, entry)
	return nil
}
