// Package store provides in-memory implementations of the ledger storage
// contracts, used for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coopstack/farm-ledger/ledger"
)

// =============================================================================
// STATISTIC MEMORY LEDGER
// =============================================================================

type statKey struct {
	farm    ledger.FarmID
	date    string
	product ledger.ProductID
}

func keyOf(k ledger.StatisticKey) statKey {
	return statKey{farm: k.Farm, date: k.Date.String(), product: k.Product}
}

// StatisticMemory is an in-memory StatisticLedger.
type StatisticMemory struct {
	mu    sync.RWMutex
	byID  map[ledger.StatisticID]ledger.StatisticRecord
	byKey map[statKey]ledger.StatisticID
}

func NewStatisticMemory() *StatisticMemory {
	return &StatisticMemory{
		byID:  make(map[ledger.StatisticID]ledger.StatisticRecord),
		byKey: make(map[statKey]ledger.StatisticID),
	}
}

func (m *StatisticMemory) Insert(_ context.Context, rec ledger.StatisticRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := keyOf(rec.Key())
	if _, exists := m.byKey[k]; exists {
		return ledger.ErrDuplicateNaturalKey
	}
	m.byID[rec.ID] = rec
	m.byKey[k] = rec.ID
	return nil
}

func (m *StatisticMemory) Update(_ context.Context, rec ledger.StatisticRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.byID[rec.ID]
	if !ok {
		return ledger.ErrStatisticNotFound
	}
	delete(m.byKey, keyOf(old.Key()))
	m.byID[rec.ID] = rec
	m.byKey[keyOf(rec.Key())] = rec.ID
	return nil
}

func (m *StatisticMemory) Delete(_ context.Context, id ledger.StatisticID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return ledger.ErrStatisticNotFound
	}
	delete(m.byID, id)
	delete(m.byKey, keyOf(rec.Key()))
	return nil
}

func (m *StatisticMemory) Get(_ context.Context, id ledger.StatisticID) (ledger.StatisticRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok {
		return ledger.StatisticRecord{}, ledger.ErrStatisticNotFound
	}
	return rec, nil
}

func (m *StatisticMemory) GetByKey(_ context.Context, key ledger.StatisticKey) (ledger.StatisticRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[keyOf(key)]
	if !ok {
		return ledger.StatisticRecord{}, ledger.ErrStatisticNotFound
	}
	return m.byID[id], nil
}

func (m *StatisticMemory) ListDay(_ context.Context, farm ledger.FarmID, date ledger.DateKey) ([]ledger.StatisticRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []ledger.StatisticRecord
	for _, rec := range m.byID {
		if rec.Farm == farm && rec.Date.Equal(date) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Product < recs[j].Product })
	return recs, nil
}

// =============================================================================
// INVOICE MEMORY LEDGER
// =============================================================================

// InvoiceMemory is an in-memory InvoiceLedger. Day listings preserve
// insertion order.
type InvoiceMemory struct {
	mu    sync.RWMutex
	byID  map[ledger.InvoiceID]ledger.InvoiceRecord
	order []ledger.InvoiceID
}

func NewInvoiceMemory() *InvoiceMemory {
	return &InvoiceMemory{byID: make(map[ledger.InvoiceID]ledger.InvoiceRecord)}
}

func (m *InvoiceMemory) Insert(_ context.Context, rec ledger.InvoiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.Number == rec.Number && existing.Product == rec.Product && existing.ID != rec.ID {
			return ledger.ErrDuplicateInvoiceNumber
		}
	}
	if _, exists := m.byID[rec.ID]; exists {
		return ledger.ErrDuplicateNaturalKey
	}
	m.byID[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *InvoiceMemory) Update(_ context.Context, rec ledger.InvoiceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[rec.ID]; !ok {
		return ledger.ErrInvoiceNotFound
	}
	m.byID[rec.ID] = rec
	return nil
}

func (m *InvoiceMemory) Delete(_ context.Context, id ledger.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return ledger.ErrInvoiceNotFound
	}
	delete(m.byID, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *InvoiceMemory) Get(_ context.Context, id ledger.InvoiceID) (ledger.InvoiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok {
		return ledger.InvoiceRecord{}, ledger.ErrInvoiceNotFound
	}
	return rec, nil
}

func (m *InvoiceMemory) ListDay(_ context.Context, farm ledger.FarmID, date ledger.DateKey) ([]ledger.InvoiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []ledger.InvoiceRecord
	for _, id := range m.order {
		rec := m.byID[id]
		if rec.Farm == farm && rec.Date.Equal(date) {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// =============================================================================
// MEMORY SYNC QUEUE
// =============================================================================

// QueueMemory is an in-memory SyncQueue. Not durable; tests and dev only.
type QueueMemory struct {
	mu    sync.Mutex
	seq   int64
	items []ledger.QueueItem
}

func NewQueueMemory() *QueueMemory {
	return &QueueMemory{}
}

func (q *QueueMemory) Enqueue(_ context.Context, op ledger.Operation, payload ledger.Payload) (ledger.QueueItem, error) {
	raw, err := ledger.EncodePayload(payload)
	if err != nil {
		return ledger.QueueItem{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	item := ledger.QueueItem{
		ID:         uuid.NewString(),
		Seq:        q.seq,
		Op:         op,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	q.items = append(q.items, item)
	return item, nil
}

func (q *QueueMemory) List(_ context.Context) ([]ledger.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]ledger.QueueItem, len(q.items))
	copy(out, q.items)
	return out, nil
}

func (q *QueueMemory) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *QueueMemory) MarkAttempt(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Attempts++
			return nil
		}
	}
	return nil
}
