/*
queue.go - Durable, ordered store of pending offline mutations

PURPOSE:
  When a write cannot reach the remote store, the mutation is not lost: it
  is appended to the offline sync queue and replayed later. The queue is an
  append-only log with monotonically increasing sequence numbers, so FIFO
  replay order survives process restarts exactly - a statistic upsert queued
  before a dependent invoice is always replayed first.

RETENTION:
  Items are kept until applied or explicitly removed. Items older than the
  retention window (24h) that still cannot be applied are flagged for
  operator review, never silently dropped.

DISPLAY DEDUP:
  Dedup happens at presentation time, not at storage time: a queued statistic
  is suppressed if the server already holds its natural key, a queued invoice
  if the server already holds its (number, product) pair. This stops a queued
  item from rendering as a duplicate once the server copy synced through
  another path.

SEE ALSO:
  - store/sqlite: durable implementation
  - ledger/store: in-memory implementation
  - replay.go: drains this queue
*/
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RetentionWindow is how long an unapplied item may sit in the queue before
// it is surfaced to the operator as stale.
const RetentionWindow = 24 * time.Hour

// =============================================================================
// OPERATIONS
// =============================================================================

// Operation names the remote mutation a queue item will replay.
type Operation string

const (
	OpUpsertStatistic Operation = "UPSERT_STAT"
	OpUpdateStatistic Operation = "UPDATE_STAT"
	OpDeleteStatistic Operation = "DELETE_STAT"
	OpInsertInvoice   Operation = "INSERT_INVOICE"
	OpUpdateInvoice   Operation = "UPDATE_INVOICE"
	OpDeleteInvoice   Operation = "DELETE_INVOICE"
)

// Payload is the envelope serialized into a queue item. Exactly the fields
// relevant to the operation are set. A statistic delete carries the full
// record, not just the id: the local copy is gone by replay time and the
// dependent-usage guard needs the record to re-run against server state.
type Payload struct {
	Statistic   *StatisticRecord `json:"statistic,omitempty"`
	Invoice     *InvoiceRecord   `json:"invoice,omitempty"`
	StatisticID StatisticID      `json:"statistic_id,omitempty"`
	InvoiceID   InvoiceID        `json:"invoice_id,omitempty"`
}

// EncodePayload serializes a payload envelope.
func EncodePayload(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode sync payload: %w", err)
	}
	return raw, nil
}

// DecodePayload deserializes a payload envelope.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode sync payload: %w", err)
	}
	return p, nil
}

// =============================================================================
// QUEUE ITEM
// =============================================================================

type QueueItem struct {
	ID         string
	Seq        int64 // monotonically increasing; defines replay order
	Op         Operation
	Payload    json.RawMessage
	EnqueuedAt time.Time
	Attempts   int
}

// Stale reports whether the item has outlived the retention window.
func (i QueueItem) Stale(now time.Time) bool {
	return now.Sub(i.EnqueuedAt) > RetentionWindow
}

// =============================================================================
// SYNC QUEUE - Durable FIFO contract
// =============================================================================

// SyncQueue is the durable, ordered store of pending mutations.
// Implementations must survive process restart and preserve enqueue order.
type SyncQueue interface {
	// Enqueue appends a mutation and returns the stored item.
	Enqueue(ctx context.Context, op Operation, payload Payload) (QueueItem, error)

	// List returns all pending items in FIFO order.
	List(ctx context.Context) ([]QueueItem, error)

	// Remove deletes the item with the given id. Removing an item that no
	// longer exists is not an error.
	Remove(ctx context.Context, id string) error

	// MarkAttempt increments the item's attempt counter.
	MarkAttempt(ctx context.Context, id string) error
}

// StaleItems filters items that have outlived the retention window.
func StaleItems(items []QueueItem, now time.Time) []QueueItem {
	var stale []QueueItem
	for _, it := range items {
		if it.Stale(now) {
			stale = append(stale, it)
		}
	}
	return stale
}

// =============================================================================
// DISPLAY-TIME DEDUP
// =============================================================================

// PendingView is the queued state suitable for merging into a display of
// the last known server state.
type PendingView struct {
	Statistics []StatisticRecord
	Invoices   []InvoiceRecord
}

// MergeQueued extracts the still-relevant queued records: a queued statistic
// already present on the server (same natural key) is suppressed, as is a
// queued invoice whose (number, product) the server already holds.
func MergeQueued(items []QueueItem, server FetchResult) (PendingView, error) {
	statKeys := make(map[StatisticKey]bool, len(server.Statistics))
	for _, s := range server.Statistics {
		statKeys[s.Key()] = true
	}
	invKeys := make(map[InvoiceDedupKey]bool, len(server.Invoices))
	for _, inv := range server.Invoices {
		invKeys[inv.DedupKey()] = true
	}

	var view PendingView
	for _, it := range items {
		p, err := DecodePayload(it.Payload)
		if err != nil {
			return PendingView{}, err
		}
		switch it.Op {
		case OpUpsertStatistic, OpUpdateStatistic:
			if p.Statistic != nil && !statKeys[p.Statistic.Key()] {
				view.Statistics = append(view.Statistics, *p.Statistic)
			}
		case OpInsertInvoice, OpUpdateInvoice:
			if p.Invoice != nil && !invKeys[p.Invoice.DedupKey()] {
				view.Invoices = append(view.Invoices, *p.Invoice)
			}
		}
	}
	return view, nil
}
