/*
remote.go - Contract with the authoritative remote ledger

PURPOSE:
  The engine commits every mutation through this interface. The concrete
  transport (HTTP client, embedded store for tests) is injected; the engine
  only cares about the error taxonomy the implementation maps onto:

    NetworkError            -> mutation is queued for later replay
    ErrDuplicateNaturalKey  -> on replay this means already applied
    SchemaError             -> fatal contract mismatch, never retried
    validation              -> surfaced to the caller

  Upserts are idempotent on the (farm, date, product) natural key.

SEE ALSO:
  - remote/ (package remote): resty-backed implementation
  - replay.go: drains queued mutations through this contract
*/
package ledger

import "context"

// =============================================================================
// REMOTE LEDGER
// =============================================================================

// FetchFilter narrows a remote read. Zero fields mean "any".
type FetchFilter struct {
	Farm FarmID
	From DateKey
	To   DateKey
}

// FetchResult is the last known authoritative state for a filter.
type FetchResult struct {
	Statistics []StatisticRecord
	Invoices   []InvoiceRecord
}

// Remote is the authoritative ledger store.
type Remote interface {
	// UpsertStatistics inserts-or-replaces records, idempotent on the
	// natural key. Returns the stored records with authoritative ids.
	UpsertStatistics(ctx context.Context, recs []StatisticRecord) ([]StatisticRecord, error)

	// UpdateStatistic replaces the statistic with rec.ID.
	UpdateStatistic(ctx context.Context, rec StatisticRecord) (StatisticRecord, error)

	// DeleteStatistic removes the statistic with the given id.
	DeleteStatistic(ctx context.Context, id StatisticID) error

	// InsertInvoices inserts new invoices and returns them with
	// authoritative ids. A (number, product) collision is a conflict.
	InsertInvoices(ctx context.Context, recs []InvoiceRecord) ([]InvoiceRecord, error)

	// UpdateInvoice replaces the invoice with rec.ID.
	UpdateInvoice(ctx context.Context, rec InvoiceRecord) (InvoiceRecord, error)

	// DeleteInvoice removes the invoice with the given id.
	DeleteInvoice(ctx context.Context, id InvoiceID) error

	// Fetch returns the authoritative records matching the filter.
	Fetch(ctx context.Context, filter FetchFilter) (FetchResult, error)
}

// =============================================================================
// CONNECTIVITY SIGNAL
// =============================================================================

// ConnState is the coarse connectivity state of the client.
type ConnState int

const (
	ConnOffline ConnState = iota
	ConnOnline
)

func (s ConnState) String() string {
	if s == ConnOnline {
		return "online"
	}
	return "offline"
}

// Connectivity publishes online/offline transitions. The sync scheduler
// subscribes and triggers a drain on the offline -> online edge.
type Connectivity interface {
	// State returns the current connectivity state.
	State() ConnState

	// Transitions returns a channel that receives the new state on every
	// transition. Implementations must not block on slow receivers.
	Transitions() <-chan ConnState
}
