/*
remote.go - Embedded in-memory implementation of the remote ledger

PURPOSE:
  A ledger.Remote backed by the in-memory ledgers, with a connectivity
  toggle. Tests flip SetOnline(false) to simulate the remote becoming
  unreachable mid-session and verify that mutations route into the offline
  queue and replay correctly afterwards.

SEMANTICS:
  - UpsertStatistics is idempotent on the (farm, date, product) natural key
  - InsertInvoices rejects a (number, product) collision as a conflict
  - every mutation refreshes the touched statistics downstream, the same
    recompute the authoritative server performs
*/
package store

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coopstack/farm-ledger/ledger"
)

// RemoteMemory is an in-memory ledger.Remote with a connectivity toggle.
type RemoteMemory struct {
	Stats    *StatisticMemory
	Invoices *InvoiceMemory

	mu     sync.Mutex
	online bool
	nextID int64
}

func NewRemoteMemory() *RemoteMemory {
	return &RemoteMemory{
		Stats:    NewStatisticMemory(),
		Invoices: NewInvoiceMemory(),
		online:   true,
	}
}

// SetOnline toggles reachability. While offline every call fails with a
// NetworkError.
func (r *RemoteMemory) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = online
}

func (r *RemoteMemory) check(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return &ledger.NetworkError{Op: op, Cause: context.DeadlineExceeded}
	}
	return nil
}

func (r *RemoteMemory) assignID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(atomic.AddInt64(&r.nextID, 1), 10)
}

// =============================================================================
// ledger.Remote implementation
// =============================================================================

func (r *RemoteMemory) UpsertStatistics(ctx context.Context, recs []ledger.StatisticRecord) ([]ledger.StatisticRecord, error) {
	if err := r.check("upsert statistics"); err != nil {
		return nil, err
	}

	out := make([]ledger.StatisticRecord, 0, len(recs))
	for _, rec := range recs {
		existing, err := r.Stats.GetByKey(ctx, rec.Key())
		if err == nil {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			rec.UpdatedAt = time.Now().UTC()
			if err := r.Stats.Update(ctx, rec); err != nil {
				return nil, err
			}
		} else {
			rec.ID = ledger.StatisticID(r.assignID("stat"))
			if err := r.Stats.Insert(ctx, rec); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RemoteMemory) UpdateStatistic(ctx context.Context, rec ledger.StatisticRecord) (ledger.StatisticRecord, error) {
	if err := r.check("update statistic"); err != nil {
		return ledger.StatisticRecord{}, err
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := r.Stats.Update(ctx, rec); err != nil {
		return ledger.StatisticRecord{}, err
	}
	return rec, nil
}

func (r *RemoteMemory) DeleteStatistic(ctx context.Context, id ledger.StatisticID) error {
	if err := r.check("delete statistic"); err != nil {
		return err
	}
	return r.Stats.Delete(ctx, id)
}

func (r *RemoteMemory) InsertInvoices(ctx context.Context, recs []ledger.InvoiceRecord) ([]ledger.InvoiceRecord, error) {
	if err := r.check("insert invoices"); err != nil {
		return nil, err
	}

	out := make([]ledger.InvoiceRecord, 0, len(recs))
	for _, rec := range recs {
		// At-most-once: a replayed insert whose (number, product) already
		// landed is a conflict, not a second document.
		day, err := r.Invoices.ListDay(ctx, rec.Farm, rec.Date)
		if err != nil {
			return nil, err
		}
		conflict := false
		for _, existing := range day {
			if existing.DedupKey() == rec.DedupKey() {
				conflict = true
				break
			}
		}
		if conflict {
			return nil, ledger.ErrDuplicateNaturalKey
		}

		rec.ID = ledger.InvoiceID(r.assignID("inv"))
		if err := r.Invoices.Insert(ctx, rec); err != nil {
			return nil, err
		}
		if err := r.refresh(ctx, rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RemoteMemory) UpdateInvoice(ctx context.Context, rec ledger.InvoiceRecord) (ledger.InvoiceRecord, error) {
	if err := r.check("update invoice"); err != nil {
		return ledger.InvoiceRecord{}, err
	}
	prev, err := r.Invoices.Get(ctx, rec.ID)
	if err != nil {
		return ledger.InvoiceRecord{}, err
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := r.Invoices.Update(ctx, rec); err != nil {
		return ledger.InvoiceRecord{}, err
	}
	if err := r.refresh(ctx, prev, rec); err != nil {
		return ledger.InvoiceRecord{}, err
	}
	return rec, nil
}

func (r *RemoteMemory) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	if err := r.check("delete invoice"); err != nil {
		return err
	}
	rec, err := r.Invoices.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.Invoices.Delete(ctx, id); err != nil {
		return err
	}
	return r.refresh(ctx, rec)
}

func (r *RemoteMemory) Fetch(ctx context.Context, filter ledger.FetchFilter) (ledger.FetchResult, error) {
	if err := r.check("fetch"); err != nil {
		return ledger.FetchResult{}, err
	}

	var result ledger.FetchResult
	for d := filter.From; !d.After(filter.To); d = d.AddDays(1) {
		stats, err := r.Stats.ListDay(ctx, filter.Farm, d)
		if err != nil {
			return ledger.FetchResult{}, err
		}
		result.Statistics = append(result.Statistics, stats...)

		invs, err := r.Invoices.ListDay(ctx, filter.Farm, d)
		if err != nil {
			return ledger.FetchResult{}, err
		}
		result.Invoices = append(result.Invoices, invs...)
	}
	return result, nil
}

func (r *RemoteMemory) refresh(ctx context.Context, touched ...ledger.InvoiceRecord) error {
	if len(touched) == 0 {
		return nil
	}
	products := make([]ledger.ProductID, 0, len(touched)*2)
	for _, inv := range touched {
		products = append(products, inv.Product)
		if inv.IsConverted {
			products = append(products, inv.SourceProduct)
		}
	}
	return ledger.RefreshStatistics(ctx, r.Stats, r.Invoices, touched[0].Farm, touched[0].Date, products...)
}
