/*
replay.go - Draining the offline sync queue

PURPOSE:
  On reconnect (and periodically while online with pending items) the
  replayer pops queued mutations strictly in FIFO order and applies each
  through the reconciliation service. Replay skips the optimistic local
  bookkeeping already done at enqueue time but ALWAYS re-runs the core
  invariant guards against current server state - time has passed and the
  precondition may no longer hold.

OUTCOME TABLE (per item):
  success             remove, count applied
  transient (network) stop draining, leave the rest queued, retry later
  conflict            natural key already applied by a previous partial
                      drain; remove, count applied (at-most-once)
  hard failure        guard rejected against current server state; remove
                      and surface as a reconciliation conflict for manual
                      resolution - data is never silently dropped

  Items older than the retention window that still cannot be applied are
  flagged for operator review, not auto-discarded.

CONCURRENCY:
  Drains are strictly sequential; a mutex rejects overlapping drains so
  dependency ordering between a statistic write and its invoices holds.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// REPORTS
// =============================================================================

// ReplayConflict is a queued mutation that can no longer be applied and
// needs manual resolution.
type ReplayConflict struct {
	Item   QueueItem
	Reason string
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Applied   int
	Failed    int
	Remaining int
	Conflicts []ReplayConflict
	Stale     []QueueItem
}

// =============================================================================
// REPLAYER
// =============================================================================

type Replayer struct {
	queue SyncQueue
	svc   *Service
	log   *zap.Logger

	mu sync.Mutex // serializes drains
}

func NewReplayer(queue SyncQueue, svc *Service, log *zap.Logger) *Replayer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Replayer{queue: queue, svc: svc, log: log}
}

// Drain replays pending mutations in FIFO order until the queue is empty or
// a transient failure stops the pass.
func (r *Replayer) Drain(ctx context.Context) (DrainReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report DrainReport

	items, err := r.queue.List(ctx)
	if err != nil {
		return report, err
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			report.Remaining = len(items) - i
			break
		}
		if err := r.queue.MarkAttempt(ctx, item.ID); err != nil {
			return report, err
		}

		err := r.svc.ApplyReplay(ctx, item)
		switch {
		case err == nil:
			if err := r.queue.Remove(ctx, item.ID); err != nil {
				return report, err
			}
			report.Applied++

		case IsNetwork(err):
			// Still offline: stop here, keep this and everything after it.
			report.Remaining = len(items) - i
			r.log.Info("drain interrupted, remote unreachable",
				zap.Int("applied", report.Applied),
				zap.Int("remaining", report.Remaining))
			return r.flagStale(ctx, report)

		case IsConflict(err):
			// Already applied by a previous partial drain.
			if err := r.queue.Remove(ctx, item.ID); err != nil {
				return report, err
			}
			report.Applied++

		default:
			// Guard rejected against current server state, or the payload
			// shape no longer matches. Surface, never silently drop.
			if rmErr := r.queue.Remove(ctx, item.ID); rmErr != nil {
				return report, rmErr
			}
			report.Failed++
			report.Conflicts = append(report.Conflicts, ReplayConflict{Item: item, Reason: err.Error()})
			r.log.Warn("queued mutation rejected on replay",
				zap.String("op", string(item.Op)),
				zap.Error(err))
		}
	}

	return r.flagStale(ctx, report)
}

func (r *Replayer) flagStale(ctx context.Context, report DrainReport) (DrainReport, error) {
	remaining, err := r.queue.List(ctx)
	if err != nil {
		return report, err
	}
	report.Remaining = len(remaining)
	report.Stale = StaleItems(remaining, time.Now().UTC())
	return report, nil
}

// =============================================================================
// SERVICE REPLAY DISPATCH
// =============================================================================

// ApplyReplay applies one queued mutation against the remote store. Local
// optimistic bookkeeping is skipped (it happened at enqueue time) but the
// invariant guards re-run against freshly fetched server state.
func (s *Service) ApplyReplay(ctx context.Context, item QueueItem) error {
	p, err := DecodePayload(item.Payload)
	if err != nil {
		return &SchemaError{Op: string(item.Op), Detail: err.Error()}
	}

	switch item.Op {
	case OpUpsertStatistic, OpUpdateStatistic:
		if p.Statistic == nil {
			return &SchemaError{Op: string(item.Op), Detail: "missing statistic payload"}
		}
		return s.replayStatisticWrite(ctx, item.Op, *p.Statistic)

	case OpDeleteStatistic:
		if p.Statistic == nil {
			return &SchemaError{Op: string(item.Op), Detail: "missing statistic payload"}
		}
		return s.replayStatisticDelete(ctx, *p.Statistic)

	case OpInsertInvoice, OpUpdateInvoice:
		if p.Invoice == nil {
			return &SchemaError{Op: string(item.Op), Detail: "missing invoice payload"}
		}
		return s.replayInvoiceWrite(ctx, item.Op, *p.Invoice)

	case OpDeleteInvoice:
		return s.replayInvoiceDelete(ctx, p.InvoiceID)

	default:
		return &SchemaError{Op: string(item.Op), Detail: "unknown operation"}
	}
}

func (s *Service) serverState(ctx context.Context, farm FarmID, date DateKey) (FetchResult, error) {
	return s.remote.Fetch(ctx, FetchFilter{Farm: farm, From: date, To: date})
}

func (s *Service) replayStatisticWrite(ctx context.Context, op Operation, rec StatisticRecord) error {
	server, err := s.serverState(ctx, rec.Farm, rec.Date)
	if err != nil {
		return err
	}
	usage := AttributeUsage(server.Invoices, rec.Product)

	mode, err := s.modes.Mode(ctx, rec.Farm)
	if err != nil {
		return err
	}
	rec = Recompute(rec, usage)
	if err := ValidateWrite(rec, usage, mode); err != nil {
		return err
	}

	var stored StatisticRecord
	if op == OpUpdateStatistic {
		stored, err = s.remote.UpdateStatistic(ctx, rec)
	} else {
		var batch []StatisticRecord
		batch, err = s.remote.UpsertStatistics(ctx, []StatisticRecord{rec})
		if err == nil && len(batch) > 0 {
			stored = batch[0]
		}
	}
	if err != nil {
		return err
	}
	return s.mirrorStatistic(ctx, rec, stored)
}

func (s *Service) replayStatisticDelete(ctx context.Context, rec StatisticRecord) error {
	// The local copy was removed at enqueue time, so the guard runs on the
	// record carried in the payload against freshly fetched server invoices.
	// Usage that landed server-side while offline blocks the delete.
	server, err := s.serverState(ctx, rec.Farm, rec.Date)
	if err != nil {
		return err
	}
	if err := ValidateDelete(rec, AttributeUsage(server.Invoices, rec.Product)); err != nil {
		return err
	}

	if err := s.remote.DeleteStatistic(ctx, rec.ID); err != nil {
		return err
	}
	s.arena.Forget(string(rec.ID))
	return nil
}

func (s *Service) replayInvoiceWrite(ctx context.Context, op Operation, rec InvoiceRecord) error {
	server, err := s.serverState(ctx, rec.Farm, rec.Date)
	if err != nil {
		return err
	}

	// Project the day as it will look after this write lands, then verify
	// no touched product goes negative against *server* capacity.
	day := make([]InvoiceRecord, 0, len(server.Invoices)+1)
	for _, inv := range server.Invoices {
		if op == OpUpdateInvoice && inv.ID == rec.ID {
			continue
		}
		day = append(day, inv)
	}
	day = append(day, rec)

	products := []ProductID{rec.Product}
	if rec.IsConverted {
		products = append(products, rec.SourceProduct)
	}
	for _, p := range products {
		stat, ok := findStatistic(server.Statistics, StatisticKey{Farm: rec.Farm, Date: rec.Date, Product: p})
		if !ok {
			return fmt.Errorf("no statistic for %s on %s: %w", p, rec.Date, ErrStatisticNotFound)
		}
		usage := AttributeUsage(day, p)
		if stat.Capacity().Cartons < usage.Units {
			return &InsufficientStockError{
				Product:   p,
				Requested: usage.Units,
				Available: stat.Capacity().Cartons,
			}
		}
	}

	var stored InvoiceRecord
	if op == OpUpdateInvoice {
		stored, err = s.remote.UpdateInvoice(ctx, rec)
	} else {
		var batch []InvoiceRecord
		batch, err = s.remote.InsertInvoices(ctx, []InvoiceRecord{rec})
		if err == nil && len(batch) > 0 {
			stored = batch[0]
		}
	}
	if err != nil {
		return err
	}
	return s.mirrorInvoice(ctx, rec, stored)
}

func (s *Service) replayInvoiceDelete(ctx context.Context, id InvoiceID) error {
	if err := s.remote.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.arena.Forget(string(id))
	return nil
}

// mirrorStatistic reconciles the local copy with the stored server record
// after a successful replay.
func (s *Service) mirrorStatistic(ctx context.Context, local, stored StatisticRecord) error {
	if stored.ID == "" {
		stored = local
	}
	s.arena.Promote(string(local.ID), string(stored.ID))

	if _, err := s.stats.Get(ctx, local.ID); err == nil {
		if stored.ID != local.ID {
			if err := s.stats.Delete(ctx, local.ID); err != nil {
				return err
			}
			return s.stats.Insert(ctx, stored)
		}
		return s.stats.Update(ctx, stored)
	}
	// Local copy absent (fresh process after restart): adopt server record.
	return s.stats.Insert(ctx, stored)
}

func (s *Service) mirrorInvoice(ctx context.Context, local, stored InvoiceRecord) error {
	if stored.ID == "" {
		stored = local
	}
	s.arena.Promote(string(local.ID), string(stored.ID))

	if _, err := s.invoices.Get(ctx, local.ID); err == nil {
		if stored.ID != local.ID {
			if err := s.invoices.Delete(ctx, local.ID); err != nil {
				return err
			}
			return s.invoices.Insert(ctx, stored)
		}
		return s.invoices.Update(ctx, stored)
	}
	return s.invoices.Insert(ctx, stored)
}

func findStatistic(recs []StatisticRecord, key StatisticKey) (StatisticRecord, bool) {
	for _, r := range recs {
		if r.Farm == key.Farm && r.Product == key.Product && r.Date.Equal(key.Date) {
			return r, true
		}
	}
	return StatisticRecord{}, false
}
