/*
reconcile.go - Reconciliation service: recompute, guards, conversion, offline routing

PURPOSE:
  Every UI action runs through this service. It recomputes inventory from
  ledger state plus attributed usage, enforces the non-negative-stock and
  dependent-usage guards, implements the split-item conversion policy, and
  routes mutations that cannot reach the remote store into the offline sync
  queue instead of losing them.

WRITE FLOW:
  1. Re-derive usage from the local invoice ledger
  2. Run the guards (validation failures never touch the queue)
  3. Apply optimistically to the local ledger under a temporary id
  4. Commit to the remote store
       ack           -> promote: remap temp id, status Synced
       network error -> keep local record, enqueue mutation, status Offline
       other error   -> discard the optimistic record, status RolledBack

CONVERSION POLICY:
  availableStock >= requested          plain invoice
  deficit covered by sibling lender    one invoice, IsConverted=true
  otherwise                            InsufficientStockError (both shortfalls)

  Only one level of borrowing is supported; the lender is fixed by product
  category, never chosen dynamically.

SEE ALSO:
  - attribution.go: usage derivation
  - replay.go: drains queued mutations back through ApplyReplay
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// Catalog resolves product classification for the conversion policy.
type Catalog interface {
	// Category returns the product's structured category.
	Category(ctx context.Context, id ProductID) (ProductCategory, error)

	// Lender returns the sibling-category product for the same farm, the
	// only product allowed to cover a shortfall. ok is false when the
	// product's category cannot borrow or no sibling product exists.
	Lender(ctx context.Context, farm FarmID, product ProductID) (ProductID, bool, error)
}

// FarmModes resolves how a farm reports stock.
type FarmModes interface {
	Mode(ctx context.Context, farm FarmID) (FarmMode, error)
}

// =============================================================================
// RESULTS
// =============================================================================

// CommitState tells the caller how a write landed.
type CommitState int

const (
	// CommitSynced: the remote store acknowledged the write.
	CommitSynced CommitState = iota
	// CommitQueued: the remote was unreachable; the mutation is queued and
	// will be replayed. The caller should treat this as success.
	CommitQueued
)

func (s CommitState) String() string {
	if s == CommitQueued {
		return "queued"
	}
	return "synced"
}

// =============================================================================
// INPUTS
// =============================================================================

// StatisticInput is a statistic write as entered by the operator. Which
// fields matter depends on the farm's mode: carry-forward farms enter
// PreviousBalance and Production; declared-stock farms enter DeclaredStock.
type StatisticInput struct {
	Farm    FarmID
	Date    DateKey
	Product ProductID

	PreviousBalance Quantity
	Production      Quantity
	DeclaredStock   Quantity

	UsageDisplay Quantity
	Separation   int64
}

// InvoiceRequest is a sale as entered by the operator.
type InvoiceRequest struct {
	Farm    FarmID
	Date    DateKey
	Product ProductID
	Number  string

	Cartons int64
	Weight  decimal.Decimal

	Driver      string
	Plate       string
	Description string
}

// =============================================================================
// SERVICE
// =============================================================================

// ServiceOptions carries the injected collaborators. No ambient state: the
// service only sees what it is constructed with.
type ServiceOptions struct {
	Statistics StatisticLedger
	Invoices   InvoiceLedger
	Remote     Remote
	Queue      SyncQueue
	Catalog    Catalog
	Modes      FarmModes
	Identity   Identity
	Logger     *zap.Logger
}

// Service is the reconciliation engine.
type Service struct {
	stats    StatisticLedger
	invoices InvoiceLedger
	remote   Remote
	queue    SyncQueue
	catalog  Catalog
	modes    FarmModes
	identity Identity
	arena    *Arena
	log      *zap.Logger
}

func NewService(opts ServiceOptions) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		stats:    opts.Statistics,
		invoices: opts.Invoices,
		remote:   opts.Remote,
		queue:    opts.Queue,
		catalog:  opts.Catalog,
		modes:    opts.Modes,
		identity: opts.Identity,
		arena:    NewArena(),
		log:      log,
	}
}

// Arena exposes record status lookups for the presentation layer.
func (s *Service) Arena() *Arena { return s.arena }

// =============================================================================
// PURE RECOMPUTE AND GUARDS
// =============================================================================

// Recompute applies the inventory invariant to a record:
//
//	currentInventory = previousBalance + production - usage
//
// The formula is uniform across farm modes; declared-stock records have
// production back-derived at write time so the same equation holds.
func Recompute(rec StatisticRecord, usage Usage) StatisticRecord {
	capacity := rec.Capacity()
	rec.CurrentInventory = Quantity{
		Cartons: capacity.Cartons - usage.Units,
		Weight:  capacity.Weight.Sub(usage.Weight),
	}
	return rec
}

// DeclaredStockInputs back-derives the carry-forward fields from a declared
// physical stock: previous balance is forced to zero and production becomes
// declaredStock + usage, so Recompute yields exactly the declared stock.
func DeclaredStockInputs(declared Quantity, usage Usage) (previous, production Quantity) {
	previous = Quantity{Weight: decimal.Zero}
	production = Quantity{
		Cartons: declared.Cartons + usage.Units,
		Weight:  declared.Weight.Add(usage.Weight),
	}
	return previous, production
}

// ValidateWrite rejects a statistic write whose declared capacity is below
// the usage already recorded - an edit may never shrink stock below what has
// physically left the farm. Declared-stock farms cannot go negative by
// construction, so the guard is skipped there.
func ValidateWrite(proposed StatisticRecord, usage Usage, mode FarmMode) error {
	if mode == ModeDeclaredStock {
		return nil
	}
	capacity := proposed.Capacity()
	if capacity.Cartons < usage.Units {
		return &InsufficientStockError{
			Product:   proposed.Product,
			Requested: usage.Units,
			Available: capacity.Cartons,
		}
	}
	return nil
}

// ValidateDelete rejects deleting a statistic that still has recorded usage.
func ValidateDelete(rec StatisticRecord, usage Usage) error {
	if usage.Units > 0 {
		return &DependentUsageError{
			Farm:    rec.Farm,
			Date:    rec.Date,
			Product: rec.Product,
			Usage:   usage.Units,
		}
	}
	return nil
}

// RefreshStatistics recomputes current inventory for the given products on
// one farm-day from the invoice ledger. Shared by the local optimistic path
// and the authoritative server: every invoice write triggers it downstream.
func RefreshStatistics(ctx context.Context, stats StatisticLedger, invoices InvoiceLedger,
	farm FarmID, date DateKey, products ...ProductID) error {

	day, err := invoices.ListDay(ctx, farm, date)
	if err != nil {
		return err
	}
	seen := make(map[ProductID]bool, len(products))
	for _, p := range products {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true

		rec, err := stats.GetByKey(ctx, StatisticKey{Farm: farm, Date: date, Product: p})
		if err != nil {
			if IsValidation(err) {
				// No statistic for this product yet; nothing to refresh.
				continue
			}
			return err
		}
		rec = Recompute(rec, AttributeUsage(day, p))
		rec.UpdatedAt = time.Now().UTC()
		if err := stats.Update(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// STATISTIC WRITES
// =============================================================================

// usageFor derives attributed usage from the local invoice ledger.
func (s *Service) usageFor(ctx context.Context, farm FarmID, date DateKey, product ProductID) (Usage, error) {
	day, err := s.invoices.ListDay(ctx, farm, date)
	if err != nil {
		return Usage{}, err
	}
	return AttributeUsage(day, product), nil
}

// buildStatistic materializes a record from operator input per farm mode.
func (s *Service) buildStatistic(ctx context.Context, in StatisticInput, usage Usage) (StatisticRecord, FarmMode, error) {
	mode, err := s.modes.Mode(ctx, in.Farm)
	if err != nil {
		return StatisticRecord{}, mode, err
	}

	rec := StatisticRecord{
		Farm:         in.Farm,
		Date:         in.Date,
		Product:      in.Product,
		UsageDisplay: in.UsageDisplay,
		Separation:   in.Separation,
	}
	switch mode {
	case ModeDeclaredStock:
		rec.PreviousBalance, rec.Production = DeclaredStockInputs(in.DeclaredStock, usage)
	default:
		rec.PreviousBalance = in.PreviousBalance
		rec.Production = in.Production
	}
	return Recompute(rec, usage), mode, nil
}

// UpsertStatistic creates or replaces the statistic for the input's natural
// key. Validation failures return an error; an unreachable remote returns
// CommitQueued with the optimistic record retained locally.
func (s *Service) UpsertStatistic(ctx context.Context, in StatisticInput) (StatisticRecord, CommitState, error) {
	usage, err := s.usageFor(ctx, in.Farm, in.Date, in.Product)
	if err != nil {
		return StatisticRecord{}, CommitSynced, err
	}

	rec, mode, err := s.buildStatistic(ctx, in, usage)
	if err != nil {
		return StatisticRecord{}, CommitSynced, err
	}
	if err := ValidateWrite(rec, usage, mode); err != nil {
		return StatisticRecord{}, CommitSynced, err
	}

	now := time.Now().UTC()
	actor := s.identity.Current(ctx)
	rec.Creator = actor.ID
	rec.CreatedAt = now
	rec.UpdatedAt = now

	// Optimistic local apply. Reuse the existing record's id when the
	// natural key is already present locally.
	existing, getErr := s.stats.GetByKey(ctx, rec.Key())
	replacing := getErr == nil
	if replacing {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		if err := s.stats.Update(ctx, rec); err != nil {
			return StatisticRecord{}, CommitSynced, err
		}
	} else {
		rec.ID = StatisticID(uuid.NewString())
		if err := s.stats.Insert(ctx, rec); err != nil {
			return StatisticRecord{}, CommitSynced, err
		}
	}
	s.arena.Track(string(rec.ID))

	stored, err := s.remote.UpsertStatistics(ctx, []StatisticRecord{rec})
	switch {
	case err == nil:
		synced := rec
		if len(stored) > 0 {
			synced = stored[0]
		}
		return synced, CommitSynced, s.promoteStatistic(ctx, rec, synced)

	case IsNetwork(err):
		if qErr := s.enqueue(ctx, OpUpsertStatistic, Payload{Statistic: &rec}); qErr != nil {
			return StatisticRecord{}, CommitSynced, qErr
		}
		s.arena.MarkOffline(string(rec.ID))
		s.log.Info("statistic queued for sync",
			zap.String("farm", string(rec.Farm)),
			zap.String("product", string(rec.Product)),
			zap.String("date", rec.Date.String()))
		return rec, CommitQueued, nil

	default:
		// Hard failure: discard the optimistic record.
		if replacing {
			_ = s.stats.Update(ctx, existing)
		} else {
			_ = s.stats.Delete(ctx, rec.ID)
		}
		s.arena.MarkRolledBack(string(rec.ID))
		return StatisticRecord{}, CommitSynced, err
	}
}

// UpdateStatistic edits an existing statistic by id, re-running the edit
// guard against currently recorded usage.
func (s *Service) UpdateStatistic(ctx context.Context, id StatisticID, in StatisticInput) (StatisticRecord, CommitState, error) {
	prev, err := s.stats.Get(ctx, id)
	if err != nil {
		return StatisticRecord{}, CommitSynced, err
	}

	in.Farm, in.Date, in.Product = prev.Farm, prev.Date, prev.Product
	usage, err := s.usageFor(ctx, prev.Farm, prev.Date, prev.Product)
	if err != nil {
		return StatisticRecord{}, CommitSynced, err
	}
	rec, mode, err := s.buildStatistic(ctx, in, usage)
	if err != nil {
		return StatisticRecord{}, CommitSynced, err
	}
	if err := ValidateWrite(rec, usage, mode); err != nil {
		return StatisticRecord{}, CommitSynced, err
	}

	rec.ID = prev.ID
	rec.Creator = prev.Creator
	rec.CreatedAt = prev.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	if err := s.stats.Update(ctx, rec); err != nil {
		return StatisticRecord{}, CommitSynced, err
	}
	s.arena.Track(string(rec.ID))

	stored, err := s.remote.UpdateStatistic(ctx, rec)
	switch {
	case err == nil:
		return stored, CommitSynced, s.promoteStatistic(ctx, rec, stored)

	case IsNetwork(err):
		if qErr := s.enqueue(ctx, OpUpdateStatistic, Payload{Statistic: &rec}); qErr != nil {
			return StatisticRecord{}, CommitSynced, qErr
		}
		s.arena.MarkOffline(string(rec.ID))
		return rec, CommitQueued, nil

	default:
		_ = s.stats.Update(ctx, prev)
		s.arena.MarkRolledBack(string(rec.ID))
		return StatisticRecord{}, CommitSynced, err
	}
}

// DeleteStatistic removes a statistic after the dependent-usage guard.
func (s *Service) DeleteStatistic(ctx context.Context, id StatisticID) (CommitState, error) {
	rec, err := s.stats.Get(ctx, id)
	if err != nil {
		return CommitSynced, err
	}
	usage, err := s.usageFor(ctx, rec.Farm, rec.Date, rec.Product)
	if err != nil {
		return CommitSynced, err
	}
	if err := ValidateDelete(rec, usage); err != nil {
		return CommitSynced, err
	}

	if err := s.stats.Delete(ctx, rec.ID); err != nil {
		return CommitSynced, err
	}

	err = s.remote.DeleteStatistic(ctx, rec.ID)
	switch {
	case err == nil:
		s.arena.Forget(string(rec.ID))
		return CommitSynced, nil

	case IsNetwork(err):
		// Queue the full record, not just the id: replay must re-run the
		// dependent-usage guard against server state, and by then the local
		// copy is already gone.
		if qErr := s.enqueue(ctx, OpDeleteStatistic, Payload{Statistic: &rec}); qErr != nil {
			return CommitSynced, qErr
		}
		s.arena.MarkOffline(string(rec.ID))
		return CommitQueued, nil

	default:
		_ = s.stats.Insert(ctx, rec)
		s.arena.MarkRolledBack(string(rec.ID))
		return CommitSynced, err
	}
}

func (s *Service) promoteStatistic(ctx context.Context, local, stored StatisticRecord) error {
	s.arena.Promote(string(local.ID), string(stored.ID))
	if stored.ID == local.ID {
		return nil
	}
	// The remote assigned a new id: swap the local copy over to it.
	if err := s.stats.Delete(ctx, local.ID); err != nil {
		return err
	}
	return s.stats.Insert(ctx, stored)
}

// =============================================================================
// INVOICE WRITES
// =============================================================================

// CreateInvoiceWithConversion creates a sale document, borrowing from the
// sibling-category lender when the requested product's stock falls short.
func (s *Service) CreateInvoiceWithConversion(ctx context.Context, req InvoiceRequest) (InvoiceRecord, CommitState, error) {
	stat, err := s.stats.GetByKey(ctx, StatisticKey{Farm: req.Farm, Date: req.Date, Product: req.Product})
	if err != nil {
		return InvoiceRecord{}, CommitSynced, err
	}

	if err := s.checkDuplicateNumber(ctx, req); err != nil {
		return InvoiceRecord{}, CommitSynced, err
	}

	now := time.Now().UTC()
	rec := InvoiceRecord{
		ID:           InvoiceID(uuid.NewString()),
		Number:       req.Number,
		Farm:         req.Farm,
		Date:         req.Date,
		Product:      req.Product,
		TotalCartons: req.Cartons,
		TotalWeight:  req.Weight,
		Driver:       req.Driver,
		Plate:        req.Plate,
		Description:  req.Description,
		Creator:      s.identity.Current(ctx).ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	available := stat.CurrentInventory.Cartons
	if available < req.Cartons {
		deficit := req.Cartons - available
		lender, ok, err := s.catalog.Lender(ctx, req.Farm, req.Product)
		if err != nil {
			return InvoiceRecord{}, CommitSynced, err
		}
		if !ok {
			return InvoiceRecord{}, CommitSynced, &InsufficientStockError{
				Product:   req.Product,
				Requested: req.Cartons,
				Available: available,
			}
		}

		lenderStat, err := s.stats.GetByKey(ctx, StatisticKey{Farm: req.Farm, Date: req.Date, Product: lender})
		lenderAvail := int64(0)
		if err == nil {
			lenderAvail = lenderStat.CurrentInventory.Cartons
		} else if !IsValidation(err) {
			return InvoiceRecord{}, CommitSynced, err
		}
		if lenderAvail < deficit {
			return InvoiceRecord{}, CommitSynced, &InsufficientStockError{
				Product:         req.Product,
				Requested:       req.Cartons,
				Available:       available,
				Lender:          lender,
				Deficit:         deficit,
				LenderAvailable: lenderAvail,
			}
		}

		rec.IsConverted = true
		rec.SourceProduct = lender
		rec.ConvertedAmount = deficit
	}

	if err := s.invoices.Insert(ctx, rec); err != nil {
		return InvoiceRecord{}, CommitSynced, err
	}
	s.arena.Track(string(rec.ID))
	if err := s.refreshAfter(ctx, rec); err != nil {
		return InvoiceRecord{}, CommitSynced, err
	}

	stored, err := s.remote.InsertInvoices(ctx, []InvoiceRecord{rec})
	switch {
	case err == nil:
		synced := rec
		if len(stored) > 0 {
			synced = stored[0]
		}
		return synced, CommitSynced, s.promoteInvoice(ctx, rec, synced)

	case IsNetwork(err):
		if qErr := s.enqueue(ctx, OpInsertInvoice, Payload{Invoice: &rec}); qErr != nil {
			return InvoiceRecord{}, CommitSynced, qErr
		}
		s.arena.MarkOffline(string(rec.ID))
		s.log.Info("invoice queued for sync",
			zap.String("number", rec.Number),
			zap.String("product", string(rec.Product)))
		return rec, CommitQueued, nil

	default:
		_ = s.invoices.Delete(ctx, rec.ID)
		_ = s.refreshAfter(ctx, rec)
		s.arena.MarkRolledBack(string(rec.ID))
		return InvoiceRecord{}, CommitSynced, err
	}
}

// UpdateInvoice edits a sale document and re-validates affected stock.
func (s *Service) UpdateInvoice(ctx context.Context, rec InvoiceRecord) (InvoiceRecord, CommitState, error) {
	prev, err := s.invoices.Get(ctx, rec.ID)
	if err != nil {
		return InvoiceRecord{}, CommitSynced, err
	}
	if rec.ConvertedAmount < 0 || rec.ConvertedAmount > rec.TotalCartons {
		return InvoiceRecord{}, CommitSynced, &SchemaError{
			Op:     "update invoice",
			Detail: fmt.Sprintf("converted amount %d out of range [0, %d]", rec.ConvertedAmount, rec.TotalCartons),
		}
	}

	rec.CreatedAt = prev.CreatedAt
	rec.Creator = prev.Creator
	rec.UpdatedAt = time.Now().UTC()

	if err := s.invoices.Update(ctx, rec); err != nil {
		return InvoiceRecord{}, CommitSynced, err
	}

	// Re-validate every touched product against the edited day.
	if err := s.validateDayStocks(ctx, rec.Farm, rec.Date, prev.Product, prev.SourceProduct, rec.Product, rec.SourceProduct); err != nil {
		_ = s.invoices.Update(ctx, prev)
		return InvoiceRecord{}, CommitSynced, err
	}
	if err := s.refreshAfter(ctx, prev, rec); err != nil {
		return InvoiceRecord{}, CommitSynced, err
	}
	s.arena.Track(string(rec.ID))

	stored, err := s.remote.UpdateInvoice(ctx, rec)
	switch {
	case err == nil:
		return stored, CommitSynced, s.promoteInvoice(ctx, rec, stored)

	case IsNetwork(err):
		if qErr := s.enqueue(ctx, OpUpdateInvoice, Payload{Invoice: &rec}); qErr != nil {
			return InvoiceRecord{}, CommitSynced, qErr
		}
		s.arena.MarkOffline(string(rec.ID))
		return rec, CommitQueued, nil

	default:
		_ = s.invoices.Update(ctx, prev)
		_ = s.refreshAfter(ctx, prev, rec)
		s.arena.MarkRolledBack(string(rec.ID))
		return InvoiceRecord{}, CommitSynced, err
	}
}

// DeleteInvoice removes a sale document and refreshes the statistics it fed.
func (s *Service) DeleteInvoice(ctx context.Context, id InvoiceID) (CommitState, error) {
	rec, err := s.invoices.Get(ctx, id)
	if err != nil {
		return CommitSynced, err
	}

	if err := s.invoices.Delete(ctx, rec.ID); err != nil {
		return CommitSynced, err
	}
	if err := s.refreshAfter(ctx, rec); err != nil {
		return CommitSynced, err
	}

	err = s.remote.DeleteInvoice(ctx, rec.ID)
	switch {
	case err == nil:
		s.arena.Forget(string(rec.ID))
		return CommitSynced, nil

	case IsNetwork(err):
		if qErr := s.enqueue(ctx, OpDeleteInvoice, Payload{InvoiceID: rec.ID}); qErr != nil {
			return CommitSynced, qErr
		}
		s.arena.MarkOffline(string(rec.ID))
		return CommitQueued, nil

	default:
		_ = s.invoices.Insert(ctx, rec)
		_ = s.refreshAfter(ctx, rec)
		s.arena.MarkRolledBack(string(rec.ID))
		return CommitSynced, err
	}
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Service) checkDuplicateNumber(ctx context.Context, req InvoiceRequest) error {
	day, err := s.invoices.ListDay(ctx, req.Farm, req.Date)
	if err != nil {
		return err
	}
	for _, inv := range day {
		if inv.Number == req.Number && inv.Product == req.Product {
			return fmt.Errorf("invoice %s for product %s: %w", req.Number, req.Product, ErrDuplicateInvoiceNumber)
		}
	}
	return nil
}

// refreshAfter recomputes the statistics touched by the given invoices
// (nominal product and, on conversions, the source product).
func (s *Service) refreshAfter(ctx context.Context, touched ...InvoiceRecord) error {
	if len(touched) == 0 {
		return nil
	}
	products := make([]ProductID, 0, len(touched)*2)
	for _, inv := range touched {
		products = append(products, inv.Product)
		if inv.IsConverted {
			products = append(products, inv.SourceProduct)
		}
	}
	return RefreshStatistics(ctx, s.stats, s.invoices, touched[0].Farm, touched[0].Date, products...)
}

// validateDayStocks checks that no touched product's recorded capacity fell
// below its attributed usage after an invoice edit.
func (s *Service) validateDayStocks(ctx context.Context, farm FarmID, date DateKey, products ...ProductID) error {
	day, err := s.invoices.ListDay(ctx, farm, date)
	if err != nil {
		return err
	}
	seen := make(map[ProductID]bool, len(products))
	for _, p := range products {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true

		rec, err := s.stats.GetByKey(ctx, StatisticKey{Farm: farm, Date: date, Product: p})
		if err != nil {
			if IsValidation(err) {
				continue
			}
			return err
		}
		usage := AttributeUsage(day, p)
		if rec.Capacity().Cartons < usage.Units {
			return &InsufficientStockError{
				Product:   p,
				Requested: usage.Units,
				Available: rec.Capacity().Cartons,
			}
		}
	}
	return nil
}

func (s *Service) promoteInvoice(ctx context.Context, local, stored InvoiceRecord) error {
	s.arena.Promote(string(local.ID), string(stored.ID))
	if stored.ID == local.ID {
		return nil
	}
	if err := s.invoices.Delete(ctx, local.ID); err != nil {
		return err
	}
	return s.invoices.Insert(ctx, stored)
}

func (s *Service) enqueue(ctx context.Context, op Operation, p Payload) error {
	if s.queue == nil {
		return fmt.Errorf("no sync queue configured for offline %s", op)
	}
	_, err := s.queue.Enqueue(ctx, op, p)
	return err
}
