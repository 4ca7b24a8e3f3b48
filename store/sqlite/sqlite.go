/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence interfaces (StatisticLedger, InvoiceLedger,
  SyncQueue) using SQLite. The same store serves two deployments:
  - the cooperative server, where statistics and invoices are authoritative
  - the farm client, where the sync_queue table is the durable offline log

INTERFACES IMPLEMENTED:
  ledger.StatisticLedger: Daily production statistics
  ledger.InvoiceLedger:   Sales documents
  ledger.SyncQueue:       Durable FIFO of pending mutations

NATURAL-KEY ENFORCEMENT:
  Uniqueness lives in the schema, not application code:
  - idx_statistics_natural_key: one record per (farm, date, product)
  - idx_invoices_number_product: one invoice per (number, product)
  Violations surface as ErrDuplicateNaturalKey / ErrDuplicateInvoiceNumber.

SYNC QUEUE ORDERING:
  sync_queue uses an AUTOINCREMENT rowid as the sequence number, so replay
  order survives process restarts and is strictly monotonic even across
  deletes.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/statistic.go, ledger/invoice.go, ledger/queue.go: contracts
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/coopstack/farm-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Daily production statistics
	CREATE TABLE IF NOT EXISTS statistics (
		id TEXT PRIMARY KEY,
		farm TEXT NOT NULL,
		date TEXT NOT NULL,
		product TEXT NOT NULL,
		prev_cartons INTEGER NOT NULL,
		prev_weight TEXT NOT NULL,
		prod_cartons INTEGER NOT NULL,
		prod_weight TEXT NOT NULL,
		usage_cartons INTEGER NOT NULL,
		usage_weight TEXT NOT NULL,
		inv_cartons INTEGER NOT NULL,
		inv_weight TEXT NOT NULL,
		separation INTEGER NOT NULL DEFAULT 0,
		creator TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one statistic per (farm, date, product)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_statistics_natural_key
		ON statistics(farm, date, product);
	CREATE INDEX IF NOT EXISTS idx_statistics_farm_date
		ON statistics(farm, date);

	-- Sales documents
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		farm TEXT NOT NULL,
		date TEXT NOT NULL,
		product TEXT NOT NULL,
		total_cartons INTEGER NOT NULL,
		total_weight TEXT NOT NULL,
		is_converted BOOLEAN NOT NULL DEFAULT FALSE,
		source_product TEXT,
		converted_amount INTEGER NOT NULL DEFAULT 0,
		driver TEXT,
		plate TEXT,
		description TEXT,
		creator TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: an invoice number is never reused for the same product
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_number_product
		ON invoices(number, product);
	CREATE INDEX IF NOT EXISTS idx_invoices_farm_date
		ON invoices(farm, date);

	-- Durable offline mutation log. seq is AUTOINCREMENT so replay order
	-- is strictly monotonic even across deletes and restarts.
	CREATE TABLE IF NOT EXISTS sync_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		op TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STATISTIC LEDGER (ledger.StatisticLedger interface)
// =============================================================================

// InsertStatistic adds a statistic record.
func (s *Store) InsertStatistic(ctx context.Context, rec ledger.StatisticRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO statistics
		(id, farm, date, product, prev_cartons, prev_weight, prod_cartons, prod_weight,
		 usage_cartons, usage_weight, inv_cartons, inv_weight, separation, creator,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Farm, rec.Date.String(), rec.Product,
		rec.PreviousBalance.Cartons, rec.PreviousBalance.Weight.String(),
		rec.Production.Cartons, rec.Production.Weight.String(),
		rec.UsageDisplay.Cartons, rec.UsageDisplay.Weight.String(),
		rec.CurrentInventory.Cartons, rec.CurrentInventory.Weight.String(),
		rec.Separation, rec.Creator,
		timestamp(rec.CreatedAt), timestamp(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("statistic %s/%s/%s: %w",
				rec.Farm, rec.Date, rec.Product, ledger.ErrDuplicateNaturalKey)
		}
		return fmt.Errorf("failed to insert statistic: %w", err)
	}
	return nil
}

// UpdateStatistic replaces the record with the given id.
func (s *Store) UpdateStatistic(ctx context.Context, rec ledger.StatisticRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE statistics SET
			farm = ?, date = ?, product = ?,
			prev_cartons = ?, prev_weight = ?, prod_cartons = ?, prod_weight = ?,
			usage_cartons = ?, usage_weight = ?, inv_cartons = ?, inv_weight = ?,
			separation = ?, creator = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		rec.Farm, rec.Date.String(), rec.Product,
		rec.PreviousBalance.Cartons, rec.PreviousBalance.Weight.String(),
		rec.Production.Cartons, rec.Production.Weight.String(),
		rec.UsageDisplay.Cartons, rec.UsageDisplay.Weight.String(),
		rec.CurrentInventory.Cartons, rec.CurrentInventory.Weight.String(),
		rec.Separation, rec.Creator, timestamp(time.Now()),
		rec.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("statistic %s/%s/%s: %w",
				rec.Farm, rec.Date, rec.Product, ledger.ErrDuplicateNaturalKey)
		}
		return fmt.Errorf("failed to update statistic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("statistic %s: %w", rec.ID, ledger.ErrStatisticNotFound)
	}
	return nil
}

// DeleteStatistic removes the record with the given id.
func (s *Store) DeleteStatistic(ctx context.Context, id ledger.StatisticID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM statistics WHERE id = ?", id)
	return err
}

// GetStatistic returns the record with the given id.
func (s *Store) GetStatistic(ctx context.Context, id ledger.StatisticID) (ledger.StatisticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryStatistics(ctx, statisticColumns+" FROM statistics WHERE id = ?", id)
	if err != nil {
		return ledger.StatisticRecord{}, err
	}
	if len(recs) == 0 {
		return ledger.StatisticRecord{}, fmt.Errorf("statistic %s: %w", id, ledger.ErrStatisticNotFound)
	}
	return recs[0], nil
}

// GetStatisticByKey returns the record with the given natural key.
func (s *Store) GetStatisticByKey(ctx context.Context, key ledger.StatisticKey) (ledger.StatisticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryStatistics(ctx,
		statisticColumns+" FROM statistics WHERE farm = ? AND date = ? AND product = ?",
		key.Farm, key.Date.String(), key.Product)
	if err != nil {
		return ledger.StatisticRecord{}, err
	}
	if len(recs) == 0 {
		return ledger.StatisticRecord{}, fmt.Errorf("statistic %s/%s/%s: %w",
			key.Farm, key.Date, key.Product, ledger.ErrStatisticNotFound)
	}
	return recs[0], nil
}

// ListDayStatistics returns every product's record for one farm and day.
func (s *Store) ListDayStatistics(ctx context.Context, farm ledger.FarmID, date ledger.DateKey) ([]ledger.StatisticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryStatistics(ctx,
		statisticColumns+" FROM statistics WHERE farm = ? AND date = ? ORDER BY product ASC",
		farm, date.String())
}

// ListStatisticsRange returns statistics for a farm between two dates
// inclusive. An empty farm matches all farms.
func (s *Store) ListStatisticsRange(ctx context.Context, farm ledger.FarmID, from, to ledger.DateKey) ([]ledger.StatisticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if farm == "" {
		return s.queryStatistics(ctx,
			statisticColumns+" FROM statistics WHERE date >= ? AND date <= ? ORDER BY date ASC, product ASC",
			from.String(), to.String())
	}
	return s.queryStatistics(ctx,
		statisticColumns+" FROM statistics WHERE farm = ? AND date >= ? AND date <= ? ORDER BY date ASC, product ASC",
		farm, from.String(), to.String())
}

const statisticColumns = `
	SELECT id, farm, date, product, prev_cartons, prev_weight, prod_cartons, prod_weight,
	       usage_cartons, usage_weight, inv_cartons, inv_weight, separation, creator,
	       created_at, updated_at`

func (s *Store) queryStatistics(ctx context.Context, query string, args ...any) ([]ledger.StatisticRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	defer rows.Close()

	var recs []ledger.StatisticRecord
	for rows.Next() {
		rec, err := scanStatistic(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanStatistic(rows *sql.Rows) (ledger.StatisticRecord, error) {
	var (
		rec                        ledger.StatisticRecord
		date                       string
		prevW, prodW, usageW, invW string
		creator                    sql.NullString
		createdAt, updatedAt       string
	)

	err := rows.Scan(
		&rec.ID, &rec.Farm, &date, &rec.Product,
		&rec.PreviousBalance.Cartons, &prevW,
		&rec.Production.Cartons, &prodW,
		&rec.UsageDisplay.Cartons, &usageW,
		&rec.CurrentInventory.Cartons, &invW,
		&rec.Separation, &creator, &createdAt, &updatedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan statistic: %w", err)
	}

	rec.Date, _ = ledger.ParseDateKey(date)
	rec.PreviousBalance.Weight = parseDecimal(prevW)
	rec.Production.Weight = parseDecimal(prodW)
	rec.UsageDisplay.Weight = parseDecimal(usageW)
	rec.CurrentInventory.Weight = parseDecimal(invW)
	rec.Creator = creator.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return rec, nil
}

// =============================================================================
// INVOICE LEDGER (ledger.InvoiceLedger interface)
// =============================================================================

// InsertInvoice adds an invoice.
func (s *Store) InsertInvoice(ctx context.Context, rec ledger.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO invoices
		(id, number, farm, date, product, total_cartons, total_weight,
		 is_converted, source_product, converted_amount, driver, plate, description,
		 creator, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Number, rec.Farm, rec.Date.String(), rec.Product,
		rec.TotalCartons, rec.TotalWeight.String(),
		rec.IsConverted, rec.SourceProduct, rec.ConvertedAmount,
		rec.Driver, rec.Plate, rec.Description, rec.Creator,
		timestamp(rec.CreatedAt), timestamp(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("invoice %s for %s: %w",
				rec.Number, rec.Product, ledger.ErrDuplicateInvoiceNumber)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// UpdateInvoice replaces the invoice with the given id.
func (s *Store) UpdateInvoice(ctx context.Context, rec ledger.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE invoices SET
			number = ?, farm = ?, date = ?, product = ?,
			total_cartons = ?, total_weight = ?,
			is_converted = ?, source_product = ?, converted_amount = ?,
			driver = ?, plate = ?, description = ?, creator = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		rec.Number, rec.Farm, rec.Date.String(), rec.Product,
		rec.TotalCartons, rec.TotalWeight.String(),
		rec.IsConverted, rec.SourceProduct, rec.ConvertedAmount,
		rec.Driver, rec.Plate, rec.Description, rec.Creator, timestamp(time.Now()),
		rec.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("invoice %s for %s: %w",
				rec.Number, rec.Product, ledger.ErrDuplicateInvoiceNumber)
		}
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invoice %s: %w", rec.ID, ledger.ErrInvoiceNotFound)
	}
	return nil
}

// DeleteInvoice removes the invoice with the given id.
func (s *Store) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id)
	return err
}

// GetInvoice returns the invoice with the given id.
func (s *Store) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryInvoices(ctx, invoiceColumns+" FROM invoices WHERE id = ?", id)
	if err != nil {
		return ledger.InvoiceRecord{}, err
	}
	if len(recs) == 0 {
		return ledger.InvoiceRecord{}, fmt.Errorf("invoice %s: %w", id, ledger.ErrInvoiceNotFound)
	}
	return recs[0], nil
}

// ListDayInvoices returns every invoice for one farm and day, in creation order.
func (s *Store) ListDayInvoices(ctx context.Context, farm ledger.FarmID, date ledger.DateKey) ([]ledger.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryInvoices(ctx,
		invoiceColumns+" FROM invoices WHERE farm = ? AND date = ? ORDER BY rowid ASC",
		farm, date.String())
}

// ListInvoicesRange returns invoices for a farm between two dates inclusive,
// in creation order. An empty farm matches all farms.
func (s *Store) ListInvoicesRange(ctx context.Context, farm ledger.FarmID, from, to ledger.DateKey) ([]ledger.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if farm == "" {
		return s.queryInvoices(ctx,
			invoiceColumns+" FROM invoices WHERE date >= ? AND date <= ? ORDER BY date ASC, rowid ASC",
			from.String(), to.String())
	}
	return s.queryInvoices(ctx,
		invoiceColumns+" FROM invoices WHERE farm = ? AND date >= ? AND date <= ? ORDER BY date ASC, rowid ASC",
		farm, from.String(), to.String())
}

const invoiceColumns = `
	SELECT id, number, farm, date, product, total_cartons, total_weight,
	       is_converted, source_product, converted_amount, driver, plate, description,
	       creator, created_at, updated_at`

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]ledger.InvoiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var recs []ledger.InvoiceRecord
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanInvoice(rows *sql.Rows) (ledger.InvoiceRecord, error) {
	var (
		rec                                 ledger.InvoiceRecord
		date, totalWeight                   string
		sourceProduct                       sql.NullString
		driver, plate, description, creator sql.NullString
		createdAt, updatedAt                string
	)

	err := rows.Scan(
		&rec.ID, &rec.Number, &rec.Farm, &date, &rec.Product,
		&rec.TotalCartons, &totalWeight,
		&rec.IsConverted, &sourceProduct, &rec.ConvertedAmount,
		&driver, &plate, &description, &creator, &createdAt, &updatedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan invoice: %w", err)
	}

	rec.Date, _ = ledger.ParseDateKey(date)
	rec.TotalWeight = parseDecimal(totalWeight)
	rec.SourceProduct = ledger.ProductID(sourceProduct.String)
	rec.Driver = driver.String
	rec.Plate = plate.String
	rec.Description = description.String
	rec.Creator = creator.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return rec, nil
}

// =============================================================================
// SYNC QUEUE (ledger.SyncQueue interface)
// =============================================================================

// Enqueue appends a mutation to the durable log and returns the stored item.
func (s *Store) Enqueue(ctx context.Context, op ledger.Operation, payload ledger.Payload) (ledger.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := ledger.EncodePayload(payload)
	if err != nil {
		return ledger.QueueItem{}, err
	}

	item := ledger.QueueItem{
		ID:         uuid.NewString(),
		Op:         op,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_queue (id, op, payload, enqueued_at, attempts) VALUES (?, ?, ?, ?, 0)",
		item.ID, string(op), string(raw), timestamp(item.EnqueuedAt),
	)
	if err != nil {
		return ledger.QueueItem{}, fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	item.Seq, err = res.LastInsertId()
	if err != nil {
		return ledger.QueueItem{}, fmt.Errorf("failed to read queue sequence: %w", err)
	}
	return item, nil
}

// List returns all pending items in FIFO order.
func (s *Store) List(ctx context.Context) ([]ledger.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, id, op, payload, enqueued_at, attempts FROM sync_queue ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var items []ledger.QueueItem
	for rows.Next() {
		var (
			item       ledger.QueueItem
			op         string
			payload    string
			enqueuedAt string
		)
		if err := rows.Scan(&item.Seq, &item.ID, &op, &payload, &enqueuedAt, &item.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Op = ledger.Operation(op)
		item.Payload = []byte(payload)
		item.EnqueuedAt, _ = time.Parse(time.RFC3339, enqueuedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Remove deletes a queue item. Removing a missing item is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
	return err
}

// MarkAttempt increments the item's attempt counter.
func (s *Store) MarkAttempt(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ?", id)
	return err
}

// =============================================================================
// INTERFACE VIEWS
// =============================================================================
//
// The CRUD contracts share method names (Insert, Update, ...), so the store
// exposes them through narrow views instead of implementing both directly.

// Statistics returns the store's ledger.StatisticLedger view.
func (s *Store) Statistics() ledger.StatisticLedger { return statisticView{s} }

// Invoices returns the store's ledger.InvoiceLedger view.
func (s *Store) Invoices() ledger.InvoiceLedger { return invoiceView{s} }

type statisticView struct{ s *Store }

func (v statisticView) Insert(ctx context.Context, rec ledger.StatisticRecord) error {
	return v.s.InsertStatistic(ctx, rec)
}
func (v statisticView) Update(ctx context.Context, rec ledger.StatisticRecord) error {
	return v.s.UpdateStatistic(ctx, rec)
}
func (v statisticView) Delete(ctx context.Context, id ledger.StatisticID) error {
	return v.s.DeleteStatistic(ctx, id)
}
func (v statisticView) Get(ctx context.Context, id ledger.StatisticID) (ledger.StatisticRecord, error) {
	return v.s.GetStatistic(ctx, id)
}
func (v statisticView) GetByKey(ctx context.Context, key ledger.StatisticKey) (ledger.StatisticRecord, error) {
	return v.s.GetStatisticByKey(ctx, key)
}
func (v statisticView) ListDay(ctx context.Context, farm ledger.FarmID, date ledger.DateKey) ([]ledger.StatisticRecord, error) {
	return v.s.ListDayStatistics(ctx, farm, date)
}

type invoiceView struct{ s *Store }

func (v invoiceView) Insert(ctx context.Context, rec ledger.InvoiceRecord) error {
	return v.s.InsertInvoice(ctx, rec)
}
func (v invoiceView) Update(ctx context.Context, rec ledger.InvoiceRecord) error {
	return v.s.UpdateInvoice(ctx, rec)
}
func (v invoiceView) Delete(ctx context.Context, id ledger.InvoiceID) error {
	return v.s.DeleteInvoice(ctx, id)
}
func (v invoiceView) Get(ctx context.Context, id ledger.InvoiceID) (ledger.InvoiceRecord, error) {
	return v.s.GetInvoice(ctx, id)
}
func (v invoiceView) ListDay(ctx context.Context, farm ledger.FarmID, date ledger.DateKey) ([]ledger.InvoiceRecord, error) {
	return v.s.ListDayInvoices(ctx, farm, date)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"statistics", "invoices", "sync_queue"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
