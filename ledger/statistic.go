/*
statistic.go - Per-(farm, date, product) production ledger records

PURPOSE:
  A StatisticRecord is the daily ledger entry for one product on one farm:
  what was carried over, what was produced, what was sold (for display),
  and the derived current inventory.

INVARIANT:
  currentInventory == previousBalance + production - usage

  where usage is the attributed physical deduction (attribution.go), NOT the
  display "sales" figure. The display figure reflects what was nominally
  sold; the attributed figure accounts for borrowed stock on conversions.

NATURAL KEY:
  (FarmID, DateKey, ProductID) is unique. Stores enforce it; upserts against
  the remote are idempotent on it.

SEE ALSO:
  - reconcile.go: recompute + write/delete guards
  - attribution.go: how usage is computed
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STATISTIC RECORD
// =============================================================================

// StatisticKey is the natural key of a statistic record.
type StatisticKey struct {
	Farm    FarmID
	Date    DateKey
	Product ProductID
}

type StatisticRecord struct {
	ID      StatisticID
	Farm    FarmID
	Date    DateKey
	Product ProductID

	PreviousBalance  Quantity
	Production       Quantity
	UsageDisplay     Quantity // nominal sales, reporting only
	CurrentInventory Quantity // derived; see invariant above
	Separation       int64    // informational, excluded from the invariant

	Creator   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r StatisticRecord) Key() StatisticKey {
	// Date is normalized so keys built from timestamps and keys parsed from
	// wire strings compare equal.
	return StatisticKey{Farm: r.Farm, Date: DateKeyOf(r.Date.Time), Product: r.Product}
}

// Capacity is the stock the record declares available before usage.
func (r StatisticRecord) Capacity() Quantity {
	return r.PreviousBalance.Add(r.Production)
}

// =============================================================================
// STATISTIC LEDGER - CRUD contract
// =============================================================================

// StatisticLedger stores statistic records. Implementations enforce the
// natural-key uniqueness invariant: inserting a second record for the same
// (farm, date, product) fails with ErrDuplicateNaturalKey.
type StatisticLedger interface {
	// Insert adds a record. Fails with ErrDuplicateNaturalKey if a record
	// with the same natural key exists.
	Insert(ctx context.Context, rec StatisticRecord) error

	// Update replaces the record with the given id.
	Update(ctx context.Context, rec StatisticRecord) error

	// Delete removes the record with the given id. Delete guards live in the
	// reconciliation service, not the store.
	Delete(ctx context.Context, id StatisticID) error

	// Get returns the record with the given id, or ErrStatisticNotFound.
	Get(ctx context.Context, id StatisticID) (StatisticRecord, error)

	// GetByKey returns the record with the given natural key,
	// or ErrStatisticNotFound.
	GetByKey(ctx context.Context, key StatisticKey) (StatisticRecord, error)

	// ListDay returns every product's record for one farm and day.
	ListDay(ctx context.Context, farm FarmID, date DateKey) ([]StatisticRecord, error)
}
