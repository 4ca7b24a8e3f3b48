/*
Package ledger provides the farm production-and-sales reconciliation engine.

PURPOSE:
  This package contains the core types and algorithms for tracking, per
  farm/product/day, how much stock was produced, how much was actually
  deducted by sales documents, and how mutations made while disconnected
  are queued and replayed against the authoritative store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: cartons plus weight (weight uses decimal.Decimal)
  - DateKey: a calendar day used as part of natural keys
  - FarmMode: how a farm reports stock (carry-forward vs declared)
  - RecordStatus: lifecycle of an optimistic local write
  - Actor/Identity: audit attribution context

DESIGN PRINCIPLES:
  1. Precision: weight arithmetic uses decimal.Decimal, never float64
  2. Type Safety: strong typing for ids prevents mixing farm/product ids
  3. Explicit modes: farm behavior is selected once via FarmMode, not
     re-branched on strings at every call site
  4. No ambient state: every service is constructed and injected

SEE ALSO:
  - statistic.go: per-(farm,date,product) ledger records
  - invoice.go: sales/conversion documents
  - attribution.go: usage attribution across direct and borrowed stock
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FarmID string
type ProductID string
type StatisticID string
type InvoiceID string

// =============================================================================
// DATE KEY - Calendar day used in natural keys
// =============================================================================

// DateKey identifies a calendar day. Records are keyed by day, never by
// instant, so DateKey normalizes away the clock component.
type DateKey struct {
	Time time.Time
}

func NewDateKey(year int, month time.Month, day int) DateKey {
	return DateKey{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateKeyOf(t time.Time) DateKey {
	return NewDateKey(t.Year(), t.Month(), t.Day())
}

func Today() DateKey { return DateKeyOf(time.Now().UTC()) }

// ParseDateKey parses a YYYY-MM-DD string.
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return DateKey{}, err
	}
	return DateKeyOf(t), nil
}

func (d DateKey) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d DateKey) Before(other DateKey) bool { return d.normalize().Before(other.normalize()) }
func (d DateKey) Equal(other DateKey) bool  { return d.normalize().Equal(other.normalize()) }
func (d DateKey) After(other DateKey) bool  { return d.normalize().After(other.normalize()) }
func (d DateKey) IsZero() bool              { return d.Time.IsZero() }
func (d DateKey) AddDays(n int) DateKey     { return DateKey{Time: d.Time.AddDate(0, 0, n)} }

func (d DateKey) String() string { return d.normalize().Format("2006-01-02") }

// MarshalJSON encodes the day as "YYYY-MM-DD".
func (d DateKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *DateKey) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = DateKey{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDateKey(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// QUANTITY - Cartons with weight
// =============================================================================

// Quantity is a stock amount: whole cartons plus their weight. Cartons are
// integral; weight carries fractional kilograms and uses decimal arithmetic.
type Quantity struct {
	Cartons int64
	Weight  decimal.Decimal
}

func NewQuantity(cartons int64, weight float64) Quantity {
	return Quantity{Cartons: cartons, Weight: decimal.NewFromFloat(weight)}
}

func (q Quantity) Add(o Quantity) Quantity {
	return Quantity{Cartons: q.Cartons + o.Cartons, Weight: q.Weight.Add(o.Weight)}
}

func (q Quantity) Sub(o Quantity) Quantity {
	return Quantity{Cartons: q.Cartons - o.Cartons, Weight: q.Weight.Sub(o.Weight)}
}

func (q Quantity) IsNegative() bool { return q.Cartons < 0 || q.Weight.IsNegative() }
func (q Quantity) IsZero() bool     { return q.Cartons == 0 && q.Weight.IsZero() }

// =============================================================================
// FARM MODE - How a farm reports stock
// =============================================================================

// FarmMode selects the statistic lifecycle for a farm. The mode is chosen
// once per farm; reconciliation dispatches on it exactly once per write.
type FarmMode int

const (
	// ModeCarryForward: previous balance and production are user-entered,
	// current inventory is derived.
	ModeCarryForward FarmMode = iota

	// ModeDeclaredStock: the operator enters today's physical stock directly.
	// Previous balance is forced to zero and production is back-derived as
	// declaredStock + usage so the same invariant formula holds uniformly.
	ModeDeclaredStock
)

func (m FarmMode) String() string {
	switch m {
	case ModeDeclaredStock:
		return "declared_stock"
	default:
		return "carry_forward"
	}
}

// =============================================================================
// PRODUCT CATEGORY - Structured conversion eligibility
// =============================================================================

// ProductCategory classifies a product for stock conversion. Conversion
// borrows from the sibling category: a Simple shortfall is covered by the
// farm's Printable variant and vice versa. Other products never lend.
//
// This is a structured attribute set at product creation, replacing the
// upstream convention of matching localized product names.
type ProductCategory int

const (
	CategoryOther ProductCategory = iota
	CategorySimple
	CategoryPrintable
)

func (c ProductCategory) String() string {
	switch c {
	case CategorySimple:
		return "simple"
	case CategoryPrintable:
		return "printable"
	default:
		return "other"
	}
}

// Sibling returns the lender category for a borrower category.
// Returns (CategoryOther, false) when the category cannot borrow.
func (c ProductCategory) Sibling() (ProductCategory, bool) {
	switch c {
	case CategorySimple:
		return CategoryPrintable, true
	case CategoryPrintable:
		return CategorySimple, true
	default:
		return CategoryOther, false
	}
}

// =============================================================================
// RECORD STATUS - Lifecycle of an optimistic local write
// =============================================================================

// RecordStatus tags a locally-held record with its sync lifecycle.
//
//	Optimistic -> Synced      remote acked the write
//	Optimistic -> Offline     network failure; record retained, mutation queued
//	Optimistic -> RolledBack  validation or non-transient remote error
type RecordStatus int

const (
	StatusOptimistic RecordStatus = iota
	StatusSynced
	StatusOffline
	StatusRolledBack
)

func (s RecordStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusOffline:
		return "offline"
	case StatusRolledBack:
		return "rolled_back"
	default:
		return "optimistic"
	}
}

// =============================================================================
// IDENTITY - Audit attribution context
// =============================================================================

// Actor identifies who performed a mutation. Stamped on records for audit.
type Actor struct {
	ID   string
	Name string
	Role string
}

// Identity exposes the current operator. The engine treats this as
// read-only context; authentication lives outside the core.
type Identity interface {
	Current(ctx context.Context) Actor
}

// StaticIdentity is an Identity that always returns the same actor.
type StaticIdentity struct {
	Actor Actor
}

func (s StaticIdentity) Current(context.Context) Actor { return s.Actor }
