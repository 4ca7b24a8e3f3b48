/*
errors.go - Centralized error taxonomy for the reconciliation engine

PURPOSE:
  All error kinds in one place. The taxonomy drives recovery policy:

  1. Validation errors - guard rejections; surfaced synchronously, never queued
  2. Network errors    - transient; the mutation is queued and the caller sees
                         a "queued for sync" outcome instead of a failure
  3. Conflict errors   - natural key already exists on replay; treated as
                         already-applied and discarded
  4. Schema errors     - remote rejected the payload shape; fatal, not retried

USAGE:
  Callers branch with the classification helpers:

    if ledger.IsNetwork(err) { // route to the offline queue }

SEE ALSO:
  - reconcile.go: raises validation errors and routes network errors
  - replay.go: maps the taxonomy onto drain outcomes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a sale (or an edit) would drive
	// inventory negative and no lender product can cover the deficit.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDependentUsage is returned when deleting a statistic that still has
	// recorded usage. Dependent invoices must be removed first.
	ErrDependentUsage = errors.New("statistic has dependent usage")

	// ErrDuplicateNaturalKey is returned when an insert collides with an
	// existing record on its natural key. On replay this means the item was
	// already applied by a previous partial drain.
	ErrDuplicateNaturalKey = errors.New("duplicate natural key")

	// ErrDuplicateInvoiceNumber is returned when an invoice number is reused
	// for the same product.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")

	// ErrStatisticNotFound is returned when an operation references a
	// (farm, date, product) with no statistic record.
	ErrStatisticNotFound = errors.New("statistic not found")

	// ErrInvoiceNotFound is returned when an invoice id does not exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrRemoteUnavailable is the transient kind: the remote store could not
	// be reached or timed out. The only error kind recovered automatically.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrSchemaRejected means the remote store rejected the payload shape.
	// Indicates a core/remote contract mismatch; propagated verbatim.
	ErrSchemaRejected = errors.New("remote rejected payload schema")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports both shortfalls of a failed conversion:
// how much the requested product was short, and how much the lender was
// short of covering that deficit (zero when no lender exists).
type InsufficientStockError struct {
	Product         ProductID
	Requested       int64
	Available       int64
	Lender          ProductID // empty when no lender product exists
	Deficit         int64     // cartons the lender was asked to cover
	LenderAvailable int64
}

func (e *InsufficientStockError) Error() string {
	if e.Lender == "" {
		return fmt.Sprintf("insufficient stock for %s: requested %d, available %d, no lender product",
			e.Product, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d; lender %s has %d of %d needed",
		e.Product, e.Requested, e.Available, e.Lender, e.LenderAvailable, e.Deficit)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DependentUsageError reports why a statistic cannot be deleted.
type DependentUsageError struct {
	Farm    FarmID
	Date    DateKey
	Product ProductID
	Usage   int64
}

func (e *DependentUsageError) Error() string {
	return fmt.Sprintf("statistic %s/%s/%s has %d cartons of recorded usage; remove invoices first",
		e.Farm, e.Date, e.Product, e.Usage)
}

func (e *DependentUsageError) Unwrap() error { return ErrDependentUsage }

// NetworkError wraps a transport failure. The reconciliation service converts
// it into a queued mutation rather than a caller-visible failure.
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Cause)
}

func (e *NetworkError) Unwrap() error { return ErrRemoteUnavailable }

// SchemaError wraps a remote payload-shape rejection.
type SchemaError struct {
	Op     string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema mismatch during %s: %s", e.Op, e.Detail)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaRejected }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsValidation reports whether the error is a guard rejection that must be
// surfaced to the caller and never queued.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDependentUsage) ||
		errors.Is(err, ErrDuplicateInvoiceNumber) ||
		errors.Is(err, ErrStatisticNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsNetwork reports whether the error is transient connectivity failure.
func IsNetwork(err error) bool { return errors.Is(err, ErrRemoteUnavailable) }

// IsConflict reports whether the error is a natural-key collision.
func IsConflict(err error) bool { return errors.Is(err, ErrDuplicateNaturalKey) }

// IsSchema reports whether the error is a fatal contract mismatch.
func IsSchema(err error) bool { return errors.Is(err, ErrSchemaRejected) }
