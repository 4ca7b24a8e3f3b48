/*
invoice.go - Sales and conversion documents

PURPOSE:
  An InvoiceRecord is one sales document. Most invoices deduct from a single
  product. A converted (split-item) invoice covers part of the sale by
  borrowing cartons from a sibling-category lender product on the same farm
  and day; one document then deducts from two products at once.

INVARIANTS:
  0 <= ConvertedAmount <= TotalCartons
  IsConverted => SourceProduct names a product whose statistic record for the
  same (farm, date) covered the deficit at creation time.

DEDUP KEY:
  (Number, Product) identifies an invoice for display-time dedup against
  queued offline mutations.

SEE ALSO:
  - attribution.go: how an invoice's deduction is split across products
  - reconcile.go: conversion policy and downstream recompute
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INVOICE RECORD
// =============================================================================

// InvoiceDedupKey identifies an invoice for display-time deduplication.
type InvoiceDedupKey struct {
	Number  string
	Product ProductID
}

type InvoiceRecord struct {
	ID      InvoiceID
	Number  string
	Farm    FarmID
	Date    DateKey
	Product ProductID // product actually being sold

	TotalCartons int64
	TotalWeight  decimal.Decimal

	// Conversion fields. ConvertedAmount is the carton count borrowed from
	// SourceProduct; zero on plain invoices.
	IsConverted     bool
	SourceProduct   ProductID
	ConvertedAmount int64

	// Opaque to the core.
	Driver      string
	Plate       string
	Description string

	Creator   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r InvoiceRecord) DedupKey() InvoiceDedupKey {
	return InvoiceDedupKey{Number: r.Number, Product: r.Product}
}

// DirectCartons is the portion of the sale not covered by borrowing.
func (r InvoiceRecord) DirectCartons() int64 {
	return r.TotalCartons - r.ConvertedAmount
}

// =============================================================================
// INVOICE LEDGER - CRUD contract
// =============================================================================

// InvoiceLedger stores sales documents. Implementations enforce invoice
// number uniqueness per product: reusing a number for the same product
// fails with ErrDuplicateInvoiceNumber.
type InvoiceLedger interface {
	// Insert adds an invoice.
	Insert(ctx context.Context, rec InvoiceRecord) error

	// Update replaces the invoice with the given id.
	Update(ctx context.Context, rec InvoiceRecord) error

	// Delete removes the invoice with the given id.
	Delete(ctx context.Context, id InvoiceID) error

	// Get returns the invoice with the given id, or ErrInvoiceNotFound.
	Get(ctx context.Context, id InvoiceID) (InvoiceRecord, error)

	// ListDay returns every invoice for one farm and day, in creation order.
	ListDay(ctx context.Context, farm FarmID, date DateKey) ([]InvoiceRecord, error)
}
