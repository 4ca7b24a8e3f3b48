package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/coopstack/farm-ledger/ledger"
)

func TestAttributeUsage_EmptyDayIsZero(t *testing.T) {
	usage := ledger.AttributeUsage(nil, "carton-simple")
	assert.True(t, usage.IsZero())
}

func TestAttributeUsage_PlainInvoiceDeductsNominalProduct(t *testing.T) {
	day := []ledger.InvoiceRecord{{
		Number:       "INV-1",
		Product:      "carton-simple",
		TotalCartons: 4,
		TotalWeight:  decimal.NewFromInt(40),
	}}

	usage := ledger.AttributeUsage(day, "carton-simple")
	assert.EqualValues(t, 4, usage.Units)
	assert.True(t, usage.Weight.Equal(decimal.NewFromInt(40)), "weight %s", usage.Weight)

	// The other product is untouched.
	assert.True(t, ledger.AttributeUsage(day, "carton-print").IsZero())
}

func TestAttributeUsage_ConvertedInvoiceSplitsBothSides(t *testing.T) {
	// GIVEN: An 8-carton sale of the simple carton borrowing 3 from the
	//        printable lender, 80kg total
	// WHEN: Attributing usage for each side
	// THEN: Simple loses 5 cartons / 50kg, printable loses 3 cartons / 30kg

	day := []ledger.InvoiceRecord{{
		Number:          "INV-8",
		Product:         "carton-simple",
		TotalCartons:    8,
		TotalWeight:     decimal.NewFromInt(80),
		IsConverted:     true,
		SourceProduct:   "carton-print",
		ConvertedAmount: 3,
	}}

	direct := ledger.AttributeUsage(day, "carton-simple")
	assert.EqualValues(t, 5, direct.Units)
	assert.True(t, direct.Weight.Equal(decimal.NewFromInt(50)), "weight %s", direct.Weight)

	borrowed := ledger.AttributeUsage(day, "carton-print")
	assert.EqualValues(t, 3, borrowed.Units)
	assert.True(t, borrowed.Weight.Equal(decimal.NewFromInt(30)), "weight %s", borrowed.Weight)

	// No carton is counted twice: the two sides sum to the invoice total.
	assert.EqualValues(t, 8, direct.Units+borrowed.Units)
}

func TestAttributeUsage_SumsAcrossInvoices(t *testing.T) {
	day := []ledger.InvoiceRecord{
		{Number: "INV-1", Product: "carton-simple", TotalCartons: 2, TotalWeight: decimal.NewFromInt(20)},
		{Number: "INV-2", Product: "carton-print", TotalCartons: 6, TotalWeight: decimal.NewFromInt(60),
			IsConverted: true, SourceProduct: "carton-simple", ConvertedAmount: 1},
	}

	usage := ledger.AttributeUsage(day, "carton-simple")
	assert.EqualValues(t, 3, usage.Units)
	assert.True(t, usage.Weight.Equal(decimal.NewFromInt(30)), "weight %s", usage.Weight)
}

func TestAttributeUsage_ZeroCartonInvoiceCarriesNoWeight(t *testing.T) {
	day := []ledger.InvoiceRecord{{
		Number:      "INV-0",
		Product:     "carton-simple",
		TotalWeight: decimal.NewFromInt(15),
	}}

	usage := ledger.AttributeUsage(day, "carton-simple")
	assert.Zero(t, usage.Units)
	assert.True(t, usage.Weight.IsZero())
}
