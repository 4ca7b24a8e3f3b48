/*
attribution.go - Usage attribution across direct and borrowed stock

PURPOSE:
  Computes how many cartons (and how much weight) one product physically
  lost to a day's invoices. A converted invoice deducts from two products
  at once: the nominal product loses total - converted, and the source
  product loses the converted cartons. Summing invoices by product id alone
  would double-count or undercount borrowed stock, so attribution looks at
  both sides of every invoice.

CONTRACT:
  Pure function. No error states; an empty invoice list yields zero usage.
  Weight is prorated by carton fraction and is zero when an invoice's carton
  total is zero.
*/
package ledger

import "github.com/shopspring/decimal"

// Usage is the physical deduction attributed to one product for one day.
type Usage struct {
	Units  int64
	Weight decimal.Decimal
}

func (u Usage) IsZero() bool { return u.Units == 0 && u.Weight.IsZero() }

// AttributeUsage computes target's attributed usage over one farm-day's
// invoices.
//
// For each invoice:
//   - sold as target: direct usage is TotalCartons - ConvertedAmount, the
//     portion not covered by borrowing
//   - borrowed from target: lender usage is ConvertedAmount
//
// Both contributions carry a weight share of (cartons/total) * TotalWeight.
func AttributeUsage(invoices []InvoiceRecord, target ProductID) Usage {
	usage := Usage{Weight: decimal.Zero}

	for _, inv := range invoices {
		if inv.Product == target {
			direct := inv.TotalCartons - inv.ConvertedAmount
			usage.Units += direct
			usage.Weight = usage.Weight.Add(weightShare(inv, direct))
		}
		if inv.IsConverted && inv.SourceProduct == target {
			usage.Units += inv.ConvertedAmount
			usage.Weight = usage.Weight.Add(weightShare(inv, inv.ConvertedAmount))
		}
	}
	return usage
}

// weightShare prorates an invoice's weight by carton fraction.
func weightShare(inv InvoiceRecord, cartons int64) decimal.Decimal {
	if inv.TotalCartons == 0 {
		return decimal.Zero
	}
	return inv.TotalWeight.
		Mul(decimal.NewFromInt(cartons)).
		Div(decimal.NewFromInt(inv.TotalCartons))
}
