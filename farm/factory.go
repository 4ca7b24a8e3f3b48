/*
factory.go - JSON to registry conversion

PURPOSE:
  Converts JSON master-data definitions into a Registry. Cooperatives
  maintain their farm and product lists as configuration, not code; the
  factory validates the JSON and builds the proper Go structs.

JSON SCHEMA:
  {
    "products": [
      {"id": "carton-simple", "name": "Simple carton", "category": "simple"},
      {"id": "carton-print", "name": "Printed carton", "category": "printable"}
    ],
    "farms": [
      {
        "id": "farm-7",
        "name": "Hilltop",
        "mode": "declared_stock",
        "products": ["carton-simple", "carton-print"]
      }
    ]
  }

KEY FEATURES:
  - Validates category and mode strings
  - Rejects farms referencing unregistered products
  - Sets sensible defaults (mode defaults to carry_forward)

SEE ALSO:
  - registry.go: the Registry the factory builds
*/
package farm

import (
	"encoding/json"
	"fmt"

	"github.com/coopstack/farm-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RegistryJSON is the JSON representation of the full master data set.
type RegistryJSON struct {
	Products []ProductJSON `json:"products"`
	Farms    []FarmJSON    `json:"farms"`
}

// ProductJSON represents one product definition.
type ProductJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`        // simple, printable, other
	Lender   string `json:"lender,omitempty"` // explicit override
}

// FarmJSON represents one farm definition.
type FarmJSON struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Mode     string   `json:"mode,omitempty"` // carry_forward, declared_stock
	Products []string `json:"products"`
}

// =============================================================================
// FACTORY
// =============================================================================

// ParseRegistry parses a JSON document into a ready-to-use Registry.
func ParseRegistry(jsonStr string) (*Registry, error) {
	var rj RegistryJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse registry JSON: %w", err)
	}
	return FromJSON(rj)
}

// FromJSON converts RegistryJSON to a Registry.
func FromJSON(rj RegistryJSON) (*Registry, error) {
	reg := NewRegistry()

	for _, pj := range rj.Products {
		if pj.ID == "" {
			return nil, fmt.Errorf("product with empty id")
		}
		cat, err := parseCategory(pj.Category)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", pj.ID, err)
		}
		reg.AddProduct(Product{
			ID:       ledger.ProductID(pj.ID),
			Name:     pj.Name,
			Category: cat,
			Lender:   ledger.ProductID(pj.Lender),
		})
	}

	for _, fj := range rj.Farms {
		if fj.ID == "" {
			return nil, fmt.Errorf("farm with empty id")
		}
		mode, err := parseMode(fj.Mode)
		if err != nil {
			return nil, fmt.Errorf("farm %s: %w", fj.ID, err)
		}
		products := make([]ledger.ProductID, 0, len(fj.Products))
		for _, id := range fj.Products {
			if _, err := reg.Product(ledger.ProductID(id)); err != nil {
				return nil, fmt.Errorf("farm %s references %w", fj.ID, err)
			}
			products = append(products, ledger.ProductID(id))
		}
		reg.AddFarm(Farm{
			ID:       ledger.FarmID(fj.ID),
			Name:     fj.Name,
			Mode:     mode,
			Products: products,
		})
	}

	return reg, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseCategory(s string) (ledger.ProductCategory, error) {
	switch s {
	case "simple":
		return ledger.CategorySimple, nil
	case "printable":
		return ledger.CategoryPrintable, nil
	case "other", "":
		return ledger.CategoryOther, nil
	default:
		return ledger.CategoryOther, fmt.Errorf("unknown category %q", s)
	}
}

func parseMode(s string) (ledger.FarmMode, error) {
	switch s {
	case "declared_stock":
		return ledger.ModeDeclaredStock, nil
	case "carry_forward", "":
		return ledger.ModeCarryForward, nil
	default:
		return ledger.ModeCarryForward, fmt.Errorf("unknown mode %q", s)
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardCartonPair returns the two-product catalog most cooperatives run:
// a simple carton and a printable carton that lend stock to each other.
func StandardCartonPair() []Product {
	return []Product{
		{ID: "carton-simple", Name: "Simple carton", Category: ledger.CategorySimple},
		{ID: "carton-print", Name: "Printed carton", Category: ledger.CategoryPrintable},
	}
}
