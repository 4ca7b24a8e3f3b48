/*
registry.go - Farm and product registry

PURPOSE:
  Holds the master data the reconciliation service consults on every write:
  which products exist, what category each belongs to, which sibling product
  may lend stock during a conversion, and how each farm reports stock.

  The registry implements both ledger.Catalog and ledger.FarmModes, so a
  single instance wires the whole service.

LENDER RESOLUTION:
  1. An explicit Lender on the product wins, provided it is assigned to the
     same farm.
  2. Otherwise the first product of the sibling category assigned to the
     farm, in registration order.
  3. Products outside the Simple/Printable pair never borrow.

SEE ALSO:
  - factory.go: JSON-based registry construction
  - ledger/reconcile.go: the consumer of these lookups
*/
package farm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coopstack/farm-ledger/ledger"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownProduct means the product id is not registered.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrUnknownFarm means the farm id is not registered.
	ErrUnknownFarm = errors.New("unknown farm")
)

// =============================================================================
// MASTER DATA TYPES
// =============================================================================

// Product is a carton product sold by the cooperative's farms.
type Product struct {
	ID       ledger.ProductID
	Name     string
	Category ledger.ProductCategory

	// Lender pins the borrowing source explicitly. When empty, the lender
	// is resolved by sibling category.
	Lender ledger.ProductID
}

// Farm is a member farm and its reporting configuration.
type Farm struct {
	ID   ledger.FarmID
	Name string
	Mode ledger.FarmMode

	// Products assigned to this farm, in registration order. Lender
	// resolution scans this list.
	Products []ledger.ProductID
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the in-memory master data store. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	products map[ledger.ProductID]Product
	farms    map[ledger.FarmID]*Farm
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		products: make(map[ledger.ProductID]Product),
		farms:    make(map[ledger.FarmID]*Farm),
	}
}

// AddProduct registers or replaces a product definition.
func (r *Registry) AddProduct(p Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

// AddFarm registers or replaces a farm and its product assignment.
func (r *Registry) AddFarm(f Farm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := f
	cp.Products = append([]ledger.ProductID(nil), f.Products...)
	r.farms[f.ID] = &cp
}

// Product returns a registered product definition.
func (r *Registry) Product(id ledger.ProductID) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", id, ErrUnknownProduct)
	}
	return p, nil
}

// Farm returns a registered farm definition.
func (r *Registry) Farm(id ledger.FarmID) (Farm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.farms[id]
	if !ok {
		return Farm{}, fmt.Errorf("farm %s: %w", id, ErrUnknownFarm)
	}
	cp := *f
	cp.Products = append([]ledger.ProductID(nil), f.Products...)
	return cp, nil
}

// Farms lists all registered farms.
func (r *Registry) Farms() []Farm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Farm, 0, len(r.farms))
	for _, f := range r.farms {
		cp := *f
		cp.Products = append([]ledger.ProductID(nil), f.Products...)
		out = append(out, cp)
	}
	return out
}

// =============================================================================
// ledger.Catalog
// =============================================================================

// Category implements ledger.Catalog.
func (r *Registry) Category(ctx context.Context, id ledger.ProductID) (ledger.ProductCategory, error) {
	p, err := r.Product(id)
	if err != nil {
		return ledger.CategoryOther, err
	}
	return p.Category, nil
}

// Lender implements ledger.Catalog. It returns the single product allowed
// to cover a shortfall for the given product on the given farm.
func (r *Registry) Lender(ctx context.Context, farm ledger.FarmID, product ledger.ProductID) (ledger.ProductID, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[product]
	if !ok {
		return "", false, fmt.Errorf("product %s: %w", product, ErrUnknownProduct)
	}
	f, ok := r.farms[farm]
	if !ok {
		return "", false, fmt.Errorf("farm %s: %w", farm, ErrUnknownFarm)
	}

	sibling, canBorrow := p.Category.Sibling()
	if !canBorrow {
		return "", false, nil
	}

	// Explicit lender wins when assigned to the farm.
	if p.Lender != "" {
		for _, id := range f.Products {
			if id == p.Lender {
				return p.Lender, true, nil
			}
		}
		return "", false, nil
	}

	for _, id := range f.Products {
		if id == product {
			continue
		}
		candidate, ok := r.products[id]
		if !ok {
			continue
		}
		if candidate.Category == sibling {
			return id, true, nil
		}
	}
	return "", false, nil
}

// =============================================================================
// ledger.FarmModes
// =============================================================================

// Mode implements ledger.FarmModes.
func (r *Registry) Mode(ctx context.Context, farm ledger.FarmID) (ledger.FarmMode, error) {
	f, err := r.Farm(farm)
	if err != nil {
		return ledger.ModeCarryForward, err
	}
	return f.Mode, nil
}
