package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested variant does not exist.
var ErrNotFound = errors.New("product variant not found")

// Variant is a purchasable product variant. The catalog owns the descriptive
// fields; the inventory ledger only ever mutates StockQuantity.
type Variant struct {
	ID            string
	ProductID     string
	SKU           string
	Name          string
	Price         decimal.Decimal
	WeightKg      decimal.Decimal
	StockQuantity int
	Active        bool
	// ProductActive mirrors the parent product's active flag; a variant is
	// sellable only when both are true.
	ProductActive bool
}

// Sellable reports whether the variant can currently be ordered.
func (v Variant) Sellable() bool {
	return v.Active && v.ProductActive
}

// Repository defines read operations for the variant catalog.
type Repository interface {
	List(ctx context.Context) ([]Variant, error)
	GetByID(ctx context.Context, id string) (*Variant, error)
	GetByIDs(ctx context.Context, ids []string) ([]Variant, error)
}
