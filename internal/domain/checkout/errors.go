package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for checkout validation. All validation failures happen
// before any mutation: no order, line item, or stock change exists afterward.
var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrInvalidAddress = errors.New("delivery address is required and must be resolvable")
)

// UnknownVariantError indicates a requested variant does not exist in the
// catalog.
type UnknownVariantError struct {
	VariantID string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("variant %s not found", e.VariantID)
}

// InactiveProductError indicates the variant or its parent product is not
// currently sellable.
type InactiveProductError struct {
	VariantID string
}

func (e *InactiveProductError) Error() string {
	return fmt.Sprintf("variant %s is not available for sale", e.VariantID)
}

// InvalidQuantityError indicates a line has a non-positive quantity.
type InvalidQuantityError struct {
	VariantID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for variant %s", e.VariantID)
}

// OutOfStockError indicates a line failed its stock check inside the checkout
// transaction. The whole checkout rolls back; no partial order is created.
type OutOfStockError struct {
	VariantID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("variant %s is out of stock", e.VariantID)
}
