package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/tokoku/commerce/internal/domain/product"
)

const (
	listVariantsSQL = `SELECT v.id, v.product_id, v.sku, v.name, v.price, v.weight_kg,
			v.stock_quantity, v.active, p.active
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		ORDER BY v.id`

	getVariantByIDSQL = `SELECT v.id, v.product_id, v.sku, v.name, v.price, v.weight_kg,
			v.stock_quantity, v.active, p.active
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`

	getVariantsByIDsSQL = `SELECT v.id, v.product_id, v.sku, v.name, v.price, v.weight_kg,
			v.stock_quantity, v.active, p.active
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1)`
)

var _ product.Repository = (*Store)(nil)

// List returns all catalog variants ordered by ID.
func (s *Store) List(ctx context.Context) ([]product.Variant, error) {
	rows, err := s.db.Query(ctx, listVariantsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// GetByID returns a single variant by its identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*product.Variant, error) {
	rows, err := s.db.Query(ctx, getVariantByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// GetByIDs returns variants matching any of the given IDs.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]product.Variant, error) {
	rows, err := s.db.Query(ctx, getVariantsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanVariant(row pgx.CollectableRow) (product.Variant, error) {
	var v product.Variant
	err := row.Scan(
		&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.WeightKg,
		&v.StockQuantity, &v.Active, &v.ProductActive,
	)
	return v, err
}
