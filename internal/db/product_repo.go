package db

import (
	"context"

	"storefront/internal/types"
)

// ProductRepository provides read access to product stock levels.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetAll returns every product with its current stock.
func (r *ProductRepository) GetAll(ctx context.Context) ([]types.Product, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, stock FROM products ORDER BY id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query products", err)
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		var p types.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Stock); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating products", err)
	}
	return products, nil
}
