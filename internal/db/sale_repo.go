package db

import (
	"context"
	"fmt"

	"storefront/internal/types"
)

const saleColumns = `id, name, discount_percent, start_date, end_date, status, is_active`

// SaleRepository provides access to the sales table for the sale
// lifecycle advancer.
type SaleRepository struct {
	db DBTX
}

// NewSaleRepository creates a new SaleRepository backed by the given
// database connection (pool or transaction).
func NewSaleRepository(db DBTX) *SaleRepository {
	return &SaleRepository{db: db}
}

// GetAll returns every sale in id order.
func (r *SaleRepository) GetAll(ctx context.Context) ([]types.Sale, error) {
	return r.list(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY id`)
}

// GetActive returns the sales whose status is ACTIVE.
func (r *SaleRepository) GetActive(ctx context.Context) ([]types.Sale, error) {
	return r.list(ctx, `SELECT `+saleColumns+` FROM sales WHERE status = 'ACTIVE' ORDER BY id`)
}

func (r *SaleRepository) list(ctx context.Context, query string) ([]types.Sale, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query sales", err)
	}
	defer rows.Close()

	var sales []types.Sale
	for rows.Next() {
		var (
			s      types.Sale
			status *string
		)
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.DiscountPercent,
			&s.StartDate,
			&s.EndDate,
			&status,
			&s.IsActive,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sale", err)
		}
		if status != nil {
			s.Status = types.SaleStatus(*status)
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating sales", err)
	}

	return sales, nil
}

// UpdateStatus sets the status of one sale and keeps is_active in sync
// with it in the same statement.
func (r *SaleRepository) UpdateStatus(ctx context.Context, saleID int64, status types.SaleStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sales SET status = $2, is_active = $3 WHERE id = $1`,
		saleID,
		string(status),
		status == types.SaleActive,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update sale status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSale, fmt.Sprintf("sale %d not found", saleID), nil)
	}
	return nil
}
