package db

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/types"
)

// OrderRepository provides access to the orders table for the order
// lifecycle advancer. Each update is a single-row statement, which makes it
// the unit of atomicity for one order.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository backed by the given
// database connection (pool or transaction).
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetAll returns every order in id order. order_date, delivery_estimate
// and status are nullable; missing values surface as nil pointers or an
// empty status so the advancer can skip the row.
func (r *OrderRepository) GetAll(ctx context.Context) ([]types.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, order_date, delivery_estimate, status, total_amount, address_id
		 FROM orders
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query orders", err)
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		var (
			o      types.Order
			status *string
		)
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.OrderDate,
			&o.DeliveryEstimate,
			&status,
			&o.TotalAmount,
			&o.AddressID,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan order", err)
		}
		if status != nil {
			o.Status = types.OrderStatus(*status)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating orders", err)
	}

	return orders, nil
}

// UpdateStatus sets the status of one order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID int64, status types.OrderStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		orderID,
		string(status),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder, fmt.Sprintf("order %d not found", orderID), nil)
	}
	return nil
}

// UpdateDeliveryEstimate stores the delivery estimate of one order.
func (r *OrderRepository) UpdateDeliveryEstimate(ctx context.Context, orderID int64, estimate time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET delivery_estimate = $2 WHERE id = $1`,
		orderID,
		estimate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update delivery estimate", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder, fmt.Sprintf("order %d not found", orderID), nil)
	}
	return nil
}
