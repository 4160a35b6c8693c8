package db

import (
	"context"

	"storefront/internal/types"
)

// WishlistRepository resolves the users who saved a product.
type WishlistRepository struct {
	db DBTX
}

// NewWishlistRepository creates a new WishlistRepository.
func NewWishlistRepository(db DBTX) *WishlistRepository {
	return &WishlistRepository{db: db}
}

// GetUsersWithProductInWishlist returns the users whose wishlist contains
// productID. Each user appears once even if the row is duplicated.
func (r *WishlistRepository) GetUsersWithProductInWishlist(ctx context.Context, productID int64) ([]types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT u.id, u.email, u.name, u.is_admin
		 FROM wishlists w
		 JOIN users u ON u.id = w.user_id
		 WHERE w.product_id = $1
		 ORDER BY u.id`,
		productID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query wishlist users", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan wishlist user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating wishlist users", err)
	}
	return users, nil
}
