package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"storefront/internal/types"
)

// CooldownRepository keeps the low-stock alert ledger in the
// product_alert_cooldowns table, so every process and every Lambda container
// sees the same cooldowns.
type CooldownRepository struct {
	db DBTX
}

// NewCooldownRepository creates a new CooldownRepository.
func NewCooldownRepository(db DBTX) *CooldownRepository {
	return &CooldownRepository{db: db}
}

// LastNotified returns the last alert time for productID and whether one
// exists.
func (r *CooldownRepository) LastNotified(ctx context.Context, productID int64) (time.Time, bool, error) {
	var at time.Time
	err := r.db.QueryRow(ctx,
		`SELECT notified_at FROM product_alert_cooldowns WHERE product_id = $1`,
		productID,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to read cooldown", err)
	}
	return at, true, nil
}

// RecordNotified upserts at as the last alert time for productID.
func (r *CooldownRepository) RecordNotified(ctx context.Context, productID int64, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO product_alert_cooldowns (product_id, notified_at)
		 VALUES ($1, $2)
		 ON CONFLICT (product_id) DO UPDATE SET notified_at = EXCLUDED.notified_at`,
		productID,
		at.UTC(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to record cooldown", err)
	}
	return nil
}

// Prune deletes cooldowns that ended before now and reports how many went.
func (r *CooldownRepository) Prune(ctx context.Context, now time.Time, window time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM product_alert_cooldowns WHERE notified_at <= $1`,
		now.Add(-window).UTC(),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalCooldownStore, "failed to prune cooldowns", err)
	}
	return tag.RowsAffected(), nil
}
