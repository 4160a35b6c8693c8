package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storefront/internal/types"
)

// UserRepository provides read access to the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, is_admin`

// scanUser scans a single user row. name is nullable.
func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u    types.User
		name *string
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &u.IsAdmin); err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = *name
	}
	return &u, nil
}

// GetByID returns a single user. A missing user yields a not_found_user
// error so callers can tell it apart from a database failure.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		userID,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, fmt.Sprintf("user %d not found", userID), nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return u, nil
}

// GetAdmins returns every administrator.
func (r *UserRepository) GetAdmins(ctx context.Context) ([]types.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE is_admin ORDER BY id`)
}

// GetAll returns every user. Used for all-audience broadcasts.
func (r *UserRepository) GetAll(ctx context.Context) ([]types.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]types.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query users", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating users", err)
	}
	return users, nil
}
