package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// UserRepo implements storage.UserRepository using PostgreSQL.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new PostgreSQL user repository.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, wallet_address, first_connected_at, last_connected_at, created_at,
	total_deposits, total_borrows`

// Upsert relies on the unique wallet_address constraint, so concurrent
// first connections resolve to a single row.
func (r *UserRepo) Upsert(ctx context.Context, address string, at time.Time) (*domain.User, bool, error) {
	query := `
		INSERT INTO users (wallet_address, first_connected_at, last_connected_at, created_at)
		VALUES ($1, $2, $2, $2)
		ON CONFLICT (wallet_address) DO UPDATE SET
			last_connected_at = EXCLUDED.last_connected_at
		RETURNING ` + userColumns + `, (xmax = 0) AS created
	`
	var row struct {
		userRow
		Created bool `db:"created"`
	}
	if err := r.db.GetContext(ctx, &row, query, address, at); err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", mapError(err))
	}
	return row.userRow.toDomain(), row.Created, nil
}

// GetByAddress retrieves a user by wallet address.
func (r *UserRepo) GetByAddress(ctx context.Context, address string) (*domain.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet_address = $1`
	if err := r.db.GetContext(ctx, &row, query, address); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", mapError(err))
	}
	return row.toDomain(), nil
}

// Count returns the number of users.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
