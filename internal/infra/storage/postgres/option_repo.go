package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/storage"
)

// OptionRepo implements storage.OptionRepository using PostgreSQL.
type OptionRepo struct {
	db *DB
}

// NewOptionRepo creates a new PostgreSQL option repository.
func NewOptionRepo(db *DB) *OptionRepo {
	return &OptionRepo{db: db}
}

const optionColumns = `id, vault_id, chain_option_id, option_type, strike_price, expiry_block,
	expiry_timestamp, premium, locked_amount, status, tx_hash, create_tx_hash, created_at`

// Create inserts an option row.
func (r *OptionRepo) Create(ctx context.Context, o *domain.Option) error {
	query := `
		INSERT INTO options (
			vault_id, chain_option_id, option_type, strike_price, expiry_block,
			expiry_timestamp, premium, locked_amount, status, tx_hash, create_tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	expiry := sql.NullTime{Time: o.ExpiryTimestamp, Valid: !o.ExpiryTimestamp.IsZero()}
	var chainID sql.NullInt64
	if o.ChainOptionID != nil {
		chainID = sql.NullInt64{Int64: int64(*o.ChainOptionID), Valid: true}
	}
	err := r.db.QueryRowxContext(ctx, query,
		o.VaultID, chainID, string(o.Kind), o.StrikePrice, int64(o.ExpiryBlock),
		expiry, o.Premium, o.LockedAmount, string(o.Status), o.TxHash, o.CreateTxHash,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create option: %w", mapError(err))
	}
	return nil
}

// Get retrieves an option by id.
func (r *OptionRepo) Get(ctx context.Context, id int64) (*domain.Option, error) {
	var row optionRow
	query := `SELECT ` + optionColumns + ` FROM options WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("failed to get option: %w", mapError(err))
	}
	return row.toDomain(), nil
}

// GetByTxHash retrieves an option by the hash of its creating transaction.
func (r *OptionRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.Option, error) {
	var row optionRow
	query := `SELECT ` + optionColumns + ` FROM options WHERE create_tx_hash = $1`
	if err := r.db.GetContext(ctx, &row, query, txHash); err != nil {
		return nil, fmt.Errorf("failed to get option: %w", mapError(err))
	}
	return row.toDomain(), nil
}

// UpdateStatus performs a compare-and-set on the status column. tx_hash
// follows the last action; create_tx_hash never changes.
func (r *OptionRepo) UpdateStatus(
	ctx context.Context,
	id int64,
	from, to domain.OptionStatus,
	txHash string,
) error {
	query := `
		UPDATE options
		SET status = $3, tx_hash = COALESCE(NULLIF($4, ''), tx_hash)
		WHERE id = $1 AND status = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, string(from), string(to), txHash)
	if err != nil {
		return fmt.Errorf("failed to update option status: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update option status: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing row from a lost race.
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM options WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check option: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrStaleStatus
}

// List returns options matching the filter, newest first.
func (r *OptionRepo) List(ctx context.Context, filter domain.OptionFilter) ([]*domain.Option, error) {
	var (
		where []string
		args  []any
	)
	if filter.VaultID != 0 {
		args = append(args, filter.VaultID)
		where = append(where, fmt.Sprintf("vault_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + optionColumns + ` FROM options`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var rows []optionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	out := make([]*domain.Option, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
