package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// VaultRepo implements storage.VaultRepository using PostgreSQL.
type VaultRepo struct {
	db *DB
}

// NewVaultRepo creates a new PostgreSQL vault repository.
func NewVaultRepo(db *DB) *VaultRepo {
	return &VaultRepo{db: db}
}

const vaultColumns = `id, user_id, strategy_type, collateral_amount, collateral_token,
	premium_earned, status, tx_hash, created_at, updated_at`

// GetByUser retrieves the vault owned by a user.
func (r *VaultRepo) GetByUser(ctx context.Context, userID int64) (*domain.Vault, error) {
	var row vaultRow
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get vault: %w", mapError(err))
	}
	return row.toDomain(), nil
}

// EnsureForUser returns the user's vault, creating it if needed.
func (r *VaultRepo) EnsureForUser(ctx context.Context, userID int64, token string) (*domain.Vault, error) {
	var row vaultRow
	err := r.db.InTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vaults (user_id, collateral_token)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, token)
		if err != nil {
			return mapError(err)
		}
		return tx.GetContext(ctx, &row, `SELECT `+vaultColumns+` FROM vaults WHERE user_id = $1`, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure vault: %w", mapError(err))
	}
	return row.toDomain(), nil
}

// LoanRepo implements storage.LoanRepository using PostgreSQL.
type LoanRepo struct {
	db *DB
}

// NewLoanRepo creates a new PostgreSQL loan repository.
func NewLoanRepo(db *DB) *LoanRepo {
	return &LoanRepo{db: db}
}

// ListByVault returns loans taken against a vault.
func (r *LoanRepo) ListByVault(ctx context.Context, vaultID int64) ([]*domain.Loan, error) {
	var rows []loanRow
	query := `
		SELECT id, vault_id, amount, interest_rate, start_timestamp, end_timestamp, status, tx_hash, created_at
		FROM loans WHERE vault_id = $1 ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &rows, query, vaultID); err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	out := make([]*domain.Loan, len(rows))
	for i, row := range rows {
		out[i] = &domain.Loan{
			ID:             row.ID,
			VaultID:        row.VaultID,
			Amount:         row.Amount,
			InterestRate:   row.InterestRate,
			StartTimestamp: row.StartTimestamp,
			EndTimestamp:   row.EndTimestamp,
			Status:         domain.LoanStatus(row.Status),
			TxHash:         row.TxHash,
			CreatedAt:      row.CreatedAt,
		}
	}
	return out, nil
}

// LiquidationRepo implements storage.LiquidationRepository using PostgreSQL.
type LiquidationRepo struct {
	db *DB
}

// NewLiquidationRepo creates a new PostgreSQL liquidation repository.
func NewLiquidationRepo(db *DB) *LiquidationRepo {
	return &LiquidationRepo{db: db}
}

// ListByVault returns liquidation events of a vault.
func (r *LiquidationRepo) ListByVault(ctx context.Context, vaultID int64) ([]*domain.LiquidationEvent, error) {
	var rows []liquidationRow
	query := `
		SELECT id, vault_id, loan_id, liquidation_price, liquidation_amount, liquidator_address, tx_hash, created_at
		FROM liquidation_events WHERE vault_id = $1 ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &rows, query, vaultID); err != nil {
		return nil, fmt.Errorf("failed to list liquidations: %w", err)
	}
	out := make([]*domain.LiquidationEvent, len(rows))
	for i, row := range rows {
		out[i] = &domain.LiquidationEvent{
			ID:                row.ID,
			VaultID:           row.VaultID,
			LoanID:            row.LoanID,
			LiquidationPrice:  row.LiquidationPrice,
			LiquidationAmount: row.LiquidationAmount,
			LiquidatorAddress: row.LiquidatorAddress,
			TxHash:            row.TxHash,
			CreatedAt:         row.CreatedAt,
		}
	}
	return out, nil
}
