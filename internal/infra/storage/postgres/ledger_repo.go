package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// LedgerRepo implements storage.LedgerRepository using PostgreSQL. Deposits
// and withdrawals live in separate tables that share the ledger_seq sequence.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new PostgreSQL ledger repository.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func tableFor(kind domain.EntryKind) (string, error) {
	switch kind {
	case domain.EntryKindDeposit:
		return "deposits", nil
	case domain.EntryKindWithdraw:
		return "withdrawals", nil
	default:
		return "", fmt.Errorf("unknown ledger entry kind %q", kind)
	}
}

// Record writes the entry through the create_deposit procedure, which also
// moves vault collateral and user totals in the same transaction.
func (r *LedgerRepo) Record(ctx context.Context, entry *domain.LedgerEntry) error {
	if _, err := tableFor(entry.Kind); err != nil {
		return err
	}

	var out struct {
		ID        int64     `db:"out_id"`
		Seq       int64     `db:"out_seq"`
		CreatedAt time.Time `db:"out_created_at"`
	}
	query := `SELECT out_id, out_seq, out_created_at FROM create_deposit($1, $2, $3, $4, $5, $6)`
	err := r.db.GetContext(ctx, &out, query,
		entry.UserID, entry.Amount, entry.TokenAddress, entry.TxHash,
		string(entry.Kind), string(entry.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", entry.Kind, mapError(err))
	}

	entry.ID = out.ID
	entry.Seq = out.Seq
	entry.CreatedAt = out.CreatedAt
	return nil
}

// GetByTxHash retrieves an entry by kind and transaction hash.
func (r *LedgerRepo) GetByTxHash(ctx context.Context, kind domain.EntryKind, txHash string) (*domain.LedgerEntry, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, seq, $1::text AS kind, user_id, token_address, amount, status, tx_hash, created_at
		FROM %s WHERE tx_hash = $2
	`, table)

	var row entryRow
	if err := r.db.GetContext(ctx, &row, query, string(kind), txHash); err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, mapError(err))
	}
	return row.toDomain(), nil
}

// ListConfirmed returns every confirmed entry of a kind.
func (r *LedgerRepo) ListConfirmed(ctx context.Context, kind domain.EntryKind) ([]*domain.LedgerEntry, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, seq, $1::text AS kind, user_id, token_address, amount, status, tx_hash, created_at
		FROM %s WHERE status = $2
		ORDER BY seq
	`, table)

	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, query, string(kind), string(kind.ConfirmedStatus())); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	return toEntries(rows), nil
}

// ListByUser returns deposits and withdrawals of a user, newest first.
func (r *LedgerRepo) ListByUser(ctx context.Context, userID int64) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, seq, 'deposit' AS kind, user_id, token_address, amount, status, tx_hash, created_at
		FROM deposits WHERE user_id = $1
		UNION ALL
		SELECT id, seq, 'withdraw' AS kind, user_id, token_address, amount, status, tx_hash, created_at
		FROM withdrawals WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
	`
	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user ledger: %w", err)
	}
	return toEntries(rows), nil
}

func toEntries(rows []entryRow) []*domain.LedgerEntry {
	out := make([]*domain.LedgerEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out
}
