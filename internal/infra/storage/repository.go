package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/optionvault/internal/core/domain"
)

var (
	// ErrNotFound is returned when a row doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTx is returned when a row for the transaction hash already exists
	ErrDuplicateTx = errors.New("transaction already recorded")

	// ErrStaleStatus is returned when a conditional status update finds the
	// row in a different status than expected
	ErrStaleStatus = errors.New("status changed concurrently")
)

// UserRepository handles wallet users
type UserRepository interface {
	// Upsert creates the user on first sight, otherwise updates last_connected_at.
	// created reports whether a new row was inserted.
	Upsert(ctx context.Context, address string, at time.Time) (user *domain.User, created bool, err error)

	// GetByAddress retrieves a user by wallet address
	GetByAddress(ctx context.Context, address string) (*domain.User, error)

	// Count returns the number of users
	Count(ctx context.Context) (int, error)
}

// LedgerRepository handles deposit and withdrawal rows
type LedgerRepository interface {
	// Record stores an entry and applies it to the user's vault collateral and
	// totals in one atomic step. Fills in ID, Seq and CreatedAt.
	Record(ctx context.Context, entry *domain.LedgerEntry) error

	// GetByTxHash retrieves an entry by kind and transaction hash
	GetByTxHash(ctx context.Context, kind domain.EntryKind, txHash string) (*domain.LedgerEntry, error)

	// ListConfirmed returns every confirmed entry of a kind
	ListConfirmed(ctx context.Context, kind domain.EntryKind) ([]*domain.LedgerEntry, error)

	// ListByUser returns all entries of both kinds for a user
	ListByUser(ctx context.Context, userID int64) ([]*domain.LedgerEntry, error)
}

// OptionRepository handles option rows
type OptionRepository interface {
	// Create inserts an option. Fills in ID and CreatedAt.
	Create(ctx context.Context, option *domain.Option) error

	// Get retrieves an option by id
	Get(ctx context.Context, id int64) (*domain.Option, error)

	// GetByTxHash retrieves an option by the hash of its creating transaction
	GetByTxHash(ctx context.Context, txHash string) (*domain.Option, error)

	// UpdateStatus moves an option from one status to another. Returns
	// ErrStaleStatus if the row is not in status from.
	UpdateStatus(
		ctx context.Context,
		id int64,
		from, to domain.OptionStatus,
		txHash string,
	) error

	// List returns options matching the filter, newest first
	List(ctx context.Context, filter domain.OptionFilter) ([]*domain.Option, error)
}

// VaultRepository handles vault rows
type VaultRepository interface {
	// GetByUser retrieves the vault owned by a user
	GetByUser(ctx context.Context, userID int64) (*domain.Vault, error)

	// EnsureForUser returns the user's vault, creating an empty one if needed
	EnsureForUser(ctx context.Context, userID int64, token string) (*domain.Vault, error)
}

// LoanRepository handles loans taken against vaults
type LoanRepository interface {
	ListByVault(ctx context.Context, vaultID int64) ([]*domain.Loan, error)
}

// LiquidationRepository handles liquidation events
type LiquidationRepository interface {
	ListByVault(ctx context.Context, vaultID int64) ([]*domain.LiquidationEvent, error)
}

// Store groups the repositories a ledger needs.
type Store struct {
	Users        UserRepository
	Ledger       LedgerRepository
	Options      OptionRepository
	Vaults       VaultRepository
	Loans        LoanRepository
	Liquidations LiquidationRepository
}

// PendingWriteQueue holds ledger writes whose transactions confirmed but
// whose first write failed.
type PendingWriteQueue interface {
	// Add inserts a write or replaces the one with the same ID
	Add(ctx context.Context, w *domain.PendingWrite) error

	// List returns queued writes, fewest attempts first
	List(ctx context.Context) ([]*domain.PendingWrite, error)

	// Resolve removes a write from the queue
	Resolve(ctx context.Context, id string) error

	// Count returns the queue depth
	Count(ctx context.Context) (int, error)
}
