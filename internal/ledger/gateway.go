// Package ledger reads and writes the off-chain record of deposits,
// withdrawals and options, and derives the vault statistics from it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/storage"
)

// Gateway is the only path to the ledger store.
type Gateway struct {
	store  storage.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock sets the time source used for last-seen stamps and the
// trailing 24h window.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func NewGateway(store storage.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NormalizeAddress is the canonical form wallet addresses are stored in.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// UpsertUser creates the user on first sight and otherwise only bumps
// last_connected_at.
func (g *Gateway) UpsertUser(ctx context.Context, address string) (*domain.User, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", domain.ErrNotConnected)
	}
	user, created, err := g.store.Users.Upsert(ctx, address, g.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	if created {
		g.logger.Info("New user registered", "address", address, "id", user.ID)
		return user, nil
	}
	g.logger.Debug("User reconnected", "address", address)
	if err := g.countPositions(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// User looks up a user by address.
func (g *Gateway) User(ctx context.Context, address string) (*domain.User, error) {
	user, err := g.store.Users.GetByAddress(ctx, NormalizeAddress(address))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := g.countPositions(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// countPositions sets ActivePositions to the number of active options
// written against the user's vault.
func (g *Gateway) countPositions(ctx context.Context, user *domain.User) error {
	vault, err := g.store.Vaults.GetByUser(ctx, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		user.ActivePositions = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load vault of user %d: %w", user.ID, err)
	}
	active, err := g.store.Options.List(ctx, domain.OptionFilter{
		VaultID:  vault.ID,
		Statuses: []domain.OptionStatus{domain.OptionStatusActive},
	})
	if err != nil {
		return fmt.Errorf("failed to count positions of user %d: %w", user.ID, err)
	}
	user.ActivePositions = len(active)
	return nil
}

// UserCount returns the number of known users.
func (g *Gateway) UserCount(ctx context.Context) (int, error) {
	return g.store.Users.Count(ctx)
}

// RecordDeposit writes a confirmed deposit. Recording the same transaction
// twice returns the existing row.
func (g *Gateway) RecordDeposit(
	ctx context.Context,
	userID int64,
	token string,
	amount decimal.Decimal,
	txHash string,
) (*domain.LedgerEntry, error) {
	return g.record(ctx, domain.EntryKindDeposit, userID, token, amount, txHash)
}

// RecordWithdrawal writes a confirmed withdrawal.
func (g *Gateway) RecordWithdrawal(
	ctx context.Context,
	userID int64,
	token string,
	amount decimal.Decimal,
	txHash string,
) (*domain.LedgerEntry, error) {
	return g.record(ctx, domain.EntryKindWithdraw, userID, token, amount, txHash)
}

func (g *Gateway) record(
	ctx context.Context,
	kind domain.EntryKind,
	userID int64,
	token string,
	amount decimal.Decimal,
	txHash string,
) (*domain.LedgerEntry, error) {
	if txHash == "" {
		return nil, fmt.Errorf("refusing to record %s without a transaction hash", kind)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}

	entry := &domain.LedgerEntry{
		Kind:         kind,
		UserID:       userID,
		TokenAddress: token,
		Amount:       amount,
		Status:       kind.ConfirmedStatus(),
		TxHash:       txHash,
	}
	err := g.store.Ledger.Record(ctx, entry)
	if errors.Is(err, storage.ErrDuplicateTx) {
		existing, getErr := g.store.Ledger.GetByTxHash(ctx, kind, txHash)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load recorded %s: %w", kind, getErr)
		}
		g.logger.Debug("Ledger entry already recorded", "kind", kind, "tx_hash", txHash)
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", kind, err)
	}
	return entry, nil
}

// RecordOptionCreated writes an option whose creating transaction has
// confirmed. The row must carry that transaction's hash. Replaying the
// same creation returns the stored row, even after later transitions.
func (g *Gateway) RecordOptionCreated(ctx context.Context, o *domain.Option) error {
	if o.CreateTxHash == "" {
		o.CreateTxHash = o.TxHash
	}
	if o.CreateTxHash == "" {
		return fmt.Errorf("refusing to record option without a transaction hash")
	}
	if o.TxHash == "" {
		o.TxHash = o.CreateTxHash
	}
	if o.Status == "" {
		o.Status = domain.OptionStatusActive
	}
	err := g.store.Options.Create(ctx, o)
	if errors.Is(err, storage.ErrDuplicateTx) {
		existing, getErr := g.store.Options.GetByTxHash(ctx, o.CreateTxHash)
		if getErr != nil {
			return fmt.Errorf("failed to load recorded option: %w", getErr)
		}
		*o = *existing
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record option: %w", err)
	}
	return nil
}

// TransitionOption moves an option between statuses after the matching
// on-chain call confirmed. Replaying a transition that already happened
// with the same hash is a no-op.
func (g *Gateway) TransitionOption(
	ctx context.Context,
	id int64,
	from, to domain.OptionStatus,
	txHash string,
) error {
	if !domain.CanTransitionOption(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	err := g.store.Options.UpdateStatus(ctx, id, from, to, txHash)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrOptionNotFound
	case errors.Is(err, storage.ErrStaleStatus):
		current, getErr := g.store.Options.Get(ctx, id)
		if getErr != nil {
			return fmt.Errorf("failed to reload option: %w", getErr)
		}
		if current.Status == to && current.TxHash == txHash {
			return nil
		}
		return fmt.Errorf("%w: option %d is %s", domain.ErrInvalidTransition, id, current.Status)
	default:
		return fmt.Errorf("failed to update option: %w", err)
	}
}

// GetOption returns an option by id.
func (g *Gateway) GetOption(ctx context.Context, id int64) (*domain.Option, error) {
	o, err := g.store.Options.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.ErrOptionNotFound
	}
	return o, err
}

// ListOptions returns options matching the filter, newest first.
func (g *Gateway) ListOptions(ctx context.Context, filter domain.OptionFilter) ([]*domain.Option, error) {
	return g.store.Options.List(ctx, filter)
}

// Vault returns the vault of the user with the given address.
func (g *Gateway) Vault(ctx context.Context, address string) (*domain.Vault, error) {
	user, err := g.User(ctx, address)
	if err != nil {
		return nil, err
	}
	return g.store.Vaults.GetByUser(ctx, user.ID)
}

// EnsureVault returns the user's vault, creating an empty one if needed.
func (g *Gateway) EnsureVault(ctx context.Context, userID int64, token string) (*domain.Vault, error) {
	return g.store.Vaults.EnsureForUser(ctx, userID, token)
}

// Loans returns loans taken against a vault.
func (g *Gateway) Loans(ctx context.Context, vaultID int64) ([]*domain.Loan, error) {
	return g.store.Loans.ListByVault(ctx, vaultID)
}

// Liquidations returns liquidation events of a vault.
func (g *Gateway) Liquidations(ctx context.Context, vaultID int64) ([]*domain.LiquidationEvent, error) {
	return g.store.Liquidations.ListByVault(ctx, vaultID)
}

// ApplyPendingWrite replays a ledger write whose transaction already
// confirmed. All writes are idempotent on the transaction hash.
func (g *Gateway) ApplyPendingWrite(ctx context.Context, w domain.PendingWrite) error {
	switch w.Flow {
	case domain.FlowDeposit:
		_, err := g.RecordDeposit(ctx, w.UserID, w.TokenAddress, w.Amount, w.TxHash)
		return err
	case domain.FlowWithdraw:
		_, err := g.RecordWithdrawal(ctx, w.UserID, w.TokenAddress, w.Amount, w.TxHash)
		return err
	case domain.FlowCreateOption:
		if w.Option == nil {
			return fmt.Errorf("pending %s write %s has no option", w.Flow, w.ID)
		}
		o := *w.Option
		o.TxHash = w.TxHash
		o.CreateTxHash = w.TxHash
		return g.RecordOptionCreated(ctx, &o)
	case domain.FlowExerciseOption, domain.FlowCancelOption:
		return g.TransitionOption(ctx, w.OptionID, w.From, w.To, w.TxHash)
	default:
		return fmt.Errorf("unknown flow %q", w.Flow)
	}
}
