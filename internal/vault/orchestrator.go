// Package vault drives the multi-step vault flows: on-chain calls first,
// then exactly one ledger write once the last call has confirmed.
package vault

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/storage"
	"github.com/vietddude/optionvault/internal/metrics"
	"github.com/vietddude/optionvault/internal/wallet"
)

// Session is the connected wallet a flow runs under. *wallet.Session
// implements it.
type Session interface {
	ActiveAddress() (string, bool)
	ExecuteCall(ctx context.Context, contractAddress, entrypoint string, calldata []string) (wallet.TxHandle, error)
	AwaitConfirmation(ctx context.Context, h wallet.TxHandle, timeout time.Duration) (*wallet.Receipt, error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// Ledger is the part of the ledger gateway the flows read and write.
type Ledger interface {
	User(ctx context.Context, address string) (*domain.User, error)
	Vault(ctx context.Context, address string) (*domain.Vault, error)
	EnsureVault(ctx context.Context, userID int64, token string) (*domain.Vault, error)
	MaxWithdrawable(ctx context.Context, userID int64) (decimal.Decimal, error)
	TotalValueLocked(ctx context.Context) (decimal.Decimal, error)
	ActiveLockedAmount(ctx context.Context) (decimal.Decimal, error)
	GetOption(ctx context.Context, id int64) (*domain.Option, error)

	RecordDeposit(ctx context.Context, userID int64, token string, amount decimal.Decimal, txHash string) (*domain.LedgerEntry, error)
	RecordWithdrawal(ctx context.Context, userID int64, token string, amount decimal.Decimal, txHash string) (*domain.LedgerEntry, error)
	RecordOptionCreated(ctx context.Context, o *domain.Option) error
	TransitionOption(ctx context.Context, id int64, from, to domain.OptionStatus, txHash string) error
}

// Config holds the contract addresses and flow limits.
type Config struct {
	VaultAddress string
	TokenAddress string
	// DepositEntrypoint is EntryTransfer (token transfer to the vault) or
	// EntryDeposit (vault deposit).
	DepositEntrypoint   string
	ConfirmationTimeout time.Duration
	ExpiryOffsetBlocks  uint64
	// MaxLockedPercentage caps locked option collateral as a share of TVL.
	MaxLockedPercentage decimal.Decimal
}

// Orchestrator runs vault flows. It holds no connection state: every flow
// is given the session it runs under.
type Orchestrator struct {
	cfg       Config
	ledger    Ledger
	pending   storage.PendingWriteQueue
	contracts *Contracts
	now       func() time.Time
	logger    *slog.Logger
}

func NewOrchestrator(
	cfg Config,
	ledger Ledger,
	pending storage.PendingWriteQueue,
	contracts *Contracts,
) *Orchestrator {
	if cfg.DepositEntrypoint == "" {
		cfg.DepositEntrypoint = EntryTransfer
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 2 * time.Minute
	}
	if cfg.ExpiryOffsetBlocks == 0 {
		cfg.ExpiryOffsetBlocks = 10
	}
	if cfg.MaxLockedPercentage.IsZero() {
		cfg.MaxLockedPercentage = decimal.NewFromInt(80)
	}
	return &Orchestrator{
		cfg:       cfg,
		ledger:    ledger,
		pending:   pending,
		contracts: contracts,
		now:       time.Now,
		logger:    slog.Default().With("component", "vault"),
	}
}

// Contracts returns the read-only contract view.
func (o *Orchestrator) Contracts() *Contracts { return o.contracts }

// flowRun is one execution of a flow.
type flowRun struct {
	o       *Orchestrator
	kind    domain.FlowKind
	sess    Session
	address string
	start   time.Time
	log     *slog.Logger
}

func (o *Orchestrator) begin(kind domain.FlowKind, sess Session) (*flowRun, error) {
	address, ok := sess.ActiveAddress()
	if !ok {
		metrics.FlowsTotal.WithLabelValues(string(kind), "not_connected").Inc()
		return nil, domain.ErrNotConnected
	}
	id := uuid.NewString()
	return &flowRun{
		o:       o,
		kind:    kind,
		sess:    sess,
		address: address,
		start:   time.Now(),
		log:     o.logger.With("flow", kind, "flow_id", id, "user", address),
	}, nil
}

// fail wraps a failure that happened before any transaction was sent.
func (f *flowRun) fail(step string, err error) error {
	return &domain.FlowError{Flow: f.kind, Step: step, Err: err}
}

// step submits one call and waits for it to confirm.
func (f *flowRun) step(
	ctx context.Context,
	name, contract, entrypoint string,
	calldata []string,
) (*wallet.Receipt, error) {
	h, err := f.sess.ExecuteCall(ctx, contract, entrypoint, calldata)
	if err != nil {
		f.log.Warn("Step not submitted", "step", name, "error", err)
		return nil, &domain.FlowError{Flow: f.kind, Step: name, Err: err}
	}
	f.log.Info("Step submitted", "step", name, "tx_hash", h.Hash)

	receipt, err := f.sess.AwaitConfirmation(ctx, h, f.o.cfg.ConfirmationTimeout)
	if err != nil {
		f.log.Warn("Step not confirmed", "step", name, "tx_hash", h.Hash, "error", err)
		return nil, &domain.FlowError{Flow: f.kind, Step: name, TxHash: h.Hash, Err: err}
	}

	metrics.StepConfirmations.WithLabelValues(string(f.kind), name).
		Observe(time.Since(h.SubmittedAt).Seconds())
	f.log.Info("Step confirmed", "step", name, "tx_hash", h.Hash, "block", receipt.BlockNumber)
	return receipt, nil
}

// reconcile reports a ledger write that failed after its transaction
// confirmed and queues it for replay.
func (f *flowRun) reconcile(ctx context.Context, w domain.PendingWrite, cause error) error {
	w.ID = uuid.NewString()
	w.Flow = f.kind
	w.CreatedAt = f.o.now().UTC()
	w.LastError = cause.Error()

	metrics.ReconciliationGaps.WithLabelValues(string(f.kind)).Inc()
	f.log.Error("Ledger write failed after on-chain confirmation",
		"tx_hash", w.TxHash, "error", cause)

	rerr := &domain.ReconciliationError{Flow: f.kind, TxHash: w.TxHash, Err: cause}
	if f.o.pending == nil {
		return rerr
	}
	// The transaction is final; queue even if the caller has gone away.
	if err := f.o.pending.Add(context.WithoutCancel(ctx), &w); err != nil {
		f.log.Error("Failed to queue ledger write", "tx_hash", w.TxHash, "error", err)
		return rerr
	}
	metrics.PendingWrites.Inc()
	rerr.PendingID = w.ID
	return rerr
}

// finish records the outcome of the run and passes err through.
func (f *flowRun) finish(err error) error {
	outcome := outcomeOf(err)
	metrics.FlowsTotal.WithLabelValues(string(f.kind), outcome).Inc()
	metrics.FlowDuration.WithLabelValues(string(f.kind)).Observe(time.Since(f.start).Seconds())
	if err == nil {
		f.log.Info("Flow completed", "duration", time.Since(f.start).Round(time.Millisecond))
	}
	return err
}

func outcomeOf(err error) string {
	var rerr *domain.ReconciliationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rerr):
		return "reconciliation_gap"
	case errors.Is(err, domain.ErrWalletRejected):
		return "rejected"
	case errors.Is(err, domain.ErrChainReverted):
		return "reverted"
	case errors.Is(err, domain.ErrConfirmationTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrChainSubmissionFailed):
		return "submission_failed"
	case errors.Is(err, domain.ErrPrecision),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrLockLimitExceeded),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOptionNotFound):
		return "invalid"
	default:
		return "error"
	}
}
