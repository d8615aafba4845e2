package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/amount"
	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/storage"
	"github.com/vietddude/optionvault/internal/wallet"
)

// parseAmount converts user input into a positive ledger amount and its
// fixed-point form.
func parseAmount(s string) (decimal.Decimal, *uint256.Int, error) {
	d, err := amount.Parse(s)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if !d.IsPositive() {
		return decimal.Zero, nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	v, err := amount.DecimalToFixedPoint(d)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return d, v, nil
}

func (f *flowRun) user(ctx context.Context) (*domain.User, error) {
	user, err := f.o.ledger.User(ctx, f.address)
	if err != nil {
		return nil, f.fail("load_user", fmt.Errorf("failed to load user %s: %w", f.address, err))
	}
	return user, nil
}

// Deposit approves the vault to move amount, moves it, and records the
// deposit once the transfer confirmed. A failure at either on-chain step
// writes nothing.
func (o *Orchestrator) Deposit(ctx context.Context, sess Session, amt string) (*domain.LedgerEntry, error) {
	f, err := o.begin(domain.FlowDeposit, sess)
	if err != nil {
		return nil, err
	}
	entry, err := f.deposit(ctx, amt)
	return entry, f.finish(err)
}

func (f *flowRun) deposit(ctx context.Context, amt string) (*domain.LedgerEntry, error) {
	cfg := f.o.cfg
	value, fixed, err := parseAmount(amt)
	if err != nil {
		return nil, f.fail("parse_amount", err)
	}
	user, err := f.user(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := f.step(ctx, EntryApprove, cfg.TokenAddress, EntryApprove,
		approveCalldata(cfg.VaultAddress, fixed)); err != nil {
		return nil, err
	}

	contract, calldata := cfg.TokenAddress, transferCalldata(cfg.VaultAddress, fixed)
	if cfg.DepositEntrypoint == EntryDeposit {
		contract, calldata = cfg.VaultAddress, amountCalldata(fixed)
	}
	receipt, err := f.step(ctx, cfg.DepositEntrypoint, contract, cfg.DepositEntrypoint, calldata)
	if err != nil {
		return nil, err
	}

	entry, err := f.o.ledger.RecordDeposit(ctx, user.ID, cfg.TokenAddress, value, receipt.TxHash)
	if err != nil {
		return nil, f.reconcile(ctx, domain.PendingWrite{
			TxHash:       receipt.TxHash,
			UserID:       user.ID,
			TokenAddress: cfg.TokenAddress,
			Amount:       value,
		}, err)
	}
	return entry, nil
}

// Withdraw checks the user's withdrawable balance, withdraws from the
// vault and records the withdrawal once it confirmed. Amounts above the
// balance are refused before anything is sent.
func (o *Orchestrator) Withdraw(ctx context.Context, sess Session, amt string) (*domain.LedgerEntry, error) {
	f, err := o.begin(domain.FlowWithdraw, sess)
	if err != nil {
		return nil, err
	}
	entry, err := f.withdraw(ctx, amt)
	return entry, f.finish(err)
}

func (f *flowRun) withdraw(ctx context.Context, amt string) (*domain.LedgerEntry, error) {
	cfg := f.o.cfg
	value, fixed, err := parseAmount(amt)
	if err != nil {
		return nil, f.fail("parse_amount", err)
	}
	user, err := f.user(ctx)
	if err != nil {
		return nil, err
	}

	available, err := f.o.ledger.MaxWithdrawable(ctx, user.ID)
	if err != nil {
		return nil, f.fail("check_balance", fmt.Errorf("failed to compute withdrawable balance: %w", err))
	}
	if value.GreaterThan(available) {
		return nil, f.fail("check_balance", fmt.Errorf("%w: requested %s, available %s",
			domain.ErrInsufficientBalance, value, available))
	}

	receipt, err := f.step(ctx, EntryWithdraw, cfg.VaultAddress, EntryWithdraw, amountCalldata(fixed))
	if err != nil {
		return nil, err
	}

	entry, err := f.o.ledger.RecordWithdrawal(ctx, user.ID, cfg.TokenAddress, value, receipt.TxHash)
	if err != nil {
		return nil, f.reconcile(ctx, domain.PendingWrite{
			TxHash:       receipt.TxHash,
			UserID:       user.ID,
			TokenAddress: cfg.TokenAddress,
			Amount:       value,
		}, err)
	}
	return entry, nil
}

// CreateOptionRequest describes an option to write against the caller's
// vault.
type CreateOptionRequest struct {
	Kind        domain.OptionKind `json:"option_type"`
	StrikePrice string            `json:"strike_price"`
	Amount      string            `json:"amount"`
	Premium     string            `json:"premium"`
	// ExpiryOffset is the number of blocks until expiry. Zero uses the
	// configured default.
	ExpiryOffset uint64 `json:"expiry_offset,omitempty"`
}

// CreateOption writes an option locking Amount of vault collateral. The
// option row is recorded active only after the transaction confirmed.
func (o *Orchestrator) CreateOption(ctx context.Context, sess Session, req CreateOptionRequest) (*domain.Option, error) {
	f, err := o.begin(domain.FlowCreateOption, sess)
	if err != nil {
		return nil, err
	}
	opt, err := f.createOption(ctx, req)
	return opt, f.finish(err)
}

func (f *flowRun) createOption(ctx context.Context, req CreateOptionRequest) (*domain.Option, error) {
	cfg := f.o.cfg
	if !req.Kind.Valid() {
		return nil, f.fail("validate", fmt.Errorf("%w: unknown option type %q", domain.ErrInvalidAmount, req.Kind))
	}
	strike, strikeFixed, err := parseAmount(req.StrikePrice)
	if err != nil {
		return nil, f.fail("validate", fmt.Errorf("strike price: %w", err))
	}
	locked, lockedFixed, err := parseAmount(req.Amount)
	if err != nil {
		return nil, f.fail("validate", fmt.Errorf("amount: %w", err))
	}
	premium := decimal.Zero
	if req.Premium != "" {
		if premium, err = amount.Parse(req.Premium); err != nil {
			return nil, f.fail("validate", fmt.Errorf("premium: %w", err))
		}
	}

	user, err := f.user(ctx)
	if err != nil {
		return nil, err
	}
	vault, err := f.o.ledger.EnsureVault(ctx, user.ID, cfg.TokenAddress)
	if err != nil {
		return nil, f.fail("load_vault", fmt.Errorf("failed to load vault: %w", err))
	}
	if err := f.checkLockLimit(ctx, locked); err != nil {
		return nil, err
	}

	latest, err := f.sess.LatestBlock(ctx)
	if err != nil {
		return nil, f.fail("latest_block", fmt.Errorf("%w: %v", domain.ErrChainSubmissionFailed, err))
	}
	offset := req.ExpiryOffset
	if offset == 0 {
		offset = cfg.ExpiryOffsetBlocks
	}
	expiry := latest + offset

	receipt, err := f.step(ctx, EntryCreateOption, cfg.VaultAddress, EntryCreateOption,
		createOptionCalldata(strikeFixed, expiry, lockedFixed))
	if err != nil {
		return nil, err
	}

	opt := &domain.Option{
		VaultID:       vault.ID,
		ChainOptionID: f.createdOptionID(ctx, receipt, strike, expiry, locked),
		Kind:          req.Kind,
		StrikePrice:   strike,
		ExpiryBlock:   expiry,
		Premium:       premium,
		LockedAmount:  locked,
		Status:        domain.OptionStatusActive,
		TxHash:        receipt.TxHash,
		CreateTxHash:  receipt.TxHash,
	}
	if opt.ChainOptionID == nil {
		f.log.Warn("On-chain option id unknown, option cannot be exercised or cancelled", "tx_hash", receipt.TxHash)
	}
	if err := f.o.ledger.RecordOptionCreated(ctx, opt); err != nil {
		pending := *opt
		return nil, f.reconcile(ctx, domain.PendingWrite{
			TxHash: receipt.TxHash,
			Option: &pending,
		}, err)
	}
	return opt, nil
}

func (f *flowRun) checkLockLimit(ctx context.Context, add decimal.Decimal) error {
	tvl, err := f.o.ledger.TotalValueLocked(ctx)
	if err != nil {
		return f.fail("check_lock_limit", fmt.Errorf("failed to compute TVL: %w", err))
	}
	locked, err := f.o.ledger.ActiveLockedAmount(ctx)
	if err != nil {
		return f.fail("check_lock_limit", fmt.Errorf("failed to compute locked amount: %w", err))
	}
	limit := tvl.Mul(f.o.cfg.MaxLockedPercentage).Div(decimal.NewFromInt(100))
	if locked.Add(add).GreaterThan(limit) {
		return f.fail("check_lock_limit", fmt.Errorf("%w: locked %s + %s exceeds %s%% of TVL %s",
			domain.ErrLockLimitExceeded, locked, add, f.o.cfg.MaxLockedPercentage, tvl))
	}
	return nil
}

// createdOptionID returns the id the contract assigned to the option created
// by receipt. The OptionCreated event is authoritative. Without it, the
// last assigned id is used only if the option stored under it matches what
// was submitted, since another create may have landed in between. Nil when
// neither works.
func (f *flowRun) createdOptionID(
	ctx context.Context,
	receipt *wallet.Receipt,
	strike decimal.Decimal,
	expiry uint64,
	locked decimal.Decimal,
) *uint64 {
	if id, ok := optionCreatedID(receipt.Events, f.o.cfg.VaultAddress); ok {
		return &id
	}
	if f.o.contracts == nil {
		return nil
	}
	next, err := f.o.contracts.NextOptionID(ctx)
	if err != nil || next == 0 {
		f.log.Warn("Could not read next on-chain option id", "error", err)
		return nil
	}
	candidate := next - 1
	details, err := f.o.contracts.OptionDetails(ctx, candidate)
	if err != nil {
		f.log.Warn("Could not read on-chain option", "chain_option_id", candidate, "error", err)
		return nil
	}
	if !details.StrikePrice.Equal(strike) || details.ExpiryBlock != expiry || !details.LockedAmount.Equal(locked) {
		f.log.Warn("Latest on-chain option is not ours", "chain_option_id", candidate)
		return nil
	}
	return &candidate
}

// checkOption guards exercise and cancel: the option must belong to the
// caller's vault, have a known on-chain id and still be active on-chain.
func (f *flowRun) checkOption(ctx context.Context, opt *domain.Option) error {
	vault, err := f.o.ledger.Vault(ctx, f.address)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return f.fail("validate", fmt.Errorf("%w: option %d", domain.ErrNotOptionOwner, opt.ID))
	case err != nil:
		return f.fail("load_vault", fmt.Errorf("failed to load vault: %w", err))
	case vault.ID != opt.VaultID:
		return f.fail("validate", fmt.Errorf("%w: option %d", domain.ErrNotOptionOwner, opt.ID))
	}
	if opt.ChainOptionID == nil {
		return f.fail("validate", fmt.Errorf("%w: option %d", domain.ErrOptionIDUnknown, opt.ID))
	}
	if f.o.contracts == nil {
		return nil
	}

	details, err := f.o.contracts.OptionDetails(ctx, *opt.ChainOptionID)
	if err != nil {
		return f.fail("check_onchain", fmt.Errorf("%w: %v", domain.ErrChainSubmissionFailed, err))
	}
	if details.Empty() {
		return f.fail("check_onchain", fmt.Errorf("%w: option %d has no on-chain record %d",
			domain.ErrOptionIDUnknown, opt.ID, *opt.ChainOptionID))
	}
	if details.Status != OnChainActive {
		return f.fail("check_onchain", fmt.Errorf("%w: option %d is %s on-chain",
			domain.ErrInvalidTransition, opt.ID, details.StatusName()))
	}
	return nil
}

// ExerciseOption exercises amount of an active option.
func (o *Orchestrator) ExerciseOption(ctx context.Context, sess Session, optionID int64, amt string) (*domain.Option, error) {
	f, err := o.begin(domain.FlowExerciseOption, sess)
	if err != nil {
		return nil, err
	}
	opt, err := f.exercise(ctx, optionID, amt)
	return opt, f.finish(err)
}

func (f *flowRun) exercise(ctx context.Context, optionID int64, amt string) (*domain.Option, error) {
	value, fixed, err := parseAmount(amt)
	if err != nil {
		return nil, f.fail("parse_amount", err)
	}
	opt, err := f.o.ledger.GetOption(ctx, optionID)
	if err != nil {
		return nil, f.fail("load_option", err)
	}
	if opt.Status != domain.OptionStatusActive {
		return nil, f.fail("validate", fmt.Errorf("%w: option %d is %s",
			domain.ErrInvalidTransition, optionID, opt.Status))
	}
	if value.GreaterThan(opt.LockedAmount) {
		return nil, f.fail("validate", fmt.Errorf("%w: %s exceeds locked amount %s",
			domain.ErrInvalidAmount, value, opt.LockedAmount))
	}
	if err := f.checkOption(ctx, opt); err != nil {
		return nil, err
	}

	receipt, err := f.step(ctx, EntryExerciseOption, f.o.cfg.VaultAddress, EntryExerciseOption,
		exerciseCalldata(*opt.ChainOptionID, fixed))
	if err != nil {
		return nil, err
	}
	return f.transition(ctx, opt, domain.OptionStatusExercised, receipt.TxHash)
}

// CancelOption cancels a pending or active option. A cancelled option is
// recorded as expired.
func (o *Orchestrator) CancelOption(ctx context.Context, sess Session, optionID int64) (*domain.Option, error) {
	f, err := o.begin(domain.FlowCancelOption, sess)
	if err != nil {
		return nil, err
	}
	opt, err := f.cancel(ctx, optionID)
	return opt, f.finish(err)
}

func (f *flowRun) cancel(ctx context.Context, optionID int64) (*domain.Option, error) {
	opt, err := f.o.ledger.GetOption(ctx, optionID)
	if err != nil {
		return nil, f.fail("load_option", err)
	}
	if !domain.CanTransitionOption(opt.Status, domain.OptionStatusExpired) {
		return nil, f.fail("validate", fmt.Errorf("%w: option %d is %s",
			domain.ErrInvalidTransition, optionID, opt.Status))
	}
	if err := f.checkOption(ctx, opt); err != nil {
		return nil, err
	}

	receipt, err := f.step(ctx, EntryCancelOption, f.o.cfg.VaultAddress, EntryCancelOption,
		cancelCalldata(*opt.ChainOptionID))
	if err != nil {
		return nil, err
	}
	return f.transition(ctx, opt, domain.OptionStatusExpired, receipt.TxHash)
}

func (f *flowRun) transition(
	ctx context.Context,
	opt *domain.Option,
	to domain.OptionStatus,
	txHash string,
) (*domain.Option, error) {
	from := opt.Status
	if err := f.o.ledger.TransitionOption(ctx, opt.ID, from, to, txHash); err != nil {
		return nil, f.reconcile(ctx, domain.PendingWrite{
			TxHash:   txHash,
			OptionID: opt.ID,
			From:     from,
			To:       to,
		}, err)
	}
	updated := *opt
	updated.Status = to
	updated.TxHash = txHash
	return &updated, nil
}
