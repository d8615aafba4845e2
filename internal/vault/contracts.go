package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/amount"
	"github.com/vietddude/optionvault/internal/infra/chain/starknet"
	"github.com/vietddude/optionvault/internal/wallet"
)

// Contract entry points.
const (
	EntryApprove        = "approve"
	EntryTransfer       = "transfer"
	EntryDeposit        = "deposit"
	EntryWithdraw       = "withdraw"
	EntryCreateOption   = "create_option"
	EntryExerciseOption = "exercise_option"
	EntryCancelOption   = "cancel_option"

	EntryUserBalanceOf = "user_balance_of"
	EntryTotalSupply   = "contract_total_supply"
	EntryOptionDetails = "get_option_details"
	EntryNextOptionID  = "get_next_option_id"
	EntryTotalLocked   = "get_total_locked_amount"

	// EventOptionCreated is emitted by create_option with the new id as
	// its first key or data felt.
	EventOptionCreated = "OptionCreated"
)

// Option statuses as stored by the vault contract.
const (
	OnChainActive uint64 = iota
	OnChainExercised
	OnChainCancelled
)

// Reader performs read-only contract calls. wallet.Chain satisfies it.
type Reader interface {
	Call(ctx context.Context, call wallet.Call) ([]string, error)
}

// Contracts reads vault state straight from the chain.
type Contracts struct {
	reader Reader
	vault  string
}

func NewContracts(reader Reader, vaultAddress string) *Contracts {
	return &Contracts{reader: reader, vault: vaultAddress}
}

func (c *Contracts) call(ctx context.Context, entrypoint string, calldata ...string) ([]string, error) {
	out, err := c.reader.Call(ctx, wallet.Call{
		ContractAddress: c.vault,
		Entrypoint:      entrypoint,
		Calldata:        calldata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", entrypoint, err)
	}
	return out, nil
}

func (c *Contracts) readAmount(ctx context.Context, entrypoint string, calldata ...string) (decimal.Decimal, error) {
	out, err := c.call(ctx, entrypoint, calldata...)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decodeU256(out, 0)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", entrypoint, err)
	}
	return amount.FromFixedPoint(v), nil
}

// UserBalanceOf returns the vault shares held by account.
func (c *Contracts) UserBalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	return c.readAmount(ctx, EntryUserBalanceOf, account)
}

// TotalSupply returns the total vault shares.
func (c *Contracts) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	return c.readAmount(ctx, EntryTotalSupply)
}

// TotalLocked returns the collateral locked by open options.
func (c *Contracts) TotalLocked(ctx context.Context) (decimal.Decimal, error) {
	return c.readAmount(ctx, EntryTotalLocked)
}

// NextOptionID returns the id the next created option will get. The
// contract may answer with a single felt or a u256.
func (c *Contracts) NextOptionID(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, EntryNextOptionID)
	if err != nil {
		return 0, err
	}
	switch len(out) {
	case 0:
		return 0, fmt.Errorf("%s: empty result", EntryNextOptionID)
	case 1:
		return starknet.FeltToUint64(out[0])
	}
	v, err := decodeU256(out, 0)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", EntryNextOptionID, err)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s: id %s overflows uint64", EntryNextOptionID, v.Dec())
	}
	return v.Uint64(), nil
}

// OptionDetails is the on-chain view of an option.
type OptionDetails struct {
	ID           uint64          `json:"id"`
	StrikePrice  decimal.Decimal `json:"strike_price"`
	ExpiryBlock  uint64          `json:"expiry_block"`
	LockedAmount decimal.Decimal `json:"locked_amount"`
	// Status as stored by the contract: 0 active, 1 exercised, 2 cancelled.
	Status uint64 `json:"status"`
}

// Empty reports whether the contract returned a zeroed record, which is
// what it does for ids it never assigned.
func (d *OptionDetails) Empty() bool {
	return d.StrikePrice.IsZero() && d.LockedAmount.IsZero() && d.ExpiryBlock == 0
}

func (d *OptionDetails) StatusName() string {
	switch d.Status {
	case OnChainActive:
		return "active"
	case OnChainExercised:
		return "exercised"
	case OnChainCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("unknown(%d)", d.Status)
}

// optionCreatedID finds the OptionCreated event emitted by vault and
// returns the id it carries.
func optionCreatedID(events []wallet.Event, vault string) (uint64, bool) {
	selector := starknet.Selector(EventOptionCreated)
	for _, ev := range events {
		if !sameFelt(ev.FromAddress, vault) || len(ev.Keys) == 0 || !sameFelt(ev.Keys[0], selector) {
			continue
		}
		var raw string
		switch {
		case len(ev.Keys) > 1:
			raw = ev.Keys[1]
		case len(ev.Data) > 0:
			raw = ev.Data[0]
		default:
			continue
		}
		id, err := starknet.FeltToUint64(raw)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}

// sameFelt compares two hex felts ignoring case and leading zeros.
func sameFelt(a, b string) bool {
	trim := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		s = strings.TrimPrefix(s, "0x")
		return strings.TrimLeft(s, "0")
	}
	return trim(a) == trim(b)
}

// OptionDetails reads one option. The result is laid out as
// strike (u256), expiry_block, amount (u256), status.
func (c *Contracts) OptionDetails(ctx context.Context, id uint64) (*OptionDetails, error) {
	out, err := c.call(ctx, EntryOptionDetails, amount.Felt(id))
	if err != nil {
		return nil, err
	}
	if len(out) < 6 {
		return nil, fmt.Errorf("%s: expected 6 felts, got %d", EntryOptionDetails, len(out))
	}

	strike, err := decodeU256(out, 0)
	if err != nil {
		return nil, fmt.Errorf("%s strike: %w", EntryOptionDetails, err)
	}
	expiry, err := starknet.FeltToUint64(out[2])
	if err != nil {
		return nil, fmt.Errorf("%s expiry: %w", EntryOptionDetails, err)
	}
	locked, err := decodeU256(out, 3)
	if err != nil {
		return nil, fmt.Errorf("%s amount: %w", EntryOptionDetails, err)
	}
	status, err := starknet.FeltToUint64(out[5])
	if err != nil {
		return nil, fmt.Errorf("%s status: %w", EntryOptionDetails, err)
	}

	return &OptionDetails{
		ID:           id,
		StrikePrice:  amount.FromFixedPoint(strike),
		ExpiryBlock:  expiry,
		LockedAmount: amount.FromFixedPoint(locked),
		Status:       status,
	}, nil
}

func decodeU256(felts []string, at int) (*uint256.Int, error) {
	if len(felts) < at+2 {
		return nil, fmt.Errorf("expected u256 at felt %d, got %d felts", at, len(felts))
	}
	return amount.ParseLimbs(felts[at], felts[at+1])
}

// Calldata builders. Amounts are u256 limb pairs, low first.

func approveCalldata(spender string, v *uint256.Int) []string {
	return append([]string{spender}, amount.Split(v).Calldata()...)
}

func transferCalldata(recipient string, v *uint256.Int) []string {
	return append([]string{recipient}, amount.Split(v).Calldata()...)
}

func amountCalldata(v *uint256.Int) []string {
	return amount.Split(v).Calldata()
}

func createOptionCalldata(strike *uint256.Int, expiryBlock uint64, locked *uint256.Int) []string {
	out := amount.Split(strike).Calldata()
	out = append(out, amount.Felt(expiryBlock))
	return append(out, amount.Split(locked).Calldata()...)
}

func exerciseCalldata(chainOptionID uint64, v *uint256.Int) []string {
	return append([]string{amount.Felt(chainOptionID)}, amount.Split(v).Calldata()...)
}

func cancelCalldata(chainOptionID uint64) []string {
	return []string{amount.Felt(chainOptionID)}
}
