// Package mockchain is an in-memory chain and signer used in mock mode and
// in tests. Outcomes can be scripted per entry point.
package mockchain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/vietddude/optionvault/internal/core/amount"
	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/chain/starknet"
	"github.com/vietddude/optionvault/internal/wallet"
)

// Outcome is what happens when a call with a given entry point is executed.
type Outcome int

const (
	Succeed Outcome = iota
	Reject
	SubmitFail
	Revert
	// Hang accepts the transaction but never produces a receipt.
	Hang
)

const (
	createOptionEntrypoint   = "create_option"
	exerciseOptionEntrypoint = "exercise_option"
	cancelOptionEntrypoint   = "cancel_option"
	optionCreatedEvent       = "OptionCreated"
)

// Option statuses as the vault contract stores them.
const (
	optionActive uint64 = iota
	optionExercised
	optionCancelled
)

// option is the contract-side record of a created option. Amounts are kept
// as the raw calldata limbs.
type option struct {
	strike []string
	expiry string
	amount []string
	status uint64
}

type Chain struct {
	mu           sync.Mutex
	network      string
	height       uint64
	txCount      uint64
	nextOptionID uint64
	options      map[uint64]*option
	noEvents     bool
	receipts     map[string]*wallet.Receipt
	scripts      map[string]Outcome
	reads        map[string][]string
	submitted    []wallet.Call
	log          *slog.Logger
}

func New(network string) *Chain {
	return &Chain{
		network:      network,
		height:       1,
		nextOptionID: 1,
		options:      make(map[uint64]*option),
		receipts:     make(map[string]*wallet.Receipt),
		scripts:      make(map[string]Outcome),
		reads:        make(map[string][]string),
		log:          slog.Default().With("component", "mockchain"),
	}
}

func (c *Chain) Network() string { return c.network }

// Script sets the outcome for every later call to entrypoint.
func (c *Chain) Script(entrypoint string, o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[entrypoint] = o
}

// SetRead fixes the result returned by a read-only entry point.
func (c *Chain) SetRead(entrypoint string, result ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads[entrypoint] = result
}

// SetEmitEvents controls whether receipts carry contract events. On by
// default.
func (c *Chain) SetEmitEvents(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noEvents = !on
}

// Submitted returns every call accepted for submission, in order.
func (c *Chain) Submitted() []wallet.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wallet.Call, len(c.submitted))
	copy(out, c.submitted)
	return out
}

// Mine advances the chain by one block.
func (c *Chain) Mine() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height++
	return c.height
}

// Run mines a block every interval until ctx is cancelled.
func (c *Chain) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Mine()
		}
	}
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, txHash string) (*wallet.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[txHash]
	if !ok {
		return nil, nil
	}
	out := *r
	return &out, nil
}

func (c *Chain) Call(ctx context.Context, call wallet.Call) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.reads[call.Entrypoint]; ok {
		return append([]string(nil), res...), nil
	}
	switch call.Entrypoint {
	case "get_next_option_id":
		return amount.Split(uint256.NewInt(c.nextOptionID)).Calldata(), nil
	case "get_option_details":
		return c.optionDetails(call.Calldata), nil
	}
	return []string{"0x0", "0x0"}, nil
}

// optionDetails answers like the contract does for an unknown id: with a
// zeroed struct.
func (c *Chain) optionDetails(calldata []string) []string {
	out := []string{"0x0", "0x0", "0x0", "0x0", "0x0", "0x0"}
	if len(calldata) == 0 {
		return out
	}
	id, err := starknet.FeltToUint64(calldata[0])
	if err != nil {
		return out
	}
	opt, ok := c.options[id]
	if !ok {
		return out
	}
	out = append(append([]string(nil), opt.strike...), opt.expiry)
	out = append(out, opt.amount...)
	return append(out, amount.Felt(opt.status))
}

// apply updates contract state for one included call and returns the events
// it emits.
func (c *Chain) apply(call wallet.Call) []wallet.Event {
	switch call.Entrypoint {
	case createOptionEntrypoint:
		id := c.nextOptionID
		c.nextOptionID++
		if len(call.Calldata) >= 5 {
			c.options[id] = &option{
				strike: append([]string(nil), call.Calldata[0:2]...),
				expiry: call.Calldata[2],
				amount: append([]string(nil), call.Calldata[3:5]...),
				status: optionActive,
			}
		}
		return []wallet.Event{{
			FromAddress: call.ContractAddress,
			Keys:        []string{starknet.Selector(optionCreatedEvent), amount.Felt(id)},
			Data:        []string{},
		}}
	case exerciseOptionEntrypoint:
		c.setOptionStatus(call.Calldata, optionExercised)
	case cancelOptionEntrypoint:
		c.setOptionStatus(call.Calldata, optionCancelled)
	}
	return nil
}

func (c *Chain) setOptionStatus(calldata []string, status uint64) {
	if len(calldata) == 0 {
		return
	}
	id, err := starknet.FeltToUint64(calldata[0])
	if err != nil {
		return
	}
	if opt, ok := c.options[id]; ok {
		opt.status = status
	}
}

// execute applies the scripted outcome of the first non-succeeding call.
func (c *Chain) execute(calls []wallet.Call) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := Succeed
	for _, call := range calls {
		if o := c.scripts[call.Entrypoint]; o != Succeed {
			outcome = o
			break
		}
	}

	switch outcome {
	case Reject:
		return "", domain.ErrWalletRejected
	case SubmitFail:
		return "", fmt.Errorf("%w: mock node unavailable", domain.ErrChainSubmissionFailed)
	}

	c.submitted = append(c.submitted, calls...)
	c.txCount++
	hash := fmt.Sprintf("0x%064x", c.txCount)

	switch outcome {
	case Hang:
		return hash, nil
	case Revert:
		c.height++
		c.receipts[hash] = &wallet.Receipt{
			TxHash:       hash,
			BlockNumber:  c.height,
			Status:       wallet.ExecutionReverted,
			RevertReason: "mock revert",
		}
		return hash, nil
	}

	var events []wallet.Event
	for _, call := range calls {
		events = append(events, c.apply(call)...)
	}
	if c.noEvents {
		events = nil
	}
	c.height++
	c.receipts[hash] = &wallet.Receipt{
		TxHash:      hash,
		BlockNumber: c.height,
		Status:      wallet.ExecutionSucceeded,
		Events:      events,
	}
	c.log.Debug("Mock transaction included", "tx_hash", hash, "block", c.height, "calls", len(calls))
	return hash, nil
}

// Signer signs for one address against the mock chain.
type Signer struct {
	chain   *Chain
	address string
}

func (c *Chain) Signer(address string) *Signer {
	return &Signer{chain: c, address: address}
}

func (s *Signer) Address() string { return s.address }

func (s *Signer) Execute(ctx context.Context, calls []wallet.Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.chain.execute(calls)
}

// SignerFactory returns a wallet.SignerFactory that always succeeds.
func (c *Chain) SignerFactory() wallet.SignerFactory {
	return func(ctx context.Context, address string) (wallet.Signer, error) {
		return c.Signer(address), nil
	}
}
