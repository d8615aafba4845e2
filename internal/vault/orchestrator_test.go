package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/chain/mockchain"
	"github.com/vietddude/optionvault/internal/infra/storage/memory"
	"github.com/vietddude/optionvault/internal/ledger"
	"github.com/vietddude/optionvault/internal/wallet"
)

const (
	testVault = "0xvault"
	testToken = "0xtoken"
	testUser  = "0xuser"
)

type harness struct {
	orch    *Orchestrator
	gw      *ledger.Gateway
	chain   *mockchain.Chain
	pending *memory.PendingQueue
	sess    *wallet.Session
}

func newHarness(t *testing.T, wrap func(*ledger.Gateway) Ledger) *harness {
	t.Helper()
	mem := memory.NewMemoryStorage()
	gw := ledger.NewGateway(mem.Store())
	chain := mockchain.New("mock")
	pending := memory.NewPendingQueue()

	var l Ledger = gw
	if wrap != nil {
		l = wrap(gw)
	}
	orch := NewOrchestrator(Config{
		VaultAddress:        testVault,
		TokenAddress:        testToken,
		ConfirmationTimeout: 100 * time.Millisecond,
	}, l, pending, NewContracts(chain, testVault))

	if _, err := gw.UpsertUser(context.Background(), testUser); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	sess := wallet.NewSession(chain.Signer(testUser), chain, 5*time.Millisecond)
	return &harness{orch: orch, gw: gw, chain: chain, pending: pending, sess: sess}
}

func (h *harness) historyCount(t *testing.T) int {
	t.Helper()
	page, err := h.gw.TransactionHistory(context.Background(), testUser, 1, 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return page.TotalCount
}

func entrypoints(calls []wallet.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Entrypoint
	}
	return out
}

func TestDeposit_Success(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	entry, err := h.orch.Deposit(ctx, h.sess, "1.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("1.5")) || entry.TxHash == "" {
		t.Errorf("unexpected entry %+v", entry)
	}

	calls := h.chain.Submitted()
	if len(calls) != 2 || calls[0].Entrypoint != EntryApprove || calls[1].Entrypoint != EntryTransfer {
		t.Fatalf("unexpected calls %v", entrypoints(calls))
	}
	want := []string{testVault, "0x14d1120d7b160000", "0x0"}
	for i, c := range []wallet.Call{calls[0], calls[1]} {
		if c.ContractAddress != testToken {
			t.Errorf("call %d sent to %s", i, c.ContractAddress)
		}
		if len(c.Calldata) != 3 || c.Calldata[0] != want[0] || c.Calldata[1] != want[1] || c.Calldata[2] != want[2] {
			t.Errorf("call %d calldata = %v, want %v", i, c.Calldata, want)
		}
	}

	tvl, _ := h.gw.TotalValueLocked(ctx)
	if !tvl.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("TVL = %s, want 1.5", tvl)
	}
}

func TestDeposit_VaultEntrypoint(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.cfg.DepositEntrypoint = EntryDeposit

	if _, err := h.orch.Deposit(context.Background(), h.sess, "2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := h.chain.Submitted()
	if len(calls) != 2 || calls[1].Entrypoint != EntryDeposit || calls[1].ContractAddress != testVault {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if len(calls[1].Calldata) != 2 {
		t.Errorf("deposit calldata should be a bare u256, got %v", calls[1].Calldata)
	}
}

func TestDeposit_FailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name      string
		entry     string
		outcome   mockchain.Outcome
		wantErr   error
		wantStep  string
		wantCalls int
	}{
		{"approve rejected", EntryApprove, mockchain.Reject, domain.ErrWalletRejected, EntryApprove, 0},
		{"approve reverted", EntryApprove, mockchain.Revert, domain.ErrChainReverted, EntryApprove, 1},
		{"transfer rejected", EntryTransfer, mockchain.Reject, domain.ErrWalletRejected, EntryTransfer, 1},
		{"transfer reverted", EntryTransfer, mockchain.Revert, domain.ErrChainReverted, EntryTransfer, 2},
		{"transfer submission", EntryTransfer, mockchain.SubmitFail, domain.ErrChainSubmissionFailed, EntryTransfer, 1},
		{"transfer timeout", EntryTransfer, mockchain.Hang, domain.ErrConfirmationTimeout, EntryTransfer, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.chain.Script(tt.entry, tt.outcome)

			_, err := h.orch.Deposit(context.Background(), h.sess, "10")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var ferr *domain.FlowError
			if !errors.As(err, &ferr) || ferr.Step != tt.wantStep {
				t.Errorf("expected failure at step %s, got %v", tt.wantStep, err)
			}
			if n := len(h.chain.Submitted()); n != tt.wantCalls {
				t.Errorf("expected %d submitted calls, got %d", tt.wantCalls, n)
			}
			if n := h.historyCount(t); n != 0 {
				t.Errorf("expected no deposit records, got %d", n)
			}
		})
	}
}

func TestDeposit_InvalidAmounts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for _, in := range []string{"0.0000000000000000001", "-1", "0", "abc"} {
		_, err := h.orch.Deposit(ctx, h.sess, in)
		if !errors.Is(err, domain.ErrPrecision) && !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("%q: expected amount error, got %v", in, err)
		}
	}
	_, err := h.orch.Deposit(ctx, h.sess, "0.0000000000000000001")
	if !errors.Is(err, domain.ErrPrecision) {
		t.Errorf("expected ErrPrecision, got %v", err)
	}
	if n := len(h.chain.Submitted()); n != 0 {
		t.Errorf("invalid amounts must not reach the chain, %d calls sent", n)
	}
}

func TestFlow_NotConnected(t *testing.T) {
	h := newHarness(t, nil)
	h.sess.Close()

	if _, err := h.orch.Deposit(context.Background(), h.sess, "1"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.orch.Deposit(ctx, h.sess, "10"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	sent := len(h.chain.Submitted())

	_, err := h.orch.Withdraw(ctx, h.sess, "10.000000000000000001")
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if n := len(h.chain.Submitted()); n != sent {
		t.Fatalf("over-balance withdraw reached the chain")
	}

	entry, err := h.orch.Withdraw(ctx, h.sess, "4")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if entry.Kind != domain.EntryKindWithdraw || entry.Status != domain.EntryStatusWithdrawn {
		t.Errorf("unexpected entry %+v", entry)
	}
	calls := h.chain.Submitted()
	last := calls[len(calls)-1]
	if last.Entrypoint != EntryWithdraw || last.ContractAddress != testVault {
		t.Errorf("unexpected withdraw call %+v", last)
	}

	tvl, _ := h.gw.TotalValueLocked(ctx)
	if !tvl.Equal(decimal.NewFromInt(6)) {
		t.Errorf("TVL = %s, want 6", tvl)
	}
}

type failingLedger struct {
	*ledger.Gateway
	err error
}

func (f *failingLedger) RecordDeposit(
	ctx context.Context,
	userID int64,
	token string,
	amount decimal.Decimal,
	txHash string,
) (*domain.LedgerEntry, error) {
	return nil, f.err
}

func TestDeposit_LedgerFailureQueuesWrite(t *testing.T) {
	dbErr := errors.New("connection reset")
	h := newHarness(t, func(gw *ledger.Gateway) Ledger { return &failingLedger{Gateway: gw, err: dbErr} })
	ctx := context.Background()

	_, err := h.orch.Deposit(ctx, h.sess, "3")
	var rerr *domain.ReconciliationError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ReconciliationError, got %v", err)
	}
	if !errors.Is(err, domain.ErrLedgerWriteFailed) || !errors.Is(err, dbErr) {
		t.Errorf("reconciliation error should wrap both causes: %v", err)
	}
	if rerr.TxHash == "" || rerr.PendingID == "" {
		t.Errorf("missing tx hash or pending id: %+v", rerr)
	}

	queued, _ := h.pending.List(ctx)
	if len(queued) != 1 {
		t.Fatalf("expected 1 queued write, got %d", len(queued))
	}
	w := queued[0]
	if w.Flow != domain.FlowDeposit || w.TxHash != rerr.TxHash || !w.Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("unexpected pending write %+v", w)
	}

	// Replaying the write alone closes the gap without another transaction.
	sent := len(h.chain.Submitted())
	if err := h.gw.ApplyPendingWrite(ctx, *w); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if h.historyCount(t) != 1 {
		t.Errorf("expected the replayed deposit to be recorded")
	}
	if len(h.chain.Submitted()) != sent {
		t.Errorf("replay must not touch the chain")
	}
}

func TestCreateOption(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.orch.Deposit(ctx, h.sess, "100"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	req := CreateOptionRequest{Kind: domain.OptionKindCall, StrikePrice: "0.5", Amount: "81", Premium: "2"}
	if _, err := h.orch.CreateOption(ctx, h.sess, req); !errors.Is(err, domain.ErrLockLimitExceeded) {
		t.Fatalf("expected ErrLockLimitExceeded, got %v", err)
	}

	latest, _ := h.chain.BlockNumber(ctx)
	req.Amount = "80"
	opt, err := h.orch.CreateOption(ctx, h.sess, req)
	if err != nil {
		t.Fatalf("create option: %v", err)
	}
	if opt.Status != domain.OptionStatusActive || opt.TxHash == "" {
		t.Errorf("unexpected option %+v", opt)
	}
	if opt.ExpiryBlock != latest+10 {
		t.Errorf("expiry block = %d, want %d", opt.ExpiryBlock, latest+10)
	}
	if opt.ChainOptionID == nil || *opt.ChainOptionID != 1 {
		t.Errorf("chain option id = %v, want 1", opt.ChainOptionID)
	}
	if opt.CreateTxHash != opt.TxHash {
		t.Errorf("create hash %q differs from tx hash %q", opt.CreateTxHash, opt.TxHash)
	}

	calls := h.chain.Submitted()
	last := calls[len(calls)-1]
	if last.Entrypoint != EntryCreateOption || len(last.Calldata) != 5 {
		t.Errorf("unexpected create call %+v", last)
	}

	count, _ := h.gw.ActiveOptionsCount(ctx)
	if count != 1 {
		t.Errorf("expected 1 active option, got %d", count)
	}

	req.Amount = "1"
	if _, err := h.orch.CreateOption(ctx, h.sess, req); !errors.Is(err, domain.ErrLockLimitExceeded) {
		t.Errorf("expected limit to include existing locks, got %v", err)
	}
}

func TestCreateOption_RevertWritesNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.orch.Deposit(ctx, h.sess, "100"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	h.chain.Script(EntryCreateOption, mockchain.Revert)

	req := CreateOptionRequest{Kind: domain.OptionKindPut, StrikePrice: "1", Amount: "10"}
	if _, err := h.orch.CreateOption(ctx, h.sess, req); !errors.Is(err, domain.ErrChainReverted) {
		t.Fatalf("expected ErrChainReverted, got %v", err)
	}
	opts, _ := h.gw.ListOptions(ctx, domain.OptionFilter{})
	if len(opts) != 0 {
		t.Errorf("reverted create must not write an option, got %d", len(opts))
	}
}

func TestExerciseAndCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.orch.Deposit(ctx, h.sess, "100"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	opt, err := h.orch.CreateOption(ctx, h.sess, CreateOptionRequest{
		Kind: domain.OptionKindCall, StrikePrice: "1", Amount: "10", Premium: "1",
	})
	if err != nil {
		t.Fatalf("create option: %v", err)
	}
	sent := len(h.chain.Submitted())

	if _, err := h.orch.ExerciseOption(ctx, h.sess, opt.ID, "11"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(h.chain.Submitted()) != sent {
		t.Fatalf("invalid exercise reached the chain")
	}

	h.chain.Script(EntryExerciseOption, mockchain.Reject)
	if _, err := h.orch.ExerciseOption(ctx, h.sess, opt.ID, "5"); !errors.Is(err, domain.ErrWalletRejected) {
		t.Fatalf("expected ErrWalletRejected, got %v", err)
	}
	stored, _ := h.gw.GetOption(ctx, opt.ID)
	if stored.Status != domain.OptionStatusActive {
		t.Fatalf("rejected exercise changed status to %s", stored.Status)
	}

	h.chain.Script(EntryExerciseOption, mockchain.Succeed)
	exercised, err := h.orch.ExerciseOption(ctx, h.sess, opt.ID, "5")
	if err != nil {
		t.Fatalf("exercise: %v", err)
	}
	if exercised.Status != domain.OptionStatusExercised || exercised.TxHash == opt.TxHash {
		t.Errorf("unexpected exercised option %+v", exercised)
	}

	if _, err := h.orch.CancelOption(ctx, h.sess, opt.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition cancelling an exercised option, got %v", err)
	}
	if _, err := h.orch.CancelOption(ctx, h.sess, 999); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Errorf("expected ErrOptionNotFound, got %v", err)
	}
}

func TestCancelOption(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.orch.Deposit(ctx, h.sess, "50"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	opt, err := h.orch.CreateOption(ctx, h.sess, CreateOptionRequest{
		Kind: domain.OptionKindCall, StrikePrice: "1", Amount: "10",
	})
	if err != nil {
		t.Fatalf("create option: %v", err)
	}

	cancelled, err := h.orch.CancelOption(ctx, h.sess, opt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OptionStatusExpired {
		t.Errorf("cancelled option status = %s, want expired", cancelled.Status)
	}
	calls := h.chain.Submitted()
	last := calls[len(calls)-1]
	if last.Entrypoint != EntryCancelOption || len(last.Calldata) != 1 || last.Calldata[0] != "0x1" {
		t.Errorf("unexpected cancel call %+v", last)
	}
}

func (h *harness) createOption(t *testing.T) *domain.Option {
	t.Helper()
	ctx := context.Background()
	if _, err := h.orch.Deposit(ctx, h.sess, "100"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	opt, err := h.orch.CreateOption(ctx, h.sess, CreateOptionRequest{
		Kind: domain.OptionKindCall, StrikePrice: "1", Amount: "10",
	})
	if err != nil {
		t.Fatalf("create option: %v", err)
	}
	return opt
}

func TestCreateOption_ChainOptionID(t *testing.T) {
	tests := []struct {
		name   string
		events bool
		next   []string // nil leaves get_next_option_id unscripted
		want   *uint64
	}{
		{"from event", true, []string{"0x63", "0x0"}, ptr(uint64(1))},
		{"verified fallback", false, nil, ptr(uint64(1))},
		{"next id unreadable", false, []string{}, nil},
		// Another create landed first: id 2 is not ours.
		{"fallback mismatch", false, []string{"0x3", "0x0"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.chain.SetEmitEvents(tt.events)
			if tt.next != nil {
				h.chain.SetRead(EntryNextOptionID, tt.next...)
			}
			opt := h.createOption(t)
			switch {
			case tt.want == nil && opt.ChainOptionID != nil:
				t.Errorf("chain option id = %d, want unknown", *opt.ChainOptionID)
			case tt.want != nil && (opt.ChainOptionID == nil || *opt.ChainOptionID != *tt.want):
				t.Errorf("chain option id = %v, want %d", opt.ChainOptionID, *tt.want)
			}
			if opt.Status != domain.OptionStatusActive {
				t.Errorf("status = %s, want active", opt.Status)
			}
		})
	}
}

func TestExerciseAndCancel_UnknownChainID(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.chain.SetEmitEvents(false)
	h.chain.SetRead(EntryNextOptionID)

	opt := h.createOption(t)
	if opt.ChainOptionID != nil {
		t.Fatalf("expected unknown chain option id, got %d", *opt.ChainOptionID)
	}
	sent := len(h.chain.Submitted())

	if _, err := h.orch.ExerciseOption(ctx, h.sess, opt.ID, "5"); !errors.Is(err, domain.ErrOptionIDUnknown) {
		t.Errorf("exercise: expected ErrOptionIDUnknown, got %v", err)
	}
	if _, err := h.orch.CancelOption(ctx, h.sess, opt.ID); !errors.Is(err, domain.ErrOptionIDUnknown) {
		t.Errorf("cancel: expected ErrOptionIDUnknown, got %v", err)
	}
	for _, c := range h.chain.Submitted()[sent:] {
		t.Errorf("unexpected %s call with calldata %v", c.Entrypoint, c.Calldata)
	}
	stored, _ := h.gw.GetOption(ctx, opt.ID)
	if stored.Status != domain.OptionStatusActive {
		t.Errorf("status = %s, want active", stored.Status)
	}
}

func TestExercise_OnChainStatusChecked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	opt := h.createOption(t)

	// Cancelled on-chain outside this service.
	if _, err := h.chain.Signer(testUser).Execute(ctx, []wallet.Call{{
		ContractAddress: testVault, Entrypoint: EntryCancelOption, Calldata: []string{"0x1"},
	}}); err != nil {
		t.Fatalf("cancel on chain: %v", err)
	}
	sent := len(h.chain.Submitted())

	_, err := h.orch.ExerciseOption(ctx, h.sess, opt.ID, "5")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var ferr *domain.FlowError
	if !errors.As(err, &ferr) || ferr.Step != "check_onchain" {
		t.Errorf("expected check_onchain step, got %v", err)
	}
	if len(h.chain.Submitted()) != sent {
		t.Errorf("exercise of a cancelled option reached the chain")
	}
}

func TestExerciseAndCancel_OtherUsersOption(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	opt := h.createOption(t)

	const intruder = "0xintruder"
	if _, err := h.gw.UpsertUser(ctx, intruder); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sess := wallet.NewSession(h.chain.Signer(intruder), h.chain, 5*time.Millisecond)
	sent := len(h.chain.Submitted())

	// Without a vault of their own.
	if _, err := h.orch.CancelOption(ctx, sess, opt.ID); !errors.Is(err, domain.ErrNotOptionOwner) {
		t.Errorf("cancel: expected ErrNotOptionOwner, got %v", err)
	}
	if len(h.chain.Submitted()) != sent {
		t.Errorf("foreign cancel reached the chain")
	}

	if _, err := h.orch.Deposit(ctx, sess, "1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	sent = len(h.chain.Submitted())
	if _, err := h.orch.ExerciseOption(ctx, sess, opt.ID, "5"); !errors.Is(err, domain.ErrNotOptionOwner) {
		t.Errorf("exercise: expected ErrNotOptionOwner, got %v", err)
	}
	if _, err := h.orch.CancelOption(ctx, sess, opt.ID); !errors.Is(err, domain.ErrNotOptionOwner) {
		t.Errorf("cancel: expected ErrNotOptionOwner, got %v", err)
	}
	if len(h.chain.Submitted()) != sent {
		t.Errorf("foreign exercise or cancel reached the chain")
	}
	stored, _ := h.gw.GetOption(ctx, opt.ID)
	if stored.Status != domain.OptionStatusActive {
		t.Errorf("status = %s, want active", stored.Status)
	}
}

func ptr[T any](v T) *T { return &v }

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{&domain.ReconciliationError{Err: errors.New("x")}, "reconciliation_gap"},
		{&domain.FlowError{Err: domain.ErrWalletRejected}, "rejected"},
		{&domain.FlowError{Err: domain.ErrConfirmationTimeout}, "timeout"},
		{domain.ErrInsufficientBalance, "invalid"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
