package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/optionvault/internal/core/domain"
)

type fakeSigner struct {
	address string
	err     error
	calls   [][]Call
	mu      sync.Mutex
}

func (f *fakeSigner) Address() string { return f.address }

func (f *fakeSigner) Execute(ctx context.Context, calls []Call) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, calls)
	if f.err != nil {
		return "", f.err
	}
	return "0xhash", nil
}

type fakeChain struct {
	mu        sync.Mutex
	pending   int // receipt lookups that return nil before the receipt appears
	receipt   *Receipt
	lookupErr error
	lookups   int
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return 100, nil }

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.lookups <= f.pending {
		return nil, nil
	}
	return f.receipt, nil
}

func (f *fakeChain) Call(ctx context.Context, call Call) ([]string, error) {
	return []string{"0x1"}, nil
}

func TestSession_AwaitConfirmation(t *testing.T) {
	chain := &fakeChain{pending: 2, receipt: &Receipt{TxHash: "0xhash", Status: ExecutionSucceeded, BlockNumber: 7}}
	s := NewSession(&fakeSigner{address: "0xa"}, chain, 5*time.Millisecond)

	h, err := s.ExecuteCall(context.Background(), "0xc", "approve", nil)
	if err != nil {
		t.Fatalf("ExecuteCall failed: %v", err)
	}
	r, err := s.AwaitConfirmation(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("AwaitConfirmation failed: %v", err)
	}
	if r.BlockNumber != 7 {
		t.Errorf("unexpected receipt %+v", r)
	}
	if chain.lookups != 3 {
		t.Errorf("expected 3 lookups, got %d", chain.lookups)
	}
}

func TestSession_AwaitConfirmation_Failures(t *testing.T) {
	tests := []struct {
		name  string
		chain *fakeChain
		want  error
	}{
		{
			name:  "reverted",
			chain: &fakeChain{receipt: &Receipt{Status: ExecutionReverted, RevertReason: "u256_sub Overflow"}},
			want:  domain.ErrChainReverted,
		},
		{
			name:  "never included",
			chain: &fakeChain{pending: 1 << 30},
			want:  domain.ErrConfirmationTimeout,
		},
		{
			name:  "node errors until timeout",
			chain: &fakeChain{lookupErr: errors.New("connection refused")},
			want:  domain.ErrConfirmationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(&fakeSigner{address: "0xa"}, tt.chain, 5*time.Millisecond)
			_, err := s.AwaitConfirmation(context.Background(), TxHandle{Hash: "0xhash", SubmittedAt: time.Now()}, 30*time.Millisecond)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSession_ExecuteCallErrors(t *testing.T) {
	rejected := NewSession(&fakeSigner{address: "0xa", err: domain.ErrWalletRejected}, &fakeChain{}, 0)
	if _, err := rejected.ExecuteCall(context.Background(), "0xc", "approve", nil); !errors.Is(err, domain.ErrWalletRejected) {
		t.Errorf("expected ErrWalletRejected, got %v", err)
	}

	broken := NewSession(&fakeSigner{address: "0xa", err: errors.New("dial tcp: timeout")}, &fakeChain{}, 0)
	if _, err := broken.ExecuteCall(context.Background(), "0xc", "approve", nil); !errors.Is(err, domain.ErrChainSubmissionFailed) {
		t.Errorf("expected ErrChainSubmissionFailed, got %v", err)
	}
}

func TestSession_Close(t *testing.T) {
	signer := &fakeSigner{address: "0xa"}
	s := NewSession(signer, &fakeChain{}, 0)
	if addr, ok := s.ActiveAddress(); !ok || addr != "0xa" {
		t.Fatalf("unexpected address %q %v", addr, ok)
	}

	s.Close()

	if _, ok := s.ActiveAddress(); ok {
		t.Error("closed session still reports an address")
	}
	if _, err := s.ExecuteCall(context.Background(), "0xc", "approve", nil); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.LatestBlock(context.Background()); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if len(signer.calls) != 0 {
		t.Errorf("signer called after close")
	}
}
