package mockchain

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/vietddude/optionvault/internal/core/amount"
	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/chain/starknet"
	"github.com/vietddude/optionvault/internal/wallet"
)

func TestChainScriptedOutcomes(t *testing.T) {
	ctx := context.Background()
	c := New("mock")
	s := c.Signer("0xuser")

	c.Script("approve", Reject)
	if _, err := s.Execute(ctx, []wallet.Call{{Entrypoint: "approve"}}); !errors.Is(err, domain.ErrWalletRejected) {
		t.Errorf("expected ErrWalletRejected, got %v", err)
	}
	if len(c.Submitted()) != 0 {
		t.Errorf("rejected call should not be submitted")
	}

	c.Script("transfer", Revert)
	hash, err := s.Execute(ctx, []wallet.Call{{Entrypoint: "transfer"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, _ := c.TransactionReceipt(ctx, hash)
	if r == nil || r.Status != wallet.ExecutionReverted {
		t.Errorf("expected reverted receipt, got %+v", r)
	}

	c.Script("deposit", Hang)
	hash, err = s.Execute(ctx, []wallet.Call{{Entrypoint: "deposit"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r, _ := c.TransactionReceipt(ctx, hash); r != nil {
		t.Errorf("hung transaction should have no receipt, got %+v", r)
	}
}

func TestChainCreateOptionAdvancesID(t *testing.T) {
	ctx := context.Background()
	c := New("mock")
	s := c.Signer("0xuser")

	before, _ := c.BlockNumber(ctx)
	hash, err := s.Execute(ctx, []wallet.Call{{Entrypoint: "create_option"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, _ := c.TransactionReceipt(ctx, hash)
	if r == nil || r.Status != wallet.ExecutionSucceeded || r.BlockNumber != before+1 {
		t.Errorf("unexpected receipt %+v", r)
	}

	out, err := c.Call(ctx, wallet.Call{Entrypoint: "get_next_option_id"})
	if err != nil || len(out) != 2 {
		t.Fatalf("unexpected read %v, %v", out, err)
	}
	id, err := amount.ParseLimbs(out[0], out[1])
	if err != nil {
		t.Fatalf("parse limbs: %v", err)
	}
	if id.Uint64() != 2 {
		t.Errorf("expected next option id 2, got %d", id.Uint64())
	}
}

func TestChainOptionState(t *testing.T) {
	ctx := context.Background()
	c := New("mock")
	s := c.Signer("0xuser")

	create := wallet.Call{
		ContractAddress: "0xvault",
		Entrypoint:      "create_option",
		Calldata:        []string{"0x5", "0x0", "0x64", "0x9", "0x0"},
	}
	hash, err := s.Execute(ctx, []wallet.Call{create})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, _ := c.TransactionReceipt(ctx, hash)
	if r == nil || len(r.Events) != 1 {
		t.Fatalf("expected one event, got %+v", r)
	}
	ev := r.Events[0]
	if ev.FromAddress != "0xvault" || len(ev.Keys) != 2 ||
		ev.Keys[0] != starknet.Selector("OptionCreated") || ev.Keys[1] != "0x1" {
		t.Errorf("unexpected event %+v", ev)
	}

	details := func() []string {
		out, err := c.Call(ctx, wallet.Call{Entrypoint: "get_option_details", Calldata: []string{"0x1"}})
		if err != nil {
			t.Fatalf("read details: %v", err)
		}
		return out
	}
	want := []string{"0x5", "0x0", "0x64", "0x9", "0x0", "0x0"}
	if got := details(); !slices.Equal(got, want) {
		t.Errorf("details = %v, want %v", got, want)
	}

	if _, err := s.Execute(ctx, []wallet.Call{{Entrypoint: "cancel_option", Calldata: []string{"0x1"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := details(); got[5] != "0x2" {
		t.Errorf("status after cancel = %s, want 0x2", got[5])
	}

	out, _ := c.Call(ctx, wallet.Call{Entrypoint: "get_option_details", Calldata: []string{"0x63"}})
	if !slices.Equal(out, []string{"0x0", "0x0", "0x0", "0x0", "0x0", "0x0"}) {
		t.Errorf("unknown option should read as zeroes, got %v", out)
	}

	c.SetEmitEvents(false)
	hash, _ = s.Execute(ctx, []wallet.Call{create})
	if r, _ := c.TransactionReceipt(ctx, hash); r == nil || len(r.Events) != 0 {
		t.Errorf("expected no events, got %+v", r)
	}
}

func TestChainRunMines(t *testing.T) {
	c := New("mock")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Run(ctx, 5*time.Millisecond)
	if n, _ := c.BlockNumber(context.Background()); n < 2 {
		t.Errorf("expected blocks to be mined, height %d", n)
	}
}
