package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/storage"
)

func TestUserRepo_UpsertConcurrent(t *testing.T) {
	s := NewMemoryStorage()
	repo := NewUserRepo(s)
	ctx := context.Background()

	var wg sync.WaitGroup
	created := make(chan bool, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := repo.Upsert(ctx, "0xABC", time.Now())
			if err != nil {
				t.Errorf("upsert failed: %v", err)
			}
			created <- c
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for c := range created {
		if c {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected exactly one insert, got %d", n)
	}
	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestLedgerRepo_RecordUpdatesVault(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	u, _, _ := NewUserRepo(s).Upsert(ctx, "0x1", time.Now())
	ledger := NewLedgerRepo(s)

	dep := &domain.LedgerEntry{
		Kind: domain.EntryKindDeposit, UserID: u.ID, TokenAddress: "0xtoken",
		Amount: decimal.NewFromInt(10), Status: domain.EntryStatusDeposit, TxHash: "0xa",
	}
	if err := ledger.Record(ctx, dep); err != nil {
		t.Fatalf("record deposit: %v", err)
	}
	wd := &domain.LedgerEntry{
		Kind: domain.EntryKindWithdraw, UserID: u.ID, TokenAddress: "0xtoken",
		Amount: decimal.NewFromInt(3), Status: domain.EntryStatusWithdrawn, TxHash: "0xb",
	}
	if err := ledger.Record(ctx, wd); err != nil {
		t.Fatalf("record withdrawal: %v", err)
	}
	if wd.Seq <= dep.Seq {
		t.Errorf("expected increasing seq, got %d then %d", dep.Seq, wd.Seq)
	}

	v, err := NewVaultRepo(s).GetByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if !v.CollateralAmount.Equal(decimal.NewFromInt(7)) {
		t.Errorf("expected collateral 7, got %s", v.CollateralAmount)
	}

	err = ledger.Record(ctx, &domain.LedgerEntry{
		Kind: domain.EntryKindDeposit, UserID: u.ID, Amount: decimal.NewFromInt(1),
		Status: domain.EntryStatusDeposit, TxHash: "0xa",
	})
	if !errors.Is(err, storage.ErrDuplicateTx) {
		t.Errorf("expected ErrDuplicateTx, got %v", err)
	}
}

func TestLedgerRepo_PendingNotApplied(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	u, _, _ := NewUserRepo(s).Upsert(ctx, "0x1", time.Now())
	ledger := NewLedgerRepo(s)

	_ = ledger.Record(ctx, &domain.LedgerEntry{
		Kind: domain.EntryKindDeposit, UserID: u.ID, Amount: decimal.NewFromInt(5),
		Status: domain.EntryStatusPending, TxHash: "0xp",
	})
	confirmed, _ := ledger.ListConfirmed(ctx, domain.EntryKindDeposit)
	if len(confirmed) != 0 {
		t.Errorf("pending entry listed as confirmed")
	}
	v, _ := NewVaultRepo(s).GetByUser(ctx, u.ID)
	if !v.CollateralAmount.IsZero() {
		t.Errorf("pending entry changed collateral to %s", v.CollateralAmount)
	}
}

func TestOptionRepo_UpdateStatus(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	repo := NewOptionRepo(s)

	o := &domain.Option{
		VaultID: 1, Kind: domain.OptionKindCall, Status: domain.OptionStatusActive,
		TxHash: "0x1", CreateTxHash: "0x1",
	}
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateStatus(ctx, o.ID, domain.OptionStatusActive, domain.OptionStatusExercised, "0x2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	err := repo.UpdateStatus(ctx, o.ID, domain.OptionStatusActive, domain.OptionStatusExpired, "0x3")
	if !errors.Is(err, storage.ErrStaleStatus) {
		t.Errorf("expected ErrStaleStatus, got %v", err)
	}

	got, _ := repo.Get(ctx, o.ID)
	if got.Status != domain.OptionStatusExercised || got.TxHash != "0x2" || got.CreateTxHash != "0x1" {
		t.Errorf("unexpected option %+v", got)
	}

	// The creating hash still identifies the row after a transition.
	byHash, err := repo.GetByTxHash(ctx, "0x1")
	if err != nil || byHash.ID != o.ID {
		t.Errorf("GetByTxHash(create hash) = %+v, %v", byHash, err)
	}
	if _, err := repo.GetByTxHash(ctx, "0x2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected action hash not to match, got %v", err)
	}
	dup := &domain.Option{VaultID: 1, Kind: domain.OptionKindCall, TxHash: "0x1", CreateTxHash: "0x1"}
	if err := repo.Create(ctx, dup); !errors.Is(err, storage.ErrDuplicateTx) {
		t.Errorf("expected ErrDuplicateTx on replayed create, got %v", err)
	}

	active, _ := repo.List(ctx, domain.OptionFilter{Statuses: []domain.OptionStatus{domain.OptionStatusActive}})
	if len(active) != 0 {
		t.Errorf("expected no active options, got %d", len(active))
	}
}
