package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
)

func TestPaginate(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct{ n, size int }{{0, 10}, {1, 10}, {10, 10}, {23, 10}, {7, 3}} {
		var entries []*domain.LedgerEntry
		for i := range tc.n {
			entries = append(entries, &domain.LedgerEntry{
				ID:        int64(i),
				Seq:       int64(i),
				CreatedAt: base.Add(time.Duration(i%4) * time.Minute),
			})
		}
		SortHistory(entries)

		pages := (tc.n + tc.size - 1) / tc.size
		var all []*domain.LedgerEntry
		for p := 1; p <= max(pages, 1); p++ {
			page := Paginate(entries, p, tc.size)
			if page.TotalCount != tc.n {
				t.Errorf("n=%d: total = %d", tc.n, page.TotalCount)
			}
			if last := p >= pages; page.HasMore == last {
				t.Errorf("n=%d size=%d page=%d: hasMore=%v", tc.n, tc.size, p, page.HasMore)
			}
			all = append(all, page.Items...)
		}

		if len(all) != tc.n {
			t.Fatalf("n=%d: pages hold %d items", tc.n, len(all))
		}
		seen := make(map[int64]bool)
		for i, e := range all {
			if seen[e.ID] {
				t.Errorf("n=%d: item %d repeated", tc.n, e.ID)
			}
			seen[e.ID] = true
			if i > 0 {
				prev := all[i-1]
				if e.CreatedAt.After(prev.CreatedAt) {
					t.Errorf("n=%d: not sorted by time at %d", tc.n, i)
				}
				if e.CreatedAt.Equal(prev.CreatedAt) && e.Seq > prev.Seq {
					t.Errorf("n=%d: tie not broken by insertion order at %d", tc.n, i)
				}
			}
		}
	}
}

func TestPaginate_PastEnd(t *testing.T) {
	page := Paginate(nil, 3, 10)
	if page.HasMore || len(page.Items) != 0 || page.Items == nil {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestGateway_TransactionHistory(t *testing.T) {
	g, mem, clock := newTestGateway(t)
	ctx := context.Background()
	u, _ := g.UpsertUser(ctx, "0xUser")

	_, _ = g.RecordDeposit(ctx, u.ID, "0xt", decimal.NewFromInt(5), "0x1")
	_, _ = g.RecordWithdrawal(ctx, u.ID, "0xt", decimal.NewFromInt(1), "0x2")
	clock.t = clock.t.Add(time.Minute)
	mem.SetClock(clock.Now)
	_, _ = g.RecordDeposit(ctx, u.ID, "0xt", decimal.NewFromInt(3), "0x3")

	page, err := g.TransactionHistory(ctx, "0xuser", 1, 2)
	if err != nil {
		t.Fatalf("TransactionHistory failed: %v", err)
	}
	if page.TotalCount != 3 || !page.HasMore || len(page.Items) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].TxHash != "0x3" || page.Items[1].TxHash != "0x2" {
		t.Errorf("unexpected order %s, %s", page.Items[0].TxHash, page.Items[1].TxHash)
	}
	if page.Items[1].Status != domain.EntryStatusWithdrawn {
		t.Errorf("withdrawal status = %s", page.Items[1].Status)
	}

	empty, err := g.TransactionHistory(ctx, "0xnobody", 1, 10)
	if err != nil || empty.TotalCount != 0 {
		t.Errorf("expected empty history, got %+v, %v", empty, err)
	}

	if _, err := g.TransactionHistory(ctx, "0xuser", 0, 10); err == nil {
		t.Error("expected error for page 0")
	}
}
