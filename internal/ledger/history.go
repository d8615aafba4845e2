package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// ErrInvalidPage is returned for page numbers or sizes below one.
var ErrInvalidPage = errors.New("invalid page")

// HistoryPage is one page of a user's deposits and withdrawals.
type HistoryPage struct {
	Items      []*domain.LedgerEntry `json:"items"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	HasMore    bool                  `json:"has_more"`
	TotalCount int                   `json:"total_count"`
}

// SortHistory orders entries newest first. Entries created at the same
// instant keep reverse insertion order.
func SortHistory(entries []*domain.LedgerEntry) {
	slices.SortStableFunc(entries, func(a, b *domain.LedgerEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq > b.Seq:
			return -1
		case a.Seq < b.Seq:
			return 1
		}
		return 0
	})
}

// Paginate slices sorted entries into the 1-based page.
func Paginate(entries []*domain.LedgerEntry, page, pageSize int) HistoryPage {
	page = max(page, 1)
	pageSize = max(pageSize, 1)
	total := len(entries)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	items := entries[start:end]
	if items == nil {
		items = []*domain.LedgerEntry{}
	}
	return HistoryPage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		HasMore:    end < total,
		TotalCount: total,
	}
}

// TransactionHistory returns a page of the user's deposits and withdrawals
// merged and sorted newest first. Unknown users have an empty history.
func (g *Gateway) TransactionHistory(
	ctx context.Context,
	address string,
	page, pageSize int,
) (HistoryPage, error) {
	if page < 1 || pageSize < 1 {
		return HistoryPage{}, fmt.Errorf("%w: page %d, size %d", ErrInvalidPage, page, pageSize)
	}

	user, err := g.User(ctx, address)
	if errors.Is(err, domain.ErrUserNotFound) {
		return Paginate(nil, page, pageSize), nil
	}
	if err != nil {
		return HistoryPage{}, err
	}

	entries, err := g.store.Ledger.ListByUser(ctx, user.ID)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("failed to load history: %w", err)
	}
	SortHistory(entries)
	return Paginate(entries, page, pageSize), nil
}
