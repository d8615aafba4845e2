package view

import (
	"context"
	"errors"
	"sync"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/ledger"
)

// ErrBusy is returned when a page load is already running.
var ErrBusy = errors.New("load already in progress")

// HistoryLoader fetches one page of history.
type HistoryLoader func(ctx context.Context, page, pageSize int) (ledger.HistoryPage, error)

// HistorySnapshot is a copy of the cursor state.
type HistorySnapshot struct {
	Items   []*domain.LedgerEntry `json:"items"`
	Page    int                   `json:"page"`
	HasMore bool                  `json:"has_more"`
	Total   int                   `json:"total_count"`
	Loading bool                  `json:"loading"`
	Error   string                `json:"error,omitempty"`
}

// HistoryCursor accumulates history pages for a "load more" list.
type HistoryCursor struct {
	load     HistoryLoader
	pageSize int

	mu      sync.Mutex
	items   []*domain.LedgerEntry
	page    int
	hasMore bool
	total   int
	loading bool
	err     error
}

func NewHistoryCursor(load HistoryLoader, pageSize int) *HistoryCursor {
	return &HistoryCursor{load: load, pageSize: max(pageSize, 1)}
}

// Reset drops loaded items and loads the first page.
func (c *HistoryCursor) Reset(ctx context.Context) error {
	if !c.start() {
		return ErrBusy
	}
	p, err := c.load(ctx, 1, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.err = err
	if err != nil {
		return err
	}
	c.items = append([]*domain.LedgerEntry(nil), p.Items...)
	c.page, c.hasMore, c.total = 1, p.HasMore, p.TotalCount
	return nil
}

// LoadMore appends the next page. It does nothing and returns false when
// a load is running or there are no more pages.
func (c *HistoryCursor) LoadMore(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.loading || !c.hasMore {
		c.mu.Unlock()
		return false, nil
	}
	c.loading = true
	next := c.page + 1
	c.mu.Unlock()

	p, err := c.load(ctx, next, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.err = err
	if err != nil {
		return false, err
	}
	c.items = append(c.items, p.Items...)
	c.page, c.hasMore, c.total = next, p.HasMore, p.TotalCount
	return true, nil
}

func (c *HistoryCursor) start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return false
	}
	c.loading = true
	return true
}

func (c *HistoryCursor) Snapshot() HistorySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := HistorySnapshot{
		Items:   append([]*domain.LedgerEntry{}, c.items...),
		Page:    c.page,
		HasMore: c.hasMore,
		Total:   c.total,
		Loading: c.loading,
	}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	return s
}
