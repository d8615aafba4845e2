package view

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/ledger"
	"github.com/vietddude/optionvault/internal/metrics"
)

// StatsSource computes ledger statistics. *ledger.Gateway implements it.
type StatsSource interface {
	Stats(ctx context.Context) (ledger.Stats, error)
}

// PriceSource returns the current token quote. *pricing.Service implements it.
type PriceSource interface {
	Current() domain.Quote
}

// StatsSnapshot is what the dashboard shows.
type StatsSnapshot struct {
	ledger.Stats
	Quote     domain.Quote    `json:"quote"`
	TVLUSD    decimal.Decimal `json:"tvl_usd"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StatsView keeps a recent statistics snapshot.
type StatsView struct {
	stats     StatsSource
	price     PriceSource
	refresher *Refresher
	logger    *slog.Logger

	mu   sync.RWMutex
	snap StatsSnapshot
}

func NewStatsView(stats StatsSource, price PriceSource, interval time.Duration) *StatsView {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	v := &StatsView{
		stats:  stats,
		price:  price,
		logger: slog.Default().With("component", "stats"),
		snap:   StatsSnapshot{Loading: true},
	}
	v.refresher = NewRefresher(interval, func(ctx context.Context) { v.Refresh(ctx) })
	return v
}

func (v *StatsView) Start(ctx context.Context) { v.refresher.Start(ctx) }

func (v *StatsView) Stop() { v.refresher.Stop() }

// Refresh recomputes the snapshot. A failed refresh keeps the previous
// numbers and records the error.
func (v *StatsView) Refresh(ctx context.Context) StatsSnapshot {
	stats, err := v.stats.Stats(ctx)
	var quote domain.Quote
	if v.price != nil {
		quote = v.price.Current()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.snap.Loading = false
	v.snap.Quote = quote
	v.snap.UpdatedAt = time.Now().UTC()
	if err != nil {
		v.logger.Warn("Stats refresh failed", "error", err)
		v.snap.Error = err.Error()
		return v.snap
	}

	v.snap.Stats = stats
	v.snap.Error = ""
	v.snap.TVLUSD = stats.TotalValueLocked.Mul(quote.Price)

	metrics.TotalValueLocked.Set(stats.TotalValueLocked.InexactFloat64())
	metrics.ActiveOptions.Set(float64(stats.ActiveOptions))
	return v.snap
}

func (v *StatsView) Snapshot() StatsSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}
