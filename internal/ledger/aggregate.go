package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// PremiumWindow is the trailing window for daily premium growth.
const PremiumWindow = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// ComputeTVL is Σ confirmed deposits − Σ confirmed withdrawals. Pending rows
// and rows of the wrong kind are ignored.
func ComputeTVL(deposits, withdrawals []*domain.LedgerEntry) decimal.Decimal {
	return sumConfirmed(deposits, domain.EntryKindDeposit).
		Sub(sumConfirmed(withdrawals, domain.EntryKindWithdraw))
}

func sumConfirmed(entries []*domain.LedgerEntry, kind domain.EntryKind) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Kind == kind && e.IsConfirmed() {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// TotalValueLocked is the global TVL across all users.
func (g *Gateway) TotalValueLocked(ctx context.Context) (decimal.Decimal, error) {
	var deposits, withdrawals []*domain.LedgerEntry
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		deposits, err = g.store.Ledger.ListConfirmed(ctx, domain.EntryKindDeposit)
		return err
	})
	eg.Go(func() error {
		var err error
		withdrawals, err = g.store.Ledger.ListConfirmed(ctx, domain.EntryKindWithdraw)
		return err
	})
	if err := eg.Wait(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to load ledger: %w", err)
	}
	return ComputeTVL(deposits, withdrawals), nil
}

// MaxWithdrawable is the user's own confirmed deposits minus confirmed
// withdrawals, floored at zero.
func (g *Gateway) MaxWithdrawable(ctx context.Context, userID int64) (decimal.Decimal, error) {
	entries, err := g.store.Ledger.ListByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load user ledger: %w", err)
	}
	balance := ComputeTVL(entries, entries)
	if balance.IsNegative() {
		return decimal.Zero, nil
	}
	return balance, nil
}

func (g *Gateway) activeOptions(ctx context.Context) ([]*domain.Option, error) {
	return g.store.Options.List(ctx, domain.OptionFilter{
		Statuses: []domain.OptionStatus{domain.OptionStatusActive},
	})
}

// ActiveOptionsCount returns the number of active options.
func (g *Gateway) ActiveOptionsCount(ctx context.Context) (int, error) {
	active, err := g.activeOptions(ctx)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

// TotalPremium sums the premium of active options.
func (g *Gateway) TotalPremium(ctx context.Context) (decimal.Decimal, error) {
	active, err := g.activeOptions(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return sumPremium(active), nil
}

// ActiveLockedAmount sums the collateral locked by active options.
func (g *Gateway) ActiveLockedAmount(ctx context.Context) (decimal.Decimal, error) {
	active, err := g.activeOptions(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return sumLocked(active), nil
}

// DailyPremiumGrowth sums the premium of options created within the
// trailing 24 hours, whatever their status.
func (g *Gateway) DailyPremiumGrowth(ctx context.Context) (decimal.Decimal, error) {
	all, err := g.store.Options.List(ctx, domain.OptionFilter{})
	if err != nil {
		return decimal.Zero, err
	}
	return PremiumSince(all, g.now().Add(-PremiumWindow)), nil
}

// PremiumSince sums premium of options created at or after cutoff.
func PremiumSince(options []*domain.Option, cutoff time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, o := range options {
		if !o.CreatedAt.Before(cutoff) {
			total = total.Add(o.Premium)
		}
	}
	return total
}

// PercentageLocked is active locked amount / TVL × 100, or zero when TVL is zero.
func (g *Gateway) PercentageLocked(ctx context.Context) (decimal.Decimal, error) {
	s, err := g.Stats(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return s.PercentageLocked, nil
}

// EstimatedAPY annualises the daily premium growth against TVL.
func (g *Gateway) EstimatedAPY(ctx context.Context) (decimal.Decimal, error) {
	s, err := g.Stats(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return s.EstimatedAPY, nil
}

// Stats is a consistent snapshot of every derived figure.
type Stats struct {
	TotalValueLocked   decimal.Decimal `json:"total_value_locked"`
	ActiveOptions      int             `json:"active_options"`
	TotalPremium       decimal.Decimal `json:"total_premium"`
	DailyPremiumGrowth decimal.Decimal `json:"daily_premium_growth"`
	LockedAmount       decimal.Decimal `json:"locked_amount"`
	PercentageLocked   decimal.Decimal `json:"percentage_locked"`
	EstimatedAPY       decimal.Decimal `json:"estimated_apy"`
	Users              int             `json:"users"`
	ComputedAt         time.Time       `json:"computed_at"`
}

// Stats loads the ledger once and derives all figures from the same rows.
func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	var (
		tvl     decimal.Decimal
		options []*domain.Option
		users   int
	)
	now := g.now()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		tvl, err = g.TotalValueLocked(egCtx)
		return err
	})
	eg.Go(func() error {
		var err error
		options, err = g.store.Options.List(egCtx, domain.OptionFilter{})
		return err
	})
	eg.Go(func() error {
		var err error
		users, err = g.store.Users.Count(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	s := Summarize(tvl, options, now)
	s.Users = users
	return s, nil
}

// Summarize derives the option figures from a TVL and a full option list.
func Summarize(tvl decimal.Decimal, options []*domain.Option, now time.Time) Stats {
	var active []*domain.Option
	for _, o := range options {
		if o.Status == domain.OptionStatusActive {
			active = append(active, o)
		}
	}

	s := Stats{
		TotalValueLocked:   tvl,
		ActiveOptions:      len(active),
		TotalPremium:       sumPremium(active),
		DailyPremiumGrowth: PremiumSince(options, now.Add(-PremiumWindow)),
		LockedAmount:       sumLocked(active),
		PercentageLocked:   decimal.Zero,
		EstimatedAPY:       decimal.Zero,
		ComputedAt:         now,
	}
	if tvl.IsPositive() {
		s.PercentageLocked = s.LockedAmount.Div(tvl).Mul(hundred)
		s.EstimatedAPY = s.DailyPremiumGrowth.Div(tvl).Mul(decimal.NewFromInt(365)).Mul(hundred)
	}
	return s
}

func sumPremium(options []*domain.Option) decimal.Decimal {
	total := decimal.Zero
	for _, o := range options {
		total = total.Add(o.Premium)
	}
	return total
}

func sumLocked(options []*domain.Option) decimal.Decimal {
	total := decimal.Zero
	for _, o := range options {
		total = total.Add(o.LockedAmount)
	}
	return total
}
