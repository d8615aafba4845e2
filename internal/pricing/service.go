package pricing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/metrics"
)

// Fetcher returns a live quote. *Client implements it.
type Fetcher interface {
	Latest(ctx context.Context, tokenID string) (*domain.Quote, error)
}

// Cache stores the last good quote. The redis PriceCache and MemoryCache
// implement it.
type Cache interface {
	Get(ctx context.Context, tokenID string) (*domain.Quote, bool, error)
	Set(ctx context.Context, q *domain.Quote) error
}

// Config for the price service.
type Config struct {
	TokenID        string
	Interval       time.Duration
	FallbackPrice  decimal.Decimal
	FallbackChange decimal.Decimal
}

// Service answers price queries without ever failing: a live quote when
// the API answers, else the cached one, else the configured fallback.
type Service struct {
	cfg     Config
	fetcher Fetcher
	cache   Cache
	logger  *slog.Logger

	mu      sync.RWMutex
	current domain.Quote
	lastErr error
}

func NewService(cfg Config, fetcher Fetcher, cache Cache) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	s := &Service{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   cache,
		logger:  slog.Default().With("component", "pricing", "token", cfg.TokenID),
	}
	s.current = s.fallback()
	return s
}

func (s *Service) fallback() domain.Quote {
	return domain.Quote{
		TokenID:          s.cfg.TokenID,
		Price:            s.cfg.FallbackPrice,
		PercentChange24h: s.cfg.FallbackChange,
		Source:           domain.QuoteSourceFallback,
		FetchedAt:        time.Now().UTC(),
	}
}

// Refresh fetches a new quote and returns whichever quote is now current.
func (s *Service) Refresh(ctx context.Context) domain.Quote {
	q, err := s.fetcher.Latest(ctx, s.cfg.TokenID)
	if err == nil {
		if cacheErr := s.cache.Set(ctx, q); cacheErr != nil {
			s.logger.Warn("Failed to cache price", "error", cacheErr)
		}
		s.set(*q, nil)
		return *q
	}

	metrics.PriceFetchErrors.Inc()
	s.logger.Warn("Price fetch failed, using fallback", "error", err)

	cached, ok, cacheErr := s.cache.Get(ctx, s.cfg.TokenID)
	if cacheErr != nil {
		s.logger.Warn("Failed to read cached price", "error", cacheErr)
	}
	if ok && cached != nil {
		cached.Source = domain.QuoteSourceCache
		s.set(*cached, err)
		return *cached
	}

	fb := s.fallback()
	s.set(fb, err)
	return fb
}

func (s *Service) set(q domain.Quote, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = q
	s.lastErr = err
}

// Current returns the last quote without fetching.
func (s *Service) Current() domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastError returns the error of the last refresh, if it failed.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Start refreshes immediately and then on every interval until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{quotes: make(map[string]domain.Quote)}
}

func (c *MemoryCache) Get(ctx context.Context, tokenID string) (*domain.Quote, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[tokenID]
	if !ok {
		return nil, false, nil
	}
	return &q, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, q *domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.TokenID] = *q
	return nil
}
