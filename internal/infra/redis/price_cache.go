package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// PriceCache keeps the last good quote per token.
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

// NewPriceCache creates a cache whose entries expire after ttl. A zero ttl
// keeps entries until overwritten.
func NewPriceCache(client *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: client, ttl: ttl}
}

func (p *PriceCache) key(tokenID string) string {
	return p.c.key("price", tokenID)
}

// Get returns the cached quote, or false if none is stored.
func (p *PriceCache) Get(ctx context.Context, tokenID string) (*domain.Quote, bool, error) {
	data, err := p.c.rdb.Get(ctx, p.key(tokenID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached price: %w", err)
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached price: %w", err)
	}
	return &q, true, nil
}

// Set stores a quote.
func (p *PriceCache) Set(ctx context.Context, q *domain.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal price: %w", err)
	}
	if err := p.c.rdb.Set(ctx, p.key(q.TokenID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache price: %w", err)
	}
	return nil
}
