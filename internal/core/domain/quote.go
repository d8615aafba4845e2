package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSource tells where a price quote came from.
type QuoteSource string

const (
	QuoteSourceLive     QuoteSource = "live"
	QuoteSourceCache    QuoteSource = "cache"
	QuoteSourceFallback QuoteSource = "fallback"
)

// Quote is the USD price of the vault token.
type Quote struct {
	TokenID          string          `json:"token_id"`
	Price            decimal.Decimal `json:"price"`
	PercentChange24h decimal.Decimal `json:"percent_change_24h"`
	Source           QuoteSource     `json:"source"`
	FetchedAt        time.Time       `json:"fetched_at"`
}
