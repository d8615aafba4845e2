// Package pricing fetches the USD price of the vault token and keeps the
// last good quote around for when the quote API is down.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
)

const maxQuoteResponseSize = 1 << 20

// Client is a CoinMarketCap quotes client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type quotesResponse struct {
	Status struct {
		ErrorCode    int     `json:"error_code"`
		ErrorMessage *string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Quote struct {
			USD struct {
				Price            decimal.Decimal `json:"price"`
				PercentChange24h decimal.Decimal `json:"percent_change_24h"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

func (r *quotesResponse) errorMessage() string {
	if r.Status.ErrorMessage != nil && *r.Status.ErrorMessage != "" {
		return *r.Status.ErrorMessage
	}
	return ""
}

// Latest fetches the latest USD quote for tokenID.
func (c *Client) Latest(ctx context.Context, tokenID string) (*domain.Quote, error) {
	q := url.Values{}
	q.Set("id", tokenID)
	q.Set("convert", "USD")
	endpoint := c.baseURL + "/cryptocurrency/quotes/latest?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxQuoteResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}

	var parsed quotesResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && parsed.errorMessage() != "" {
			return nil, fmt.Errorf("quote api: %s", parsed.errorMessage())
		}
		return nil, fmt.Errorf("quote api: http %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("parse quote response: %w", decodeErr)
	}
	if parsed.Status.ErrorCode != 0 {
		msg := parsed.errorMessage()
		if msg == "" {
			msg = "error fetching price data"
		}
		return nil, fmt.Errorf("quote api error %d: %s", parsed.Status.ErrorCode, msg)
	}

	data, ok := parsed.Data[tokenID]
	if !ok {
		return nil, fmt.Errorf("no price data for token %s", tokenID)
	}
	return &domain.Quote{
		TokenID:          tokenID,
		Price:            data.Quote.USD.Price,
		PercentChange24h: data.Quote.USD.PercentChange24h,
		Source:           domain.QuoteSourceLive,
		FetchedAt:        time.Now().UTC(),
	}, nil
}
