// Package rpc provides a resilient JSON-RPC client for the chain node.
//
//	router := routing.NewRouter()
//	router.AddProvider(rpc.NewHTTPProvider("primary", url, 30*time.Second))
//	client := rpc.NewClient(router)
//
//	var height uint64
//	err := client.Call(ctx, "starknet_blockNumber", nil, &height)
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/optionvault/internal/infra/rpc/provider"
	"github.com/vietddude/optionvault/internal/infra/rpc/routing"
)

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// RPCError is an error object returned by the node.
type RPCError = provider.RPCError

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// Client is the high-level interface for making RPC calls.
type Client struct {
	router routing.Router
	retry  routing.RetryConfig
}

// NewClient creates a new RPC client.
func NewClient(router routing.Router) *Client {
	return &Client{router: router, retry: routing.DefaultRetryConfig}
}

// WithRetry overrides the retry policy.
func (c *Client) WithRetry(cfg routing.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Call makes an RPC call with retry and failover and decodes the result
// into out. out may be nil.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	raw, err := routing.CallWithRetryAndFailover(ctx, c.router, method, params, c.retry)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// ProviderHealth returns health for every provider, keyed by name.
func (c *Client) ProviderHealth() map[string]provider.HealthStatus {
	out := make(map[string]provider.HealthStatus)
	for _, p := range c.router.GetAllProviders() {
		out[p.GetName()] = p.GetHealth()
	}
	return out
}
