// Package provider implements RPC provider interfaces.
//
// This package contains:
//   - Provider interface: core abstraction for JSON-RPC endpoints
//   - HTTPProvider: JSON-RPC 2.0 over HTTP implementation
//   - ProviderMonitor: health and rate tracking
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Provider defines the interface for a JSON-RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "blast", "nethermind")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Call makes a single RPC request and returns the raw result
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Close cleans up resources
	Close() error
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
