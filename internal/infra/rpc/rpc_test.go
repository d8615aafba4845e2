package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/optionvault/internal/infra/rpc/routing"
)

func TestClient_FailoverDecodes(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": 42})
	}))
	defer up.Close()

	router := routing.NewRouter()
	router.AddProvider(NewHTTPProvider("down", down.URL, time.Second))
	router.AddProvider(NewHTTPProvider("up", up.URL, time.Second))
	client := NewClient(router).WithRetry(routing.RetryConfig{MaxAttempts: 1})

	// Round robin means either provider may go first; both orders must succeed.
	for range 2 {
		var height uint64
		if err := client.Call(context.Background(), "starknet_blockNumber", nil, &height); err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if height != 42 {
			t.Errorf("expected 42, got %d", height)
		}
	}

	health := client.ProviderHealth()
	if len(health) != 2 {
		t.Errorf("expected health for 2 providers, got %d", len(health))
	}
}
