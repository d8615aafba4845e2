package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/optionvault/internal/core/config"
	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/ledger"
)

func newQuoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":{"error_code":0,"error_message":null},
			"data":{"22691":{"quote":{"USD":{"price":0.5,"percent_change_24h":1.5}}}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mockConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Chain.Mock = true
	cfg.Chain.PollInterval = 5 * time.Millisecond
	cfg.Chain.ConfirmationTimeout = time.Second
	cfg.Pricing.BaseURL = newQuoteServer(t).URL
	cfg.Pricing.APIKey = "test"
	return cfg
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestApp_MockLifecycle(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, mockConfig(t))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Start(ctx); err == nil {
		t.Error("expected error on second Start")
	}

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp := post(t, srv.URL+"/sessions", map[string]string{"address": "0xabc"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("connect returned %d", resp.StatusCode)
	}

	resp = post(t, srv.URL+"/vault/deposit", map[string]string{"address": "0xabc", "amount": "3"})
	var entry domain.LedgerEntry
	_ = json.NewDecoder(resp.Body).Decode(&entry)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || entry.Status != domain.EntryStatusDeposit {
		t.Fatalf("deposit returned %d %+v", resp.StatusCode, entry)
	}

	stats, err := app.Ledger().Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Users != 1 || stats.TotalValueLocked.String() != "3" {
		t.Errorf("unexpected stats %+v", stats)
	}

	report := app.Monitor().CheckHealth(ctx)
	if h := report.Components["chain"]; h.Status != "healthy" {
		t.Errorf("chain health = %+v", h)
	}

	var page ledger.HistoryPage
	hr, err := http.Get(srv.URL + "/users/0xabc/history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	_ = json.NewDecoder(hr.Body).Decode(&page)
	hr.Body.Close()
	if page.TotalCount != 1 || page.PageSize != 10 {
		t.Errorf("unexpected history page %+v", page)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestNewApp_RequiresProviders(t *testing.T) {
	cfg := config.Default()
	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error without providers")
	}
}
