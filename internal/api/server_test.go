package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/chain/mockchain"
	"github.com/vietddude/optionvault/internal/infra/storage/memory"
	"github.com/vietddude/optionvault/internal/ledger"
	"github.com/vietddude/optionvault/internal/pricing"
	"github.com/vietddude/optionvault/internal/vault"
	"github.com/vietddude/optionvault/internal/view"
	"github.com/vietddude/optionvault/internal/wallet"
)

const testUser = "0xuser"

type staticFetcher struct{ price decimal.Decimal }

func (f staticFetcher) Latest(ctx context.Context, tokenID string) (*domain.Quote, error) {
	return &domain.Quote{TokenID: tokenID, Price: f.price, Source: domain.QuoteSourceLive, FetchedAt: time.Now()}, nil
}

type testEnv struct {
	srv   *httptest.Server
	chain *mockchain.Chain
	gw    *ledger.Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := memory.NewMemoryStorage()
	gw := ledger.NewGateway(mem.Store())
	chain := mockchain.New("mock")
	orch := vault.NewOrchestrator(vault.Config{
		VaultAddress:        "0xvault",
		TokenAddress:        "0xtoken",
		ConfirmationTimeout: 100 * time.Millisecond,
	}, gw, memory.NewPendingQueue(), vault.NewContracts(chain, "0xvault"))
	price := pricing.NewService(pricing.Config{TokenID: "1"}, staticFetcher{price: decimal.NewFromInt(2)}, nil)
	price.Refresh(context.Background())

	s := NewServer(Deps{
		Ledger:   gw,
		Sessions: wallet.NewManager(chain, chain.SignerFactory(), gw, 5*time.Millisecond),
		Vault:    orch,
		Price:    price,
		Stats:    view.NewStatsView(gw, price, time.Minute),
		Monitor:  NewMonitor(0),
	}, 0, time.Second)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, chain: chain, gw: gw}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	if code := e.do(t, http.MethodPost, "/sessions", connectRequest{Address: testUser}, nil); code != http.StatusCreated {
		t.Fatalf("connect returned %d", code)
	}
}

func TestServer_DepositFlow(t *testing.T) {
	e := newTestEnv(t)

	var errResp errorResponse
	code := e.do(t, http.MethodPost, "/vault/deposit", amountRequest{Address: testUser, Amount: "1"}, &errResp)
	if code != http.StatusUnauthorized || errResp.Error != "not_connected" {
		t.Fatalf("expected 401 not_connected, got %d %+v", code, errResp)
	}

	e.connect(t)

	var entry domain.LedgerEntry
	if code := e.do(t, http.MethodPost, "/vault/deposit", amountRequest{Address: testUser, Amount: "2.5"}, &entry); code != http.StatusCreated {
		t.Fatalf("deposit returned %d", code)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("unexpected entry %+v", entry)
	}

	var page ledger.HistoryPage
	if code := e.do(t, http.MethodGet, "/users/"+testUser+"/history?page=1&page_size=5", nil, &page); code != http.StatusOK {
		t.Fatalf("history returned %d", code)
	}
	if page.TotalCount != 1 {
		t.Errorf("expected 1 history entry, got %d", page.TotalCount)
	}

	var flow view.FlowSnapshot
	e.do(t, http.MethodGet, "/sessions/"+testUser+"/flow", nil, &flow)
	if flow.Status != view.StatusSuccess {
		t.Errorf("flow status = %s, want success", flow.Status)
	}
}

func TestServer_FlowErrors(t *testing.T) {
	e := newTestEnv(t)
	e.connect(t)

	tests := []struct {
		name   string
		script func()
		amount string
		status int
		code   string
	}{
		{"precision", nil, "0.0000000000000000001", http.StatusBadRequest, "precision"},
		{"zero", nil, "0", http.StatusBadRequest, "invalid_amount"},
		{"rejected", func() { e.chain.Script(vault.EntryApprove, mockchain.Reject) }, "1", http.StatusConflict, "wallet_rejected"},
		{"reverted", func() {
			e.chain.Script(vault.EntryApprove, mockchain.Succeed)
			e.chain.Script(vault.EntryTransfer, mockchain.Revert)
		}, "1", http.StatusUnprocessableEntity, "chain_reverted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.script != nil {
				tt.script()
			}
			var resp errorResponse
			code := e.do(t, http.MethodPost, "/vault/deposit", amountRequest{Address: testUser, Amount: tt.amount}, &resp)
			if code != tt.status || resp.Error != tt.code {
				t.Errorf("got %d %+v, want %d %s", code, resp, tt.status, tt.code)
			}
		})
	}

	var flow view.FlowSnapshot
	e.do(t, http.MethodGet, "/sessions/"+testUser+"/flow", nil, &flow)
	if flow.Status != view.StatusError {
		t.Errorf("flow status = %s, want error", flow.Status)
	}
}

func TestServer_OptionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.connect(t)

	if code := e.do(t, http.MethodPost, "/vault/deposit", amountRequest{Address: testUser, Amount: "10"}, nil); code != http.StatusCreated {
		t.Fatalf("deposit returned %d", code)
	}

	var opt domain.Option
	code := e.do(t, http.MethodPost, "/options", createOptionRequest{
		Address: testUser,
		CreateOptionRequest: vault.CreateOptionRequest{
			Kind: domain.OptionKindCall, StrikePrice: "0.5", Amount: "4", Premium: "0.1",
		},
	}, &opt)
	if code != http.StatusCreated || opt.Status != domain.OptionStatusActive {
		t.Fatalf("create option returned %d %+v", code, opt)
	}

	var listed []*domain.Option
	e.do(t, http.MethodGet, "/options?status=active", nil, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 active option, got %d", len(listed))
	}

	path := "/options/" + strconv.FormatInt(opt.ID, 10)
	var detailed struct {
		domain.Option
		OnChain *vault.OptionDetails `json:"onchain"`
	}
	if code := e.do(t, http.MethodGet, path, nil, &detailed); code != http.StatusOK {
		t.Fatalf("get option returned %d", code)
	}
	if detailed.ID != opt.ID || detailed.ChainOptionID == nil || detailed.OnChain == nil {
		t.Fatalf("expected on-chain details, got %+v", detailed)
	}
	if detailed.OnChain.Status != vault.OnChainActive || !detailed.OnChain.LockedAmount.Equal(decimal.NewFromInt(4)) {
		t.Errorf("unexpected on-chain details %+v", detailed.OnChain)
	}

	// Only the owning wallet may act on the option.
	const other = "0xother"
	if code := e.do(t, http.MethodPost, "/sessions", connectRequest{Address: other}, nil); code >= 300 {
		t.Fatalf("connect returned %d", code)
	}
	var denied errorResponse
	code = e.do(t, http.MethodPost, path+"/cancel", cancelRequest{Address: other}, &denied)
	if code != http.StatusForbidden || denied.Error != "not_option_owner" {
		t.Errorf("foreign cancel: got %d %+v", code, denied)
	}

	var cancelled domain.Option
	if code := e.do(t, http.MethodPost, path+"/cancel", cancelRequest{Address: testUser}, &cancelled); code != http.StatusOK {
		t.Fatalf("cancel returned %d", code)
	}
	if cancelled.Status != domain.OptionStatusExpired {
		t.Errorf("status = %s, want expired", cancelled.Status)
	}
	e.do(t, http.MethodGet, path, nil, &detailed)
	if detailed.OnChain == nil || detailed.OnChain.Status != vault.OnChainCancelled {
		t.Errorf("expected cancelled on-chain status, got %+v", detailed.OnChain)
	}

	var errResp errorResponse
	code = e.do(t, http.MethodPost, path+"/exercise", amountRequest{Address: testUser, Amount: "1"}, &errResp)
	if code != http.StatusConflict || errResp.Error != "invalid_transition" {
		t.Errorf("exercise after cancel: got %d %+v", code, errResp)
	}

	if code := e.do(t, http.MethodGet, "/options/999", nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown option, got %d", code)
	}
	if code := e.do(t, http.MethodGet, "/options/abc", nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", code)
	}
}

func TestServer_Sessions(t *testing.T) {
	e := newTestEnv(t)
	e.connect(t)

	if code := e.do(t, http.MethodDelete, "/sessions/"+testUser, nil, nil); code != http.StatusNoContent {
		t.Errorf("disconnect returned %d", code)
	}
	if code := e.do(t, http.MethodDelete, "/sessions/"+testUser, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("second disconnect returned %d", code)
	}
	if code := e.do(t, http.MethodPost, "/sessions", connectRequest{Address: " "}, nil); code != http.StatusUnauthorized {
		t.Errorf("empty address returned %d", code)
	}
}

func TestServer_StatsAndHealth(t *testing.T) {
	e := newTestEnv(t)

	var snap view.StatsSnapshot
	if code := e.do(t, http.MethodGet, "/stats", nil, &snap); code != http.StatusOK {
		t.Fatalf("stats returned %d", code)
	}
	if snap.Loading {
		t.Error("stats still loading after first request")
	}
	if !snap.Quote.Price.Equal(decimal.NewFromInt(2)) {
		t.Errorf("quote price = %s, want 2", snap.Quote.Price)
	}

	var q domain.Quote
	e.do(t, http.MethodGet, "/price", nil, &q)
	if q.Source != domain.QuoteSourceLive {
		t.Errorf("quote source = %s, want live", q.Source)
	}

	var health map[string]string
	if code := e.do(t, http.MethodGet, "/health", nil, &health); code != http.StatusOK || health["status"] != string(StatusHealthy) {
		t.Errorf("health returned %d %v", code, health)
	}

	if code := e.do(t, http.MethodGet, "/users/"+testUser+"/history?page=0", nil, nil); code != http.StatusBadRequest {
		t.Errorf("page 0 returned %d", code)
	}
}
