package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/vault"
)

const maxBodySize = 1 << 16

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Stats.Snapshot()
	if snap.Loading {
		snap = s.deps.Stats.Refresh(r.Context())
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Price.Current())
}

type connectRequest struct {
	Address string `json:"address"`
}

type connectResponse struct {
	SessionID string       `json:"session_id"`
	Address   string       `json:"address"`
	User      *domain.User `json:"user"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, user, err := s.deps.Sessions.Connect(r.Context(), req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	address, _ := sess.ActiveAddress()
	writeJSON(w, http.StatusCreated, connectResponse{SessionID: sess.ID(), Address: address, User: user})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	address := addressParam(r)
	if !s.deps.Sessions.Disconnect(address) {
		writeError(w, domain.ErrNotConnected)
		return
	}
	s.dropFlowState(address)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlowState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flowState(addressParam(r)).Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	size, err := intQuery(r, "page_size", s.deps.PageSize)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	hp, err := s.deps.Ledger.TransactionHistory(r.Context(), addressParam(r), page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hp)
}

type vaultResponse struct {
	Vault           *domain.Vault              `json:"vault"`
	MaxWithdrawable decimal.Decimal            `json:"max_withdrawable"`
	Loans           []*domain.Loan             `json:"loans"`
	Liquidations    []*domain.LiquidationEvent `json:"liquidations"`
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := addressParam(r)
	user, err := s.deps.Ledger.User(ctx, address)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Ledger.Vault(ctx, address)
	if err != nil {
		writeError(w, fmt.Errorf("%w: no vault for %s", domain.ErrUserNotFound, address))
		return
	}
	maxW, err := s.deps.Ledger.MaxWithdrawable(ctx, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	loans, err := s.deps.Ledger.Loans(ctx, v.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	liqs, err := s.deps.Ledger.Liquidations(ctx, v.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vaultResponse{Vault: v, MaxWithdrawable: maxW, Loans: loans, Liquidations: liqs})
}

func (s *Server) handleOnchainBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.deps.Vault.Contracts().UserBalanceOf(r.Context(), addressParam(r))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrChainSubmissionFailed, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": bal})
}

func (s *Server) handleOnchainVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := s.deps.Vault.Contracts()
	supply, err := c.TotalSupply(ctx)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrChainSubmissionFailed, err))
		return
	}
	locked, err := c.TotalLocked(ctx)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrChainSubmissionFailed, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"total_supply": supply, "total_locked": locked})
}

func (s *Server) handleListOptions(w http.ResponseWriter, r *http.Request) {
	var filter domain.OptionFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.OptionStatus(strings.TrimSpace(st)))
		}
	}
	if raw := r.URL.Query().Get("vault_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "invalid vault_id")
			return
		}
		filter.VaultID = id
	}
	opts, err := s.deps.Ledger.ListOptions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if opts == nil {
		opts = []*domain.Option{}
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleGetOption(w http.ResponseWriter, r *http.Request) {
	id, ok := optionID(w, r)
	if !ok {
		return
	}
	opt, err := s.deps.Ledger.GetOption(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := optionResponse{Option: opt}
	if contracts := s.deps.Vault.Contracts(); contracts != nil && opt.ChainOptionID != nil {
		details, err := contracts.OptionDetails(r.Context(), *opt.ChainOptionID)
		if err != nil {
			s.logger.Warn("Failed to read on-chain option", "id", id, "chain_option_id", *opt.ChainOptionID, "error", err)
		} else {
			resp.OnChain = details
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// optionResponse is the ledger row plus, when readable, the contract's view
// of the same option.
type optionResponse struct {
	*domain.Option
	OnChain *vault.OptionDetails `json:"onchain,omitempty"`
}

type amountRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type createOptionRequest struct {
	Address string `json:"address"`
	vault.CreateOptionRequest
}

type cancelRequest struct {
	Address string `json:"address"`
}

// runFlow resolves the caller's session, guards against concurrent flows
// for the same address and records the outcome in the flow state.
func (s *Server) runFlow(
	w http.ResponseWriter,
	r *http.Request,
	address string,
	status int,
	fn func(sess vault.Session) (any, error),
) {
	sess, err := s.deps.Sessions.Get(address)
	if err != nil {
		writeError(w, err)
		return
	}
	fs := s.flowState(address)
	if !fs.Begin() {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "flow_in_progress",
			Message: "another action is still running for this wallet",
		})
		return
	}

	result, err := fn(sess)
	fs.Finish("", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, result)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runFlow(w, r, req.Address, http.StatusCreated, func(sess vault.Session) (any, error) {
		return s.deps.Vault.Deposit(r.Context(), sess, req.Amount)
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runFlow(w, r, req.Address, http.StatusCreated, func(sess vault.Session) (any, error) {
		return s.deps.Vault.Withdraw(r.Context(), sess, req.Amount)
	})
}

func (s *Server) handleCreateOption(w http.ResponseWriter, r *http.Request) {
	var req createOptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runFlow(w, r, req.Address, http.StatusCreated, func(sess vault.Session) (any, error) {
		return s.deps.Vault.CreateOption(r.Context(), sess, req.CreateOptionRequest)
	})
}

func (s *Server) handleExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := optionID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runFlow(w, r, req.Address, http.StatusOK, func(sess vault.Session) (any, error) {
		return s.deps.Vault.ExerciseOption(r.Context(), sess, id, req.Amount)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := optionID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.runFlow(w, r, req.Address, http.StatusOK, func(sess vault.Session) (any, error) {
		return s.deps.Vault.CancelOption(r.Context(), sess, id)
	})
}

func optionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid option id")
		return 0, false
	}
	return id, true
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}
