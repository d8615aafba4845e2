package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/ledger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
}

type reconciliationResponse struct {
	Warning   string `json:"warning"`
	Message   string `json:"message"`
	TxHash    string `json:"tx_hash"`
	PendingID string `json:"pending_id,omitempty"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotConnected, http.StatusUnauthorized, "not_connected"},
	{domain.ErrWalletRejected, http.StatusConflict, "wallet_rejected"},
	{domain.ErrChainReverted, http.StatusUnprocessableEntity, "chain_reverted"},
	{domain.ErrConfirmationTimeout, http.StatusGatewayTimeout, "confirmation_timeout"},
	{domain.ErrChainSubmissionFailed, http.StatusBadGateway, "submission_failed"},
	{domain.ErrPrecision, http.StatusBadRequest, "precision"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domain.ErrInsufficientBalance, http.StatusBadRequest, "insufficient_balance"},
	{domain.ErrLockLimitExceeded, http.StatusBadRequest, "lock_limit_exceeded"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrOptionNotFound, http.StatusNotFound, "option_not_found"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{domain.ErrOptionIDUnknown, http.StatusConflict, "option_id_unknown"},
	{domain.ErrNotOptionOwner, http.StatusForbidden, "not_option_owner"},
	{ledger.ErrInvalidPage, http.StatusBadRequest, "invalid_page"},
}

func statusFor(err error) (int, string) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.status, ec.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError maps err onto a status code. A reconciliation gap is not a
// failure from the caller's point of view: the transaction went through.
func writeError(w http.ResponseWriter, err error) {
	var rerr *domain.ReconciliationError
	if errors.As(err, &rerr) {
		writeJSON(w, http.StatusAccepted, reconciliationResponse{
			Warning:   "ledger_write_pending",
			Message:   rerr.Error(),
			TxHash:    rerr.TxHash,
			PendingID: rerr.PendingID,
		})
		return
	}

	status, code := statusFor(err)
	resp := errorResponse{Error: code, Message: err.Error()}
	var ferr *domain.FlowError
	if errors.As(err, &ferr) {
		resp.Step = ferr.Step
		resp.TxHash = ferr.TxHash
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}
