package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWalletRejected is returned when the signer declines a request.
	ErrWalletRejected = errors.New("wallet rejected the request")
	// ErrChainSubmissionFailed covers network and node failures while submitting.
	ErrChainSubmissionFailed = errors.New("chain submission failed")
	// ErrChainReverted is returned when a transaction was included but reverted.
	ErrChainReverted = errors.New("transaction reverted")
	// ErrConfirmationTimeout means the outcome of a submitted transaction is unknown.
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	// ErrLedgerWriteFailed means the chain accepted the transaction but the
	// ledger record could not be written.
	ErrLedgerWriteFailed = errors.New("ledger write failed")
	// ErrPrecision is returned when an amount has more fractional digits than
	// the token supports.
	ErrPrecision = errors.New("amount exceeds token precision")

	ErrNotConnected        = errors.New("wallet not connected")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("amount exceeds withdrawable balance")
	ErrLockLimitExceeded   = errors.New("locked value would exceed vault limit")
	ErrInvalidTransition   = errors.New("invalid option status transition")
	ErrOptionNotFound      = errors.New("option not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrOptionIDUnknown     = errors.New("on-chain option id unknown")
	ErrNotOptionOwner      = errors.New("option belongs to another vault")
)

// FlowError reports the step of a flow that failed. It unwraps to one of the
// sentinel errors above.
type FlowError struct {
	Flow   FlowKind
	Step   string
	TxHash string
	Err    error
}

func (e *FlowError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s: %s (tx %s): %v", e.Flow, e.Step, e.TxHash, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Flow, e.Step, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

// ReconciliationError is returned when the on-chain part of a flow succeeded
// but its ledger write did not. The chain and the ledger disagree until the
// write is replayed.
type ReconciliationError struct {
	Flow      FlowKind
	TxHash    string
	PendingID string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s confirmed on-chain (tx %s) but ledger write failed: %v", e.Flow, e.TxHash, e.Err)
}

func (e *ReconciliationError) Unwrap() []error { return []error{ErrLedgerWriteFailed, e.Err} }
