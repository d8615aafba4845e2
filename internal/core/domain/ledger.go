package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind distinguishes the two ledger tables.
type EntryKind string

const (
	EntryKindDeposit  EntryKind = "deposit"
	EntryKindWithdraw EntryKind = "withdraw"
)

// EntryStatus is the lifecycle of a deposit or withdrawal row. Confirmed rows
// carry the kind name as their status, matching the stored procedure.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusDeposit   EntryStatus = "deposit"
	EntryStatusWithdrawn EntryStatus = "withdraw"
)

// ConfirmedStatus returns the status a confirmed row of kind k carries.
func (k EntryKind) ConfirmedStatus() EntryStatus {
	if k == EntryKindWithdraw {
		return EntryStatusWithdrawn
	}
	return EntryStatusDeposit
}

// LedgerEntry is a Deposit or Withdrawal record. Seq is a store-wide
// insertion sequence shared by both tables.
type LedgerEntry struct {
	ID           int64           `json:"id"`
	Seq          int64           `json:"-"`
	Kind         EntryKind       `json:"type"`
	UserID       int64           `json:"user_id"`
	TokenAddress string          `json:"token_address"`
	Amount       decimal.Decimal `json:"amount"`
	Status       EntryStatus     `json:"status"`
	TxHash       string          `json:"tx_hash"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IsConfirmed reports whether the entry counts towards balances.
func (e *LedgerEntry) IsConfirmed() bool {
	return e.Status == e.Kind.ConfirmedStatus()
}
