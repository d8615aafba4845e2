package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingWrite is a ledger write whose on-chain transaction already
// confirmed. It is replayed until the ledger accepts it.
type PendingWrite struct {
	ID        string    `json:"id"`
	Flow      FlowKind  `json:"flow"`
	TxHash    string    `json:"tx_hash"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Deposit and withdraw.
	UserID       int64           `json:"user_id,omitempty"`
	TokenAddress string          `json:"token_address,omitempty"`
	Amount       decimal.Decimal `json:"amount"`

	// Option flows.
	Option   *Option      `json:"option,omitempty"`
	OptionID int64        `json:"option_id,omitempty"`
	From     OptionStatus `json:"from,omitempty"`
	To       OptionStatus `json:"to,omitempty"`
}
