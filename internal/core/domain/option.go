package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OptionKind string

const (
	OptionKindCall OptionKind = "call"
	OptionKindPut  OptionKind = "put"
)

// Valid reports whether k is a known option kind.
func (k OptionKind) Valid() bool {
	return k == OptionKindCall || k == OptionKindPut
}

type OptionStatus string

const (
	OptionStatusPending   OptionStatus = "pending"
	OptionStatusActive    OptionStatus = "active"
	OptionStatusExercised OptionStatus = "exercised"
	OptionStatusExpired   OptionStatus = "expired"
)

// optionTransitions lists the statuses reachable from each status.
// Exercised and expired are terminal.
var optionTransitions = map[OptionStatus][]OptionStatus{
	OptionStatusPending: {OptionStatusActive, OptionStatusExpired},
	OptionStatusActive:  {OptionStatusExercised, OptionStatusExpired},
}

// CanTransitionOption checks if an option may move from one status to another.
func CanTransitionOption(from, to OptionStatus) bool {
	for _, target := range optionTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Option is a written option backed by vault collateral.
//
// ChainOptionID is nil when the id the contract assigned could not be
// established; such an option cannot be exercised or cancelled. TxHash is
// the hash of the last confirmed action, CreateTxHash that of the creating
// transaction.
type Option struct {
	ID              int64           `json:"id"`
	VaultID         int64           `json:"vault_id"`
	ChainOptionID   *uint64         `json:"chain_option_id"`
	Kind            OptionKind      `json:"option_type"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	ExpiryBlock     uint64          `json:"expiry_block"`
	ExpiryTimestamp time.Time       `json:"expiry_timestamp"`
	Premium         decimal.Decimal `json:"premium"`
	LockedAmount    decimal.Decimal `json:"locked_amount"`
	Status          OptionStatus    `json:"status"`
	TxHash          string          `json:"tx_hash"`
	CreateTxHash    string          `json:"create_tx_hash"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OptionFilter narrows option listings. Zero values match everything.
type OptionFilter struct {
	VaultID  int64
	Statuses []OptionStatus
}
