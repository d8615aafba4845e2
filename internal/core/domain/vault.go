package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StrategyType string

const (
	StrategyCoveredCall   StrategyType = "covered_call"
	StrategyProtectivePut StrategyType = "protective_put"
	StrategyCollar        StrategyType = "collar"
)

type VaultStatus string

const (
	VaultStatusActive     VaultStatus = "active"
	VaultStatusLiquidated VaultStatus = "liquidated"
	VaultStatusClosed     VaultStatus = "closed"
)

// Vault holds a user's collateral. CollateralAmount is kept in step with the
// user's confirmed deposits and withdrawals.
type Vault struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	StrategyType     StrategyType    `json:"strategy_type"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	CollateralToken  string          `json:"collateral_token"`
	PremiumEarned    decimal.Decimal `json:"premium_earned"`
	Status           VaultStatus     `json:"status"`
	TxHash           string          `json:"tx_hash"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "active"
	LoanStatusRepaid     LoanStatus = "repaid"
	LoanStatusLiquidated LoanStatus = "liquidated"
)

// Loan is borrowed against a vault.
type Loan struct {
	ID             int64           `json:"id"`
	VaultID        int64           `json:"vault_id"`
	Amount         decimal.Decimal `json:"amount"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	StartTimestamp time.Time       `json:"start_timestamp"`
	EndTimestamp   time.Time       `json:"end_timestamp"`
	Status         LoanStatus      `json:"status"`
	TxHash         string          `json:"tx_hash"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LiquidationEvent records a vault liquidation.
type LiquidationEvent struct {
	ID                int64           `json:"id"`
	VaultID           int64           `json:"vault_id"`
	LoanID            int64           `json:"loan_id"`
	LiquidationPrice  decimal.Decimal `json:"liquidation_price"`
	LiquidationAmount decimal.Decimal `json:"liquidation_amount"`
	LiquidatorAddress string          `json:"liquidator_address"`
	TxHash            string          `json:"tx_hash"`
	CreatedAt         time.Time       `json:"created_at"`
}
