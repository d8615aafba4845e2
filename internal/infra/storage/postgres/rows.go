package postgres

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
)

type userRow struct {
	ID               int64           `db:"id"`
	WalletAddress    string          `db:"wallet_address"`
	FirstConnectedAt time.Time       `db:"first_connected_at"`
	LastConnectedAt  time.Time       `db:"last_connected_at"`
	CreatedAt        time.Time       `db:"created_at"`
	TotalDeposits    decimal.Decimal `db:"total_deposits"`
	TotalBorrows     decimal.Decimal `db:"total_borrows"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:               r.ID,
		WalletAddress:    r.WalletAddress,
		FirstConnectedAt: r.FirstConnectedAt,
		LastConnectedAt:  r.LastConnectedAt,
		CreatedAt:        r.CreatedAt,
		TotalDeposits:    r.TotalDeposits,
		TotalBorrows:     r.TotalBorrows,
	}
}

type entryRow struct {
	ID           int64           `db:"id"`
	Seq          int64           `db:"seq"`
	Kind         string          `db:"kind"`
	UserID       int64           `db:"user_id"`
	TokenAddress string          `db:"token_address"`
	Amount       decimal.Decimal `db:"amount"`
	Status       string          `db:"status"`
	TxHash       string          `db:"tx_hash"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r entryRow) toDomain() *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:           r.ID,
		Seq:          r.Seq,
		Kind:         domain.EntryKind(r.Kind),
		UserID:       r.UserID,
		TokenAddress: r.TokenAddress,
		Amount:       r.Amount,
		Status:       domain.EntryStatus(r.Status),
		TxHash:       r.TxHash,
		CreatedAt:    r.CreatedAt,
	}
}

type optionRow struct {
	ID              int64           `db:"id"`
	VaultID         int64           `db:"vault_id"`
	ChainOptionID   sql.NullInt64   `db:"chain_option_id"`
	OptionType      string          `db:"option_type"`
	StrikePrice     decimal.Decimal `db:"strike_price"`
	ExpiryBlock     int64           `db:"expiry_block"`
	ExpiryTimestamp sql.NullTime    `db:"expiry_timestamp"`
	Premium         decimal.Decimal `db:"premium"`
	LockedAmount    decimal.Decimal `db:"locked_amount"`
	Status          string          `db:"status"`
	TxHash          string          `db:"tx_hash"`
	CreateTxHash    string          `db:"create_tx_hash"`
	CreatedAt       time.Time       `db:"created_at"`
}

func (r optionRow) toDomain() *domain.Option {
	o := &domain.Option{
		ID:           r.ID,
		VaultID:      r.VaultID,
		Kind:         domain.OptionKind(r.OptionType),
		StrikePrice:  r.StrikePrice,
		ExpiryBlock:  uint64(r.ExpiryBlock),
		Premium:      r.Premium,
		LockedAmount: r.LockedAmount,
		Status:       domain.OptionStatus(r.Status),
		TxHash:       r.TxHash,
		CreateTxHash: r.CreateTxHash,
		CreatedAt:    r.CreatedAt,
	}
	if r.ChainOptionID.Valid {
		id := uint64(r.ChainOptionID.Int64)
		o.ChainOptionID = &id
	}
	if r.ExpiryTimestamp.Valid {
		o.ExpiryTimestamp = r.ExpiryTimestamp.Time
	}
	return o
}

type vaultRow struct {
	ID               int64           `db:"id"`
	UserID           int64           `db:"user_id"`
	StrategyType     string          `db:"strategy_type"`
	CollateralAmount decimal.Decimal `db:"collateral_amount"`
	CollateralToken  string          `db:"collateral_token"`
	PremiumEarned    decimal.Decimal `db:"premium_earned"`
	Status           string          `db:"status"`
	TxHash           string          `db:"tx_hash"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r vaultRow) toDomain() *domain.Vault {
	return &domain.Vault{
		ID:               r.ID,
		UserID:           r.UserID,
		StrategyType:     domain.StrategyType(r.StrategyType),
		CollateralAmount: r.CollateralAmount,
		CollateralToken:  r.CollateralToken,
		PremiumEarned:    r.PremiumEarned,
		Status:           domain.VaultStatus(r.Status),
		TxHash:           r.TxHash,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type loanRow struct {
	ID             int64           `db:"id"`
	VaultID        int64           `db:"vault_id"`
	Amount         decimal.Decimal `db:"amount"`
	InterestRate   decimal.Decimal `db:"interest_rate"`
	StartTimestamp time.Time       `db:"start_timestamp"`
	EndTimestamp   time.Time       `db:"end_timestamp"`
	Status         string          `db:"status"`
	TxHash         string          `db:"tx_hash"`
	CreatedAt      time.Time       `db:"created_at"`
}

type liquidationRow struct {
	ID                int64           `db:"id"`
	VaultID           int64           `db:"vault_id"`
	LoanID            int64           `db:"loan_id"`
	LiquidationPrice  decimal.Decimal `db:"liquidation_price"`
	LiquidationAmount decimal.Decimal `db:"liquidation_amount"`
	LiquidatorAddress string          `db:"liquidator_address"`
	TxHash            string          `db:"tx_hash"`
	CreatedAt         time.Time       `db:"created_at"`
}
