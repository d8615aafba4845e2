package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a wallet that has connected at least once. Users are keyed by
// wallet address and never deleted. ActivePositions is not stored: the
// ledger counts the active options of the user's vault when loading.
type User struct {
	ID               int64           `json:"id"`
	WalletAddress    string          `json:"wallet_address"`
	FirstConnectedAt time.Time       `json:"first_connected_at"`
	LastConnectedAt  time.Time       `json:"last_connected_at"`
	CreatedAt        time.Time       `json:"created_at"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalBorrows     decimal.Decimal `json:"total_borrows"`
	ActivePositions  int             `json:"active_positions"`
}
