// Package wallet defines the boundary to the wallet provider and the chain
// node, and the explicit session object flows run against.
package wallet

import (
	"context"
	"time"
)

// Call is a single contract invocation.
type Call struct {
	ContractAddress string   `json:"contract_address"`
	Entrypoint      string   `json:"entry_point"`
	Calldata        []string `json:"calldata"`
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash        string
	SubmittedAt time.Time
}

type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionReverted  ExecutionStatus = "REVERTED"
)

// Receipt is the outcome of an included transaction.
type Receipt struct {
	TxHash       string
	BlockNumber  uint64
	Status       ExecutionStatus
	RevertReason string
	Events       []Event
}

// Event is one event emitted by a transaction. Keys[0] is the selector of
// the event name.
type Event struct {
	FromAddress string
	Keys        []string
	Data        []string
}

// Signer is the wallet provider. Execute signs and submits the calls as one
// transaction and returns its hash. Implementations return errors wrapping
// domain.ErrWalletRejected when the user declines.
type Signer interface {
	Address() string
	Execute(ctx context.Context, calls []Call) (string, error)
}

// Chain is the node used for reads and confirmation polling.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	// TransactionReceipt returns nil, nil while the transaction is unknown.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	Call(ctx context.Context, call Call) ([]string, error)
}
