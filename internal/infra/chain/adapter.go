package chain

import (
	"github.com/vietddude/optionvault/internal/wallet"
)

// Adapter is the node boundary: reads, block height and receipts.
// Implemented by the Starknet JSON-RPC adapter and the in-memory mock chain.
type Adapter interface {
	wallet.Chain

	// Network returns the network name, e.g. "starknet-sepolia"
	Network() string
}
