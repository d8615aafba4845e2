// Package starknet talks to a Starknet node over JSON-RPC and to a wallet
// bridge that signs invoke transactions.
package starknet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/optionvault/internal/infra/rpc"
	"github.com/vietddude/optionvault/internal/metrics"
	"github.com/vietddude/optionvault/internal/wallet"
)

// Node error codes.
const (
	codeTxHashNotFound = 29
)

// RPCClient is the subset of rpc.Client the adapter needs.
type RPCClient interface {
	Call(ctx context.Context, method string, params any, out any) error
}

type Adapter struct {
	client  RPCClient
	network string
	log     *slog.Logger
}

func NewAdapter(client RPCClient, network string) *Adapter {
	return &Adapter{
		client:  client,
		network: network,
		log:     slog.Default().With("component", "starknet", "network", network),
	}
}

func (a *Adapter) Network() string { return a.network }

func (a *Adapter) BlockNumber(ctx context.Context) (uint64, error) {
	var height uint64
	if err := a.client.Call(ctx, "starknet_blockNumber", []any{}, &height); err != nil {
		return 0, fmt.Errorf("starknet_blockNumber failed: %w", err)
	}
	metrics.ChainLatestBlock.Set(float64(height))
	return height, nil
}

type receiptResult struct {
	TransactionHash string  `json:"transaction_hash"`
	ExecutionStatus string  `json:"execution_status"`
	FinalityStatus  string  `json:"finality_status"`
	BlockNumber     *uint64 `json:"block_number"`
	RevertReason    string  `json:"revert_reason"`
	Events          []struct {
		FromAddress string   `json:"from_address"`
		Keys        []string `json:"keys"`
		Data        []string `json:"data"`
	} `json:"events"`
}

// TransactionReceipt returns nil, nil until the transaction is accepted on L2.
func (a *Adapter) TransactionReceipt(ctx context.Context, txHash string) (*wallet.Receipt, error) {
	var res receiptResult
	err := a.client.Call(ctx, "starknet_getTransactionReceipt",
		map[string]any{"transaction_hash": txHash}, &res)
	if err != nil {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == codeTxHashNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("starknet_getTransactionReceipt failed: %w", err)
	}

	switch res.FinalityStatus {
	case "ACCEPTED_ON_L2", "ACCEPTED_ON_L1":
	default:
		a.log.Debug("Transaction not final yet", "tx_hash", txHash, "finality", res.FinalityStatus)
		return nil, nil
	}

	receipt := &wallet.Receipt{
		TxHash:       txHash,
		Status:       wallet.ExecutionStatus(res.ExecutionStatus),
		RevertReason: res.RevertReason,
	}
	if res.BlockNumber != nil {
		receipt.BlockNumber = *res.BlockNumber
	}
	for _, ev := range res.Events {
		receipt.Events = append(receipt.Events, wallet.Event{
			FromAddress: ev.FromAddress,
			Keys:        ev.Keys,
			Data:        ev.Data,
		})
	}
	return receipt, nil
}

// Call runs a read-only entry point against the latest block.
func (a *Adapter) Call(ctx context.Context, call wallet.Call) ([]string, error) {
	calldata := call.Calldata
	if calldata == nil {
		calldata = []string{}
	}
	params := map[string]any{
		"request": map[string]any{
			"contract_address":     call.ContractAddress,
			"entry_point_selector": Selector(call.Entrypoint),
			"calldata":             calldata,
		},
		"block_id": "latest",
	}

	var out []string
	if err := a.client.Call(ctx, "starknet_call", params, &out); err != nil {
		return nil, fmt.Errorf("starknet_call %s failed: %w", call.Entrypoint, err)
	}
	return out, nil
}
