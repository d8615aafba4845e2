package starknet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/rpc"
	"github.com/vietddude/optionvault/internal/wallet"
)

// Wallet API error codes.
const (
	codeUserRefusedOp = 113
)

// RemoteSigner submits invoke transactions through a wallet bridge that
// speaks the wallet_* JSON-RPC methods. Submissions are never retried.
type RemoteSigner struct {
	address  string
	provider rpc.Provider
}

func NewRemoteSigner(provider rpc.Provider, address string) *RemoteSigner {
	return &RemoteSigner{address: address, provider: provider}
}

func (s *RemoteSigner) Address() string { return s.address }

type invokeCall struct {
	ContractAddress string   `json:"contract_address"`
	EntryPoint      string   `json:"entry_point"`
	Calldata        []string `json:"calldata"`
}

func (s *RemoteSigner) Execute(ctx context.Context, calls []wallet.Call) (string, error) {
	payload := make([]invokeCall, len(calls))
	for i, c := range calls {
		payload[i] = invokeCall{ContractAddress: c.ContractAddress, EntryPoint: c.Entrypoint, Calldata: c.Calldata}
		if payload[i].Calldata == nil {
			payload[i].Calldata = []string{}
		}
	}

	raw, err := s.provider.Call(ctx, "wallet_addInvokeTransaction", map[string]any{"calls": payload})
	if err != nil {
		return "", classifyWalletError(err)
	}

	var res struct {
		TransactionHash string `json:"transaction_hash"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("%w: decode wallet response: %v", domain.ErrChainSubmissionFailed, err)
	}
	return res.TransactionHash, nil
}

func classifyWalletError(err error) error {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		if rpcErr.Code == codeUserRefusedOp || strings.Contains(msg, "refused") || strings.Contains(msg, "rejected") {
			return fmt.Errorf("%w: %s", domain.ErrWalletRejected, rpcErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrChainSubmissionFailed, err)
}

// NewSignerFactory opens a RemoteSigner per connected address against the
// bridge at endpoint. The account is passed in the X-Account-Address header.
func NewSignerFactory(endpoint string, timeout time.Duration) wallet.SignerFactory {
	return func(ctx context.Context, address string) (wallet.Signer, error) {
		if endpoint == "" {
			return nil, fmt.Errorf("no wallet bridge configured")
		}
		p := rpc.NewHTTPProvider("wallet-bridge", endpoint, timeout).
			WithHeader("X-Account-Address", address)
		return NewRemoteSigner(p, address), nil
	}
}
