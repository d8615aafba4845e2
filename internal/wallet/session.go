package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/optionvault/internal/core/domain"
)

const defaultPollInterval = 3 * time.Second

// Session is one connected wallet. It is created on connect and closed on
// disconnect; nothing about the connection lives outside it.
type Session struct {
	id           string
	address      string
	signer       Signer
	chain        Chain
	pollInterval time.Duration
	connectedAt  time.Time
	logger       *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSession binds a signer and a chain into a session.
func NewSession(signer Signer, chain Chain, pollInterval time.Duration) *Session {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	id := uuid.NewString()
	return &Session{
		id:           id,
		address:      signer.Address(),
		signer:       signer,
		chain:        chain,
		pollInterval: pollInterval,
		connectedAt:  time.Now(),
		logger:       slog.Default().With("component", "wallet", "session", id),
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// ActiveAddress returns the connected account, or false once closed.
func (s *Session) ActiveAddress() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false
	}
	return s.address, true
}

// Close disconnects the session. Further submissions fail with
// domain.ErrNotConnected.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrNotConnected
	}
	return nil
}

// ExecuteCall signs and submits one contract call.
func (s *Session) ExecuteCall(
	ctx context.Context,
	contractAddress, entrypoint string,
	calldata []string,
) (TxHandle, error) {
	if err := s.ensureOpen(); err != nil {
		return TxHandle{}, err
	}

	call := Call{ContractAddress: contractAddress, Entrypoint: entrypoint, Calldata: calldata}
	hash, err := s.signer.Execute(ctx, []Call{call})
	if err != nil {
		return TxHandle{}, classifySubmitError(err)
	}
	if hash == "" {
		return TxHandle{}, fmt.Errorf("%w: signer returned no transaction hash", domain.ErrChainSubmissionFailed)
	}

	s.logger.Debug("Transaction submitted", "entrypoint", entrypoint, "tx_hash", hash)
	return TxHandle{Hash: hash, SubmittedAt: time.Now()}, nil
}

func classifySubmitError(err error) error {
	if errors.Is(err, domain.ErrWalletRejected) || errors.Is(err, domain.ErrChainSubmissionFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrChainSubmissionFailed, err)
}

// AwaitConfirmation polls for the receipt until the transaction is included
// or the timeout passes. A reverted receipt fails with domain.ErrChainReverted;
// running out of time fails with domain.ErrConfirmationTimeout since the
// outcome is then unknown. Handles submitted before Close can still be awaited.
func (s *Session) AwaitConfirmation(ctx context.Context, h TxHandle, timeout time.Duration) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.chain.TransactionReceipt(ctx, h.Hash)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				s.logger.Debug("Receipt lookup failed, retrying", "tx_hash", h.Hash, "error", err)
			}
		case receipt != nil:
			if receipt.Status == ExecutionReverted {
				return receipt, fmt.Errorf("%w: %s", domain.ErrChainReverted, receipt.RevertReason)
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: tx %s after %s: %v",
				domain.ErrConfirmationTimeout, h.Hash, time.Since(h.SubmittedAt).Round(time.Second), ctx.Err())
		case <-ticker.C:
		}
	}
}

// LatestBlock returns the current chain height.
func (s *Session) LatestBlock(ctx context.Context) (uint64, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	n, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return n, nil
}

// Read performs a read-only contract call.
func (s *Session) Read(ctx context.Context, call Call) ([]string, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.chain.Call(ctx, call)
}
