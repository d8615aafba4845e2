package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/metrics"
)

// SignerFactory opens the wallet provider for an address.
type SignerFactory func(ctx context.Context, address string) (Signer, error)

// UserRegistrar is told about every connection.
type UserRegistrar interface {
	UpsertUser(ctx context.Context, address string) (*domain.User, error)
}

// Manager owns the live sessions, one per address.
type Manager struct {
	chain        Chain
	factory      SignerFactory
	registrar    UserRegistrar
	pollInterval time.Duration
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(chain Chain, factory SignerFactory, registrar UserRegistrar, pollInterval time.Duration) *Manager {
	return &Manager{
		chain:        chain,
		factory:      factory,
		registrar:    registrar,
		pollInterval: pollInterval,
		logger:       slog.Default().With("component", "wallet"),
		sessions:     make(map[string]*Session),
	}
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Connect opens a session for address and registers the user. An existing
// session for the same address is replaced.
func (m *Manager) Connect(ctx context.Context, address string) (*Session, *domain.User, error) {
	k := key(address)
	if k == "" {
		return nil, nil, fmt.Errorf("%w: empty address", domain.ErrNotConnected)
	}

	signer, err := m.factory(ctx, k)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open signer: %w", err)
	}
	user, err := m.registrar.UpsertUser(ctx, k)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register user: %w", err)
	}

	session := NewSession(signer, m.chain, m.pollInterval)

	m.mu.Lock()
	if old, ok := m.sessions[k]; ok {
		old.Close()
	}
	m.sessions[k] = session
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.logger.Info("Wallet connected", "address", k, "session", session.ID())
	return session, user, nil
}

// Disconnect closes the session for address. It reports whether one existed.
func (m *Manager) Disconnect(address string) bool {
	k := key(address)

	m.mu.Lock()
	session, ok := m.sessions[k]
	if ok {
		delete(m.sessions, k)
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if ok {
		session.Close()
		m.logger.Info("Wallet disconnected", "address", k, "session", session.ID())
	}
	return ok
}

// Get returns the live session for address.
func (m *Manager) Get(address string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[key(address)]
	if !ok {
		return nil, domain.ErrNotConnected
	}
	return session, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll disconnects every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.sessions {
		s.Close()
		delete(m.sessions, k)
	}
	metrics.ActiveSessions.Set(0)
}
