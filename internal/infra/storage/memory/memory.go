package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/optionvault/internal/core/domain"
	"github.com/vietddude/optionvault/internal/infra/storage"
)

// MemoryStorage keeps every table in process. A single lock covers all
// tables so ledger writes update entries, vaults and users atomically.
type MemoryStorage struct {
	users        map[string]*domain.User
	entries      []*domain.LedgerEntry
	options      map[int64]*domain.Option
	vaults       map[int64]*domain.Vault // keyed by user id
	loans        []*domain.Loan
	liquidations []*domain.LiquidationEvent

	nextUserID   int64
	nextEntryID  map[domain.EntryKind]int64
	nextOptionID int64
	nextVaultID  int64
	seq          int64

	now func() time.Time
	mu  sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:       make(map[string]*domain.User),
		options:     make(map[int64]*domain.Option),
		vaults:      make(map[int64]*domain.Vault),
		nextEntryID: make(map[domain.EntryKind]int64),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for created_at columns.
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Store returns every repository backed by s.
func (s *MemoryStorage) Store() storage.Store {
	return storage.Store{
		Users:        NewUserRepo(s),
		Ledger:       NewLedgerRepo(s),
		Options:      NewOptionRepo(s),
		Vaults:       NewVaultRepo(s),
		Loans:        NewLoanRepo(s),
		Liquidations: NewLiquidationRepo(s),
	}
}

// AddLoan seeds a loan row.
func (s *MemoryStorage) AddLoan(loan domain.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan.ID = int64(len(s.loans) + 1)
	s.loans = append(s.loans, &loan)
}

// AddLiquidation seeds a liquidation event row.
func (s *MemoryStorage) AddLiquidation(ev domain.LiquidationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.liquidations) + 1)
	s.liquidations = append(s.liquidations, &ev)
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// -----------------------------------------------------------------------------
// User Repository
// -----------------------------------------------------------------------------

type UserRepo struct {
	store *MemoryStorage
}

func NewUserRepo(store *MemoryStorage) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) Upsert(ctx context.Context, address string, at time.Time) (*domain.User, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := normalizeAddress(address)
	if u, ok := r.store.users[key]; ok {
		u.LastConnectedAt = at
		copy := *u
		return &copy, false, nil
	}
	r.store.nextUserID++
	u := &domain.User{
		ID:               r.store.nextUserID,
		WalletAddress:    address,
		FirstConnectedAt: at,
		LastConnectedAt:  at,
		CreatedAt:        at,
		TotalDeposits:    decimal.Zero,
		TotalBorrows:     decimal.Zero,
	}
	r.store.users[key] = u
	copy := *u
	return &copy, true, nil
}

func (r *UserRepo) GetByAddress(ctx context.Context, address string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	u, ok := r.store.users[normalizeAddress(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.users), nil
}

func (s *MemoryStorage) userByID(id int64) *domain.User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Ledger Repository
// -----------------------------------------------------------------------------

type LedgerRepo struct {
	store *MemoryStorage
}

func NewLedgerRepo(store *MemoryStorage) *LedgerRepo {
	return &LedgerRepo{store: store}
}

func (r *LedgerRepo) Record(ctx context.Context, entry *domain.LedgerEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, e := range r.store.entries {
		if e.Kind == entry.Kind && e.TxHash == entry.TxHash {
			return storage.ErrDuplicateTx
		}
	}
	user := r.store.userByID(entry.UserID)
	if user == nil {
		return storage.ErrNotFound
	}

	now := r.store.now()
	vault := r.store.ensureVault(entry.UserID, entry.TokenAddress, now)

	r.store.nextEntryID[entry.Kind]++
	r.store.seq++
	entry.ID = r.store.nextEntryID[entry.Kind]
	entry.Seq = r.store.seq
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	if entry.IsConfirmed() {
		switch entry.Kind {
		case domain.EntryKindDeposit:
			vault.CollateralAmount = vault.CollateralAmount.Add(entry.Amount)
			user.TotalDeposits = user.TotalDeposits.Add(entry.Amount)
		case domain.EntryKindWithdraw:
			vault.CollateralAmount = vault.CollateralAmount.Sub(entry.Amount)
			user.TotalDeposits = user.TotalDeposits.Sub(entry.Amount)
		}
		vault.UpdatedAt = now
	}

	copy := *entry
	r.store.entries = append(r.store.entries, &copy)
	return nil
}

func (r *LedgerRepo) GetByTxHash(ctx context.Context, kind domain.EntryKind, txHash string) (*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, e := range r.store.entries {
		if e.Kind == kind && e.TxHash == txHash {
			copy := *e
			return &copy, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *LedgerRepo) ListConfirmed(ctx context.Context, kind domain.EntryKind) ([]*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.LedgerEntry
	for _, e := range r.store.entries {
		if e.Kind == kind && e.IsConfirmed() {
			copy := *e
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID int64) ([]*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.LedgerEntry
	for _, e := range r.store.entries {
		if e.UserID == userID {
			copy := *e
			out = append(out, &copy)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Option Repository
// -----------------------------------------------------------------------------

type OptionRepo struct {
	store *MemoryStorage
}

func NewOptionRepo(store *MemoryStorage) *OptionRepo {
	return &OptionRepo{store: store}
}

func (r *OptionRepo) Create(ctx context.Context, option *domain.Option) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if option.CreateTxHash != "" {
		for _, o := range r.store.options {
			if o.CreateTxHash == option.CreateTxHash {
				return storage.ErrDuplicateTx
			}
		}
	}
	r.store.nextOptionID++
	option.ID = r.store.nextOptionID
	if option.CreatedAt.IsZero() {
		option.CreatedAt = r.store.now()
	}
	copy := *option
	r.store.options[option.ID] = &copy
	return nil
}

func (r *OptionRepo) Get(ctx context.Context, id int64) (*domain.Option, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	o, ok := r.store.options[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *o
	return &copy, nil
}

func (r *OptionRepo) GetByTxHash(ctx context.Context, txHash string) (*domain.Option, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, o := range r.store.options {
		if o.CreateTxHash == txHash {
			copy := *o
			return &copy, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *OptionRepo) UpdateStatus(ctx context.Context, id int64, from, to domain.OptionStatus, txHash string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.options[id]
	if !ok {
		return storage.ErrNotFound
	}
	if o.Status != from {
		return storage.ErrStaleStatus
	}
	o.Status = to
	if txHash != "" {
		o.TxHash = txHash
	}
	return nil
}

func (r *OptionRepo) List(ctx context.Context, filter domain.OptionFilter) ([]*domain.Option, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Option
	for _, o := range r.store.options {
		if filter.VaultID != 0 && o.VaultID != filter.VaultID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		copy := *o
		out = append(out, &copy)
	}
	slices.SortFunc(out, func(a, b *domain.Option) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Vault Repository
// -----------------------------------------------------------------------------

type VaultRepo struct {
	store *MemoryStorage
}

func NewVaultRepo(store *MemoryStorage) *VaultRepo {
	return &VaultRepo{store: store}
}

func (r *VaultRepo) GetByUser(ctx context.Context, userID int64) (*domain.Vault, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	v, ok := r.store.vaults[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *v
	return &copy, nil
}

func (r *VaultRepo) EnsureForUser(ctx context.Context, userID int64, token string) (*domain.Vault, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.userByID(userID) == nil {
		return nil, storage.ErrNotFound
	}
	v := r.store.ensureVault(userID, token, r.store.now())
	copy := *v
	return &copy, nil
}

// ensureVault must be called with mu held.
func (s *MemoryStorage) ensureVault(userID int64, token string, now time.Time) *domain.Vault {
	if v, ok := s.vaults[userID]; ok {
		return v
	}
	s.nextVaultID++
	v := &domain.Vault{
		ID:               s.nextVaultID,
		UserID:           userID,
		StrategyType:     domain.StrategyCoveredCall,
		CollateralAmount: decimal.Zero,
		CollateralToken:  token,
		PremiumEarned:    decimal.Zero,
		Status:           domain.VaultStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.vaults[userID] = v
	return v
}

// -----------------------------------------------------------------------------
// Loan and Liquidation Repositories
// -----------------------------------------------------------------------------

type LoanRepo struct {
	store *MemoryStorage
}

func NewLoanRepo(store *MemoryStorage) *LoanRepo {
	return &LoanRepo{store: store}
}

func (r *LoanRepo) ListByVault(ctx context.Context, vaultID int64) ([]*domain.Loan, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Loan
	for _, l := range r.store.loans {
		if l.VaultID == vaultID {
			copy := *l
			out = append(out, &copy)
		}
	}
	return out, nil
}

type LiquidationRepo struct {
	store *MemoryStorage
}

func NewLiquidationRepo(store *MemoryStorage) *LiquidationRepo {
	return &LiquidationRepo{store: store}
}

func (r *LiquidationRepo) ListByVault(ctx context.Context, vaultID int64) ([]*domain.LiquidationEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.LiquidationEvent
	for _, ev := range r.store.liquidations {
		if ev.VaultID == vaultID {
			copy := *ev
			out = append(out, &copy)
		}
	}
	return out, nil
}
