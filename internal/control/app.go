// Package control wires the services together and owns their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/optionvault/internal/api"
	"github.com/vietddude/optionvault/internal/core/config"
	"github.com/vietddude/optionvault/internal/core/worker"
	"github.com/vietddude/optionvault/internal/infra/chain"
	"github.com/vietddude/optionvault/internal/infra/chain/mockchain"
	"github.com/vietddude/optionvault/internal/infra/chain/starknet"
	redisclient "github.com/vietddude/optionvault/internal/infra/redis"
	"github.com/vietddude/optionvault/internal/infra/rpc"
	"github.com/vietddude/optionvault/internal/infra/rpc/routing"
	"github.com/vietddude/optionvault/internal/infra/storage"
	"github.com/vietddude/optionvault/internal/infra/storage/memory"
	"github.com/vietddude/optionvault/internal/infra/storage/postgres"
	"github.com/vietddude/optionvault/internal/ledger"
	"github.com/vietddude/optionvault/internal/pricing"
	"github.com/vietddude/optionvault/internal/vault"
	"github.com/vietddude/optionvault/internal/view"
	"github.com/vietddude/optionvault/internal/wallet"
)

const (
	// mockBlockTime is how often the in-memory chain mines an empty block.
	mockBlockTime = 2 * time.Second

	mockVaultAddress = "0x5ca1ab1e"
	mockTokenAddress = "0x70ce4"
)

// App is the running service.
type App struct {
	cfg *config.AppConfig
	log *slog.Logger

	chain      chain.Adapter
	mock       *mockchain.Chain
	rpcClient  *rpc.Client
	db         *postgres.DB
	redis      *redisclient.Client
	pending    storage.PendingWriteQueue
	gateway    *ledger.Gateway
	sessions   *wallet.Manager
	orch       *vault.Orchestrator
	price      *pricing.Service
	stats      *view.StatsView
	reconciler *worker.Reconciler
	monitor    *api.Monitor
	server     *api.Server

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewApp connects to every backend named in cfg. In mock mode nothing
// outside the process is touched except the quote API.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{
		cfg:     cfg,
		log:     slog.Default().With("component", "app"),
		monitor: api.NewMonitor(10 * time.Second),
	}

	if err := a.initChain(); err != nil {
		return nil, err
	}
	store, err := a.initStorage(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	cache, err := a.initRedis(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	a.gateway = ledger.NewGateway(store)

	factory := starknet.NewSignerFactory(cfg.Chain.SignerURL, cfg.Chain.RequestTimeout)
	if a.mock != nil {
		factory = a.mock.SignerFactory()
	}
	a.sessions = wallet.NewManager(a.chain, factory, a.gateway, cfg.Chain.PollInterval)

	a.orch = vault.NewOrchestrator(vault.Config{
		VaultAddress:        cfg.Chain.VaultAddress,
		TokenAddress:        cfg.Chain.TokenAddress,
		DepositEntrypoint:   cfg.Chain.DepositEntrypoint,
		ConfirmationTimeout: cfg.Chain.ConfirmationTimeout,
		ExpiryOffsetBlocks:  cfg.Chain.ExpiryOffsetBlocks,
		MaxLockedPercentage: decimal.NewFromFloat(cfg.Vault.MaxLockedPercentage),
	}, a.gateway, a.pending, vault.NewContracts(a.chain, cfg.Chain.VaultAddress))

	if cfg.Pricing.APIKey == "" {
		a.log.Warn("No quote API key configured, prices will come from the fallback")
	}
	a.price = pricing.NewService(pricing.Config{
		TokenID:        cfg.Pricing.TokenID,
		Interval:       cfg.Pricing.Interval,
		FallbackPrice:  decimal.NewFromFloat(cfg.Pricing.FallbackPrice),
		FallbackChange: decimal.NewFromFloat(cfg.Pricing.FallbackChange),
	}, pricing.NewClient(cfg.Pricing.BaseURL, cfg.Pricing.APIKey, cfg.Pricing.Timeout), cache)

	a.stats = view.NewStatsView(a.gateway, a.price, cfg.Stats.RefreshInterval)
	a.reconciler = worker.NewReconciler(worker.ReconcilerConfig{
		Interval:    cfg.Reconciler.Interval,
		MaxAttempts: cfg.Reconciler.MaxAttempts,
	}, a.pending, a.gateway)

	a.registerChecks()

	// A flow may wait on up to two confirmations.
	writeTimeout := 2*cfg.Chain.ConfirmationTimeout + 30*time.Second
	a.server = api.NewServer(api.Deps{
		Ledger:   a.gateway,
		Sessions: a.sessions,
		Vault:    a.orch,
		Price:    a.price,
		Stats:    a.stats,
		Monitor:  a.monitor,
		PageSize: cfg.Vault.HistoryPageSize,
	}, cfg.Server.Port, writeTimeout)

	return a, nil
}

func (a *App) initChain() error {
	if a.cfg.Chain.Mock {
		a.mock = mockchain.New(a.cfg.Chain.Network)
		if a.cfg.Chain.VaultAddress == "" {
			a.cfg.Chain.VaultAddress = mockVaultAddress
		}
		if a.cfg.Chain.TokenAddress == "" {
			a.cfg.Chain.TokenAddress = mockTokenAddress
		}
		a.chain = a.mock
		a.log.Info("Using in-memory chain", "network", a.cfg.Chain.Network)
		return nil
	}

	router := routing.NewRouter()
	for _, p := range a.cfg.Chain.Providers {
		provider := rpc.NewHTTPProvider(p.Name, p.URL, a.cfg.Chain.RequestTimeout)
		for k, v := range p.Headers {
			provider = provider.WithHeader(k, v)
		}
		router.AddProvider(provider)
		a.log.Info("Added RPC provider", "name", p.Name)
	}
	if len(router.GetAllProviders()) == 0 {
		return errors.New("no RPC providers configured")
	}
	a.rpcClient = rpc.NewClient(router)
	a.chain = starknet.NewAdapter(a.rpcClient, a.cfg.Chain.Network)
	return nil
}

func (a *App) initStorage(ctx context.Context) (storage.Store, error) {
	if a.cfg.Database.URL == "" {
		a.log.Info("Using memory storage")
		return memory.NewMemoryStorage().Store(), nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return storage.Store{}, fmt.Errorf("failed to init db: %w", err)
	}
	a.db = db
	if err := db.Migrate(ctx); err != nil {
		return storage.Store{}, fmt.Errorf("failed to migrate db: %w", err)
	}
	a.log.Info("Using PostgreSQL storage")
	return db.Store(), nil
}

// initRedis sets up the pending write queue and the price cache. Without
// redis both stay in process.
func (a *App) initRedis(ctx context.Context) (pricing.Cache, error) {
	if a.cfg.Redis.URL == "" {
		a.pending = memory.NewPendingQueue()
		return pricing.NewMemoryCache(), nil
	}

	client, err := redisclient.NewClient(a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.redis = client
	a.pending = redisclient.NewPendingWriteQueue(client)
	return redisclient.NewPriceCache(client, a.cfg.Pricing.CacheTTL), nil
}

func (a *App) registerChecks() {
	a.monitor.Register("chain", func(ctx context.Context) api.ComponentHealth {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		height, err := a.chain.BlockNumber(ctx)
		if err != nil {
			return api.ComponentHealth{Status: api.StatusCritical, Detail: err.Error()}
		}
		return api.ComponentHealth{Status: api.StatusHealthy, Detail: fmt.Sprintf("block %d", height)}
	})

	if a.rpcClient != nil {
		a.monitor.Register("rpc_providers", func(ctx context.Context) api.ComponentHealth {
			var up, total int
			for _, h := range a.rpcClient.ProviderHealth() {
				total++
				if h.Available {
					up++
				}
			}
			status := api.StatusHealthy
			if up == 0 {
				status = api.StatusCritical
			} else if up < total {
				status = api.StatusDegraded
			}
			return api.ComponentHealth{Status: status, Detail: fmt.Sprintf("%d/%d available", up, total)}
		})
	}

	if a.db != nil {
		a.monitor.Register("database", func(ctx context.Context) api.ComponentHealth {
			if err := a.db.Health(ctx); err != nil {
				return api.ComponentHealth{Status: api.StatusCritical, Detail: err.Error()}
			}
			return api.ComponentHealth{Status: api.StatusHealthy}
		})
	}

	if a.redis != nil {
		a.monitor.Register("redis", func(ctx context.Context) api.ComponentHealth {
			if err := a.redis.Ping(ctx); err != nil {
				return api.ComponentHealth{Status: api.StatusDegraded, Detail: err.Error()}
			}
			return api.ComponentHealth{Status: api.StatusHealthy}
		})
	}

	a.monitor.Register("pricing", func(ctx context.Context) api.ComponentHealth {
		if err := a.price.LastError(); err != nil {
			return api.ComponentHealth{
				Status: api.StatusDegraded,
				Detail: fmt.Sprintf("serving %s quote: %v", a.price.Current().Source, err),
			}
		}
		return api.ComponentHealth{Status: api.StatusHealthy}
	})

	a.monitor.Register("pending_writes", func(ctx context.Context) api.ComponentHealth {
		n, err := a.pending.Count(ctx)
		if err != nil {
			return api.ComponentHealth{Status: api.StatusDegraded, Detail: err.Error()}
		}
		if n > 0 {
			return api.ComponentHealth{Status: api.StatusDegraded, Detail: fmt.Sprintf("%d ledger writes awaiting replay", n)}
		}
		return api.ComponentHealth{Status: api.StatusHealthy}
	})
}

// Start launches the background loops and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.cancel != nil {
		return errors.New("app already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	if a.db != nil {
		a.db.StartMetricsCollector(gctx)
	}
	if a.mock != nil {
		g.Go(func() error {
			a.mock.Run(gctx, mockBlockTime)
			return nil
		})
	}
	g.Go(func() error {
		a.price.Start(gctx)
		return nil
	})
	a.stats.Start(gctx)
	g.Go(func() error {
		return a.reconciler.Start(gctx)
	})
	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	a.log.Info("Service started", "port", a.cfg.Server.Port, "network", a.cfg.Chain.Network)
	return nil
}

// Stop shuts the server down, stops the loops and closes backends.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping service...")

	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop api server: %w", err))
	}
	a.stats.Stop()
	a.sessions.CloseAll()
	if a.cancel != nil {
		a.cancel()
		if err := a.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	a.close()
	return errors.Join(errs...)
}

func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

// Handler exposes the API routes.
func (a *App) Handler() http.Handler { return a.server.Routes() }

// Ledger exposes the ledger gateway for CLI commands.
func (a *App) Ledger() *ledger.Gateway { return a.gateway }

// Monitor exposes the health monitor.
func (a *App) Monitor() *api.Monitor { return a.monitor }
