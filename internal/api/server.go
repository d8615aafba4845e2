// Package api serves the vault over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/optionvault/internal/ledger"
	"github.com/vietddude/optionvault/internal/pricing"
	"github.com/vietddude/optionvault/internal/vault"
	"github.com/vietddude/optionvault/internal/view"
	"github.com/vietddude/optionvault/internal/wallet"
)

// Deps are the services the handlers call.
type Deps struct {
	Ledger   *ledger.Gateway
	Sessions *wallet.Manager
	Vault    *vault.Orchestrator
	Price    *pricing.Service
	Stats    *view.StatsView
	Monitor  *Monitor
	PageSize int
}

// Server provides the HTTP API plus health and metrics endpoints.
type Server struct {
	deps   Deps
	server *http.Server
	logger *slog.Logger

	mu    sync.Mutex
	flows map[string]*view.FlowState // keyed by address
}

// NewServer creates the server. writeTimeout must cover a whole flow,
// which can wait on several confirmations.
func NewServer(deps Deps, port int, writeTimeout time.Duration) *Server {
	if deps.PageSize <= 0 {
		deps.PageSize = 10
	}
	if deps.Monitor == nil {
		deps.Monitor = NewMonitor(10 * time.Second)
	}
	s := &Server{
		deps:   deps,
		logger: slog.Default().With("component", "api"),
		flows:  make(map[string]*view.FlowState),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.RequestID)

	mux.Get("/health", s.handleHealth)
	mux.Get("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Get("/stats", s.handleStats)
	mux.Get("/price", s.handlePrice)

	mux.Post("/sessions", s.handleConnect)
	mux.Route("/sessions/{address}", func(r chi.Router) {
		r.Delete("/", s.handleDisconnect)
		r.Get("/flow", s.handleFlowState)
	})

	mux.Route("/users/{address}", func(r chi.Router) {
		r.Get("/history", s.handleHistory)
		r.Get("/vault", s.handleVault)
		r.Get("/balance", s.handleOnchainBalance)
	})

	mux.Get("/vault/onchain", s.handleOnchainVault)
	mux.Post("/vault/deposit", s.handleDeposit)
	mux.Post("/vault/withdraw", s.handleWithdraw)

	mux.Get("/options", s.handleListOptions)
	mux.Post("/options", s.handleCreateOption)
	mux.Route("/options/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetOption)
		r.Post("/exercise", s.handleExercise)
		r.Post("/cancel", s.handleCancel)
	})

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) flowState(address string) *view.FlowState {
	key := ledger.NormalizeAddress(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.flows[key]
	if !ok {
		fs = view.NewFlowState()
		s.flows[key] = fs
	}
	return fs
}

func (s *Server) dropFlowState(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, ledger.NormalizeAddress(address))
}

func addressParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "address"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Monitor.CheckHealth(r.Context())
	status := http.StatusOK
	if report.Status == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Monitor.CheckHealth(r.Context()))
}
