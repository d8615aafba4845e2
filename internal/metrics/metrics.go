package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowsTotal tracks finished vault flows by outcome
	FlowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_flows_total",
			Help: "Total number of vault flows by outcome",
		},
		[]string{"flow", "outcome"},
	)

	// FlowDuration tracks end-to-end flow latency
	FlowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_flow_duration_seconds",
			Help:    "Vault flow duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"flow"},
	)

	// StepConfirmations tracks how long each on-chain step took to confirm
	StepConfirmations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_step_confirmation_seconds",
			Help:    "Time from submission to confirmation per flow step",
			Buckets: []float64{1, 3, 10, 30, 60, 120},
		},
		[]string{"flow", "step"},
	)

	// ReconciliationGaps counts confirmed transactions whose ledger write failed
	ReconciliationGaps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_reconciliation_gaps_total",
			Help: "Confirmed transactions whose ledger write failed",
		},
		[]string{"flow"},
	)

	// PendingWrites tracks the depth of the ledger replay queue
	PendingWrites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_pending_ledger_writes",
			Help: "Ledger writes waiting to be replayed",
		},
	)

	// PendingWritesDropped counts replays abandoned after max attempts
	PendingWritesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_pending_ledger_writes_dropped_total",
			Help: "Ledger writes abandoned after the retry limit",
		},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ChainLatestBlock tracks the latest block height seen
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_chain_latest_block",
			Help: "Latest block height of the chain",
		},
	)

	// TotalValueLocked mirrors the last computed TVL
	TotalValueLocked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_total_value_locked",
			Help: "Confirmed deposits minus confirmed withdrawals",
		},
	)

	// ActiveOptions mirrors the last computed active option count
	ActiveOptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_active_options",
			Help: "Number of active options",
		},
	)

	// PriceFetchErrors counts failed quote fetches
	PriceFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_price_fetch_errors_total",
			Help: "Failed price quote fetches",
		},
	)

	// ActiveSessions tracks connected wallet sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_active_sessions",
			Help: "Connected wallet sessions",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
