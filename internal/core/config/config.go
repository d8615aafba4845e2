package config

import (
	"time"

	redisclient "github.com/vietddude/optionvault/internal/infra/redis"
	"github.com/vietddude/optionvault/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Redis      redisclient.Config `yaml:"redis"`
	Chain      ChainConfig        `yaml:"chain"`
	Pricing    PricingConfig      `yaml:"pricing"`
	Vault      VaultConfig        `yaml:"vault"`
	Reconciler ReconcilerConfig   `yaml:"reconciler"`
	Stats      StatsConfig        `yaml:"stats"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds the node, wallet bridge and contract settings.
type ChainConfig struct {
	Network             string           `yaml:"network"`
	Providers           []ProviderConfig `yaml:"providers"`
	VaultAddress        string           `yaml:"vault_address"`
	TokenAddress        string           `yaml:"token_address"`
	SignerURL           string           `yaml:"signer_url"`
	ConfirmationTimeout time.Duration    `yaml:"confirmation_timeout"`
	PollInterval        time.Duration    `yaml:"poll_interval"`
	ExpiryOffsetBlocks  uint64           `yaml:"expiry_offset_blocks"`
	DepositEntrypoint   string           `yaml:"deposit_entrypoint"` // transfer or deposit
	RequestTimeout      time.Duration    `yaml:"request_timeout"`
	// Mock runs against the in-memory chain instead of a node.
	Mock bool `yaml:"mock"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// PricingConfig holds the quote API settings.
type PricingConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	TokenID        string        `yaml:"token_id"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	FallbackPrice  float64       `yaml:"fallback_price"`
	FallbackChange float64       `yaml:"fallback_change"`
}

// VaultConfig holds flow limits.
type VaultConfig struct {
	MaxLockedPercentage float64 `yaml:"max_locked_percentage"`
	HistoryPageSize     int     `yaml:"history_page_size"`
}

// ReconcilerConfig controls ledger write replay.
type ReconcilerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// StatsConfig controls the dashboard refresh.
type StatsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}
