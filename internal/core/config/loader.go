package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML with ${ENV} substitution and fills in defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default set.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	c := &cfg.Chain
	if c.Network == "" {
		c.Network = "starknet-sepolia"
	}
	if c.ConfirmationTimeout == 0 {
		c.ConfirmationTimeout = 2 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.ExpiryOffsetBlocks == 0 {
		c.ExpiryOffsetBlocks = 10
	}
	if c.DepositEntrypoint == "" {
		c.DepositEntrypoint = "transfer"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	for i := range c.Providers {
		if c.Providers[i].Name == "" {
			c.Providers[i].Name = fmt.Sprintf("provider-%d", i)
		}
	}

	p := &cfg.Pricing
	if p.BaseURL == "" {
		p.BaseURL = "https://pro-api.coinmarketcap.com/v1"
	}
	if p.TokenID == "" {
		p.TokenID = "22691"
	}
	if p.Interval == 0 {
		p.Interval = 30 * time.Second
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	if p.FallbackPrice == 0 {
		p.FallbackPrice = 0.41
	}
	if p.FallbackChange == 0 {
		p.FallbackChange = 0.41
	}

	if cfg.Vault.MaxLockedPercentage == 0 {
		cfg.Vault.MaxLockedPercentage = 80
	}
	if cfg.Vault.HistoryPageSize == 0 {
		cfg.Vault.HistoryPageSize = 10
	}
	if cfg.Reconciler.Interval == 0 {
		cfg.Reconciler.Interval = 30 * time.Second
	}
	if cfg.Reconciler.MaxAttempts == 0 {
		cfg.Reconciler.MaxAttempts = 10
	}
	if cfg.Stats.RefreshInterval == 0 {
		cfg.Stats.RefreshInterval = 15 * time.Second
	}
}

// Validate checks the settings needed to serve.
func (cfg *AppConfig) Validate() error {
	var errs []error
	c := cfg.Chain
	if !c.Mock {
		if len(c.Providers) == 0 {
			errs = append(errs, errors.New("chain.providers: at least one provider is required"))
		}
		if c.VaultAddress == "" {
			errs = append(errs, errors.New("chain.vault_address is required"))
		}
		if c.TokenAddress == "" {
			errs = append(errs, errors.New("chain.token_address is required"))
		}
	}
	if c.DepositEntrypoint != "transfer" && c.DepositEntrypoint != "deposit" {
		errs = append(errs, fmt.Errorf("chain.deposit_entrypoint must be transfer or deposit, got %q", c.DepositEntrypoint))
	}
	if v := cfg.Vault.MaxLockedPercentage; v <= 0 || v > 100 {
		errs = append(errs, fmt.Errorf("vault.max_locked_percentage must be in (0, 100], got %v", v))
	}
	return errors.Join(errs...)
}
