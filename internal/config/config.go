// Package config loads the bundler core's typed configuration from
// environment variables (and an optional file), using viper the way the
// stackup-bundler / aiops-bundler family does. This is deliberately thin:
// the full production CLI surface (flags, JSON-RPC server wiring) is out of
// scope for the core.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ChainType selects chain-specific gas-price behavior (see pkg/gasprice.Chain).
type ChainType string

// Config is the set of configuration keys the spec enumerates in §6.
type Config struct {
	GasPriceBump            int           `mapstructure:"gas_price_bump"`
	GasPriceExpiry          int           `mapstructure:"gas_price_expiry"`
	GasPriceRefreshInterval time.Duration `mapstructure:"gas_price_refresh_interval"`
	LegacyTransactions      bool          `mapstructure:"legacy_transactions"`
	ChainType               ChainType     `mapstructure:"chain_type"`
	MaxExecutors            int           `mapstructure:"max_executors"`
	ExecutorPrivateKeys     []string      `mapstructure:"executor_private_keys"`
	RedisQueueEndpoint      string        `mapstructure:"redis_queue_endpoint"`
	MaxOutstandingPerSender int           `mapstructure:"max_outstanding_per_sender"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("gas_price_bump", 100)
	v.SetDefault("gas_price_expiry", 10)
	v.SetDefault("gas_price_refresh_interval", 0)
	v.SetDefault("legacy_transactions", false)
	v.SetDefault("chain_type", "")
	v.SetDefault("max_executors", 3)
	v.SetDefault("max_outstanding_per_sender", 4)
}

// Load reads configuration from environment variables prefixed BUNDLER_
// (e.g. BUNDLER_GAS_PRICE_BUMP) and, if present, from a config file at path.
// An empty path skips the file read.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("bundler")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.GasPriceBump < 100 {
		return nil, fmt.Errorf("config: gas_price_bump must be >= 100, got %d", cfg.GasPriceBump)
	}
	return &cfg, nil
}
