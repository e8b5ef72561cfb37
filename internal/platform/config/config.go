// Package config loads and validates service configuration from YAML and
// environment variables.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the zap service
type Config struct {
	Chain         ChainConfig         `mapstructure:"chain"`
	Solvers       SolversConfig       `mapstructure:"solvers"`
	Fees          FeesConfig          `mapstructure:"fees"`
	Price         PriceConfig         `mapstructure:"price"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// ChainConfig holds chain connection and contract configuration
type ChainConfig struct {
	ChainID           uint64        `mapstructure:"chain_id"`
	Name              string        `mapstructure:"name"`
	RPCEndpoints      []RPCEndpoint `mapstructure:"rpc_endpoints"`
	AutomationAddress string        `mapstructure:"automation_address"`
	QuoterAddress     string        `mapstructure:"quoter_address"`
	WrappedNative     string        `mapstructure:"wrapped_native"`
	// L1GasOracleAddress is set on OP-stack rollups, empty elsewhere
	L1GasOracleAddress  string  `mapstructure:"l1_gas_oracle_address"`
	GasSafetyMultiplier float64 `mapstructure:"gas_safety_multiplier"`

	automationAddress common.Address
	quoterAddress     common.Address
	wrappedNative     common.Address
	l1GasOracle       common.Address
}

// RPCEndpoint represents one RPC endpoint in the client pool
type RPCEndpoint struct {
	URL    string `mapstructure:"url"`
	Weight int    `mapstructure:"weight"`
}

// AutomationContract returns the parsed automation contract address
func (c *ChainConfig) AutomationContract() common.Address { return c.automationAddress }

// QuoterContract returns the parsed quoter contract address
func (c *ChainConfig) QuoterContract() common.Address { return c.quoterAddress }

// WrappedNativeToken returns the parsed wrapped native token address
func (c *ChainConfig) WrappedNativeToken() common.Address { return c.wrappedNative }

// L1GasOracle returns the parsed L1 gas oracle address; zero when unset
func (c *ChainConfig) L1GasOracle() common.Address { return c.l1GasOracle }

// HasL1GasOracle reports whether this chain carries an L1 data fee
func (c *ChainConfig) HasL1GasOracle() bool { return c.L1GasOracleAddress != "" }

// SolversConfig holds per-provider solver configuration
type SolversConfig struct {
	SamePool SamePoolSolverConfig `mapstructure:"same_pool"`
	OneInch  AggregatorConfig     `mapstructure:"oneinch"`
	ZeroX    AggregatorConfig     `mapstructure:"zerox"`
	OKX      AggregatorConfig     `mapstructure:"okx"`
}

// SamePoolSolverConfig holds same-pool solver settings
type SamePoolSolverConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AggregatorConfig holds one aggregator provider's settings
type AggregatorConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	BaseURL   string          `mapstructure:"base_url"`
	APIKey    string          `mapstructure:"api_key"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds provider pacing configuration
type RateLimitConfig struct {
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	MinCallInterval time.Duration `mapstructure:"min_call_interval"`
}

// FeesConfig holds the protocol fee schedule
type FeesConfig struct {
	ZapFee             float64            `mapstructure:"zap_fee"`
	ReinvestFee        map[string]float64 `mapstructure:"reinvest_fee"` // keyed by fee tier / tick spacing
	ReinvestFeeDefault float64            `mapstructure:"reinvest_fee_default"`
	RebalanceSwapFee   float64            `mapstructure:"rebalance_swap_fee"`
	RebalanceFlatUSD   float64            `mapstructure:"rebalance_flat_usd"`

	reinvestFeeByTier map[int32]float64
}

// ReinvestFeeRatios returns the reinvest fee schedule keyed by fee tier
// or tick spacing
func (f *FeesConfig) ReinvestFeeRatios() map[int32]float64 {
	return f.reinvestFeeByTier
}

// PriceConfig holds the token price source configuration
type PriceConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds caching configuration
type CacheConfig struct {
	MaxSize int `mapstructure:"max_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Chain defaults
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.name", "ethereum")
	v.SetDefault("chain.gas_safety_multiplier", 1.25)

	// Solver defaults
	v.SetDefault("solvers.same_pool.enabled", true)
	v.SetDefault("solvers.oneinch.enabled", false)
	v.SetDefault("solvers.oneinch.base_url", "https://api.1inch.dev")
	v.SetDefault("solvers.oneinch.rate_limit.max_concurrency", 1)
	v.SetDefault("solvers.oneinch.rate_limit.min_call_interval", "1s")
	v.SetDefault("solvers.zerox.enabled", false)
	v.SetDefault("solvers.zerox.base_url", "https://api.0x.org")
	v.SetDefault("solvers.zerox.rate_limit.max_concurrency", 2)
	v.SetDefault("solvers.zerox.rate_limit.min_call_interval", "500ms")
	v.SetDefault("solvers.okx.enabled", false)
	v.SetDefault("solvers.okx.base_url", "https://www.okx.com")
	v.SetDefault("solvers.okx.rate_limit.max_concurrency", 1)
	v.SetDefault("solvers.okx.rate_limit.min_call_interval", "1s")

	// Fee defaults
	v.SetDefault("fees.zap_fee", 0.003)
	v.SetDefault("fees.reinvest_fee_default", 0.003)
	v.SetDefault("fees.rebalance_swap_fee", 0.003)
	v.SetDefault("fees.rebalance_flat_usd", 0.0)

	// Price source defaults
	v.SetDefault("price.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.cache_ttl", "60s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Cache defaults
	v.SetDefault("cache.max_size", 1000)

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// parse parses string values into their proper types
func (c *Config) parse() error {
	for name, addr := range map[string]struct {
		raw string
		out *common.Address
	}{
		"automation_address": {c.Chain.AutomationAddress, &c.Chain.automationAddress},
		"quoter_address":     {c.Chain.QuoterAddress, &c.Chain.quoterAddress},
		"wrapped_native":     {c.Chain.WrappedNative, &c.Chain.wrappedNative},
	} {
		if addr.raw == "" {
			return fmt.Errorf("chain.%s is required", name)
		}
		if !common.IsHexAddress(addr.raw) {
			return fmt.Errorf("invalid chain.%s: %s", name, addr.raw)
		}
		*addr.out = common.HexToAddress(addr.raw)
	}

	if c.Chain.L1GasOracleAddress != "" {
		if !common.IsHexAddress(c.Chain.L1GasOracleAddress) {
			return fmt.Errorf("invalid chain.l1_gas_oracle_address: %s", c.Chain.L1GasOracleAddress)
		}
		c.Chain.l1GasOracle = common.HexToAddress(c.Chain.L1GasOracleAddress)
	}

	c.Fees.reinvestFeeByTier = make(map[int32]float64, len(c.Fees.ReinvestFee))
	for tier, ratio := range c.Fees.ReinvestFee {
		parsed, err := strconv.ParseInt(tier, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid reinvest fee tier %q: %w", tier, err)
		}
		c.Fees.reinvestFeeByTier[int32(parsed)] = ratio
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain ID is required")
	}

	if len(c.Chain.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}

	if c.Chain.GasSafetyMultiplier < 1 {
		return fmt.Errorf("gas safety multiplier must be >= 1")
	}

	for name, fee := range map[string]float64{
		"zap_fee":              c.Fees.ZapFee,
		"reinvest_fee_default": c.Fees.ReinvestFeeDefault,
		"rebalance_swap_fee":   c.Fees.RebalanceSwapFee,
	} {
		if fee < 0 || fee >= 1 {
			return fmt.Errorf("fees.%s must be in [0, 1): %f", name, fee)
		}
	}
	if c.Fees.RebalanceFlatUSD < 0 {
		return fmt.Errorf("fees.rebalance_flat_usd must be >= 0")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
