package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// Config holds all application configuration. Loaded once at process
// start; the detection core treats it as immutable.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Stream endpoints, priority-ordered (first entry = priority 0).
	Endpoints []types.Endpoint

	// Monitored pool addresses (hex, comma-separated in env).
	Pools []string

	// DEX label stamped on every emitted event.
	DexName string

	// Stream connection
	StreamDialTimeout       time.Duration
	StreamPingInterval      time.Duration
	StreamReadTimeout       time.Duration
	StreamMessageBufferSize int

	// Reconnection
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMultiplier  float64
	ReconnectMaxAttempts int
	ReconnectJitter      float64

	// Event filter
	FilterMinLiquidity   float64
	FilterMaxPriceImpact float64
	FilterMinPriceDelta  float64
	FilterWindow         time.Duration

	// Backpressure queue
	QueueMaxSize    int
	QueueDropPolicy string // "oldest", "newest" or "none"

	// Opportunity trigger
	DebounceWindow     time.Duration
	MinProfitPercent   float64
	MaxSlippagePercent float64
	MinProfitAbsolute  float64
	TriggerGasTier     string
	TriggerGasLimit    uint64

	// Gas oracle
	GasNodeRPCURL        string
	GasFeeAPIURL         string
	GasRefreshInterval   time.Duration
	GasSampleSize        int
	GasInstantMultiplier float64
	GasFastMultiplier    float64
	GasNormalMultiplier  float64
	GasSlowMultiplier    float64
	GasBreakerFailures   int
	GasBreakerCooldown   time.Duration

	// Pool state cache
	PoolCacheMaxEntries int64
	PoolCacheTTL        time.Duration
	PoolCacheSeedPath   string

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		Endpoints: parseEndpoints(getEnvOrDefault("STREAM_ENDPOINTS", "wss://mainnet.base.org")),
		Pools:     splitList(os.Getenv("MONITORED_POOLS")),
		DexName:   getEnvOrDefault("DEX_NAME", "uniswap-v2"),

		StreamDialTimeout:       getDurationOrDefault("STREAM_DIAL_TIMEOUT", 10*time.Second),
		StreamPingInterval:      getDurationOrDefault("STREAM_PING_INTERVAL", 15*time.Second),
		StreamReadTimeout:       getDurationOrDefault("STREAM_READ_TIMEOUT", 60*time.Second),
		StreamMessageBufferSize: getIntOrDefault("STREAM_MESSAGE_BUFFER_SIZE", 1000),

		ReconnectBaseDelay:   getDurationOrDefault("RECONNECT_BASE_DELAY", 1*time.Second),
		ReconnectMaxDelay:    getDurationOrDefault("RECONNECT_MAX_DELAY", 30*time.Second),
		ReconnectMultiplier:  getFloat64OrDefault("RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		ReconnectMaxAttempts: getIntOrDefault("RECONNECT_MAX_ATTEMPTS", 10),
		ReconnectJitter:      getFloat64OrDefault("RECONNECT_JITTER", 0.2),

		FilterMinLiquidity:   getFloat64OrDefault("FILTER_MIN_LIQUIDITY", 1000.0),
		FilterMaxPriceImpact: getFloat64OrDefault("FILTER_MAX_PRICE_IMPACT", 0.10),
		FilterMinPriceDelta:  getFloat64OrDefault("FILTER_MIN_PRICE_DELTA", 0.02),
		FilterWindow:         getDurationOrDefault("FILTER_WINDOW", 60*time.Second),

		QueueMaxSize:    getIntOrDefault("QUEUE_MAX_SIZE", 1000),
		QueueDropPolicy: getEnvOrDefault("QUEUE_DROP_POLICY", "oldest"),

		DebounceWindow:     getDurationOrDefault("DEBOUNCE_WINDOW", 100*time.Millisecond),
		MinProfitPercent:   getFloat64OrDefault("MIN_PROFIT_PERCENT", 0.5),
		MaxSlippagePercent: getFloat64OrDefault("MAX_SLIPPAGE_PERCENT", 1.0),
		MinProfitAbsolute:  getFloat64OrDefault("MIN_PROFIT_ABSOLUTE", 0.001),
		TriggerGasTier:     getEnvOrDefault("TRIGGER_GAS_TIER", "fast"),
		TriggerGasLimit:    uint64(getIntOrDefault("TRIGGER_GAS_LIMIT", 350000)),

		GasNodeRPCURL:        getEnvOrDefault("GAS_NODE_RPC_URL", "https://mainnet.base.org"),
		GasFeeAPIURL:         os.Getenv("GAS_FEE_API_URL"),
		GasRefreshInterval:   getDurationOrDefault("GAS_REFRESH_INTERVAL", 12*time.Second),
		GasSampleSize:        getIntOrDefault("GAS_SAMPLE_SIZE", 20),
		GasInstantMultiplier: getFloat64OrDefault("GAS_INSTANT_MULTIPLIER", 1.5),
		GasFastMultiplier:    getFloat64OrDefault("GAS_FAST_MULTIPLIER", 1.2),
		GasNormalMultiplier:  getFloat64OrDefault("GAS_NORMAL_MULTIPLIER", 1.0),
		GasSlowMultiplier:    getFloat64OrDefault("GAS_SLOW_MULTIPLIER", 0.8),
		GasBreakerFailures:   getIntOrDefault("GAS_BREAKER_FAILURES", 5),
		GasBreakerCooldown:   getDurationOrDefault("GAS_BREAKER_COOLDOWN", 1*time.Minute),

		PoolCacheMaxEntries: int64(getIntOrDefault("POOL_CACHE_MAX_ENTRIES", 10000)),
		PoolCacheTTL:        getDurationOrDefault("POOL_CACHE_TTL", 10*time.Minute),
		PoolCacheSeedPath:   os.Getenv("POOL_CACHE_SEED_PATH"),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "dexpulse"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "dexpulse123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "dexpulse"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if len(c.Endpoints) == 0 {
		return fmt.Errorf("STREAM_ENDPOINTS cannot be empty")
	}

	if c.FilterMinLiquidity < 0 {
		return fmt.Errorf("FILTER_MIN_LIQUIDITY must be non-negative, got %f", c.FilterMinLiquidity)
	}

	if c.FilterMaxPriceImpact < 0 || c.FilterMaxPriceImpact > 1.0 {
		return fmt.Errorf("FILTER_MAX_PRICE_IMPACT must be in [0,1], got %f", c.FilterMaxPriceImpact)
	}

	if c.FilterMinPriceDelta < 0 || c.FilterMinPriceDelta > 1.0 {
		return fmt.Errorf("FILTER_MIN_PRICE_DELTA must be in [0,1], got %f", c.FilterMinPriceDelta)
	}

	if c.QueueMaxSize <= 0 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be positive, got %d", c.QueueMaxSize)
	}

	switch c.QueueDropPolicy {
	case "oldest", "newest", "none":
	default:
		return fmt.Errorf("QUEUE_DROP_POLICY must be 'oldest', 'newest' or 'none', got %q", c.QueueDropPolicy)
	}

	if c.ReconnectMultiplier < 1.0 {
		return fmt.Errorf("RECONNECT_BACKOFF_MULTIPLIER must be >= 1.0, got %f", c.ReconnectMultiplier)
	}

	if c.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be positive, got %d", c.ReconnectMaxAttempts)
	}

	if c.GasBreakerFailures <= 0 {
		return fmt.Errorf("GAS_BREAKER_FAILURES must be positive, got %d", c.GasBreakerFailures)
	}

	if c.GasBreakerCooldown <= 0 {
		return fmt.Errorf("GAS_BREAKER_COOLDOWN must be positive, got %v", c.GasBreakerCooldown)
	}

	switch types.GasTier(c.TriggerGasTier) {
	case types.TierInstant, types.TierFast, types.TierNormal, types.TierSlow:
	default:
		return fmt.Errorf("TRIGGER_GAS_TIER must be one of instant/fast/normal/slow, got %q", c.TriggerGasTier)
	}

	// Instant >= Fast >= Normal >= Slow must always hold.
	if c.GasInstantMultiplier < c.GasFastMultiplier ||
		c.GasFastMultiplier < c.GasNormalMultiplier ||
		c.GasNormalMultiplier < c.GasSlowMultiplier {
		return fmt.Errorf("gas tier multipliers must be ordered instant >= fast >= normal >= slow")
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

// parseEndpoints parses a comma-separated endpoint list into a
// priority-ordered set. List position defines priority.
func parseEndpoints(raw string) []types.Endpoint {
	urls := splitList(raw)
	endpoints := make([]types.Endpoint, 0, len(urls))
	for i, url := range urls {
		endpoints = append(endpoints, types.Endpoint{
			URL:         url,
			Priority:    i,
			Description: fmt.Sprintf("endpoint-%d", i),
		})
	}
	return endpoints
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
