package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/parlaytech/updown-arb/pkg/types"
	"github.com/shopspring/decimal"
)

// Config holds all engine configuration, loaded from the environment.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Venue endpoints
	GammaAPIURL   string
	ClobAPIURL    string
	WSURL         string
	PolygonRPCURL string

	// Strategy
	Assets              []types.Asset
	MinSpreadUSD        decimal.Decimal
	BalanceSizingPct    decimal.Decimal
	MaxTradeSizeUSD     decimal.Decimal
	MinTradeSizeUSD     decimal.Decimal
	MaxPerWindowUSD     decimal.Decimal
	MaxLiquidityPct     decimal.Decimal
	SizingDecimalPlaces int32
	ParallelFillTimeout time.Duration
	StaleThreshold      time.Duration
	OpportunityQueueCap int
	DryRun              bool
	DryRunBalanceUSD    decimal.Decimal

	// Gradual entry
	GradualEntryEnabled        bool
	GradualEntryTranches       int
	GradualEntryDelay          time.Duration
	GradualEntryMinSpreadCents decimal.Decimal

	// Rebalancing
	RebalanceThreshold         decimal.Decimal
	MinRebalanceProfitPerShare decimal.Decimal
	MaxRebalanceAttempts       int
	RebalanceNoGoBeforeEnd     time.Duration
	RebalanceInterval          time.Duration

	// Settlement
	SettlementInterval   time.Duration
	ResolutionWait       time.Duration
	ClaimSellPrice       decimal.Decimal
	SettlementBaseRetry  time.Duration
	SettlementMaxRetry   time.Duration
	MaxClaimAttempts     int
	SettlementAlertAfter int
	ClaimFillTimeout     time.Duration

	// Circuit breaker
	CBWarnFailures    int
	CBCautionFailures int
	CBHaltFailures    int
	CBWarnLossUSD     decimal.Decimal
	CBCautionLossUSD  decimal.Decimal
	CBHaltLossUSD     decimal.Decimal

	// Blackout
	BlackoutWindow   string
	BlackoutTimezone string

	// Market discovery
	DiscoveryInterval time.Duration
	GammaRateLimit    float64 // requests per second

	// Liquidity snapshots
	LiquiditySnapshotInterval time.Duration
	LiquidityRetention        time.Duration

	// Wallet
	WalletPollInterval time.Duration

	// WebSocket
	WSPoolSize              int
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Storage
	StorageMode  string // "sqlite", "postgres", or "memory"
	SQLitePath   string
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Alerting
	TelegramToken  string
	TelegramChatID int64
}

// LoadFromEnv loads configuration from environment variables with
// defaults. A .env file in the working directory is read first when
// present.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	assets, err := types.ParseAssets(getEnvOrDefault("ARB_ASSETS", "BTC,ETH,SOL"))
	if err != nil {
		return nil, fmt.Errorf("ARB_ASSETS: %w", err)
	}

	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Venue defaults
		GammaAPIURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		ClobAPIURL:    getEnvOrDefault("POLYMARKET_CLOB_API_URL", "https://clob.polymarket.com"),
		WSURL:         getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolygonRPCURL: getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		// Strategy defaults
		Assets:              assets,
		MinSpreadUSD:        getDecimalOrDefault("ARB_MIN_SPREAD_USD", "0.02"),
		BalanceSizingPct:    getDecimalOrDefault("ARB_BALANCE_SIZING_PCT", "0.25"),
		MaxTradeSizeUSD:     getDecimalOrDefault("ARB_MAX_TRADE_SIZE_USD", "25.0"),
		MinTradeSizeUSD:     getDecimalOrDefault("ARB_MIN_TRADE_SIZE_USD", "3.0"),
		MaxPerWindowUSD:     getDecimalOrDefault("ARB_MAX_PER_WINDOW_USD", "50.0"),
		MaxLiquidityPct:     getDecimalOrDefault("ARB_MAX_LIQUIDITY_CONSUMPTION_PCT", "0.50"),
		SizingDecimalPlaces: int32(getIntOrDefault("ARB_SIZING_DECIMAL_PLACES", 2)),
		ParallelFillTimeout: getDurationOrDefault("ARB_PARALLEL_FILL_TIMEOUT", 10*time.Second),
		StaleThreshold:      getDurationOrDefault("ARB_STALE_THRESHOLD", 10*time.Second),
		OpportunityQueueCap: getIntOrDefault("ARB_OPPORTUNITY_QUEUE_CAP", 100),
		DryRun:              getBoolOrDefault("ARB_DRY_RUN", false),
		DryRunBalanceUSD:    getDecimalOrDefault("ARB_DRY_RUN_BALANCE_USD", "1000"),

		// Gradual entry defaults
		GradualEntryEnabled:        getBoolOrDefault("ARB_GRADUAL_ENTRY_ENABLED", false),
		GradualEntryTranches:       getIntOrDefault("ARB_GRADUAL_ENTRY_TRANCHES", 3),
		GradualEntryDelay:          getDurationOrDefault("ARB_GRADUAL_ENTRY_DELAY", 30*time.Second),
		GradualEntryMinSpreadCents: getDecimalOrDefault("ARB_GRADUAL_ENTRY_MIN_SPREAD_CENTS", "3"),

		// Rebalancing defaults
		RebalanceThreshold:         getDecimalOrDefault("REBALANCE_THRESHOLD", "0.80"),
		MinRebalanceProfitPerShare: getDecimalOrDefault("REBALANCE_MIN_PROFIT_PER_SHARE", "0.02"),
		MaxRebalanceAttempts:       getIntOrDefault("REBALANCE_MAX_ATTEMPTS", 5),
		RebalanceNoGoBeforeEnd:     getDurationOrDefault("REBALANCE_NO_GO_BEFORE_END", 60*time.Second),
		RebalanceInterval:          getDurationOrDefault("REBALANCE_INTERVAL", 5*time.Second),

		// Settlement defaults
		SettlementInterval:   getDurationOrDefault("SETTLEMENT_INTERVAL", 60*time.Second),
		ResolutionWait:       getDurationOrDefault("SETTLEMENT_RESOLUTION_WAIT", 10*time.Minute),
		ClaimSellPrice:       getDecimalOrDefault("SETTLEMENT_CLAIM_PRICE", "0.99"),
		SettlementBaseRetry:  getDurationOrDefault("SETTLEMENT_BASE_RETRY", 60*time.Second),
		SettlementMaxRetry:   getDurationOrDefault("SETTLEMENT_MAX_RETRY", time.Hour),
		MaxClaimAttempts:     getIntOrDefault("SETTLEMENT_MAX_CLAIM_ATTEMPTS", 5),
		SettlementAlertAfter: getIntOrDefault("SETTLEMENT_ALERT_AFTER_FAILURES", 3),
		ClaimFillTimeout:     getDurationOrDefault("SETTLEMENT_CLAIM_FILL_TIMEOUT", 30*time.Second),

		// Circuit breaker defaults
		CBWarnFailures:    getIntOrDefault("CB_WARN_FAILURES", 3),
		CBCautionFailures: getIntOrDefault("CB_CAUTION_FAILURES", 4),
		CBHaltFailures:    getIntOrDefault("CB_HALT_FAILURES", 5),
		CBWarnLossUSD:     getDecimalOrDefault("CB_WARN_LOSS_USD", "50"),
		CBCautionLossUSD:  getDecimalOrDefault("CB_CAUTION_LOSS_USD", "75"),
		CBHaltLossUSD:     getDecimalOrDefault("CB_HALT_LOSS_USD", "100"),

		// Blackout defaults
		BlackoutWindow:   getEnvOrDefault("BLACKOUT_WINDOW", "05:00-05:29"),
		BlackoutTimezone: getEnvOrDefault("BLACKOUT_TIMEZONE", "America/Chicago"),

		// Discovery defaults
		DiscoveryInterval: getDurationOrDefault("DISCOVERY_INTERVAL", 30*time.Second),
		GammaRateLimit:    getFloat64OrDefault("GAMMA_RATE_LIMIT", 5.0),

		// Liquidity snapshot defaults
		LiquiditySnapshotInterval: getDurationOrDefault("LIQUIDITY_SNAPSHOT_INTERVAL", 60*time.Second),
		LiquidityRetention:        getDurationOrDefault("LIQUIDITY_RETENTION", 7*24*time.Hour),

		// Wallet defaults
		WalletPollInterval: getDurationOrDefault("WALLET_POLL_INTERVAL", 30*time.Second),

		// WebSocket defaults
		WSPoolSize:              getIntOrDefault("WS_POOL_SIZE", 1),
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 30*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 10000),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "sqlite"),
		SQLitePath:   getEnvOrDefault("SQLITE_PATH", "updown-arb.db"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "updown"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", ""),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "updown_arb"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		// Alerting defaults
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: getInt64OrDefault("TELEGRAM_CHAT_ID", 0),
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	one := decimal.NewFromInt(1)

	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}
	if _, err := strconv.Atoi(c.HTTPPort); err != nil {
		return fmt.Errorf("HTTP_PORT must be numeric, got %q", c.HTTPPort)
	}

	if c.GammaAPIURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}
	if c.ClobAPIURL == "" {
		return fmt.Errorf("POLYMARKET_CLOB_API_URL cannot be empty")
	}
	if c.WSURL == "" {
		return fmt.Errorf("POLYMARKET_WS_URL cannot be empty")
	}

	if c.MinSpreadUSD.IsNegative() || c.MinSpreadUSD.GreaterThanOrEqual(one) {
		return fmt.Errorf("ARB_MIN_SPREAD_USD must be in [0, 1.0), got %s", c.MinSpreadUSD)
	}
	if c.BalanceSizingPct.LessThanOrEqual(decimal.Zero) || c.BalanceSizingPct.GreaterThan(one) {
		return fmt.Errorf("ARB_BALANCE_SIZING_PCT must be in (0, 1.0], got %s", c.BalanceSizingPct)
	}
	if c.MaxLiquidityPct.LessThanOrEqual(decimal.Zero) || c.MaxLiquidityPct.GreaterThan(one) {
		return fmt.Errorf("ARB_MAX_LIQUIDITY_CONSUMPTION_PCT must be in (0, 1.0], got %s", c.MaxLiquidityPct)
	}
	if c.MinTradeSizeUSD.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("ARB_MIN_TRADE_SIZE_USD must be positive, got %s", c.MinTradeSizeUSD)
	}
	if c.MaxTradeSizeUSD.LessThan(c.MinTradeSizeUSD) {
		return fmt.Errorf("ARB_MAX_TRADE_SIZE_USD %s is below ARB_MIN_TRADE_SIZE_USD %s", c.MaxTradeSizeUSD, c.MinTradeSizeUSD)
	}
	if c.MaxPerWindowUSD.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("ARB_MAX_PER_WINDOW_USD must be positive, got %s", c.MaxPerWindowUSD)
	}
	if c.SizingDecimalPlaces < 0 || c.SizingDecimalPlaces > 6 {
		return fmt.Errorf("ARB_SIZING_DECIMAL_PLACES must be in [0, 6], got %d", c.SizingDecimalPlaces)
	}
	if c.ParallelFillTimeout <= 0 {
		return fmt.Errorf("ARB_PARALLEL_FILL_TIMEOUT must be positive, got %s", c.ParallelFillTimeout)
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("ARB_STALE_THRESHOLD must be positive, got %s", c.StaleThreshold)
	}
	if c.OpportunityQueueCap <= 0 {
		return fmt.Errorf("ARB_OPPORTUNITY_QUEUE_CAP must be positive, got %d", c.OpportunityQueueCap)
	}
	if c.GradualEntryTranches <= 0 {
		return fmt.Errorf("ARB_GRADUAL_ENTRY_TRANCHES must be positive, got %d", c.GradualEntryTranches)
	}

	if c.RebalanceThreshold.LessThanOrEqual(decimal.Zero) || c.RebalanceThreshold.GreaterThan(one) {
		return fmt.Errorf("REBALANCE_THRESHOLD must be in (0, 1.0], got %s", c.RebalanceThreshold)
	}
	if c.MaxRebalanceAttempts <= 0 {
		return fmt.Errorf("REBALANCE_MAX_ATTEMPTS must be positive, got %d", c.MaxRebalanceAttempts)
	}

	if c.ClaimSellPrice.LessThanOrEqual(decimal.Zero) || c.ClaimSellPrice.GreaterThanOrEqual(one) {
		return fmt.Errorf("SETTLEMENT_CLAIM_PRICE must be in (0, 1.0), got %s", c.ClaimSellPrice)
	}
	if c.MaxClaimAttempts <= 0 {
		return fmt.Errorf("SETTLEMENT_MAX_CLAIM_ATTEMPTS must be positive, got %d", c.MaxClaimAttempts)
	}
	if c.SettlementMaxRetry < c.SettlementBaseRetry {
		return fmt.Errorf("SETTLEMENT_MAX_RETRY %s is below SETTLEMENT_BASE_RETRY %s", c.SettlementMaxRetry, c.SettlementBaseRetry)
	}

	if c.CBWarnFailures <= 0 || c.CBCautionFailures < c.CBWarnFailures || c.CBHaltFailures < c.CBCautionFailures {
		return fmt.Errorf("circuit breaker failure thresholds must satisfy 0 < warn <= caution <= halt, got %d/%d/%d",
			c.CBWarnFailures, c.CBCautionFailures, c.CBHaltFailures)
	}
	if c.CBWarnLossUSD.LessThanOrEqual(decimal.Zero) ||
		c.CBCautionLossUSD.LessThan(c.CBWarnLossUSD) ||
		c.CBHaltLossUSD.LessThan(c.CBCautionLossUSD) {
		return fmt.Errorf("circuit breaker loss thresholds must satisfy 0 < warn <= caution <= halt, got %s/%s/%s",
			c.CBWarnLossUSD, c.CBCautionLossUSD, c.CBHaltLossUSD)
	}

	if c.StorageMode != "sqlite" && c.StorageMode != "postgres" && c.StorageMode != "memory" {
		return fmt.Errorf("STORAGE_MODE must be 'sqlite', 'postgres', or 'memory', got %q", c.StorageMode)
	}

	if c.WSPoolSize <= 0 {
		return fmt.Errorf("WS_POOL_SIZE must be positive, got %d", c.WSPoolSize)
	}
	if c.GammaRateLimit <= 0 {
		return fmt.Errorf("GAMMA_RATE_LIMIT must be positive, got %f", c.GammaRateLimit)
	}

	return nil
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

func getInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.ParseInt(value, 10, 64)
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

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
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

func getDecimalOrDefault(key string, defaultValue string) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.RequireFromString(defaultValue)
	}

	return dec
}
