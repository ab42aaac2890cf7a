package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CRYPTOPILOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CRYPTOPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "CRYPTOPILOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WsURL, "CRYPTOPILOT_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.APIKey, "CRYPTOPILOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "CRYPTOPILOT_EXCHANGE_API_SECRET")
	setInt(&cfg.Exchange.RecvWindowMs, "CRYPTOPILOT_EXCHANGE_RECV_WINDOW_MS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CRYPTOPILOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CRYPTOPILOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CRYPTOPILOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CRYPTOPILOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CRYPTOPILOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CRYPTOPILOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CRYPTOPILOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CRYPTOPILOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CRYPTOPILOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CRYPTOPILOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CRYPTOPILOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CRYPTOPILOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CRYPTOPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRYPTOPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRYPTOPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRYPTOPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CRYPTOPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CRYPTOPILOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "CRYPTOPILOT_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CRYPTOPILOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CRYPTOPILOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CRYPTOPILOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CRYPTOPILOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CRYPTOPILOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CRYPTOPILOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CRYPTOPILOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CRYPTOPILOT_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setDuration(&cfg.Feed.PollInterval, "CRYPTOPILOT_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.ReconnectBase, "CRYPTOPILOT_FEED_RECONNECT_BASE")
	setDuration(&cfg.Feed.ReconnectMax, "CRYPTOPILOT_FEED_RECONNECT_MAX")
	setInt(&cfg.Feed.DegradedAfter, "CRYPTOPILOT_FEED_DEGRADED_AFTER")
	setInt(&cfg.Feed.FailedAfter, "CRYPTOPILOT_FEED_FAILED_AFTER")

	// ── Risk ──
	setStr(&cfg.Risk.Profile, "CRYPTOPILOT_RISK_PROFILE")
	setFloat64(&cfg.Risk.MaxRiskPerTrade, "CRYPTOPILOT_RISK_MAX_RISK_PER_TRADE")
	setFloat64(&cfg.Risk.MaxPortfolioRisk, "CRYPTOPILOT_RISK_MAX_PORTFOLIO_RISK")
	setInt(&cfg.Risk.MaxConcurrentTrades, "CRYPTOPILOT_RISK_MAX_CONCURRENT_TRADES")
	setFloat64(&cfg.Risk.MaxDailyLoss, "CRYPTOPILOT_RISK_MAX_DAILY_LOSS")
	setStr(&cfg.Risk.SizingMethod, "CRYPTOPILOT_RISK_SIZING_METHOD")

	// ── Monitor ──
	setBool(&cfg.Monitor.Enabled, "CRYPTOPILOT_MONITOR_ENABLED")
	setInt(&cfg.Monitor.Port, "CRYPTOPILOT_MONITOR_PORT")

	// ── Trading ──
	setStr(&cfg.Trading.Timeframe, "CRYPTOPILOT_TRADING_TIMEFRAME")
	setDuration(&cfg.Trading.CycleInterval, "CRYPTOPILOT_TRADING_CYCLE_INTERVAL")
	setInt(&cfg.Trading.CandleLimit, "CRYPTOPILOT_TRADING_CANDLE_LIMIT")
	setDuration(&cfg.Trading.SummaryInterval, "CRYPTOPILOT_TRADING_SUMMARY_INTERVAL")

	// ── Retention ──
	setBool(&cfg.Retention.Enabled, "CRYPTOPILOT_RETENTION_ENABLED")
	setInt(&cfg.Retention.Days, "CRYPTOPILOT_RETENTION_DAYS")
	setStr(&cfg.Retention.Cron, "CRYPTOPILOT_RETENTION_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "CRYPTOPILOT_MODE")
	setStr(&cfg.LogLevel, "CRYPTOPILOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
