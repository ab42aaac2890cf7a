// Package config defines the top-level configuration for the trading daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lmoura/cryptopilot/internal/risk"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CRYPTOPILOT_* environment variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Feed      FeedConfig      `toml:"feed"`
	Risk      RiskConfig      `toml:"risk"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Trading   TradingConfig   `toml:"trading"`
	Retention RetentionConfig `toml:"retention"`
	Pairs     []PairConfig    `toml:"pairs"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds exchange API endpoints and credentials.
type ExchangeConfig struct {
	BaseURL      string `toml:"base_url"`
	WsURL        string `toml:"ws_url"`
	APIKey       string `toml:"api_key"`
	APISecret    string `toml:"api_secret"`
	RecvWindowMs int    `toml:"recv_window_ms"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the tick
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig tunes the market-data feed and its fallback behaviour.
type FeedConfig struct {
	PollInterval  duration `toml:"poll_interval"`
	ReconnectBase duration `toml:"reconnect_base"`
	ReconnectMax  duration `toml:"reconnect_max"`
	DegradedAfter int      `toml:"degraded_after"`
	FailedAfter   int      `toml:"failed_after"`
	PersistBuffer int      `toml:"persist_buffer"`
}

// RiskConfig selects a risk profile and optionally overrides individual
// limits. Zero-valued numeric fields fall back to the profile's value, so
// only the limits an operator actually sets in TOML diverge from the
// profile.
type RiskConfig struct {
	Profile string `toml:"profile"`

	MaxRiskPerTrade     float64 `toml:"max_risk_per_trade"`
	MaxPortfolioRisk    float64 `toml:"max_portfolio_risk"`
	MaxConcurrentTrades int     `toml:"max_concurrent_trades"`
	MaxDailyLoss        float64 `toml:"max_daily_loss"`

	StopLossPct   float64 `toml:"stop_loss_pct"`
	TakeProfitPct float64 `toml:"take_profit_pct"`

	TrailingStopDisabled bool    `toml:"trailing_stop_disabled"`
	TrailingStopDistance float64 `toml:"trailing_stop_distance"`

	SizingMethod string  `toml:"sizing_method"`
	FixedAmount  float64 `toml:"fixed_amount"`
	BalancePct   float64 `toml:"balance_pct"`
}

// Params resolves the profile preset and applies any explicit overrides.
func (rc RiskConfig) Params() (risk.Params, error) {
	profile := risk.Profile(rc.Profile)
	if rc.Profile == "" {
		profile = risk.ProfileModerate
	}
	params, err := risk.ProfileParams(profile)
	if err != nil {
		return risk.Params{}, err
	}

	if rc.MaxRiskPerTrade > 0 {
		params.MaxRiskPerTrade = rc.MaxRiskPerTrade
	}
	if rc.MaxPortfolioRisk > 0 {
		params.MaxPortfolioRisk = rc.MaxPortfolioRisk
	}
	if rc.MaxConcurrentTrades > 0 {
		params.MaxConcurrentTrades = rc.MaxConcurrentTrades
	}
	if rc.MaxDailyLoss > 0 {
		params.MaxDailyLoss = rc.MaxDailyLoss
	}
	if rc.StopLossPct > 0 {
		params.StopLossPct = rc.StopLossPct
	}
	if rc.TakeProfitPct > 0 {
		params.TakeProfitPct = rc.TakeProfitPct
	}
	if rc.TrailingStopDisabled {
		params.TrailingStopEnabled = false
	}
	if rc.TrailingStopDistance > 0 {
		params.TrailingStopDistance = rc.TrailingStopDistance
	}
	if rc.SizingMethod != "" {
		params.SizingMethod = risk.SizingMethod(rc.SizingMethod)
	}
	if rc.FixedAmount > 0 {
		params.FixedAmount = rc.FixedAmount
	}
	if rc.BalancePct > 0 {
		params.BalancePct = rc.BalancePct
	}
	return params, nil
}

// MonitorConfig holds the metrics/health HTTP server parameters.
type MonitorConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// TradingConfig holds the evaluation cadence shared by all controllers.
type TradingConfig struct {
	Timeframe       string   `toml:"timeframe"`
	CycleInterval   duration `toml:"cycle_interval"`
	CandleLimit     int      `toml:"candle_limit"`
	SummaryInterval duration `toml:"summary_interval"`
}

// RetentionConfig holds the archival and trim schedule for aged market data.
type RetentionConfig struct {
	Enabled bool   `toml:"enabled"`
	Days    int    `toml:"days"`
	Cron    string `toml:"cron"`
}

// PairConfig describes one trading pair and the strategy assigned to it.
type PairConfig struct {
	Symbol   string             `toml:"symbol"`
	Strategy string             `toml:"strategy"`
	Params   map[string]float64 `toml:"params"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:      "https://api.binance.com",
			WsURL:        "wss://stream.binance.com:9443",
			RecvWindowMs: 5000,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "cryptopilot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			PriceTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "cryptopilot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			PollInterval:  duration{5 * time.Second},
			ReconnectBase: duration{2 * time.Second},
			ReconnectMax:  duration{60 * time.Second},
			DegradedAfter: 3,
			FailedAfter:   20,
			PersistBuffer: 4096,
		},
		Risk: RiskConfig{
			Profile: "moderate",
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Port:    9090,
		},
		Trading: TradingConfig{
			Timeframe:       "1m",
			CycleInterval:   duration{60 * time.Second},
			CandleLimit:     250,
			SummaryInterval: duration{5 * time.Minute},
		},
		Retention: RetentionConfig{
			Enabled: true,
			Days:    7,
			Cron:    "0 3 * * *",
		},
		Pairs: []PairConfig{
			{Symbol: "BTC/USDT", Strategy: "trend_following"},
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"sim":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSizingMethods enumerates the accepted sizing_method override values.
var validSizingMethods = map[string]bool{
	"":                           true,
	string(risk.SizingFixed):     true,
	string(risk.SizingPercent):   true,
	string(risk.SizingRiskBased): true,
	string(risk.SizingKelly):     true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, sim)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange. Credentials are only needed when real orders are placed.
	if strings.EqualFold(c.Mode, "trade") {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			errs = append(errs, "exchange: api_key and api_secret are required for trade mode")
		}
	}
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.WsURL == "" {
		errs = append(errs, "exchange: ws_url must not be empty")
	}
	if c.Exchange.RecvWindowMs <= 0 {
		errs = append(errs, "exchange: recv_window_ms must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archival requires postgres to be enabled")
		}
	}

	// Feed
	if c.Feed.PollInterval.Duration <= 0 {
		errs = append(errs, "feed: poll_interval must be > 0")
	}
	if c.Feed.DegradedAfter < 1 {
		errs = append(errs, "feed: degraded_after must be >= 1")
	}
	if c.Feed.FailedAfter <= c.Feed.DegradedAfter {
		errs = append(errs, "feed: failed_after must exceed degraded_after")
	}

	// Risk
	if _, err := c.Risk.Params(); err != nil {
		errs = append(errs, fmt.Sprintf("risk: unknown profile %q (valid: conservative, moderate, aggressive)", c.Risk.Profile))
	}
	if !validSizingMethods[c.Risk.SizingMethod] {
		errs = append(errs, fmt.Sprintf("risk: unknown sizing_method %q", c.Risk.SizingMethod))
	}

	// Monitor
	if c.Monitor.Enabled {
		if c.Monitor.Port <= 0 || c.Monitor.Port > 65535 {
			errs = append(errs, fmt.Sprintf("monitor: port must be 1-65535, got %d", c.Monitor.Port))
		}
	}

	// Trading
	if c.Trading.Timeframe == "" {
		errs = append(errs, "trading: timeframe must not be empty")
	}
	if c.Trading.CycleInterval.Duration <= 0 {
		errs = append(errs, "trading: cycle_interval must be > 0")
	}
	if c.Trading.CandleLimit < 2 {
		errs = append(errs, "trading: candle_limit must be >= 2")
	}

	// Retention
	if c.Retention.Enabled {
		if c.Retention.Days < 1 {
			errs = append(errs, "retention: days must be >= 1")
		}
		if c.Retention.Cron == "" {
			errs = append(errs, "retention: cron must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "retention: requires postgres to be enabled")
		}
	}

	// Pairs
	if len(c.Pairs) == 0 {
		errs = append(errs, "pairs: at least one trading pair must be configured")
	}
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if !strings.Contains(p.Symbol, "/") {
			errs = append(errs, fmt.Sprintf("pairs[%d]: symbol %q must be of the form BASE/QUOTE", i, p.Symbol))
		}
		if p.Strategy == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: strategy must not be empty", i))
		}
		if seen[p.Symbol] {
			errs = append(errs, fmt.Sprintf("pairs[%d]: duplicate symbol %q", i, p.Symbol))
		}
		seen[p.Symbol] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
