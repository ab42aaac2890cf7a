package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/lmoura/cryptopilot/internal/blob/s3"
	"github.com/lmoura/cryptopilot/internal/cache/redis"
	"github.com/lmoura/cryptopilot/internal/config"
	"github.com/lmoura/cryptopilot/internal/domain"
	"github.com/lmoura/cryptopilot/internal/exchange"
	"github.com/lmoura/cryptopilot/internal/feed"
	"github.com/lmoura/cryptopilot/internal/monitoring"
	"github.com/lmoura/cryptopilot/internal/pipeline"
	"github.com/lmoura/cryptopilot/internal/platform/binance"
	"github.com/lmoura/cryptopilot/internal/store/postgres"
)

// gatewayTimeout bounds every REST call made by the real gateway.
const gatewayTimeout = 15 * time.Second

// Dependencies bundles everything the application modes need to build and
// rebuild the orchestrator. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	Gateway  exchange.Gateway
	Streamer feed.Streamer

	// Stores; nil in sim mode or when postgres is disabled.
	TickStore    domain.TickStore
	CandleStore  domain.CandleStore
	TradeRecords domain.TradeRecordStore

	// Cache; nil in sim mode or when redis is disabled.
	PriceCache domain.PriceCache

	// Retention job; nil unless postgres and retention are both enabled.
	Retention *pipeline.Retention

	Health *monitoring.HealthChecker
}

// needsInfra returns true for modes that use the external backing services.
// Simulation runs entirely in memory.
func needsInfra(mode string) bool {
	return strings.ToLower(mode) == "trade"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Health: monitoring.NewHealthChecker(),
	}

	// --- Gateway + streamer ---
	if strings.EqualFold(cfg.Mode, "sim") {
		sim := exchange.NewSimGateway(simStartPrices(cfg.Pairs), time.Now().UnixNano())
		deps.Gateway = sim
		deps.Streamer = exchange.NewSimStreamer(sim, time.Second)
	} else {
		deps.Gateway = exchange.NewBinanceGateway(
			cfg.Exchange.BaseURL,
			cfg.Exchange.APIKey,
			cfg.Exchange.APISecret,
			gatewayTimeout,
		)
		deps.Streamer = binance.NewStreamClient(cfg.Exchange.WsURL, logger)
	}

	// --- PostgreSQL ---
	if needsInfra(cfg.Mode) && cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TickStore = postgres.NewTickStore(pool)
		deps.CandleStore = postgres.NewCandleStore(pool)
		deps.TradeRecords = postgres.NewTradeRecordStore(pool)

		deps.Health.AddProbe("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		})
	}

	// --- Redis ---
	if needsInfra(cfg.Mode) && cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)

		deps.Health.AddProbe("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(pingCtx)
		})
	}

	// --- S3 tick archiver ---
	var archiver domain.Archiver
	if needsInfra(cfg.Mode) && cfg.S3.Enabled && deps.TickStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.TickStore, logger)
	}

	// --- Retention job ---
	if cfg.Retention.Enabled && deps.TickStore != nil && deps.CandleStore != nil {
		deps.Retention = pipeline.NewRetention(
			deps.TickStore,
			deps.CandleStore,
			archiver,
			cfg.Retention.Days,
			logger,
		)
	}

	return deps, cleanup, nil
}

// simStartPrices seeds the simulator with a plausible price per configured
// pair so strategies have sensible magnitudes to work against.
func simStartPrices(pairs []config.PairConfig) map[string]float64 {
	base := map[string]float64{
		"BTC": 50_000,
		"ETH": 3_000,
		"BNB": 500,
		"SOL": 150,
		"XRP": 0.5,
	}
	prices := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		sym := p.Symbol
		price := 100.0
		if i := strings.Index(sym, "/"); i > 0 {
			if v, ok := base[sym[:i]]; ok {
				price = v
			}
		}
		prices[sym] = price
	}
	return prices
}
