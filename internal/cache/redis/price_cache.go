package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each symbol's latest tick lives at key "price:{symbol}" with fields
// price, volume, bid, ask, spread and ts (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. Entries
// expire after ttl so a stopped mirror does not serve stale prices forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

// SetTick mirrors the latest tick for a symbol.
func (pc *PriceCache) SetTick(ctx context.Context, tick domain.Tick) error {
	key := priceKey(tick.Symbol)
	fields := map[string]interface{}{
		"price":  strconv.FormatFloat(tick.Price, 'f', -1, 64),
		"volume": strconv.FormatFloat(tick.Volume, 'f', -1, 64),
		"bid":    strconv.FormatFloat(tick.Bid, 'f', -1, 64),
		"ask":    strconv.FormatFloat(tick.Ask, 'f', -1, 64),
		"spread": strconv.FormatFloat(tick.Spread(), 'f', -1, 64),
		"source": string(tick.Source),
		"ts":     strconv.FormatInt(tick.Timestamp.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", tick.Symbol, err)
	}
	return nil
}

// GetTick retrieves the mirrored tick for a symbol. Returns
// domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Tick{}, domain.ErrNotFound
	}

	tick := domain.Tick{Symbol: symbol, Source: domain.TickSource(vals["source"])}
	if tick.Price, err = strconv.ParseFloat(vals["price"], 64); err != nil {
		return domain.Tick{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}
	tick.Volume, _ = strconv.ParseFloat(vals["volume"], 64)
	tick.Bid, _ = strconv.ParseFloat(vals["bid"], 64)
	tick.Ask, _ = strconv.ParseFloat(vals["ask"], 64)

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	tick.Timestamp = time.Unix(0, tsNano).UTC()
	return tick, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
