package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/lmoura/cryptopilot/internal/domain"
)

const (
	flushBatch    = 200
	flushInterval = 2 * time.Second
)

// persister drains ticks off the hot path into the tick store and the
// price cache. The queue drops on overflow rather than block the feed.
type persister struct {
	store  domain.TickStore
	cache  domain.PriceCache
	queue  chan domain.Tick
	logger *slog.Logger
}

func newPersister(store domain.TickStore, cache domain.PriceCache, buffer int, logger *slog.Logger) *persister {
	return &persister{
		store:  store,
		cache:  cache,
		queue:  make(chan domain.Tick, buffer),
		logger: logger.With(slog.String("component", "tick_persister")),
	}
}

func (p *persister) enqueue(tick domain.Tick) {
	select {
	case p.queue <- tick:
	default:
		p.logger.Warn("tick queue full, dropping", slog.String("symbol", tick.Symbol))
	}
}

func (p *persister) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]domain.Tick, 0, flushBatch)
	for {
		select {
		case <-ctx.Done():
			p.flush(batch)
			return
		case tick := <-p.queue:
			batch = append(batch, tick)
			if len(batch) >= flushBatch {
				p.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush writes the batch to the store and mirrors the newest tick per
// symbol into the cache. Uses a fresh context so a feed shutdown still
// lands the tail of the queue.
func (p *persister) flush(batch []domain.Tick) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if p.store != nil {
		if err := p.store.InsertBatch(ctx, batch); err != nil {
			p.logger.Warn("tick insert failed", slog.Int("count", len(batch)), slog.String("error", err.Error()))
		}
	}
	if p.cache != nil {
		latest := make(map[string]domain.Tick, 4)
		for _, t := range batch {
			if cur, ok := latest[t.Symbol]; !ok || t.Timestamp.After(cur.Timestamp) {
				latest[t.Symbol] = t
			}
		}
		for _, t := range latest {
			if err := p.cache.SetTick(ctx, t); err != nil {
				p.logger.Warn("price cache update failed", slog.String("symbol", t.Symbol), slog.String("error", err.Error()))
			}
		}
	}
}
