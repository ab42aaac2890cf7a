package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmoura/cryptopilot/internal/domain"
)

type memTickStore struct {
	inserted [][]domain.Tick
}

func (s *memTickStore) InsertBatch(_ context.Context, ticks []domain.Tick) error {
	cp := make([]domain.Tick, len(ticks))
	copy(cp, ticks)
	s.inserted = append(s.inserted, cp)
	return nil
}

func (s *memTickStore) ListRecent(context.Context, string, int) ([]domain.Tick, error) {
	return nil, nil
}

func (s *memTickStore) ListBefore(context.Context, time.Time, time.Time, int) ([]domain.Tick, error) {
	return nil, nil
}

func (s *memTickStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memPriceCache struct {
	ticks map[string]domain.Tick
}

func (c *memPriceCache) SetTick(_ context.Context, tick domain.Tick) error {
	if c.ticks == nil {
		c.ticks = make(map[string]domain.Tick)
	}
	c.ticks[tick.Symbol] = tick
	return nil
}

func (c *memPriceCache) GetTick(_ context.Context, symbol string) (domain.Tick, error) {
	return c.ticks[symbol], nil
}

func TestPersisterFlushWritesStoreAndCache(t *testing.T) {
	store := &memTickStore{}
	cache := &memPriceCache{}
	p := newPersister(store, cache, 16, testLogger())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []domain.Tick{
		{Symbol: "BTC/USDT", Price: 100, Timestamp: base},
		{Symbol: "ETH/USDT", Price: 10, Timestamp: base},
		{Symbol: "BTC/USDT", Price: 101, Timestamp: base.Add(time.Second)},
	}
	p.flush(batch)

	require.Len(t, store.inserted, 1)
	assert.Len(t, store.inserted[0], 3)

	// Only the newest tick per symbol lands in the cache.
	cached, err := cache.GetTick(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 101.0, cached.Price)
}

func TestPersisterEnqueueDropsOnOverflow(t *testing.T) {
	p := newPersister(&memTickStore{}, nil, 2, testLogger())

	for i := 0; i < 10; i++ {
		p.enqueue(domain.Tick{Symbol: "BTC/USDT", Price: float64(i)})
	}
	assert.Len(t, p.queue, 2)
}

func TestPersisterFlushEmptyBatch(t *testing.T) {
	store := &memTickStore{}
	p := newPersister(store, nil, 2, testLogger())
	p.flush(nil)
	assert.Empty(t, store.inserted)
}
