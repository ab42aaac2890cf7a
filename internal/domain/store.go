package domain

import (
	"context"
	"time"
)

// TickStore persists raw price ticks.
type TickStore interface {
	InsertBatch(ctx context.Context, ticks []Tick) error
	ListRecent(ctx context.Context, symbol string, limit int) ([]Tick, error)
	ListBefore(ctx context.Context, after, before time.Time, limit int) ([]Tick, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CandleStore persists OHLCV bars.
type CandleStore interface {
	UpsertBatch(ctx context.Context, candles []Candle) error
	ListRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]Candle, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeRecordStore persists completed round trips.
type TradeRecordStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListRecent(ctx context.Context, limit int) ([]TradeRecord, error)
}
