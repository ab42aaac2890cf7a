package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

const tickSelectCols = `symbol, timestamp, price, volume, bid, ask, source`

func scanTickRows(rows pgx.Rows) ([]domain.Tick, error) {
	var ticks []domain.Tick
	for rows.Next() {
		var t domain.Tick
		var source string
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Volume, &t.Bid, &t.Ask, &source); err != nil {
			return nil, err
		}
		t.Source = domain.TickSource(source)
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// InsertBatch appends ticks efficiently using pgx Batch.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO price_ticks (symbol, timestamp, price, volume, bid, ask, spread, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, t := range ticks {
		batch.Queue(query, t.Symbol, t.Timestamp, t.Price, t.Volume, t.Bid, t.Ask, t.Spread(), string(t.Source))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range ticks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tick batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns the newest ticks for a symbol, newest first.
func (s *TickStore) ListRecent(ctx context.Context, symbol string, limit int) ([]domain.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tickSelectCols+` FROM price_ticks
		WHERE symbol = $1
		ORDER BY timestamp DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent ticks: %w", err)
	}
	defer rows.Close()
	return scanTickRows(rows)
}

// ListBefore returns up to limit ticks in the window (after, before), oldest
// first. The archiver pages through expiring rows by passing the last row's
// timestamp as the next lower bound.
func (s *TickStore) ListBefore(ctx context.Context, after, before time.Time, limit int) ([]domain.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tickSelectCols+` FROM price_ticks
		WHERE timestamp > $1 AND timestamp < $2
		ORDER BY timestamp ASC
		LIMIT $3`, after, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks before: %w", err)
	}
	defer rows.Close()
	return scanTickRows(rows)
}

// DeleteBefore trims ticks older than the cutoff and reports how many rows
// were removed.
func (s *TickStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM price_ticks WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete ticks before: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.TickStore = (*TickStore)(nil)
