package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// TradeRecordStore implements domain.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *pgxpool.Pool
}

// NewTradeRecordStore creates a TradeRecordStore backed by the given pool.
func NewTradeRecordStore(pool *pgxpool.Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Insert appends one completed round trip.
func (s *TradeRecordStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_records (
			id, symbol, side, entry_price, exit_price, quantity,
			pnl, pnl_pct, reason, strategy, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.Symbol, string(rec.Side), rec.EntryPrice, rec.ExitPrice, rec.Quantity,
		rec.PnL, rec.PnLPct, string(rec.Reason), rec.Strategy, rec.OpenedAt, rec.ClosedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert trade record: %w", err)
	}
	return nil
}

// ListRecent returns the most recently closed trades, oldest first, so the
// result can seed the risk engine history directly.
func (s *TradeRecordStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, side, entry_price, exit_price, quantity,
		       pnl, pnl_pct, reason, strategy, opened_at, closed_at
		FROM (
			SELECT * FROM trade_records ORDER BY closed_at DESC LIMIT $1
		) recent
		ORDER BY closed_at ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trade records: %w", err)
	}
	defer rows.Close()

	var recs []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var side, reason string
		if err := rows.Scan(&r.ID, &r.Symbol, &side, &r.EntryPrice, &r.ExitPrice, &r.Quantity,
			&r.PnL, &r.PnLPct, &reason, &r.Strategy, &r.OpenedAt, &r.ClosedAt); err != nil {
			return nil, err
		}
		r.Side = domain.OrderSide(side)
		r.Reason = domain.ExitReason(reason)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

var _ domain.TradeRecordStore = (*TradeRecordStore)(nil)
