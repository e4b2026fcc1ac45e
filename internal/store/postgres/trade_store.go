package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftlabs/driftbot/internal/domain"
)

// TradeStore implements domain.TradeLedger using PostgreSQL. Partial exits
// are separate rows sharing the position's open time, distinguished by the
// fill's order ID.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, market, strategy, side, entry_price, exit_price,
	size, fraction, pnl, fees, reason, regime, bars_held, opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		if err := rows.Scan(
			&t.ID, &t.Market, &t.Strategy, &t.Side,
			&t.EntryPrice, &t.ExitPrice, &t.Size, &t.Fraction,
			&t.PnL, &t.Fees, &t.Reason, &t.Regime, &t.BarsHeld,
			&t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Append records one closed (or partially closed) trade. Replaying the same
// fill is silently skipped via ON CONFLICT DO NOTHING.
func (s *TradeStore) Append(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, market, strategy, side, entry_price, exit_price,
			size, fraction, pnl, fees, reason, regime, bars_held,
			opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Market, t.Strategy, string(t.Side),
		t.EntryPrice, t.ExitPrice, t.Size, t.Fraction,
		t.PnL, t.Fees, string(t.Reason), string(t.Regime), t.BarsHeld,
		t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade %s: %w", t.ID, err)
	}
	return nil
}

// ListRecent returns the newest trades for a market, most recent first.
// An empty market lists across all markets.
func (s *TradeStore) ListRecent(ctx context.Context, market string, limit int) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades`
	args := []any{}
	if market != "" {
		query += ` WHERE market = $1`
		args = append(args, market)
	}
	query += ` ORDER BY closed_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades closed strictly before the given time,
// oldest first (for cold-storage archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE closed_at < $1 ORDER BY closed_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades closed before the given time. Returns the
// number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeLedger = (*TradeStore)(nil)
