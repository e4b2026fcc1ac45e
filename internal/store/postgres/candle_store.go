package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftlabs/driftbot/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL. It is the
// backtest data source and the warmup history for the live engine.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a CandleStore backed by the given connection pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// InsertBatch inserts candles efficiently using pgx Batch. Re-inserting an
// existing (market, ts) pair is silently skipped via ON CONFLICT DO NOTHING,
// so ingestion jobs can overlap safely.
func (s *CandleStore) InsertBatch(ctx context.Context, market string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO candles (market, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market, ts) DO NOTHING`

	for _, c := range candles {
		batch.Queue(query, market, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert candle batch item %d: %w", i, err)
		}
	}
	return nil
}

// Range returns candles for a market within [from, to], oldest first.
func (s *CandleStore) Range(ctx context.Context, market string, from, to time.Time) ([]domain.Candle, error) {
	const query = `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE market = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, market, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: range candles %s: %w", market, err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: range candles %s: %w", market, err)
	}
	return candles, nil
}

// LastTimestamp returns the most recent candle timestamp for a market, or
// the zero time when the market has no candles yet.
func (s *CandleStore) LastTimestamp(ctx context.Context, market string) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(ts) FROM candles WHERE market = $1", market).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last candle timestamp %s: %w", market, err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// Compile-time interface check.
var _ domain.CandleStore = (*CandleStore)(nil)
