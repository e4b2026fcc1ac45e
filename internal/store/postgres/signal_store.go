package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftlabs/driftbot/internal/domain"
)

// SignalStore implements domain.SignalLog using PostgreSQL. Rows are
// append-only: one per evaluated decision, with the blocked column carrying
// the risk reason when an otherwise-triggered entry was refused.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

func (s *SignalStore) insert(ctx context.Context, d domain.TradingDecision, blocked string) error {
	const query = `
		INSERT INTO signals (
			id, market, strategy, direction, confidence, triggered,
			blocked, reasons, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET blocked = EXCLUDED.blocked`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Market, d.Strategy, string(d.Direction), d.Confidence,
		d.Trigger, blocked, d.Reasons, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: log signal %s: %w", d.ID, err)
	}
	return nil
}

// LogDecision records one strategy evaluation.
func (s *SignalStore) LogDecision(ctx context.Context, d domain.TradingDecision) error {
	return s.insert(ctx, d, "")
}

// LogBlocked records a triggered decision that risk checks refused. Logging
// the same decision twice upgrades the earlier row with the block reason.
func (s *SignalStore) LogBlocked(ctx context.Context, d domain.TradingDecision, reason string) error {
	return s.insert(ctx, d, reason)
}

// Compile-time interface check.
var _ domain.SignalLog = (*SignalStore)(nil)
