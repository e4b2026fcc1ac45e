package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CandleStore serves historical candles for backtesting and warmup.
type CandleStore interface {
	InsertBatch(ctx context.Context, market string, candles []Candle) error
	Range(ctx context.Context, market string, from, to time.Time) ([]Candle, error)
	LastTimestamp(ctx context.Context, market string) (time.Time, error)
}

// TradeLedger persists closed trade records. Writes are append-only; a
// failure to record a trade must never abort trading.
type TradeLedger interface {
	Append(ctx context.Context, trade TradeRecord) error
	ListRecent(ctx context.Context, market string, limit int) ([]TradeRecord, error)
}

// SignalLog persists emitted decisions and blocked-trade events for audit.
// Like TradeLedger it is fire-and-forget from the engine's point of view.
type SignalLog interface {
	LogDecision(ctx context.Context, decision TradingDecision) error
	LogBlocked(ctx context.Context, decision TradingDecision, reason string) error
}

// Checkpoint is persisted optimizer progress, re-loadable to resume a
// partially completed sweep.
type Checkpoint struct {
	RunID     string         `json:"run_id"`
	Strategy  string         `json:"strategy"`
	Market    string         `json:"market"`
	TotalSets int            `json:"total_parameter_sets"`
	Completed int            `json:"completed_sets"`
	Results   []TrialOutcome `json:"results"`
	SavedAt   time.Time      `json:"saved_at"`
}

// TrialOutcome is one evaluated parameter set with its backtest metrics,
// serialized into checkpoints.
type TrialOutcome struct {
	Params  map[string]float64 `json:"params"`
	Metrics TrialMetrics       `json:"metrics"`
}

// TrialMetrics is the serializable metrics summary for one optimizer trial.
// All values are finite; see metrics.Result for the derivation rules.
type TrialMetrics struct {
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalPnL     float64 `json:"total_pnl"`
}

// CheckpointStore saves and restores optimizer progress. Load returns
// ErrNotFound when no checkpoint exists for the run.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, runID string) (Checkpoint, error)
	Delete(ctx context.Context, runID string) error
}
