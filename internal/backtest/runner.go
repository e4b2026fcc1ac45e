// Package backtest replays historical snapshots through the exact live
// decision pipeline (features -> strategy -> risk -> execution -> exits)
// with a simulated fill sink, producing a metrics summary, a full equity
// curve, and a trade ledger.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/executor"
	"github.com/driftlabs/driftbot/internal/features"
	"github.com/driftlabs/driftbot/internal/metrics"
	"github.com/driftlabs/driftbot/internal/position"
	"github.com/driftlabs/driftbot/internal/risk"
	"github.com/driftlabs/driftbot/internal/strategy"
)

// SizingMode selects how entry notional is computed.
type SizingMode string

const (
	// SizingPercent sizes each entry as a confidence-scaled percentage of
	// current capital, so results compound tick to tick. This is the
	// default: it matches how the live engine sizes against real equity.
	SizingPercent SizingMode = "percent"
	// SizingFixed uses a fixed notional per entry (still capped by the
	// risk limits), useful for comparing parameter sets without
	// compounding effects.
	SizingFixed SizingMode = "fixed"
)

// Config holds everything one backtest run needs besides the snapshots.
type Config struct {
	Strategy       strategy.Strategy
	Thresholds     strategy.Thresholds
	Risk           risk.Params
	InitialCapital float64
	FeePct         float64 // fee percent of notional, charged on entry and exit
	Sizing         SizingMode
	FixedNotional  float64 // used by SizingFixed
	FeatureWindow  int
	Regimes        features.RegimeThresholds
}

// Report is the outcome of one backtest run.
type Report struct {
	RunID       string
	Market      string
	Strategy    string
	Metrics     metrics.Result
	EquityCurve []domain.EquityPoint
	Trades      []domain.TradeRecord
	// ZeroTrades flags a replay that never traded. Valid but suspicious;
	// surfaced as a warning, never an error.
	ZeroTrades bool
}

// Runner replays snapshot sequences. A Runner is single-use per Run call in
// terms of state: every Run constructs fresh risk state, position tracking,
// and feature windows, which is what makes optimizer trials independent.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// NewRunner creates a Runner for the given configuration.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("backtest: strategy is required")
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("backtest: initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	if cfg.Sizing == "" {
		cfg.Sizing = SizingPercent
	}
	if cfg.Regimes == (features.RegimeThresholds{}) {
		cfg.Regimes = features.DefaultRegimeThresholds()
	}
	return &Runner{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "backtest")),
	}, nil
}

// Run replays the snapshots in order. Snapshots must be sorted by candle
// timestamp; out-of-order input is a data error and fails the run.
func (r *Runner) Run(ctx context.Context, snapshots []domain.MarketSnapshot) (*Report, error) {
	report := &Report{
		RunID:    uuid.NewString(),
		Strategy: r.cfg.Strategy.Name(),
	}
	if len(snapshots) > 0 {
		report.Market = snapshots[0].Market
	}

	extractor := features.NewExtractor(r.cfg.FeatureWindow, r.logger)
	riskMgr := risk.NewManager(r.cfg.Risk, r.logger)
	tracker := position.NewTracker()
	sim := executor.NewSimSink(r.cfg.FeePct)
	agg := metrics.NewAggregator()

	equity := r.cfg.InitialCapital
	var entryFee float64 // undeducted entry fee of the open position, prorated on exits

	var lastTS time.Time
	for i, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}
		ts := snap.Candle.Timestamp
		if i > 0 && !ts.After(lastTS) {
			return nil, fmt.Errorf("backtest: snapshot %d out of order: %s not after %s", i, ts, lastTS)
		}
		lastTS = ts

		price := snap.Candle.Close
		sim.MarkPrice(snap.Market, price, ts)

		f, ready := extractor.Update(snap)
		if !ready {
			agg.MarkEquity(ts, equity)
			continue
		}
		regime := features.ClassifyRegime(f, r.cfg.Regimes)

		if tracker.Position().Open() {
			tracker.Tick(price)
			if action, ok := r.cfg.Strategy.CheckExit(tracker.Position(), tracker.ExitState(), f, r.cfg.Thresholds); ok {
				trade, closed, err := r.executeExit(ctx, sim, tracker, action, regime, ts, &entryFee)
				if err != nil {
					// Failed fill: position stays open untouched, retried next tick.
					r.logger.WarnContext(ctx, "exit fill failed",
						slog.String("reason", string(action.Reason)),
						slog.String("error", err.Error()),
					)
				} else {
					riskMgr.Update(trade.PnL)
					equity += trade.PnL
					if closed {
						entryFee = 0
					}
					report.Trades = append(report.Trades, trade)
					agg.AddTrade(trade)
				}
			}
			agg.MarkEquity(ts, equity+tracker.Position().UnrealizedPnL)
			continue
		}

		d := r.cfg.Strategy.Decide(f, r.cfg.Thresholds)
		d.ID = uuid.NewString()

		ok, reason := riskMgr.Validate(risk.Candidate{
			Trigger:    d.Trigger,
			Long:       d.Direction == domain.DirectionLong,
			Short:      d.Direction == domain.DirectionShort,
			Confidence: d.Confidence,
		}, equity)
		if !ok {
			if d.Trigger {
				r.logger.DebugContext(ctx, "entry blocked",
					slog.String("market", snap.Market),
					slog.String("reason", reason),
				)
			}
			agg.MarkEquity(ts, equity)
			continue
		}

		notional := riskMgr.SizePosition(equity, d.Confidence)
		if r.cfg.Sizing == SizingFixed && r.cfg.FixedNotional > 0 {
			notional = math.Min(r.cfg.FixedNotional, notional)
			if notional < r.cfg.Risk.MinNotional {
				// The fixed cap undercuts the floor Validate enforced.
				agg.MarkEquity(ts, equity)
				continue
			}
		}

		fill, err := sim.Execute(ctx, domain.OrderRequest{
			ID:        d.ID,
			Market:    snap.Market,
			Side:      d.Direction,
			Notional:  notional,
			Reason:    "entry",
			CreatedAt: ts,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "entry fill failed", slog.String("error", err.Error()))
			agg.MarkEquity(ts, equity)
			continue
		}

		stopDist := r.cfg.Thresholds.StopDistance(fill.FilledPrice, extractor.ATR(snap.Market))
		if err := tracker.Open(snap.Market, d.Direction, fill, stopDist); err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}
		entryFee = fill.Fee
		agg.MarkEquity(ts, equity)
	}

	report.Metrics = agg.Result()
	report.EquityCurve = agg.EquityCurve()
	if len(report.Trades) == 0 {
		report.ZeroTrades = true
		r.logger.Warn("backtest produced zero trades",
			slog.String("strategy", report.Strategy),
			slog.Int("snapshots", len(snapshots)),
		)
	}
	return report, nil
}

// executeExit places the reduce-only order, applies the confirmed fill to
// the tracker, and prorates the undeducted entry fee over the share of the
// remaining position being closed, so a full exit sequence always charges
// the entry fee exactly once. The returned trade record carries the net
// realized PnL of the closed fraction.
func (r *Runner) executeExit(
	ctx context.Context,
	sim *executor.SimSink,
	tracker *position.Tracker,
	action domain.ExitAction,
	regime domain.Regime,
	ts time.Time,
	entryFee *float64,
) (domain.TradeRecord, bool, error) {
	pos := tracker.Position()
	barsHeld := tracker.BarsHeld()

	fill, err := sim.Execute(ctx, domain.OrderRequest{
		ID:         uuid.NewString(),
		Market:     pos.Market,
		Side:       pos.Side.Opposite(),
		Notional:   pos.Size * action.Fraction,
		ReduceOnly: true,
		Reason:     string(action.Reason),
		CreatedAt:  ts,
	})
	if err != nil {
		return domain.TradeRecord{}, false, err
	}

	pnl, closed, err := tracker.ApplyExitFill(action, fill)
	if err != nil {
		return domain.TradeRecord{}, false, err
	}

	var entryPortion float64
	if pos.Size > 0 {
		entryPortion = *entryFee * (fill.FilledSize / pos.Size)
		*entryFee -= entryPortion
	}
	pnl -= entryPortion

	return domain.TradeRecord{
		ID:         fill.OrderID,
		Market:     pos.Market,
		Strategy:   r.cfg.Strategy.Name(),
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.FilledPrice,
		Size:       fill.FilledSize,
		Fraction:   action.Fraction,
		PnL:        pnl,
		Fees:       fill.Fee + entryPortion,
		Reason:     action.Reason,
		Regime:     regime,
		BarsHeld:   barsHeld,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   fill.Timestamp,
	}, closed, nil
}
