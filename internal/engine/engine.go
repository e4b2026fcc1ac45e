// Package engine runs the live trading loop: one ordered stream of market
// snapshots flows through features -> strategy -> advisor gate -> risk ->
// execution -> exit management, sequentially per tick. The loop mirrors the
// backtest replay exactly; only the snapshot source and the fill sink differ.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/driftbot/internal/advisor"
	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/executor"
	"github.com/driftlabs/driftbot/internal/features"
	"github.com/driftlabs/driftbot/internal/metrics"
	"github.com/driftlabs/driftbot/internal/notify"
	"github.com/driftlabs/driftbot/internal/position"
	"github.com/driftlabs/driftbot/internal/risk"
	"github.com/driftlabs/driftbot/internal/strategy"
)

// SnapshotSource delivers the ordered snapshot stream the engine consumes.
// The channel closing means the source is done and the engine should stop.
type SnapshotSource interface {
	Snapshots() <-chan domain.MarketSnapshot
}

// Config wires one engine instance. Strategy, Sink, and Source are required;
// the persistence sinks, caches, advisor gate, and notifier are optional and
// their absence simply disables that concern.
type Config struct {
	Market        string
	Strategy      strategy.Strategy
	Thresholds    strategy.Thresholds
	Risk          risk.Params
	Regimes       features.RegimeThresholds
	FeatureWindow int
	Equity        float64 // starting equity in quote currency
	FeePct        float64 // only used for the unrealized-equity estimate

	Source SnapshotSource
	Sink   executor.Sink
	Gate   *advisor.Gate

	Signals  domain.SignalLog
	Ledger   domain.TradeLedger
	Prices   domain.PriceCache
	Features domain.FeatureCache
	Notifier *notify.Notifier
}

// Engine is the live trading loop. All state is confined to the loop
// goroutine; Run is not safe to call twice.
type Engine struct {
	cfg       Config
	extractor *features.Extractor
	riskMgr   *risk.Manager
	tracker   *position.Tracker
	agg       *metrics.Aggregator
	logger    *slog.Logger

	equity   float64
	entryFee float64 // undeducted entry fee of the open position
	blocked  string  // last risk-block reason, for breach edge detection
}

// New creates an engine from the config.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("engine: strategy is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("engine: snapshot source is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("engine: execution sink is required")
	}
	if cfg.Equity <= 0 {
		return nil, fmt.Errorf("engine: starting equity must be positive, got %v", cfg.Equity)
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.Regimes == (features.RegimeThresholds{}) {
		cfg.Regimes = features.DefaultRegimeThresholds()
	}
	log := logger.With(slog.String("component", "engine"), slog.String("market", cfg.Market))
	return &Engine{
		cfg:       cfg,
		extractor: features.NewExtractor(cfg.FeatureWindow, log),
		riskMgr:   risk.NewManager(cfg.Risk, log),
		tracker:   position.NewTracker(),
		agg:       metrics.NewAggregator(),
		logger:    log,
		equity:    cfg.Equity,
	}, nil
}

// Equity returns the engine's current realized equity.
func (e *Engine) Equity() float64 { return e.equity }

// Metrics returns the session metrics accumulated so far.
func (e *Engine) Metrics() metrics.Result { return e.agg.Result() }

// Run consumes snapshots until the context is cancelled or the source
// closes. Tick-level failures (fills, persistence, advisor) are logged and
// never abort the loop; a risk breach leaves the loop running in
// monitor-only fashion, managing exits but opening nothing new.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "engine starting",
		slog.String("strategy", e.cfg.Strategy.Name()),
		slog.Float64("equity", e.equity),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", slog.Float64("equity", e.equity))
			return nil
		case snap, ok := <-e.cfg.Source.Snapshots():
			if !ok {
				e.logger.Info("snapshot source closed", slog.Float64("equity", e.equity))
				return nil
			}
			e.tick(ctx, snap)
		}
	}
}

// tick processes one snapshot end to end.
func (e *Engine) tick(ctx context.Context, snap domain.MarketSnapshot) {
	ts := snap.Candle.Timestamp
	price := snap.Candle.Close

	e.cachePrice(ctx, snap.Market, price, ts)

	f, ready := e.extractor.Update(snap)
	if !ready {
		e.agg.MarkEquity(ts, e.equity)
		return
	}
	e.cacheFeatures(ctx, f)
	regime := features.ClassifyRegime(f, e.cfg.Regimes)

	if e.tracker.Position().Open() {
		e.manageExit(ctx, f, regime, price, ts)
		e.agg.MarkEquity(ts, e.equity+e.tracker.Position().UnrealizedPnL)
		return
	}

	e.tryEntry(ctx, snap, f, ts)
	e.agg.MarkEquity(ts, e.equity)
}

// tryEntry runs the decision pipeline for a flat book.
func (e *Engine) tryEntry(ctx context.Context, snap domain.MarketSnapshot, f domain.MarketFeatures, ts time.Time) {
	d := e.cfg.Strategy.Decide(f, e.cfg.Thresholds)
	d.ID = uuid.NewString()
	d.Timestamp = ts
	e.logDecision(ctx, d)

	if d.Trigger && e.cfg.Gate != nil {
		d = e.cfg.Gate.Confirm(ctx, d)
	}

	ok, reason := e.riskMgr.Validate(risk.Candidate{
		Trigger:    d.Trigger,
		Long:       d.Direction == domain.DirectionLong,
		Short:      d.Direction == domain.DirectionShort,
		Confidence: d.Confidence,
	}, e.equity)
	if !ok {
		e.handleBlocked(ctx, d, reason)
		return
	}
	e.blocked = ""

	notional := e.riskMgr.SizePosition(e.equity, d.Confidence)
	fill, err := e.cfg.Sink.Execute(ctx, domain.OrderRequest{
		ID:        d.ID,
		Market:    snap.Market,
		Side:      d.Direction,
		Notional:  notional,
		Reason:    "entry",
		CreatedAt: ts,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "entry fill failed",
			slog.String("market", snap.Market),
			slog.String("error", err.Error()),
		)
		return
	}

	stopDist := e.cfg.Thresholds.StopDistance(fill.FilledPrice, e.extractor.ATR(snap.Market))
	if err := e.tracker.Open(snap.Market, d.Direction, fill, stopDist); err != nil {
		e.logger.ErrorContext(ctx, "position open rejected", slog.String("error", err.Error()))
		return
	}
	e.entryFee = fill.Fee

	e.logger.InfoContext(ctx, "position opened",
		slog.String("market", snap.Market),
		slog.String("side", string(d.Direction)),
		slog.Float64("notional", fill.FilledSize),
		slog.Float64("price", fill.FilledPrice),
		slog.Float64("confidence", d.Confidence),
	)
	e.notify(ctx, "entry", "Position opened",
		fmt.Sprintf("%s %s %.2f @ %.4f (confidence %.2f)",
			snap.Market, d.Direction, fill.FilledSize, fill.FilledPrice, d.Confidence))
}

// manageExit advances the exit state machine for the open position.
func (e *Engine) manageExit(ctx context.Context, f domain.MarketFeatures, regime domain.Regime, price float64, ts time.Time) {
	e.tracker.Tick(price)

	action, ok := e.cfg.Strategy.CheckExit(e.tracker.Position(), e.tracker.ExitState(), f, e.cfg.Thresholds)
	if !ok {
		return
	}

	pos := e.tracker.Position()
	barsHeld := e.tracker.BarsHeld()

	fill, err := e.cfg.Sink.Execute(ctx, domain.OrderRequest{
		ID:         uuid.NewString(),
		Market:     pos.Market,
		Side:       pos.Side.Opposite(),
		Notional:   pos.Size * action.Fraction,
		ReduceOnly: true,
		Reason:     string(action.Reason),
		CreatedAt:  ts,
	})
	if err != nil {
		// Position state stays untouched; the exit retries next tick.
		e.logger.WarnContext(ctx, "exit fill failed",
			slog.String("reason", string(action.Reason)),
			slog.String("error", err.Error()),
		)
		return
	}

	pnl, closed, err := e.tracker.ApplyExitFill(action, fill)
	if err != nil {
		e.logger.ErrorContext(ctx, "exit fill rejected", slog.String("error", err.Error()))
		return
	}

	// Prorate the undeducted entry fee against the remaining position so a
	// full exit sequence charges it exactly once.
	var entryPortion float64
	if pos.Size > 0 {
		entryPortion = e.entryFee * (fill.FilledSize / pos.Size)
		e.entryFee -= entryPortion
	}
	pnl -= entryPortion

	trade := domain.TradeRecord{
		ID:         fill.OrderID,
		Market:     pos.Market,
		Strategy:   e.cfg.Strategy.Name(),
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
	}

	e.riskMgr.Update(pnl)
	e.equity += pnl
	if closed {
		e.entryFee = 0
	}
	e.agg.AddTrade(trade)
	e.appendTrade(ctx, trade)

	e.logger.InfoContext(ctx, "position exit",
		slog.String("market", trade.Market),
		slog.String("reason", string(trade.Reason)),
		slog.Float64("pnl", trade.PnL),
		slog.Bool("closed", closed),
		slog.Float64("equity", e.equity),
	)
	e.notify(ctx, "exit", "Position exit",
		fmt.Sprintf("%s %s pnl %.2f (%s), equity %.2f",
			trade.Market, trade.Side, trade.PnL, trade.Reason, e.equity))
}

// handleBlocked records a blocked entry and alerts on the transition into a
// breach, not on every subsequent tick.
func (e *Engine) handleBlocked(ctx context.Context, d domain.TradingDecision, reason string) {
	if d.Trigger {
		e.logger.InfoContext(ctx, "entry blocked",
			slog.String("market", d.Market),
			slog.String("reason", reason),
		)
		if e.cfg.Signals != nil {
			if err := e.cfg.Signals.LogBlocked(ctx, d, reason); err != nil {
				e.logger.WarnContext(ctx, "signal log failed", slog.String("error", err.Error()))
			}
		}
	}
	if reason != e.blocked && reason != "no trigger" {
		e.blocked = reason
		e.notify(ctx, "risk_breach", "Risk limit active",
			fmt.Sprintf("entries suspended: %s (equity %.2f)", reason, e.equity))
	}
}

func (e *Engine) logDecision(ctx context.Context, d domain.TradingDecision) {
	if e.cfg.Signals == nil {
		return
	}
	if err := e.cfg.Signals.LogDecision(ctx, d); err != nil {
		e.logger.WarnContext(ctx, "signal log failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) appendTrade(ctx context.Context, trade domain.TradeRecord) {
	if e.cfg.Ledger == nil {
		return
	}
	if err := e.cfg.Ledger.Append(ctx, trade); err != nil {
		e.logger.WarnContext(ctx, "trade ledger append failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) cachePrice(ctx context.Context, market string, price float64, ts time.Time) {
	if e.cfg.Prices == nil {
		return
	}
	if err := e.cfg.Prices.SetPrice(ctx, market, price, ts); err != nil {
		e.logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) cacheFeatures(ctx context.Context, f domain.MarketFeatures) {
	if e.cfg.Features == nil {
		return
	}
	if err := e.cfg.Features.SetFeatures(ctx, f); err != nil {
		e.logger.WarnContext(ctx, "feature cache write failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.cfg.Notifier == nil {
		return
	}
	if err := e.cfg.Notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}
