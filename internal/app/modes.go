package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftlabs/driftbot/internal/advisor"
	"github.com/driftlabs/driftbot/internal/backtest"
	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/engine"
	"github.com/driftlabs/driftbot/internal/feed"
	"github.com/driftlabs/driftbot/internal/optimize"
	"github.com/driftlabs/driftbot/internal/platform/drift"
	"github.com/driftlabs/driftbot/internal/risk"
	"github.com/driftlabs/driftbot/internal/strategy"
)

// engineLockTTL bounds how long a crashed instance keeps other instances
// locked out of its market.
const engineLockTTL = 5 * time.Minute

// TradeMode runs the live loop: market data feed, decision engine, and the
// execution gateway sink, plus the optional trade cold-storage job.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("market", a.cfg.Drift.Market),
		slog.String("strategy", a.cfg.Strategy.Name),
	)

	// One engine instance per market. Without Redis the lock is skipped and
	// single-instance operation is the operator's responsibility.
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "engine:"+a.cfg.Drift.Market, engineLockTTL)
		if err != nil {
			return fmt.Errorf("trade mode: acquire market lock: %w", err)
		}
		defer unlock()
	}

	client := drift.NewClient(a.cfg.Drift.DataURL)
	var ws *drift.WSClient
	if a.cfg.Drift.WsURL != "" {
		ws = drift.NewWSClient(a.cfg.Drift.WsURL)
		defer ws.Close()
	}
	marketFeed := feed.New(client, ws, feed.Config{
		Market:       a.cfg.Drift.Market,
		Resolution:   a.cfg.Drift.Resolution,
		PollInterval: a.cfg.Drift.PollInterval.Duration,
	}, a.logger)

	sink := drift.NewExecutor(a.cfg.Drift.GatewayURL, a.cfg.Drift.GatewayToken)

	strat, thresholds, err := a.buildStrategy()
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Market:        a.cfg.Drift.Market,
		Strategy:      strat,
		Thresholds:    thresholds,
		Risk:          a.riskParams(),
		FeatureWindow: a.cfg.Engine.FeatureWindow,
		Equity:        a.cfg.Engine.Equity,
		FeePct:        a.cfg.Engine.FeePct,
		Source:        marketFeed,
		Sink:          sink,
		Gate:          a.buildGate(),
		Signals:       a.buildSignalLog(deps),
		Ledger:        deps.TradeLedger,
		Prices:        deps.PriceCache,
		Features:      deps.FeatureCache,
		Notifier:      deps.Notifier,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })

	if deps.Archiver != nil && deps.TradeStore != nil && a.cfg.Engine.ArchiveRetentionDays > 0 {
		g.Go(func() error { return a.runTradeArchiver(ctx, deps) })
	}

	return g.Wait()
}

// BacktestMode replays stored candles through the decision pipeline and logs
// the resulting metrics summary.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	market := a.cfg.Backtest.Market
	if market == "" {
		market = a.cfg.Drift.Market
	}
	a.logger.InfoContext(ctx, "starting backtest mode",
		slog.String("market", market),
		slog.String("strategy", a.cfg.Strategy.Name),
	)

	snapshots, err := a.loadSnapshots(ctx, deps, market)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	strat, thresholds, err := a.buildStrategy()
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	runner, err := backtest.NewRunner(backtest.Config{
		Strategy:       strat,
		Thresholds:     thresholds,
		Risk:           a.riskParams(),
		InitialCapital: a.cfg.Backtest.InitialCapital,
		FeePct:         a.cfg.Backtest.FeePct,
		Sizing:         backtest.SizingMode(a.cfg.Backtest.Sizing),
		FixedNotional:  a.cfg.Backtest.FixedNotional,
		FeatureWindow:  a.cfg.Backtest.FeatureWindow,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	report, err := runner.Run(ctx, snapshots)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	m := report.Metrics
	a.logger.InfoContext(ctx, "backtest complete",
		slog.String("run_id", report.RunID),
		slog.Int("snapshots", len(snapshots)),
		slog.Int("trades", m.Trades),
		slog.Float64("win_rate", m.WinRate),
		slog.Float64("total_pnl", m.TotalPnL),
		slog.Float64("profit_factor", m.ProfitFactor),
		slog.Float64("sharpe", m.Sharpe),
		slog.Float64("max_drawdown_pct", m.MaxDrawdownPct),
	)

	if a.cfg.Backtest.ArchiveResults && deps.Archiver != nil {
		key, err := deps.Archiver.ArchiveBacktest(ctx, report.RunID, report)
		if err != nil {
			a.logger.WarnContext(ctx, "backtest archive failed", slog.String("error", err.Error()))
		} else {
			a.logger.InfoContext(ctx, "backtest archived", slog.String("key", key))
		}
	}
	return nil
}

// OptimizeMode sweeps the configured parameter grid with one backtest per
// parameter set and logs the top-ranked results.
func (a *App) OptimizeMode(ctx context.Context, deps *Dependencies) error {
	market := a.cfg.Backtest.Market
	if market == "" {
		market = a.cfg.Drift.Market
	}
	a.logger.InfoContext(ctx, "starting optimize mode",
		slog.String("market", market),
		slog.String("strategy", a.cfg.Strategy.Name),
		slog.Int("grid_params", len(a.cfg.Optimize.Grid)),
	)

	snapshots, err := a.loadSnapshots(ctx, deps, market)
	if err != nil {
		return fmt.Errorf("optimize mode: %w", err)
	}

	strat, thresholds, err := a.buildStrategy()
	if err != nil {
		return fmt.Errorf("optimize mode: %w", err)
	}

	store, err := a.checkpointStore(deps)
	if err != nil {
		return fmt.Errorf("optimize mode: %w", err)
	}

	opt := optimize.NewEngine(backtest.Config{
		Strategy:       strat,
		Thresholds:     thresholds,
		Risk:           a.riskParams(),
		InitialCapital: a.cfg.Backtest.InitialCapital,
		FeePct:         a.cfg.Backtest.FeePct,
		Sizing:         backtest.SizingMode(a.cfg.Backtest.Sizing),
		FixedNotional:  a.cfg.Backtest.FixedNotional,
		FeatureWindow:  a.cfg.Backtest.FeatureWindow,
	}, store, a.logger)

	results, err := opt.Optimize(ctx, snapshots, optimize.Config{
		RunID:          a.cfg.Optimize.RunID,
		Market:         market,
		Strategy:       a.cfg.Strategy.Name,
		Grid:           a.cfg.Optimize.Grid,
		Samples:        a.cfg.Optimize.Samples,
		Seed:           a.cfg.Optimize.Seed,
		ChunkSize:      a.cfg.Optimize.ChunkSize,
		SaveProgress:   a.cfg.Optimize.SaveProgress,
		MaxDrawdownPct: a.cfg.Optimize.MaxDrawdownPct,
	})
	if err != nil {
		return fmt.Errorf("optimize mode: %w", err)
	}

	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	for i, r := range top {
		a.logger.InfoContext(ctx, "optimization result",
			slog.Int("rank", i+1),
			slog.Any("params", r.Params),
			slog.Float64("sharpe", r.Metrics.Sharpe),
			slog.Float64("total_pnl", r.Metrics.TotalPnL),
			slog.Float64("win_rate", r.Metrics.WinRate),
			slog.Float64("max_drawdown", r.Metrics.MaxDrawdown),
		)
	}

	if a.cfg.Optimize.ArchiveResults && deps.Archiver != nil {
		runID := a.cfg.Optimize.RunID
		if runID == "" {
			runID = fmt.Sprintf("sweep-%d", time.Now().Unix())
		}
		key, err := deps.Archiver.ArchiveOptimization(ctx, runID, domain.Checkpoint{
			RunID:     runID,
			Strategy:  a.cfg.Strategy.Name,
			Market:    market,
			TotalSets: len(results),
			Completed: len(results),
			Results:   results,
			SavedAt:   time.Now().UTC(),
		})
		if err != nil {
			a.logger.WarnContext(ctx, "optimization archive failed", slog.String("error", err.Error()))
		} else {
			a.logger.InfoContext(ctx, "optimization archived", slog.String("key", key))
		}
	}
	return nil
}

// MonitorMode is a read-only observer: it subscribes to the live decision
// channel and periodically reports the cached mark price. No orders are
// placed and no state is mutated.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.String("market", a.cfg.Drift.Market),
	)
	if deps.SignalBus == nil {
		return fmt.Errorf("monitor mode: signal bus is required")
	}

	if deps.BlobReader != nil {
		if infos, err := deps.BlobReader.List(ctx, "results/"); err == nil {
			a.logger.InfoContext(ctx, "archived results available", slog.Int("count", len(infos)))
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ch, err := deps.SignalBus.Subscribe(ctx, "decisions")
		if err != nil {
			return fmt.Errorf("monitor mode: subscribe decisions: %w", err)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case payload, ok := <-ch:
				if !ok {
					return nil
				}
				var d domain.TradingDecision
				if err := json.Unmarshal(payload, &d); err != nil {
					a.logger.WarnContext(ctx, "monitor: bad decision payload", slog.String("error", err.Error()))
					continue
				}
				a.logger.InfoContext(ctx, "decision observed",
					slog.String("id", d.ID),
					slog.String("market", d.Market),
					slog.String("strategy", d.Strategy),
					slog.String("direction", string(d.Direction)),
					slog.Float64("confidence", d.Confidence),
					slog.Bool("trigger", d.Trigger),
				)
			}
		}
	})

	if deps.PriceCache != nil {
		g.Go(func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					price, ts, err := deps.PriceCache.GetPrice(ctx, a.cfg.Drift.Market)
					if err != nil {
						continue
					}
					a.logger.InfoContext(ctx, "mark price",
						slog.String("market", a.cfg.Drift.Market),
						slog.Float64("price", price),
						slog.Time("as_of", ts),
					)
				}
			}
		})
	}

	return g.Wait()
}

// buildStrategy resolves the configured strategy and its threshold overrides.
func (a *App) buildStrategy() (strategy.Strategy, strategy.Thresholds, error) {
	thresholds := strategy.DefaultThresholds().Apply(a.cfg.Strategy.Params)

	if a.cfg.Strategy.Name == "ensemble" && a.cfg.Strategy.EnsembleQuorum > 0 {
		ens := strategy.NewEnsemble(a.cfg.Strategy.EnsembleQuorum,
			strategy.NewMomentumBreakout(),
			strategy.NewFundingFade(),
			strategy.NewRegimeAdaptive(),
		)
		return ens, thresholds, nil
	}

	strat, err := strategy.NewDefaultRegistry().Get(a.cfg.Strategy.Name)
	if err != nil {
		return nil, thresholds, err
	}
	return strat, thresholds, nil
}

// buildGate returns the advisor gate, or nil when the advisor is disabled.
func (a *App) buildGate() *advisor.Gate {
	if !a.cfg.Advisor.Enabled {
		return nil
	}
	llm := advisor.NewOpenAIAdvisor(advisor.OpenAIConfig{
		BaseURL: a.cfg.Advisor.BaseURL,
		APIKey:  a.cfg.Advisor.ApiKey,
		Model:   a.cfg.Advisor.Model,
	})
	return advisor.NewGate(llm, advisor.GateConfig{
		Enabled:     true,
		Timeout:     a.cfg.Advisor.Timeout.Duration,
		MaxRetries:  a.cfg.Advisor.MaxRetries,
		BackoffBase: a.cfg.Advisor.BackoffBase.Duration,
		BackoffCap:  a.cfg.Advisor.BackoffCap.Duration,
		Fallback:    advisor.FallbackPolicy(a.cfg.Advisor.Fallback),
	}, a.logger)
}

// buildSignalLog fans decisions out to the audit store and the live decision
// channel. Either half may be absent.
func (a *App) buildSignalLog(deps *Dependencies) domain.SignalLog {
	if deps.SignalLog == nil && deps.SignalBus == nil {
		return nil
	}
	return &fanoutSignalLog{store: deps.SignalLog, bus: deps.SignalBus}
}

func (a *App) riskParams() risk.Params {
	return risk.Params{
		MaxPositionSize:      a.cfg.Risk.MaxPositionSize,
		RiskPerTradePct:      a.cfg.Risk.RiskPerTradePct,
		DailyLossCapPct:      a.cfg.Risk.DailyLossCapPct,
		MaxDrawdownPct:       a.cfg.Risk.MaxDrawdownPct,
		MaxConsecutiveLosses: a.cfg.Risk.MaxConsecutiveLosses,
		MaxLeveragePct:       a.cfg.Risk.MaxLeveragePct,
		MinConfidence:        a.cfg.Risk.MinConfidence,
		MinNotional:          a.cfg.Risk.MinNotional,
	}
}

// checkpointStore selects the optimizer progress backend.
func (a *App) checkpointStore(deps *Dependencies) (domain.CheckpointStore, error) {
	if !a.cfg.Optimize.SaveProgress {
		return nil, nil
	}
	switch a.cfg.Optimize.CheckpointBackend {
	case "redis":
		if deps.RedisCheckpoint == nil {
			return nil, fmt.Errorf("checkpoint backend redis requires redis to be enabled")
		}
		return deps.RedisCheckpoint, nil
	default:
		return optimize.NewFileCheckpointStore(a.cfg.Optimize.CheckpointDir)
	}
}

// loadSnapshots reads the candle range from the store and lifts it into
// market snapshots for replay. Funding and book fields stay zero; replay
// strategies that need them read zeros, same as a live gap.
func (a *App) loadSnapshots(ctx context.Context, deps *Dependencies, market string) ([]domain.MarketSnapshot, error) {
	if deps.CandleStore == nil {
		return nil, fmt.Errorf("candle store is required (enable postgres)")
	}
	from, err := parseTimeArg(a.cfg.Backtest.From)
	if err != nil {
		return nil, fmt.Errorf("parse from: %w", err)
	}
	to, err := parseTimeArg(a.cfg.Backtest.To)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	candles, err := deps.CandleStore.Range(ctx, market, from, to)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles for %s in [%s, %s]", market, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	snapshots := make([]domain.MarketSnapshot, len(candles))
	for i, c := range candles {
		snapshots[i] = domain.MarketSnapshot{
			Market: market,
			Candle: c,
		}
	}
	return snapshots, nil
}

// runTradeArchiver periodically moves ledger rows older than the retention
// window to object storage.
func (a *App) runTradeArchiver(ctx context.Context, deps *Dependencies) error {
	retention := time.Duration(a.cfg.Engine.ArchiveRetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-retention)
			n, err := deps.Archiver.ArchiveTrades(ctx, before)
			if err != nil {
				a.logger.WarnContext(ctx, "trade archive failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "trades archived",
					slog.Int64("count", n),
					slog.Time("before", before),
				)
			}
		}
	}
}

// parseTimeArg accepts RFC 3339 or a bare date. Empty input is the zero time.
func parseTimeArg(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// fanoutSignalLog duplicates signal-log writes to the durable store and the
// pub/sub decision channel so monitor instances see decisions live.
type fanoutSignalLog struct {
	store domain.SignalLog
	bus   domain.SignalBus
}

func (f *fanoutSignalLog) LogDecision(ctx context.Context, d domain.TradingDecision) error {
	var firstErr error
	if f.store != nil {
		firstErr = f.store.LogDecision(ctx, d)
	}
	if f.bus != nil {
		if payload, err := json.Marshal(d); err == nil {
			if err := f.bus.Publish(ctx, "decisions", payload); err != nil && firstErr == nil {
				firstErr = err
			}
			_ = f.bus.StreamAppend(ctx, "signals", payload)
		}
	}
	return firstErr
}

func (f *fanoutSignalLog) LogBlocked(ctx context.Context, d domain.TradingDecision, reason string) error {
	if f.store == nil {
		return nil
	}
	return f.store.LogBlocked(ctx, d, reason)
}
