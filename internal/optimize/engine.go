// Package optimize sweeps strategy parameter spaces by running one backtest
// per parameter set. Sets are processed in fixed-size chunks to bound memory;
// progress is checkpointed after every chunk and a partially completed sweep
// resumes at the first unattempted set.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/driftlabs/driftbot/internal/backtest"
	"github.com/driftlabs/driftbot/internal/domain"
)

const defaultChunkSize = 10

// Config describes one optimization sweep.
type Config struct {
	// RunID identifies the sweep for checkpointing. Empty generates one,
	// which also disables resumption.
	RunID    string
	Market   string
	Strategy string

	// Grid maps parameter names to candidate values. In grid mode the
	// full Cartesian product is evaluated.
	Grid map[string][]float64
	// Samples > 0 switches to random-sample mode: Samples draws, one
	// value per parameter drawn independently. Mutually exclusive with
	// full-grid evaluation by construction.
	Samples int
	// Seed makes random-sample mode reproducible.
	Seed int64

	ChunkSize    int
	SaveProgress bool
	// MaxDrawdownPct filters results whose drawdown exceeds it. 0 = off.
	MaxDrawdownPct float64
}

// Engine generates parameter sets and evaluates them through the backtest
// runner. Each trial is an isolated simulation with fresh state, so trials
// within a chunk run in parallel.
type Engine struct {
	base   backtest.Config
	store  domain.CheckpointStore
	logger *slog.Logger
}

// NewEngine creates an optimizer. base supplies everything a trial backtest
// needs except the thresholds, which each trial overrides from its parameter
// set. store may be nil when progress persistence is not wanted.
func NewEngine(base backtest.Config, store domain.CheckpointStore, logger *slog.Logger) *Engine {
	return &Engine{
		base:   base,
		store:  store,
		logger: logger.With(slog.String("component", "optimizer")),
	}
}

// Optimize runs the sweep and returns results ranked by Sharpe descending
// (stable sort, no explicit tiebreak). A failed trial is logged and excluded
// from the ranking; it never aborts the sweep.
func (e *Engine) Optimize(ctx context.Context, snapshots []domain.MarketSnapshot, cfg Config) ([]domain.TrialOutcome, error) {
	if len(cfg.Grid) == 0 {
		return nil, fmt.Errorf("optimize: empty parameter grid")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	space := e.generate(cfg)
	e.logger.InfoContext(ctx, "optimization started",
		slog.String("run_id", cfg.RunID),
		slog.String("strategy", cfg.Strategy),
		slog.Int("parameter_sets", len(space)),
		slog.Int("chunk_size", cfg.ChunkSize),
	)

	results, start := e.resume(ctx, cfg, len(space))

	for start < len(space) {
		end := start + cfg.ChunkSize
		if end > len(space) {
			end = len(space)
		}

		chunk := make([]*domain.TrialOutcome, end-start)
		g, gctx := errgroup.WithContext(ctx)
		for i, params := range space[start:end] {
			g.Go(func() error {
				outcome, err := e.runTrial(gctx, snapshots, params)
				if err != nil {
					e.logger.WarnContext(gctx, "trial failed, excluded from ranking",
						slog.Any("params", params),
						slog.String("error", err.Error()),
					)
					return nil
				}
				chunk[i] = outcome
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
		for _, outcome := range chunk {
			if outcome != nil {
				results = append(results, *outcome)
			}
		}
		start = end

		if cfg.SaveProgress && e.store != nil {
			cp := domain.Checkpoint{
				RunID:     cfg.RunID,
				Strategy:  cfg.Strategy,
				Market:    cfg.Market,
				TotalSets: len(space),
				Completed: start,
				Results:   results,
				SavedAt:   time.Now().UTC(),
			}
			if err := e.store.Save(ctx, cp); err != nil {
				e.logger.WarnContext(ctx, "checkpoint save failed",
					slog.String("run_id", cfg.RunID),
					slog.String("error", err.Error()),
				)
			}
		}

		e.memCheckpoint(ctx, start, len(space))
	}

	ranked := rank(results, cfg.MaxDrawdownPct)
	e.logger.InfoContext(ctx, "optimization finished",
		slog.String("run_id", cfg.RunID),
		slog.Int("evaluated", len(results)),
		slog.Int("ranked", len(ranked)),
	)
	return ranked, nil
}

// resume loads the checkpoint for the run and returns the retained results
// and the next set index. Completed counts attempted sets and checkpoints are
// written only at chunk boundaries, so the sweep picks up at exactly the
// first unattempted set. Results may hold fewer entries than Completed when
// trials failed; those sets are not retried.
func (e *Engine) resume(ctx context.Context, cfg Config, total int) ([]domain.TrialOutcome, int) {
	if !cfg.SaveProgress || e.store == nil {
		return nil, 0
	}
	cp, err := e.store.Load(ctx, cfg.RunID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.WarnContext(ctx, "checkpoint load failed, starting fresh",
				slog.String("run_id", cfg.RunID),
				slog.String("error", err.Error()),
			)
		}
		return nil, 0
	}
	if cp.TotalSets != total {
		e.logger.WarnContext(ctx, "checkpoint does not match parameter space, starting fresh",
			slog.Int("checkpoint_sets", cp.TotalSets),
			slog.Int("current_sets", total),
		)
		return nil, 0
	}

	if cp.Completed < 0 || cp.Completed > cp.TotalSets || len(cp.Results) > cp.Completed {
		e.logger.WarnContext(ctx, "checkpoint is inconsistent, starting fresh",
			slog.Int("completed", cp.Completed),
			slog.Int("results", len(cp.Results)),
		)
		return nil, 0
	}

	e.logger.InfoContext(ctx, "resuming from checkpoint",
		slog.String("run_id", cfg.RunID),
		slog.Int("completed", cp.Completed),
		slog.Int("total", total),
	)
	return cp.Results, cp.Completed
}

// runTrial evaluates one parameter set. Panics inside a trial backtest are
// recovered and reported as trial errors.
func (e *Engine) runTrial(ctx context.Context, snapshots []domain.MarketSnapshot, params map[string]float64) (outcome *domain.TrialOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = nil, fmt.Errorf("optimize: trial panicked: %v", r)
		}
	}()

	cfg := e.base
	cfg.Thresholds = cfg.Thresholds.Apply(params)

	runner, err := backtest.NewRunner(cfg, e.logger)
	if err != nil {
		return nil, err
	}
	report, err := runner.Run(ctx, snapshots)
	if err != nil {
		return nil, err
	}

	return &domain.TrialOutcome{
		Params:  params,
		Metrics: report.Metrics.ToTrialMetrics(),
	}, nil
}

// generate builds the parameter space: the full Cartesian product in grid
// mode, or Samples seeded random draws in sample mode.
func (e *Engine) generate(cfg Config) []map[string]float64 {
	names := make([]string, 0, len(cfg.Grid))
	for name := range cfg.Grid {
		names = append(names, name)
	}
	sort.Strings(names)

	if cfg.Samples > 0 {
		rng := rand.New(rand.NewSource(cfg.Seed))
		space := make([]map[string]float64, 0, cfg.Samples)
		for i := 0; i < cfg.Samples; i++ {
			set := make(map[string]float64, len(names))
			for _, name := range names {
				candidates := cfg.Grid[name]
				set[name] = candidates[rng.Intn(len(candidates))]
			}
			space = append(space, set)
		}
		return space
	}

	space := []map[string]float64{{}}
	for _, name := range names {
		candidates := cfg.Grid[name]
		next := make([]map[string]float64, 0, len(space)*len(candidates))
		for _, base := range space {
			for _, v := range candidates {
				set := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					set[k] = bv
				}
				set[name] = v
				next = append(next, set)
			}
		}
		space = next
	}
	return space
}

// rank filters by the optional drawdown ceiling and stable-sorts by Sharpe
// descending.
func rank(results []domain.TrialOutcome, maxDrawdownPct float64) []domain.TrialOutcome {
	ranked := make([]domain.TrialOutcome, 0, len(results))
	for _, r := range results {
		if maxDrawdownPct > 0 && r.Metrics.MaxDrawdown > maxDrawdownPct {
			continue
		}
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Metrics.Sharpe > ranked[j].Metrics.Sharpe
	})
	return ranked
}

// memCheckpoint logs allocator state after each chunk and nudges the
// collector, bounding the sweep's footprint between chunks.
func (e *Engine) memCheckpoint(ctx context.Context, completed, total int) {
	runtime.GC()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	e.logger.DebugContext(ctx, "chunk complete",
		slog.Int("completed", completed),
		slog.Int("total", total),
		slog.Uint64("heap_alloc_mb", ms.HeapAlloc/1024/1024),
		slog.Uint64("sys_mb", ms.Sys/1024/1024),
	)
}
