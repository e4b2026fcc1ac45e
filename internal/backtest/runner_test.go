package backtest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/risk"
	"github.com/driftlabs/driftbot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// mkSnapshots builds one snapshot per price with strictly increasing
// timestamps and enough book context to keep the feature extractor quiet.
func mkSnapshots(prices ...float64) []domain.MarketSnapshot {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.MarketSnapshot, len(prices))
	for i, p := range prices {
		out[i] = domain.MarketSnapshot{
			Market: "SOL-PERP",
			Candle: domain.Candle{
				Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
				Open:      p,
				High:      p * 1.001,
				Low:       p * 0.999,
				Close:     p,
				Volume:    1_000,
			},
			OraclePrice:  p,
			BestBid:      p * 0.9995,
			BestAsk:      p * 1.0005,
			BidDepth:     1_000,
			AskDepth:     1_000,
			OpenInterest: 1_000_000,
		}
	}
	return out
}

// scriptedStrategy always wants long and exits per a price schedule. It lets
// the replay loop be tested without depending on rule-engine tuning.
type scriptedStrategy struct {
	tp1At float64 // half close at this price, 0 disables
	tp2At float64 // full close at this price
}

func (s scriptedStrategy) Name() string { return "scripted" }

func (s scriptedStrategy) Decide(f domain.MarketFeatures, _ strategy.Thresholds) domain.TradingDecision {
	return domain.TradingDecision{
		Strategy:   s.Name(),
		Market:     f.Market,
		Direction:  domain.DirectionLong,
		Confidence: 0.9,
		Trigger:    true,
		Timestamp:  f.Timestamp,
	}
}

func (s scriptedStrategy) CheckExit(_ domain.Position, st domain.ExitState, f domain.MarketFeatures, _ strategy.Thresholds) (domain.ExitAction, bool) {
	if s.tp1At > 0 && !st.TP1Taken && f.Price >= s.tp1At && f.Price < s.tp2At {
		return domain.ExitAction{Reason: domain.ExitReasonTP1, Fraction: 0.5, Price: f.Price}, true
	}
	if f.Price >= s.tp2At {
		return domain.ExitAction{Reason: domain.ExitReasonTP2, Fraction: 1, Price: f.Price}, true
	}
	return domain.ExitAction{}, false
}

func baseConfig(s strategy.Strategy, feePct float64) Config {
	return Config{
		Strategy:       s,
		Thresholds:     strategy.DefaultThresholds(),
		Risk:           risk.DefaultParams(),
		InitialCapital: 1_000,
		FeePct:         feePct,
		FeatureWindow:  30,
	}
}

func TestRunSingleRoundTrip(t *testing.T) {
	// 15 warmup-and-entry candles at 100, then a pop to 105 that the
	// scripted strategy takes in full.
	prices := make([]float64, 0, 17)
	for i := 0; i < 15; i++ {
		prices = append(prices, 100)
	}
	prices = append(prices, 105, 105)

	runner, err := NewRunner(baseConfig(scriptedStrategy{tp2At: 105}, 0), testLogger())
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), mkSnapshots(prices...))
	require.NoError(t, err)
	require.Len(t, report.Trades, 1)
	assert.False(t, report.ZeroTrades)

	tr := report.Trades[0]
	assert.Equal(t, domain.DirectionLong, tr.Side)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 105.0, tr.ExitPrice)
	// Confidence 0.9 sizes 1000 * 1% * 1.4 = 14 notional; +5% move.
	assert.InDelta(t, 14.0, tr.Size, 1e-9)
	assert.InDelta(t, 0.7, tr.PnL, 1e-9)

	assert.Equal(t, 1, report.Metrics.Trades)
	assert.Equal(t, 1, report.Metrics.Wins)

	require.NotEmpty(t, report.EquityCurve)
	final := report.EquityCurve[len(report.EquityCurve)-1].Equity
	assert.InDelta(t, 1_000.7, final, 1e-9)
}

func TestRunPartialExitsPnLMatchesEquity(t *testing.T) {
	// Entry at 100, half off at 105, remainder at 110, with fees on to
	// exercise the entry-fee proration.
	prices := make([]float64, 0, 18)
	for i := 0; i < 15; i++ {
		prices = append(prices, 100)
	}
	prices = append(prices, 105, 110, 110)

	runner, err := NewRunner(baseConfig(scriptedStrategy{tp1At: 105, tp2At: 110}, 0.1), testLogger())
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), mkSnapshots(prices...))
	require.NoError(t, err)
	require.Len(t, report.Trades, 2)
	assert.Equal(t, domain.ExitReasonTP1, report.Trades[0].Reason)
	assert.Equal(t, domain.ExitReasonTP2, report.Trades[1].Reason)
	assert.Equal(t, 0.5, report.Trades[0].Fraction)

	var pnlSum, feeSum float64
	for _, tr := range report.Trades {
		pnlSum += tr.PnL
		feeSum += tr.Fees
	}
	final := report.EquityCurve[len(report.EquityCurve)-1].Equity
	assert.InDelta(t, report.Metrics.TotalPnL, pnlSum, 1e-9)
	assert.InDelta(t, 1_000+pnlSum, final, 1e-9, "ledger PnL accounts for every fee")

	// The exit notionals sum back to the entry notional, so total fees are
	// 0.1% of twice the entry size: the entry fee is charged exactly once
	// across the tp1/tp2 ladder, never a fraction of it left behind.
	entrySize := report.Trades[0].Size * 2
	assert.InDelta(t, 0.1/100*entrySize*2, feeSum, 1e-9)
}

func TestRunFlatSeriesProducesZeroTrades(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100
	}

	runner, err := NewRunner(baseConfig(strategy.NewMomentumBreakout(), 0.05), testLogger())
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), mkSnapshots(prices...))
	require.NoError(t, err)
	assert.True(t, report.ZeroTrades, "a dead-flat tape never triggers momentum")
	assert.Empty(t, report.Trades)
	assert.Len(t, report.EquityCurve, 40)
}

func TestRunFixedSizingRespectsMinNotional(t *testing.T) {
	prices := make([]float64, 0, 20)
	for i := 0; i < 18; i++ {
		prices = append(prices, 100)
	}
	prices = append(prices, 105, 105)

	cfg := baseConfig(scriptedStrategy{tp2At: 105}, 0)
	cfg.Sizing = SizingFixed
	cfg.FixedNotional = 2 // below the default 5 notional floor

	runner, err := NewRunner(cfg, testLogger())
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), mkSnapshots(prices...))
	require.NoError(t, err)
	assert.True(t, report.ZeroTrades, "a fixed notional under the floor never trades")
	assert.Empty(t, report.Trades)
}

func TestRunRejectsOutOfOrderSnapshots(t *testing.T) {
	snaps := mkSnapshots(100, 101, 102)
	snaps[2].Candle.Timestamp = snaps[0].Candle.Timestamp

	runner, err := NewRunner(baseConfig(scriptedStrategy{tp2At: 105}, 0), testLogger())
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), snaps)
	assert.ErrorContains(t, err, "out of order")
}

func TestNewRunnerValidation(t *testing.T) {
	cfg := baseConfig(nil, 0)
	_, err := NewRunner(cfg, testLogger())
	assert.ErrorContains(t, err, "strategy")

	cfg = baseConfig(scriptedStrategy{tp2At: 1}, 0)
	cfg.InitialCapital = 0
	_, err = NewRunner(cfg, testLogger())
	assert.ErrorContains(t, err, "capital")
}
