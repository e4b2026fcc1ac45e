package engine

import (
	"context"
	"log/slog"
	"sync"
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

// chanSource adapts a plain channel to the snapshot source interface.
type chanSource struct {
	ch chan domain.MarketSnapshot
}

func (s *chanSource) Snapshots() <-chan domain.MarketSnapshot { return s.ch }

// scheduleSink fills every order at the price scheduled for its creation
// timestamp, which keeps fills deterministic regardless of goroutine timing.
type scheduleSink struct {
	mu     sync.Mutex
	prices map[time.Time]float64
	orders []domain.OrderRequest
}

func (s *scheduleSink) Execute(_ context.Context, req domain.OrderRequest) (domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, req)
	return domain.Fill{
		OrderID:     req.ID,
		Market:      req.Market,
		Side:        req.Side,
		FilledPrice: s.prices[req.CreatedAt],
		FilledSize:  req.Notional,
		Timestamp:   req.CreatedAt,
	}, nil
}

// alwaysLong triggers a long on every decision and exits in full at or above
// the target price.
type alwaysLong struct {
	exitAt float64
}

func (s alwaysLong) Name() string { return "always_long" }

func (s alwaysLong) Decide(f domain.MarketFeatures, _ strategy.Thresholds) domain.TradingDecision {
	return domain.TradingDecision{
		Strategy:   s.Name(),
		Market:     f.Market,
		Direction:  domain.DirectionLong,
		Confidence: 0.9,
		Trigger:    true,
		Timestamp:  f.Timestamp,
	}
}

func (s alwaysLong) CheckExit(_ domain.Position, _ domain.ExitState, f domain.MarketFeatures, _ strategy.Thresholds) (domain.ExitAction, bool) {
	if f.Price >= s.exitAt {
		return domain.ExitAction{Reason: domain.ExitReasonFlatTP, Fraction: 1, Price: f.Price}, true
	}
	return domain.ExitAction{}, false
}

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

func TestEngineRoundTrip(t *testing.T) {
	// 15 candles at 100 to warm up and enter, then a pop to 105 that the
	// scripted strategy exits in full.
	prices := make([]float64, 0, 16)
	for i := 0; i < 15; i++ {
		prices = append(prices, 100)
	}
	prices = append(prices, 105)
	snaps := mkSnapshots(prices...)

	sink := &scheduleSink{prices: make(map[time.Time]float64)}
	for _, s := range snaps {
		sink.prices[s.Candle.Timestamp] = s.Candle.Close
	}
	source := &chanSource{ch: make(chan domain.MarketSnapshot)}

	eng, err := New(Config{
		Market:        "SOL-PERP",
		Strategy:      alwaysLong{exitAt: 105},
		Thresholds:    strategy.DefaultThresholds(),
		Risk:          risk.DefaultParams(),
		FeatureWindow: 30,
		Equity:        1_000,
		Source:        source,
		Sink:          sink,
	}, testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	for _, s := range snaps {
		source.ch <- s
	}
	close(source.ch)
	require.NoError(t, <-done)

	// Confidence 0.9 sizes 1000 * 1% * 1.4 = 14 notional; +5% move.
	assert.InDelta(t, 1_000.7, eng.Equity(), 1e-9)

	m := eng.Metrics()
	assert.Equal(t, 1, m.Trades)
	assert.Equal(t, 1, m.Wins)

	require.Len(t, sink.orders, 2)
	assert.Equal(t, domain.DirectionLong, sink.orders[0].Side)
	assert.False(t, sink.orders[0].ReduceOnly)
	assert.Equal(t, domain.DirectionShort, sink.orders[1].Side)
	assert.True(t, sink.orders[1].ReduceOnly, "exits are always reduce-only")
}

func TestEngineStopsOnContextCancel(t *testing.T) {
	source := &chanSource{ch: make(chan domain.MarketSnapshot)}
	eng, err := New(Config{
		Market:   "SOL-PERP",
		Strategy: alwaysLong{exitAt: 1},
		Risk:     risk.DefaultParams(),
		Equity:   1_000,
		Source:   source,
		Sink:     &scheduleSink{prices: map[time.Time]float64{}},
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}

func TestEngineConfigValidation(t *testing.T) {
	base := Config{
		Strategy: alwaysLong{},
		Risk:     risk.DefaultParams(),
		Equity:   1_000,
		Source:   &chanSource{ch: make(chan domain.MarketSnapshot)},
		Sink:     &scheduleSink{},
	}

	cfg := base
	cfg.Strategy = nil
	_, err := New(cfg, testLogger())
	assert.ErrorContains(t, err, "strategy")

	cfg = base
	cfg.Source = nil
	_, err = New(cfg, testLogger())
	assert.ErrorContains(t, err, "source")

	cfg = base
	cfg.Equity = 0
	_, err = New(cfg, testLogger())
	assert.ErrorContains(t, err, "equity")
}
