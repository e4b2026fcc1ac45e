package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftbot/internal/domain"
)

// passingFeatures returns a feature vector that clears every momentum entry
// filter: strong body, volume surge, calm volatility, tight book, OI present.
func passingFeatures() domain.MarketFeatures {
	return domain.MarketFeatures{
		Market:       "SOL-PERP",
		Price:        150,
		BodyOverATR:  0.8,
		VolumeZ:      2.6,
		RealizedVol:  2.0,
		SpreadBps:    10,
		OBImbalance:  0.5,
		PremiumPct:   0.08,
		OpenInterest: 1_000_000,
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMomentumBreakoutTriggersShortOnPositivePremium(t *testing.T) {
	s := NewMomentumBreakout()
	th := DefaultThresholds()

	d := s.Decide(passingFeatures(), th)
	require.True(t, d.Trigger)
	assert.Equal(t, "SOL-PERP", d.Market)
	assert.Equal(t, domain.DirectionShort, d.Direction)
	// 0.5 base + 0.2 volume surge (2.6 >= 2.5) + 0.1 premium magnitude
	// (0.08 > 0.05); body 0.8 misses the 1.0 momentum bonus and the
	// balanced book misses the imbalance bonus.
	assert.InDelta(t, 0.80, d.Confidence, 1e-9)
	assert.NotEmpty(t, d.Reasons)
}

func TestMomentumBreakoutNegativePremiumGoesLong(t *testing.T) {
	f := passingFeatures()
	f.PremiumPct = -0.08

	d := NewMomentumBreakout().Decide(f, DefaultThresholds())
	require.True(t, d.Trigger)
	assert.Equal(t, domain.DirectionLong, d.Direction)
}

func TestMomentumBreakoutRejectsOnAnyFailingFilter(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name   string
		mutate func(*domain.MarketFeatures)
	}{
		{"weak body", func(f *domain.MarketFeatures) { f.BodyOverATR = 0.3 }},
		{"no volume surge", func(f *domain.MarketFeatures) { f.VolumeZ = 1.0 }},
		{"chaotic vol", func(f *domain.MarketFeatures) { f.RealizedVol = 6.0 }},
		{"wide spread", func(f *domain.MarketFeatures) { f.SpreadBps = 80 }},
		{"no open interest", func(f *domain.MarketFeatures) { f.OpenInterest = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := passingFeatures()
			tc.mutate(&f)
			d := NewMomentumBreakout().Decide(f, th)
			assert.False(t, d.Trigger)
			assert.Zero(t, d.Confidence)
			assert.Equal(t, domain.DirectionFlat, d.Direction)
			assert.Equal(t, domain.DirectionFlat, d.Effective())
		})
	}
}

func TestMomentumBreakoutInclusiveThresholds(t *testing.T) {
	// Values exactly at the filter thresholds pass.
	th := DefaultThresholds()
	f := passingFeatures()
	f.BodyOverATR = th.BodyOverATR
	f.VolumeZ = th.VolumeZ
	f.RealizedVol = th.MaxRealizedVol
	f.SpreadBps = th.MaxSpreadBps

	d := NewMomentumBreakout().Decide(f, th)
	assert.True(t, d.Trigger)
}

func TestFundingFade(t *testing.T) {
	th := DefaultThresholds()

	t.Run("crowded longs fade short", func(t *testing.T) {
		f := passingFeatures()
		f.FundingRate = 0.02 // 2x the extreme threshold

		d := NewFundingFade().Decide(f, th)
		require.True(t, d.Trigger)
		assert.Equal(t, domain.DirectionShort, d.Direction)
		// 0.5 base + 0.2 funding stretch + 0.1 agreeing premium.
		assert.InDelta(t, 0.80, d.Confidence, 1e-9)
	})

	t.Run("crowded shorts fade long", func(t *testing.T) {
		f := passingFeatures()
		f.FundingRate = -0.02
		f.PremiumPct = -0.08

		d := NewFundingFade().Decide(f, th)
		require.True(t, d.Trigger)
		assert.Equal(t, domain.DirectionLong, d.Direction)
	})

	t.Run("normal funding abstains", func(t *testing.T) {
		f := passingFeatures()
		f.FundingRate = 0.003

		d := NewFundingFade().Decide(f, th)
		assert.False(t, d.Trigger)
	})

	t.Run("stretch bonus saturates", func(t *testing.T) {
		f := passingFeatures()
		f.FundingRate = 0.2 // 20x extreme
		f.PremiumPct = 0.08

		d := NewFundingFade().Decide(f, th)
		require.True(t, d.Trigger)
		assert.InDelta(t, 1.0, d.Confidence, 1e-9, "0.5 + capped 0.4 + 0.1, clamped to 1")
	})
}

func TestRegimeAdaptive(t *testing.T) {
	th := DefaultThresholds()
	s := NewRegimeAdaptive()

	t.Run("crash stands aside", func(t *testing.T) {
		f := passingFeatures()
		f.WindowChangePct = -6

		d := s.Decide(f, th)
		assert.False(t, d.Trigger)
		assert.Equal(t, domain.DirectionFlat, d.Direction)
	})

	t.Run("high vol stands aside", func(t *testing.T) {
		f := passingFeatures()
		f.RealizedVol = 3.5
		f.WindowChangePct = 1

		d := s.Decide(f, th)
		assert.False(t, d.Trigger)
	})

	t.Run("counter-trend momentum suppressed", func(t *testing.T) {
		// Bull regime but the positive premium biases momentum short.
		f := passingFeatures()
		f.WindowChangePct = 2
		f.FundingRate = 0.005

		d := s.Decide(f, th)
		assert.False(t, d.Trigger)
		assert.Equal(t, domain.DirectionFlat, d.Direction)
	})

	t.Run("with-trend momentum passes", func(t *testing.T) {
		f := passingFeatures()
		f.WindowChangePct = 2
		f.FundingRate = 0.005
		f.PremiumPct = -0.08 // long bias agrees with the bull regime

		d := s.Decide(f, th)
		require.True(t, d.Trigger)
		assert.Equal(t, domain.DirectionLong, d.Direction)
		assert.Equal(t, "regime_adaptive", d.Strategy)
	})

	t.Run("chop dispatches to funding fade", func(t *testing.T) {
		f := passingFeatures()
		f.WindowChangePct = 0.5
		f.FundingRate = -0.02 // divergent sign: chop, and an extreme fade setup

		d := s.Decide(f, th)
		require.True(t, d.Trigger)
		assert.Equal(t, domain.DirectionLong, d.Direction)
	})
}

// stubStrategy votes a fixed way, for ensemble quorum tests.
type stubStrategy struct {
	name string
	dir  domain.Direction
	conf float64
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Decide(f domain.MarketFeatures, _ Thresholds) domain.TradingDecision {
	return domain.TradingDecision{
		Strategy:   s.name,
		Market:     f.Market,
		Direction:  s.dir,
		Confidence: s.conf,
		Trigger:    s.dir != domain.DirectionFlat,
		Timestamp:  f.Timestamp,
	}
}

func (s stubStrategy) CheckExit(domain.Position, domain.ExitState, domain.MarketFeatures, Thresholds) (domain.ExitAction, bool) {
	return domain.ExitAction{}, false
}

func TestEnsembleQuorum(t *testing.T) {
	th := DefaultThresholds()
	f := passingFeatures()

	t.Run("two of three agree", func(t *testing.T) {
		e := NewEnsemble(2,
			stubStrategy{"a", domain.DirectionLong, 0.6},
			stubStrategy{"b", domain.DirectionLong, 0.8},
			stubStrategy{"c", domain.DirectionFlat, 0},
		)
		d := e.Decide(f, th)
		require.True(t, d.Trigger)
		assert.Equal(t, domain.DirectionLong, d.Direction)
		assert.InDelta(t, 0.7, d.Confidence, 1e-9, "mean of agreeing confidences")
	})

	t.Run("quorum not met", func(t *testing.T) {
		e := NewEnsemble(2,
			stubStrategy{"a", domain.DirectionLong, 0.6},
			stubStrategy{"b", domain.DirectionFlat, 0},
			stubStrategy{"c", domain.DirectionFlat, 0},
		)
		d := e.Decide(f, th)
		assert.False(t, d.Trigger)
	})

	t.Run("split vote stands aside", func(t *testing.T) {
		e := NewEnsemble(1,
			stubStrategy{"a", domain.DirectionLong, 0.9},
			stubStrategy{"b", domain.DirectionShort, 0.9},
		)
		d := e.Decide(f, th)
		assert.False(t, d.Trigger)
	})
}

func TestThresholdsApply(t *testing.T) {
	th := DefaultThresholds().Apply(map[string]float64{
		"body_over_atr":  0.7,
		"time_stop_bars": 20,
		"unknown_param":  99, // ignored, parameter spaces may carry extras
	})
	assert.Equal(t, 0.7, th.BodyOverATR)
	assert.Equal(t, 20, th.TimeStopBars)
	assert.Equal(t, DefaultThresholds().VolumeZ, th.VolumeZ)
}

func TestStopDistanceFloor(t *testing.T) {
	th := DefaultThresholds()
	// 1.5 * ATR dominates when ATR is large.
	assert.InDelta(t, 3.0, th.StopDistance(100, 2.0), 1e-9)
	// The 0.5% floor dominates when ATR is tiny.
	assert.InDelta(t, 0.5, th.StopDistance(100, 0.01), 1e-9)
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{"ensemble", "funding_fade", "momentum_breakout", "regime_adaptive"}, r.List())

	s, err := r.Get("momentum_breakout")
	require.NoError(t, err)
	assert.Equal(t, "momentum_breakout", s.Name())

	_, err = r.Get("nope")
	assert.Error(t, err)
}
