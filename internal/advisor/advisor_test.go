package advisor

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftbot/internal/domain"
)

func TestParseAdvice(t *testing.T) {
	t.Run("full response", func(t *testing.T) {
		advice, err := ParseAdvice(
			"direction: short\nconfidence: 0.72\nregime: high_vol\nFunding is stretched.\nBook is thin.")
		require.NoError(t, err)
		assert.Equal(t, domain.DirectionShort, advice.Direction)
		assert.InDelta(t, 0.72, advice.Confidence, 1e-9)
		assert.Equal(t, domain.RegimeHighVol, advice.Regime)
		assert.Equal(t, []string{"Funding is stretched.", "Book is thin."}, advice.Reasoning)
	})

	t.Run("percent scale confidence", func(t *testing.T) {
		advice, err := ParseAdvice("Direction: LONG\nConfidence: 85%")
		require.NoError(t, err)
		assert.Equal(t, domain.DirectionLong, advice.Direction)
		assert.InDelta(t, 0.85, advice.Confidence, 1e-9)
	})

	t.Run("missing confidence defaults to 0.5", func(t *testing.T) {
		advice, err := ParseAdvice("direction: flat")
		require.NoError(t, err)
		assert.Equal(t, domain.DirectionFlat, advice.Direction)
		assert.Equal(t, 0.5, advice.Confidence)
	})

	t.Run("reasoning is capped", func(t *testing.T) {
		advice, err := ParseAdvice("direction: long\none\ntwo\nthree\nfour\nfive")
		require.NoError(t, err)
		assert.Len(t, advice.Reasoning, 3)
	})

	t.Run("no direction is a parse failure", func(t *testing.T) {
		_, err := ParseAdvice("the market looks interesting today")
		assert.ErrorIs(t, err, domain.ErrAdvisorParse)
	})
}

// scriptedAdvisor returns canned responses, failing a set number of times
// first.
type scriptedAdvisor struct {
	failures int
	advice   domain.Advice
	calls    int
}

func (s *scriptedAdvisor) Consult(_ context.Context, _ domain.TradingDecision) (domain.Advice, error) {
	s.calls++
	if s.calls <= s.failures {
		return domain.Advice{}, errors.New("upstream 500")
	}
	return s.advice, nil
}

func gateConfig() GateConfig {
	cfg := DefaultGateConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 2 * time.Millisecond
	return cfg
}

func triggered(dir domain.Direction, conf float64) domain.TradingDecision {
	return domain.TradingDecision{
		Market:     "SOL-PERP",
		Direction:  dir,
		Confidence: conf,
		Trigger:    true,
	}
}

func TestGateAgreementBlendsConfidence(t *testing.T) {
	adv := &scriptedAdvisor{advice: domain.Advice{Direction: domain.DirectionLong, Confidence: 0.9}}
	g := NewGate(adv, gateConfig(), slog.New(slog.DiscardHandler))

	d := g.Confirm(context.Background(), triggered(domain.DirectionLong, 0.7))
	assert.True(t, d.Trigger)
	assert.Equal(t, domain.DirectionLong, d.Direction)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestGateDisagreementFlattens(t *testing.T) {
	adv := &scriptedAdvisor{advice: domain.Advice{Direction: domain.DirectionShort, Confidence: 0.9}}
	g := NewGate(adv, gateConfig(), slog.New(slog.DiscardHandler))

	d := g.Confirm(context.Background(), triggered(domain.DirectionLong, 0.7))
	assert.False(t, d.Trigger)
	assert.Equal(t, domain.DirectionFlat, d.Direction)
	assert.Zero(t, d.Confidence)
}

func TestGateAdvisorFlatFlattens(t *testing.T) {
	adv := &scriptedAdvisor{advice: domain.Advice{Direction: domain.DirectionFlat, Confidence: 0.9}}
	g := NewGate(adv, gateConfig(), slog.New(slog.DiscardHandler))

	d := g.Confirm(context.Background(), triggered(domain.DirectionLong, 0.7))
	assert.False(t, d.Trigger)
}

func TestGateRetriesThenSucceeds(t *testing.T) {
	adv := &scriptedAdvisor{
		failures: 2,
		advice:   domain.Advice{Direction: domain.DirectionLong, Confidence: 0.6},
	}
	g := NewGate(adv, gateConfig(), slog.New(slog.DiscardHandler))

	d := g.Confirm(context.Background(), triggered(domain.DirectionLong, 0.8))
	assert.True(t, d.Trigger)
	assert.Equal(t, 3, adv.calls)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
}

func TestGateFallbackPolicies(t *testing.T) {
	t.Run("rule only proceeds unchanged", func(t *testing.T) {
		adv := &scriptedAdvisor{failures: 100}
		g := NewGate(adv, gateConfig(), slog.New(slog.DiscardHandler))

		d := g.Confirm(context.Background(), triggered(domain.DirectionLong, 0.8))
		assert.True(t, d.Trigger)
		assert.Equal(t, domain.DirectionLong, d.Direction)
		assert.Equal(t, 0.8, d.Confidence)
		assert.Equal(t, 3, adv.calls, "exhausts the retry allowance")
	})

	t.Run("flatten stands aside", func(t *testing.T) {
		adv := &scriptedAdvisor{failures: 100}
		cfg := gateConfig()
		cfg.Fallback = FallbackFlatten
		g := NewGate(adv, cfg, slog.New(slog.DiscardHandler))

		d := g.Confirm(context.Background(), triggered(domain.DirectionLong, 0.8))
		assert.False(t, d.Trigger)
		assert.Equal(t, domain.DirectionFlat, d.Direction)
	})
}

func TestGatePassThrough(t *testing.T) {
	adv := &scriptedAdvisor{advice: domain.Advice{Direction: domain.DirectionShort}}

	t.Run("untriggered decisions skip the advisor", func(t *testing.T) {
		g := NewGate(adv, gateConfig(), slog.New(slog.DiscardHandler))
		d := g.Confirm(context.Background(), domain.TradingDecision{Direction: domain.DirectionLong})
		assert.False(t, d.Trigger)
		assert.Zero(t, adv.calls)
	})

	t.Run("disabled gate is a no-op", func(t *testing.T) {
		cfg := gateConfig()
		cfg.Enabled = false
		g := NewGate(adv, cfg, slog.New(slog.DiscardHandler))
		d := g.Confirm(context.Background(), triggered(domain.DirectionLong, 0.7))
		assert.True(t, d.Trigger)
		assert.Zero(t, adv.calls)
	})
}
