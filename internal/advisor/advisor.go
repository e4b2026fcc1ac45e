// Package advisor wraps the external LLM confirmation signal. The core only
// ever sees the Advisor interface and the Gate: the gate consults the advisor
// with a timeout and bounded retries, and degrades per the configured
// fallback policy when the advisor is unavailable or unparseable.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Advisor produces a confirmation signal for a candidate decision.
type Advisor interface {
	Consult(ctx context.Context, decision domain.TradingDecision) (domain.Advice, error)
}

// FallbackPolicy selects what the gate does when the advisor is exhausted.
type FallbackPolicy string

const (
	// FallbackRuleOnly proceeds on the rule engine's decision alone.
	FallbackRuleOnly FallbackPolicy = "rule_only"
	// FallbackFlatten downgrades the decision to no-trigger.
	FallbackFlatten FallbackPolicy = "flatten"
)

// GateConfig holds the gate's consultation parameters.
type GateConfig struct {
	Enabled     bool
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Fallback    FallbackPolicy
}

// DefaultGateConfig returns the stock consultation parameters: 1s base
// backoff capped at 5s, three attempts, rule-only fallback.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Enabled:     true,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Second,
		BackoffCap:  5 * time.Second,
		Fallback:    FallbackRuleOnly,
	}
}

// Gate applies the advisor's signal to a triggered decision.
type Gate struct {
	advisor Advisor
	cfg     GateConfig
	logger  *slog.Logger
}

// NewGate creates a Gate over the given advisor.
func NewGate(a Advisor, cfg GateConfig, logger *slog.Logger) *Gate {
	return &Gate{
		advisor: a,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "advisor_gate")),
	}
}

// Confirm consults the advisor about a triggered decision and returns the
// possibly-adjusted decision. Untriggered decisions pass through untouched.
//
// Agreement blends the two confidences; disagreement or an explicit flat
// flattens the decision. Advisor exhaustion applies the fallback policy.
func (g *Gate) Confirm(ctx context.Context, d domain.TradingDecision) domain.TradingDecision {
	if !g.cfg.Enabled || g.advisor == nil || !d.Trigger {
		return d
	}

	advice, err := g.consultWithRetry(ctx, d)
	if err != nil {
		g.logger.WarnContext(ctx, "advisor unavailable",
			slog.String("market", d.Market),
			slog.String("fallback", string(g.cfg.Fallback)),
			slog.String("error", err.Error()),
		)
		if g.cfg.Fallback == FallbackFlatten {
			d.Trigger = false
			d.Confidence = 0
			d.Direction = domain.DirectionFlat
			d.Reasons = append(d.Reasons, "advisor unavailable: flattened per policy")
		} else {
			d.Reasons = append(d.Reasons, "advisor unavailable: proceeding rule-only")
		}
		return d
	}

	switch {
	case advice.Direction == domain.DirectionFlat:
		d.Trigger = false
		d.Confidence = 0
		d.Direction = domain.DirectionFlat
		d.Reasons = append(d.Reasons, "advisor says flat")
	case advice.Direction != d.Direction:
		d.Trigger = false
		d.Confidence = 0
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("advisor disagrees: %s vs rule %s", advice.Direction, d.Direction))
		d.Direction = domain.DirectionFlat
	default:
		d.Confidence = (d.Confidence + advice.Confidence) / 2
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("advisor confirms %s (%.2f)", advice.Direction, advice.Confidence))
	}
	for _, line := range advice.Reasoning {
		d.Reasons = append(d.Reasons, "advisor: "+line)
	}
	return d
}

// consultWithRetry calls the advisor up to MaxRetries times with exponential
// backoff, each attempt bounded by the configured timeout.
func (g *Gate) consultWithRetry(ctx context.Context, d domain.TradingDecision) (domain.Advice, error) {
	attempts := g.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := g.cfg.BackoffBase << (attempt - 1)
			if g.cfg.BackoffCap > 0 && backoff > g.cfg.BackoffCap {
				backoff = g.cfg.BackoffCap
			}
			select {
			case <-ctx.Done():
				return domain.Advice{}, fmt.Errorf("advisor: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if g.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		}
		advice, err := g.advisor.Consult(callCtx, d)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return advice, nil
		}
		lastErr = err
		g.logger.DebugContext(ctx, "advisor attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return domain.Advice{}, fmt.Errorf("advisor: %d attempts exhausted: %w", attempts, lastErr)
}
