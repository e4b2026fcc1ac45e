package strategy

import (
	"fmt"

	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/features"
)

// RegimeAdaptive blends the other rule engines by market regime: momentum in
// trending conditions, funding fade in chop, and nothing at all in crash or
// high-volatility conditions. In trending regimes a momentum trigger against
// the trend is suppressed.
type RegimeAdaptive struct {
	momentum *MomentumBreakout
	fade     *FundingFade
	regimes  features.RegimeThresholds
}

// NewRegimeAdaptive creates the regime-adaptive blend with the stock regime
// classifier thresholds.
func NewRegimeAdaptive() *RegimeAdaptive {
	return &RegimeAdaptive{
		momentum: NewMomentumBreakout(),
		fade:     NewFundingFade(),
		regimes:  features.DefaultRegimeThresholds(),
	}
}

// Name returns the strategy identifier.
func (s *RegimeAdaptive) Name() string { return "regime_adaptive" }

// Decide classifies the regime and dispatches to the matching rule engine.
func (s *RegimeAdaptive) Decide(f domain.MarketFeatures, th Thresholds) domain.TradingDecision {
	regime := features.ClassifyRegime(f, s.regimes)

	var d domain.TradingDecision
	switch regime {
	case domain.RegimeCrash, domain.RegimeHighVol:
		d = domain.TradingDecision{
			Strategy:  s.Name(),
			Market:    f.Market,
			Direction: domain.DirectionFlat,
			Features:  f,
			Timestamp: f.Timestamp,
			Reasons:   []string{fmt.Sprintf("regime %s: standing aside", regime)},
		}
		return d
	case domain.RegimeChop:
		d = s.fade.Decide(f, th)
	default: // bull or bear: trade momentum, but only with the trend
		d = s.momentum.Decide(f, th)
		withTrend := (regime == domain.RegimeBull && d.Direction == domain.DirectionLong) ||
			(regime == domain.RegimeBear && d.Direction == domain.DirectionShort)
		if d.Trigger && !withTrend {
			d.Trigger = false
			d.Confidence = 0
			d.Reasons = append(d.Reasons, fmt.Sprintf("regime %s: counter-trend %s suppressed", regime, d.Direction))
			d.Direction = domain.DirectionFlat
		}
	}

	d.Strategy = s.Name()
	d.Reasons = append(d.Reasons, fmt.Sprintf("regime %s", regime))
	return d
}

// CheckExit dispatches to the exit rules of whichever engine trades the
// current regime; positions opened by the fade leg keep trailing exits while
// momentum positions keep the bracket. The regime is re-classified each tick,
// so a regime flip mid-position switches the exit style with it.
func (s *RegimeAdaptive) CheckExit(pos domain.Position, st domain.ExitState, f domain.MarketFeatures, th Thresholds) (domain.ExitAction, bool) {
	if features.ClassifyRegime(f, s.regimes) == domain.RegimeChop {
		return s.fade.CheckExit(pos, st, f, th)
	}
	return s.momentum.CheckExit(pos, st, f, th)
}
