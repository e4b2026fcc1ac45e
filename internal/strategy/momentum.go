package strategy

import (
	"fmt"
	"math"

	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/position"
)

// MomentumBreakout is the reference rule engine. It trades volume-confirmed
// momentum candles when the book is calm enough, with the mark-oracle premium
// deciding direction: a stretched positive premium fades short, a negative
// premium fades long.
type MomentumBreakout struct{}

// NewMomentumBreakout creates the reference momentum strategy.
func NewMomentumBreakout() *MomentumBreakout { return &MomentumBreakout{} }

// Name returns the strategy identifier.
func (s *MomentumBreakout) Name() string { return "momentum_breakout" }

// Decide runs the five entry filters, picks a directional bias, and scores
// confidence. Any failing filter forces a flat no-trigger decision whose
// reasons name the filter; comparisons against filter thresholds pass
// inclusively (>= for minimums, <= for maximums).
func (s *MomentumBreakout) Decide(f domain.MarketFeatures, th Thresholds) domain.TradingDecision {
	d := domain.TradingDecision{
		Strategy:  s.Name(),
		Market:    f.Market,
		Direction: domain.DirectionFlat,
		Features:  f,
		Timestamp: f.Timestamp,
	}

	pass := true
	reject := func(reason string) {
		pass = false
		d.Reasons = append(d.Reasons, reason)
	}

	if f.BodyOverATR >= th.BodyOverATR {
		d.Reasons = append(d.Reasons, fmt.Sprintf("body/ATR %.2f >= %.2f", f.BodyOverATR, th.BodyOverATR))
	} else {
		reject(fmt.Sprintf("body/ATR %.2f below %.2f", f.BodyOverATR, th.BodyOverATR))
	}

	if f.VolumeZ >= th.VolumeZ {
		d.Reasons = append(d.Reasons, fmt.Sprintf("volume z %.2f >= %.2f", f.VolumeZ, th.VolumeZ))
	} else {
		reject(fmt.Sprintf("volume z %.2f below %.2f", f.VolumeZ, th.VolumeZ))
	}

	if f.RealizedVol <= th.MaxRealizedVol {
		d.Reasons = append(d.Reasons, fmt.Sprintf("realized vol %.2f%% <= %.2f%%", f.RealizedVol, th.MaxRealizedVol))
	} else {
		reject(fmt.Sprintf("realized vol %.2f%% above %.2f%%", f.RealizedVol, th.MaxRealizedVol))
	}

	if f.SpreadBps <= th.MaxSpreadBps {
		d.Reasons = append(d.Reasons, fmt.Sprintf("spread %.1f bps <= %.1f bps", f.SpreadBps, th.MaxSpreadBps))
	} else {
		reject(fmt.Sprintf("spread %.1f bps above %.1f bps", f.SpreadBps, th.MaxSpreadBps))
	}

	if f.OpenInterest > 0 {
		d.Reasons = append(d.Reasons, "open interest present")
	} else {
		reject("no open interest")
	}

	if !pass {
		d.Trigger = false
		d.Confidence = 0
		return d
	}

	// Directional bias: premium sign decides; an exactly-zero premium
	// falls back to order-book imbalance (>= 0.5 long, else short).
	switch {
	case f.PremiumPct > 0:
		d.Direction = domain.DirectionShort
		d.Reasons = append(d.Reasons, fmt.Sprintf("positive premium %.4f%% -> short bias", f.PremiumPct))
	case f.PremiumPct < 0:
		d.Direction = domain.DirectionLong
		d.Reasons = append(d.Reasons, fmt.Sprintf("negative premium %.4f%% -> long bias", f.PremiumPct))
	case f.OBImbalance >= 0.5:
		d.Direction = domain.DirectionLong
		d.Reasons = append(d.Reasons, fmt.Sprintf("zero premium, bid imbalance %.2f -> long bias", f.OBImbalance))
	default:
		d.Direction = domain.DirectionShort
		d.Reasons = append(d.Reasons, fmt.Sprintf("zero premium, ask imbalance %.2f -> short bias", f.OBImbalance))
	}

	conf := 0.5
	if f.VolumeZ >= th.BigMoveVolumeZ {
		conf += 0.2
		d.Reasons = append(d.Reasons, "volume surge bonus")
	}
	if f.BodyOverATR >= th.BigMoveBodyATR {
		conf += 0.15
		d.Reasons = append(d.Reasons, "big momentum bonus")
	}
	if math.Abs(f.PremiumPct) > th.PremiumPct {
		conf += 0.1
		d.Reasons = append(d.Reasons, "premium magnitude bonus")
	}
	if f.OBImbalance > 0.7 || f.OBImbalance < 0.3 {
		conf += 0.05
		d.Reasons = append(d.Reasons, "book imbalance bonus")
	}

	d.Confidence = clampConfidence(conf * th.ConfidenceMult)
	d.Trigger = true
	return d
}

// CheckExit applies the laddered bracket rules: stop-loss, tp1, tp2,
// time-stop, in that priority order.
func (s *MomentumBreakout) CheckExit(pos domain.Position, st domain.ExitState, f domain.MarketFeatures, th Thresholds) (domain.ExitAction, bool) {
	return position.EvaluateBracket(pos, st, f.Price, position.BracketParams{
		TimeStopBars: th.TimeStopBars,
		TimeStopMinR: th.TimeStopMinR,
	})
}
