// Package strategy implements the rule engines that convert market features
// into directional trading decisions. Every variant is a pure function of the
// feature vector and an explicit Thresholds value: no ambient configuration,
// no I/O, no hidden state. That keeps per-trial threshold injection in the
// optimizer safely parallelizable.
package strategy

import (
	"math"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Strategy is the contract shared by all rule-engine variants.
type Strategy interface {
	Name() string
	// Decide evaluates the feature vector against the thresholds and
	// returns a decision. Deterministic and side-effect free.
	Decide(f domain.MarketFeatures, th Thresholds) domain.TradingDecision
	// CheckExit evaluates the variant's exit rules for an open position.
	// It returns the first matching exit action, or false when the
	// position should stay as is.
	CheckExit(pos domain.Position, st domain.ExitState, f domain.MarketFeatures, th Thresholds) (domain.ExitAction, bool)
}

// Thresholds is the full tunable parameter set for the rule engines and
// their exit rules. It is passed explicitly on every call and treated as an
// immutable value per decision cycle; the optimizer injects per-trial copies
// via Apply.
type Thresholds struct {
	// Entry filters (momentum breakout).
	BodyOverATR    float64 // minimum candle body / ATR
	VolumeZ        float64 // minimum volume z-score
	MaxRealizedVol float64 // maximum realized volatility, percent per bar
	MaxSpreadBps   float64 // maximum top-of-book spread

	// Confidence bonuses.
	PremiumPct     float64 // premium magnitude, percent, for the premium bonus
	BigMoveVolumeZ float64 // volume z beyond which the surge bonus applies
	BigMoveBodyATR float64 // body/ATR beyond which the momentum bonus applies
	ConfidenceMult float64 // final confidence scale factor

	// Funding fade.
	FundingExtreme float64 // absolute hourly funding rate considered crowded

	// Bracket exits.
	StopATRMult  float64 // stop distance as a multiple of ATR
	StopFloorPct float64 // hard floor on the stop distance, percent of entry
	TimeStopBars int
	TimeStopMinR float64

	// Trailing exits.
	TrailingActivationPct float64
	TrailingStopPct       float64
	TakeProfitPct         float64 // flat take-profit off entry, 0 disables
	StopLossPct           float64 // flat stop-loss off entry, 0 disables
}

// DefaultThresholds returns the canonical parameter set. These are the
// reference values every variant starts from; the optimizer explores around
// them.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BodyOverATR:    0.5,
		VolumeZ:        2.0,
		MaxRealizedVol: 5.0,
		MaxSpreadBps:   50,

		PremiumPct:     0.05,
		BigMoveVolumeZ: 2.5,
		BigMoveBodyATR: 1.0,
		ConfidenceMult: 1.0,

		FundingExtreme: 0.01,

		StopATRMult:  1.5,
		StopFloorPct: 0.5,
		TimeStopBars: 10,
		TimeStopMinR: 0.5,

		TrailingActivationPct: 1.0,
		TrailingStopPct:       0.75,
		TakeProfitPct:         3.0,
		StopLossPct:           1.5,
	}
}

// Apply returns a copy of th with the named parameters overridden. Unknown
// names are ignored so parameter spaces can carry strategy-specific keys.
func (th Thresholds) Apply(params map[string]float64) Thresholds {
	for name, v := range params {
		switch name {
		case "body_over_atr":
			th.BodyOverATR = v
		case "volume_z":
			th.VolumeZ = v
		case "max_realized_vol":
			th.MaxRealizedVol = v
		case "max_spread_bps":
			th.MaxSpreadBps = v
		case "premium_pct":
			th.PremiumPct = v
		case "big_move_volume_z":
			th.BigMoveVolumeZ = v
		case "big_move_body_atr":
			th.BigMoveBodyATR = v
		case "confidence_mult":
			th.ConfidenceMult = v
		case "funding_extreme":
			th.FundingExtreme = v
		case "stop_atr_mult":
			th.StopATRMult = v
		case "stop_floor_pct":
			th.StopFloorPct = v
		case "time_stop_bars":
			th.TimeStopBars = int(v)
		case "time_stop_min_r":
			th.TimeStopMinR = v
		case "trailing_activation_pct":
			th.TrailingActivationPct = v
		case "trailing_stop_pct":
			th.TrailingStopPct = v
		case "take_profit_pct":
			th.TakeProfitPct = v
		case "stop_loss_pct":
			th.StopLossPct = v
		}
	}
	return th
}

// StopDistance computes the initial risk distance for a new position:
// 1.5x ATR (configurable) with a hard floor as a percent of entry price.
func (th Thresholds) StopDistance(entryPrice, atr float64) float64 {
	dist := atr * th.StopATRMult
	floor := entryPrice * th.StopFloorPct / 100
	return math.Max(dist, floor)
}

// clampConfidence bounds a confidence score to [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
