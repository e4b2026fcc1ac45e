package strategy

import (
	"fmt"
	"math"

	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/position"
)

// FundingFade trades against crowded funding: when longs pay an extreme rate
// the strategy shorts, expecting the premium to bleed off, and vice versa. It
// uses the trailing exit variant rather than the ATR bracket.
type FundingFade struct{}

// NewFundingFade creates the funding-rate-fade strategy.
func NewFundingFade() *FundingFade { return &FundingFade{} }

// Name returns the strategy identifier.
func (s *FundingFade) Name() string { return "funding_fade" }

// Decide triggers only on an extreme funding rate with a tradable book.
// Confidence grows with how far funding sits beyond the extreme threshold.
func (s *FundingFade) Decide(f domain.MarketFeatures, th Thresholds) domain.TradingDecision {
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

	absFunding := math.Abs(f.FundingRate)
	if absFunding >= th.FundingExtreme {
		d.Reasons = append(d.Reasons, fmt.Sprintf("funding %.5f beyond extreme %.5f", f.FundingRate, th.FundingExtreme))
	} else {
		reject(fmt.Sprintf("funding %.5f within normal range", f.FundingRate))
	}

	if f.SpreadBps <= th.MaxSpreadBps {
		d.Reasons = append(d.Reasons, fmt.Sprintf("spread %.1f bps <= %.1f bps", f.SpreadBps, th.MaxSpreadBps))
	} else {
		reject(fmt.Sprintf("spread %.1f bps above %.1f bps", f.SpreadBps, th.MaxSpreadBps))
	}

	if f.RealizedVol <= th.MaxRealizedVol {
		d.Reasons = append(d.Reasons, fmt.Sprintf("realized vol %.2f%% <= %.2f%%", f.RealizedVol, th.MaxRealizedVol))
	} else {
		reject(fmt.Sprintf("realized vol %.2f%% above %.2f%%", f.RealizedVol, th.MaxRealizedVol))
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

	if f.FundingRate > 0 {
		d.Direction = domain.DirectionShort
		d.Reasons = append(d.Reasons, "longs paying -> fade short")
	} else {
		d.Direction = domain.DirectionLong
		d.Reasons = append(d.Reasons, "shorts paying -> fade long")
	}

	// Base 0.5, plus up to 0.4 as funding stretches to 3x the extreme
	// threshold, plus a small bonus when the premium agrees with the fade.
	conf := 0.5
	if th.FundingExtreme > 0 {
		stretch := (absFunding/th.FundingExtreme - 1) / 2
		conf += math.Min(0.4, math.Max(0, stretch*0.4))
	}
	premiumAgrees := (d.Direction == domain.DirectionShort && f.PremiumPct > 0) ||
		(d.Direction == domain.DirectionLong && f.PremiumPct < 0)
	if premiumAgrees && math.Abs(f.PremiumPct) > th.PremiumPct {
		conf += 0.1
		d.Reasons = append(d.Reasons, "premium agrees with fade")
	}

	d.Confidence = clampConfidence(conf * th.ConfidenceMult)
	d.Trigger = true
	return d
}

// CheckExit applies the trailing-stop variant with flat percentage brackets
// off the entry price.
func (s *FundingFade) CheckExit(pos domain.Position, st domain.ExitState, f domain.MarketFeatures, th Thresholds) (domain.ExitAction, bool) {
	return position.EvaluateTrailing(pos, st, f.Price, position.TrailingParams{
		ActivationPct:   th.TrailingActivationPct,
		TrailingStopPct: th.TrailingStopPct,
		TakeProfitPct:   th.TakeProfitPct,
		StopLossPct:     th.StopLossPct,
	})
}
