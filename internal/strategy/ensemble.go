package strategy

import (
	"fmt"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Ensemble polls several member strategies and trades only when enough of
// them agree on a direction, weighting the blended confidence by each
// member's own confidence.
type Ensemble struct {
	members []Strategy
	// quorum is the minimum number of triggered members agreeing on the
	// same direction before the ensemble triggers.
	quorum int
}

// NewEnsemble creates an ensemble over the given members. Quorum values
// below 1 default to a simple majority of the member count.
func NewEnsemble(quorum int, members ...Strategy) *Ensemble {
	if quorum < 1 {
		quorum = len(members)/2 + 1
	}
	return &Ensemble{members: members, quorum: quorum}
}

// NewDefaultEnsemble creates the stock ensemble: momentum breakout, funding
// fade, and the regime-adaptive blend with a two-member quorum.
func NewDefaultEnsemble() *Ensemble {
	return NewEnsemble(2, NewMomentumBreakout(), NewFundingFade(), NewRegimeAdaptive())
}

// Name returns the strategy identifier.
func (s *Ensemble) Name() string { return "ensemble" }

// Decide evaluates every member and votes. Confidence is the mean of the
// agreeing members' confidences, clamped to [0,1].
func (s *Ensemble) Decide(f domain.MarketFeatures, th Thresholds) domain.TradingDecision {
	d := domain.TradingDecision{
		Strategy:  s.Name(),
		Market:    f.Market,
		Direction: domain.DirectionFlat,
		Features:  f,
		Timestamp: f.Timestamp,
	}

	votes := make(map[domain.Direction][]domain.TradingDecision)
	for _, m := range s.members {
		md := m.Decide(f, th)
		if md.Trigger && md.Direction != domain.DirectionFlat {
			votes[md.Direction] = append(votes[md.Direction], md)
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s votes %s (%.2f)", m.Name(), md.Direction, md.Confidence))
		} else {
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s abstains", m.Name()))
		}
	}

	best := domain.DirectionFlat
	for dir, vs := range votes {
		if len(vs) > len(votes[best]) {
			best = dir
		}
	}
	agreeing := votes[best]

	if best == domain.DirectionFlat || len(agreeing) < s.quorum {
		d.Reasons = append(d.Reasons, fmt.Sprintf("quorum not met (%d needed)", s.quorum))
		return d
	}
	// A split vote with equally-sized camps is treated as disagreement.
	if opposite := votes[best.Opposite()]; len(opposite) >= len(agreeing) {
		d.Reasons = append(d.Reasons, "members split, standing aside")
		return d
	}

	var sum float64
	for _, v := range agreeing {
		sum += v.Confidence
	}
	d.Direction = best
	d.Confidence = clampConfidence(sum / float64(len(agreeing)))
	d.Trigger = true
	d.Reasons = append(d.Reasons, fmt.Sprintf("%d/%d members agree on %s", len(agreeing), len(s.members), best))
	return d
}

// CheckExit uses the reference bracket rules via the first member. All stock
// ensembles lead with momentum breakout.
func (s *Ensemble) CheckExit(pos domain.Position, st domain.ExitState, f domain.MarketFeatures, th Thresholds) (domain.ExitAction, bool) {
	if len(s.members) == 0 {
		return domain.ExitAction{}, false
	}
	return s.members[0].CheckExit(pos, st, f, th)
}
