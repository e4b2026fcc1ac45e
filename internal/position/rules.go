// Package position tracks the engine's single open position and implements
// the exit state machine: stop-loss, laddered take-profits, time-stop, and
// the trailing-stop variant. Rule evaluation is pure; state mutation happens
// only after a confirmed fill.
package position

import "github.com/driftlabs/driftbot/internal/domain"

// BracketParams configures the laddered stop/take-profit exit rules.
type BracketParams struct {
	// TimeStopBars is the bars-held count after which a stagnant position
	// is force-closed.
	TimeStopBars int
	// TimeStopMinR is the unrealized gain, in multiples of the initial
	// risk distance, below which the time-stop fires.
	TimeStopMinR float64
}

// TrailingParams configures the trailing-stop exit variant.
type TrailingParams struct {
	// ActivationPct is the favorable move from entry, in percent, before
	// the trailing stop arms.
	ActivationPct float64
	// TrailingStopPct is the retracement from the water-mark, in percent,
	// that triggers a full close once armed.
	TrailingStopPct float64
	// TakeProfitPct and StopLossPct are flat percentage brackets computed
	// directly off the entry price. Zero disables the respective check.
	TakeProfitPct float64
	StopLossPct   float64
}

// favorableMove returns how far price has moved in the position's favor, in
// price units. Negative values mean the market moved against the position.
func favorableMove(pos domain.Position, price float64) float64 {
	if pos.Side == domain.DirectionShort {
		return pos.EntryPrice - price
	}
	return price - pos.EntryPrice
}

// EvaluateBracket runs the laddered exit rules in priority order and returns
// the first matching action. Exactly one exit action fires per tick.
//
// Priority: stop-loss, tp1 (50% once), tp2 (remainder once tp1 is taken),
// time-stop.
func EvaluateBracket(pos domain.Position, st domain.ExitState, price float64, p BracketParams) (domain.ExitAction, bool) {
	if !pos.Open() || st.StopDist <= 0 {
		return domain.ExitAction{}, false
	}

	move := favorableMove(pos, price)

	// 1. Stop-loss: adverse move beyond the initial risk distance.
	if move <= -st.StopDist {
		return domain.ExitAction{Reason: domain.ExitReasonStop, Fraction: 1, Price: price}, true
	}

	// 2. Take-profit 1: +1R, close half, position stays open.
	if !st.TP1Taken && move >= st.StopDist {
		return domain.ExitAction{Reason: domain.ExitReasonTP1, Fraction: 0.5, Price: price}, true
	}

	// 3. Take-profit 2: +2R, close the remainder.
	if st.TP1Taken && !st.TP2Taken && move >= 2*st.StopDist {
		return domain.ExitAction{Reason: domain.ExitReasonTP2, Fraction: 1, Price: price}, true
	}

	// 4. Time-stop: held too long without reaching half the risk distance.
	if p.TimeStopBars > 0 && st.BarsOpen >= p.TimeStopBars && move < p.TimeStopMinR*st.StopDist {
		return domain.ExitAction{Reason: domain.ExitReasonTimeStop, Fraction: 1, Price: price}, true
	}

	return domain.ExitAction{}, false
}

// EvaluateTrailing runs the trailing-stop exit variant. Flat stop-loss and
// take-profit percentage checks off the entry price run first, then the
// water-mark retracement check once the activation distance has been reached.
func EvaluateTrailing(pos domain.Position, st domain.ExitState, price float64, p TrailingParams) (domain.ExitAction, bool) {
	if !pos.Open() || pos.EntryPrice <= 0 {
		return domain.ExitAction{}, false
	}

	movePct := favorableMove(pos, price) / pos.EntryPrice * 100

	if p.StopLossPct > 0 && movePct <= -p.StopLossPct {
		return domain.ExitAction{Reason: domain.ExitReasonFlatSL, Fraction: 1, Price: price}, true
	}
	if p.TakeProfitPct > 0 && movePct >= p.TakeProfitPct {
		return domain.ExitAction{Reason: domain.ExitReasonFlatTP, Fraction: 1, Price: price}, true
	}

	if p.TrailingStopPct <= 0 {
		return domain.ExitAction{}, false
	}

	// Arming latches off the water-mark's distance from entry: once price
	// has been beyond the activation band, a later pullback cannot disarm
	// the trail.
	var armedPct, retracePct float64
	switch pos.Side {
	case domain.DirectionLong:
		if st.HighWaterMark <= 0 {
			return domain.ExitAction{}, false
		}
		armedPct = (st.HighWaterMark - pos.EntryPrice) / pos.EntryPrice * 100
		retracePct = (st.HighWaterMark - price) / st.HighWaterMark * 100
	case domain.DirectionShort:
		if st.LowWaterMark <= 0 {
			return domain.ExitAction{}, false
		}
		armedPct = (pos.EntryPrice - st.LowWaterMark) / pos.EntryPrice * 100
		retracePct = (price - st.LowWaterMark) / st.LowWaterMark * 100
	}
	if armedPct < p.ActivationPct {
		return domain.ExitAction{}, false
	}

	if retracePct >= p.TrailingStopPct {
		return domain.ExitAction{Reason: domain.ExitReasonTrailing, Fraction: 1, Price: price}, true
	}
	return domain.ExitAction{}, false
}
