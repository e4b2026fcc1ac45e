package position

import (
	"fmt"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Tracker owns the engine's single position and its exit state. It is not
// safe for concurrent use: the engine loop is its only caller, matching the
// one-engine-one-position ownership rule.
type Tracker struct {
	pos domain.Position
	st  domain.ExitState
}

// NewTracker returns a flat Tracker.
func NewTracker() *Tracker {
	return &Tracker{pos: domain.Position{Side: domain.DirectionFlat}}
}

// Position returns a copy of the current position.
func (t *Tracker) Position() domain.Position { return t.pos }

// ExitState returns a copy of the current exit state.
func (t *Tracker) ExitState() domain.ExitState { return t.st }

// Open records a confirmed entry fill. stopDist is the initial risk distance
// in price units, fixed at entry. It returns ErrPositionOpen when a position
// is already held.
func (t *Tracker) Open(market string, side domain.Direction, fill domain.Fill, stopDist float64) error {
	if t.pos.Open() {
		return fmt.Errorf("position: open %s: %w", market, domain.ErrPositionOpen)
	}
	if side != domain.DirectionLong && side != domain.DirectionShort {
		return fmt.Errorf("position: open %s: side must be long or short, got %q", market, side)
	}
	t.pos = domain.Position{
		Market:       market,
		Side:         side,
		Size:         fill.FilledSize,
		EntryPrice:   fill.FilledPrice,
		CurrentPrice: fill.FilledPrice,
		OpenedAt:     fill.Timestamp,
	}
	t.st = domain.ExitState{
		StopDist:      stopDist,
		HighWaterMark: fill.FilledPrice,
		LowWaterMark:  fill.FilledPrice,
	}
	return nil
}

// Tick advances the per-bar bookkeeping while a position is open: marks the
// current price, bumps the bars-held counter, and extends the water-marks.
// It is a no-op when flat.
func (t *Tracker) Tick(price float64) {
	if !t.pos.Open() {
		return
	}
	t.pos.MarkPrice(price)
	t.st.BarsOpen++
	if price > t.st.HighWaterMark {
		t.st.HighWaterMark = price
	}
	if t.st.LowWaterMark == 0 || price < t.st.LowWaterMark {
		t.st.LowWaterMark = price
	}
}

// ApplyExitFill records a confirmed exit fill for the given action and
// returns the realized PnL of the closed fraction and whether the position is
// now fully closed. State is mutated only here: an exit that was attempted
// but never confirmed leaves the position untouched and still open.
func (t *Tracker) ApplyExitFill(action domain.ExitAction, fill domain.Fill) (pnl float64, closed bool, err error) {
	if !t.pos.Open() {
		return 0, false, fmt.Errorf("position: apply exit: %w", domain.ErrNoPosition)
	}

	closedNotional := fill.FilledSize
	if closedNotional <= 0 || closedNotional > t.pos.Size {
		closedNotional = t.pos.Size * action.Fraction
	}

	move := (fill.FilledPrice - t.pos.EntryPrice) / t.pos.EntryPrice
	if t.pos.Side == domain.DirectionShort {
		move = -move
	}
	pnl = move*closedNotional - fill.Fee

	switch action.Reason {
	case domain.ExitReasonTP1:
		t.st.TP1Taken = true
	case domain.ExitReasonTP2:
		t.st.TP2Taken = true
	}

	t.pos.Size -= closedNotional
	if action.Full() || t.pos.Size <= 0 {
		t.reset()
		return pnl, true, nil
	}
	t.pos.MarkPrice(fill.FilledPrice)
	return pnl, false, nil
}

// BarsHeld returns the bars-open counter for ledger records.
func (t *Tracker) BarsHeld() int { return t.st.BarsOpen }

// reset clears all position and exit state after a full close.
func (t *Tracker) reset() {
	t.pos = domain.Position{Side: domain.DirectionFlat}
	t.st = domain.ExitState{}
}
