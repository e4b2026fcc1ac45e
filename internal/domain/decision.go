package domain

import "time"

// Direction is the directional intent of a trading decision.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// Opposite returns the other trading side. Flat maps to flat.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return DirectionFlat
	}
}

// TradingDecision is the outcome of one strategy evaluation. When Trigger is
// false the decision is flat for execution purposes regardless of Direction;
// Direction may still carry the rule engine's raw bias for diagnostics.
type TradingDecision struct {
	ID         string // UUID, assigned by the engine for audit
	Strategy   string
	Market     string
	Direction  Direction
	Confidence float64 // 0..1
	Trigger    bool
	Reasons    []string // ordered human-readable diagnostic trail
	Features   MarketFeatures
	Timestamp  time.Time
}

// Effective returns the direction the executor should act on: the raw
// direction when triggered, flat otherwise.
func (d TradingDecision) Effective() Direction {
	if !d.Trigger {
		return DirectionFlat
	}
	return d.Direction
}

// Advice is the advisor's confirmation signal for a candidate decision.
type Advice struct {
	Direction  Direction
	Confidence float64 // 0..1
	Regime     Regime  // empty when the advisor did not label one
	Reasoning  []string
}
