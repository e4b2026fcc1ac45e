package domain

import "time"

// Position represents the single open position owned by one engine instance.
// Side is DirectionFlat when no position is open. The reference design does
// not hedge or pyramid: exactly one position per engine at a time.
type Position struct {
	Market        string
	Side          Direction
	Size          float64 // notional in quote currency
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// Open reports whether a position is currently held.
func (p Position) Open() bool {
	return p.Side == DirectionLong || p.Side == DirectionShort
}

// MarkPrice updates the current price and recomputes unrealized PnL.
func (p *Position) MarkPrice(price float64) {
	p.CurrentPrice = price
	if !p.Open() || p.EntryPrice == 0 {
		p.UnrealizedPnL = 0
		return
	}
	move := (price - p.EntryPrice) / p.EntryPrice
	if p.Side == DirectionShort {
		move = -move
	}
	p.UnrealizedPnL = move * p.Size
}

// ExitState tracks per-position exit bookkeeping. It is created on entry and
// cleared on full close.
type ExitState struct {
	StopDist      float64 // initial risk distance R, in price units
	HighWaterMark float64
	LowWaterMark  float64
	BarsOpen      int
	TP1Taken      bool
	TP2Taken      bool
}

// ExitReason identifies which exit rule fired.
type ExitReason string

const (
	ExitReasonStop     ExitReason = "stop"
	ExitReasonTP1      ExitReason = "tp1"
	ExitReasonTP2      ExitReason = "tp2"
	ExitReasonTimeStop ExitReason = "time_stop"
	ExitReasonTrailing ExitReason = "trailing_stop"
	ExitReasonFlatTP   ExitReason = "take_profit"
	ExitReasonFlatSL   ExitReason = "stop_loss"
)

// ExitAction is a single exit instruction produced by the position state
// machine. Fraction is the share of the current position to close (0..1];
// 1 means a full close.
type ExitAction struct {
	Reason   ExitReason
	Fraction float64
	Price    float64 // price at which the exit was evaluated
}

// Full reports whether the action closes the entire remaining position.
func (a ExitAction) Full() bool {
	return a.Fraction >= 1
}
