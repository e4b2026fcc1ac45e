package domain

import "time"

// TradeRecord is one closed (or partially closed) round trip in the ledger.
// Partial exits produce their own records with Fraction < 1.
type TradeRecord struct {
	ID         string
	Market     string
	Strategy   string
	Side       Direction
	EntryPrice float64
	ExitPrice  float64
	Size       float64 // notional closed by this record
	Fraction   float64 // share of the position this close represents
	PnL        float64 // realized, net of fees
	Fees       float64
	Reason     ExitReason
	Regime     Regime // regime label at exit time, empty if unclassified
	BarsHeld   int
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// Win reports whether the record closed at a profit.
func (t TradeRecord) Win() bool {
	return t.PnL > 0
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}
