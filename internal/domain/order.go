package domain

import "time"

// OrderRequest instructs the execution sink to open or reduce a position.
// Notional is always positive; Side carries the direction. ReduceOnly orders
// close (part of) an existing position and must never increase exposure.
type OrderRequest struct {
	ID         string
	Market     string
	Side       Direction
	Notional   float64
	ReduceOnly bool
	Reason     string // diagnostic trail, e.g. "entry" or an ExitReason
	CreatedAt  time.Time
}

// Fill is the confirmed result of an executed order.
type Fill struct {
	OrderID     string
	Market      string
	Side        Direction
	FilledPrice float64
	FilledSize  float64 // notional actually filled
	Fee         float64 // quote-currency fee charged for this fill
	Timestamp   time.Time
}
