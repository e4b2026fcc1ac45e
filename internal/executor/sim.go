package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftlabs/driftbot/internal/domain"
)

// SimSink is the fill simulator used by the backtest runner and paper-trade
// mode. Orders fill in full at the current mark price (market-at-close;
// slippage is not modeled separately) and a percentage fee is charged on
// every fill, entry and exit alike.
type SimSink struct {
	feePct float64 // fee as percent of notional per fill

	mu    sync.Mutex
	marks map[string]mark
}

type mark struct {
	price float64
	ts    time.Time
}

// NewSimSink creates a simulator charging feePct percent of notional per fill.
func NewSimSink(feePct float64) *SimSink {
	return &SimSink{
		feePct: feePct,
		marks:  make(map[string]mark),
	}
}

// MarkPrice sets the fill price for a market. The backtest runner calls this
// once per snapshot before any order is placed for that tick.
func (s *SimSink) MarkPrice(market string, price float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[market] = mark{price: price, ts: ts}
}

// Execute fills the request at the current mark price.
func (s *SimSink) Execute(_ context.Context, req domain.OrderRequest) (domain.Fill, error) {
	s.mu.Lock()
	m, ok := s.marks[req.Market]
	s.mu.Unlock()

	if !ok || m.price <= 0 {
		return domain.Fill{}, fmt.Errorf("sim: no mark price for %s: %w", req.Market, domain.ErrExecutionFailed)
	}
	if req.Notional <= 0 {
		return domain.Fill{}, fmt.Errorf("sim: non-positive notional %.4f: %w", req.Notional, domain.ErrExecutionFailed)
	}

	return domain.Fill{
		OrderID:     req.ID,
		Market:      req.Market,
		Side:        req.Side,
		FilledPrice: m.price,
		FilledSize:  req.Notional,
		Fee:         req.Notional * s.feePct / 100,
		Timestamp:   m.ts,
	}, nil
}
