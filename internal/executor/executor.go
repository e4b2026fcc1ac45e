// Package executor defines the execution sink boundary: the engine hands an
// order request to a Sink and gets back a confirmed fill or an error. The
// core never assumes success; a failed execution leaves all position state
// untouched and the tick is retried on the next cycle.
package executor

import (
	"context"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Sink performs a trade, live or simulated, and reports the fill.
type Sink interface {
	Execute(ctx context.Context, req domain.OrderRequest) (domain.Fill, error)
}
