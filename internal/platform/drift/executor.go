package drift

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Executor submits orders to an execution gateway that owns the Solana
// signing keys and on-chain submission. The bot never touches keys; it hands
// the gateway an order intent and receives a fill back.
type Executor struct {
	http *resty.Client
}

// NewExecutor creates an executor targeting the gateway at baseURL.
func NewExecutor(baseURL, authToken string) *Executor {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if authToken != "" {
		c.SetAuthToken(authToken)
	}
	return &Executor{http: c}
}

type gatewayOrder struct {
	ClientID   string  `json:"clientId"`
	Market     string  `json:"market"`
	Direction  string  `json:"direction"`
	Notional   float64 `json:"notional"`
	ReduceOnly bool    `json:"reduceOnly"`
}

type gatewayFill struct {
	OrderID  string  `json:"orderId"`
	Price    float64 `json:"price"`
	Notional float64 `json:"notional"`
	Fee      float64 `json:"fee"`
	FilledAt int64   `json:"filledAt"`
}

// Execute submits the order and blocks until the gateway reports the fill.
func (e *Executor) Execute(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	order := gatewayOrder{
		ClientID:   req.ID,
		Market:     req.Market,
		Direction:  string(req.Side),
		Notional:   req.Notional,
		ReduceOnly: req.ReduceOnly,
	}

	var fill gatewayFill
	r, err := e.http.R().
		SetContext(ctx).
		SetBody(order).
		SetResult(&fill).
		Post("/orders")
	if err != nil {
		return domain.Fill{}, fmt.Errorf("drift: execute %s: %w: %v", req.Market, domain.ErrExecutionFailed, err)
	}
	if err := checkStatus(r); err != nil {
		return domain.Fill{}, fmt.Errorf("drift: execute %s: %w: %v", req.Market, domain.ErrExecutionFailed, err)
	}

	return domain.Fill{
		OrderID:     fill.OrderID,
		Market:      req.Market,
		Side:        req.Side,
		FilledPrice: fill.Price,
		FilledSize:  fill.Notional,
		Fee:         fill.Fee,
		Timestamp:   time.Unix(fill.FilledAt, 0).UTC(),
	}, nil
}
