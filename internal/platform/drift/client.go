// Package drift talks to the Drift protocol data services: the historical
// data API over REST and the DLOB server over WebSocket. It exposes raw
// market data only; order placement goes through the executor layer.
package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Client is the REST client for the Drift data API.
type Client struct {
	http *resty.Client
}

// NewClient creates a Drift data API client. baseURL is the API root,
// e.g. "https://data.api.drift.trade".
func NewClient(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// GetCandles returns up to limit candles for the market at the given
// resolution (e.g. "1", "5", "60" minutes), oldest first.
func (c *Client) GetCandles(ctx context.Context, market, resolution string, limit int) ([]domain.Candle, error) {
	var resp struct {
		Records []DriftCandle `json:"records"`
	}
	r, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"resolution": resolution,
			"limit":      strconv.Itoa(limit),
		}).
		SetResult(&resp).
		Get("/market/" + market + "/candles")
	if err != nil {
		return nil, fmt.Errorf("drift: get candles %s: %w", market, err)
	}
	if err := checkStatus(r); err != nil {
		return nil, fmt.Errorf("drift: get candles %s: %w", market, err)
	}

	candles := make([]domain.Candle, 0, len(resp.Records))
	for _, rec := range resp.Records {
		candles = append(candles, rec.ToCandle())
	}
	// The API returns newest first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// GetFundingRate returns the most recent funding rate record for the market.
func (c *Client) GetFundingRate(ctx context.Context, market string) (DriftFundingRate, error) {
	var resp struct {
		Records []DriftFundingRate `json:"fundingRates"`
	}
	r, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("marketName", market).
		SetResult(&resp).
		Get("/fundingRates")
	if err != nil {
		return DriftFundingRate{}, fmt.Errorf("drift: get funding %s: %w", market, err)
	}
	if err := checkStatus(r); err != nil {
		return DriftFundingRate{}, fmt.Errorf("drift: get funding %s: %w", market, err)
	}
	if len(resp.Records) == 0 {
		return DriftFundingRate{}, fmt.Errorf("drift: get funding %s: %w", market, domain.ErrNotFound)
	}
	return resp.Records[len(resp.Records)-1], nil
}

// GetL2Book returns the current L2 orderbook for the market, depth levels
// per side.
func (c *Client) GetL2Book(ctx context.Context, market string, depth int) (DriftL2Book, error) {
	var book DriftL2Book
	r, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"marketName": market,
			"depth":      strconv.Itoa(depth),
		}).
		SetResult(&book).
		Get("/l2")
	if err != nil {
		return DriftL2Book{}, fmt.Errorf("drift: get l2 %s: %w", market, err)
	}
	if err := checkStatus(r); err != nil {
		return DriftL2Book{}, fmt.Errorf("drift: get l2 %s: %w", market, err)
	}
	book.Market = market
	return book, nil
}

// GetOpenInterest returns the current open interest for the market in base
// units.
func (c *Client) GetOpenInterest(ctx context.Context, market string) (float64, error) {
	var resp struct {
		OpenInterest string `json:"openInterest"`
	}
	r, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("marketName", market).
		SetResult(&resp).
		Get("/openInterest")
	if err != nil {
		return 0, fmt.Errorf("drift: get open interest %s: %w", market, err)
	}
	if err := checkStatus(r); err != nil {
		return 0, fmt.Errorf("drift: get open interest %s: %w", market, err)
	}
	return parseF(resp.OpenInterest), nil
}

// Snapshot assembles a full market snapshot from the REST endpoints. It is
// the polling-mode complement of the WebSocket feed.
func (c *Client) Snapshot(ctx context.Context, market, resolution string) (domain.MarketSnapshot, error) {
	candles, err := c.GetCandles(ctx, market, resolution, 1)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	if len(candles) == 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("drift: snapshot %s: no candles: %w", market, domain.ErrNotFound)
	}

	snap := domain.MarketSnapshot{
		Market: market,
		Candle: candles[len(candles)-1],
	}

	if funding, err := c.GetFundingRate(ctx, market); err == nil {
		snap.FundingRate = funding.Rate()
		snap.OraclePrice = parseF(funding.OraclePrice)
	}
	if oi, err := c.GetOpenInterest(ctx, market); err == nil {
		snap.OpenInterest = oi
	}

	book, err := c.GetL2Book(ctx, market, 10)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	snap.BestBid = book.BestBid()
	snap.BestAsk = book.BestAsk()
	snap.BidDepth, snap.AskDepth = book.Depths()
	if snap.OraclePrice == 0 {
		snap.OraclePrice = parseF(book.Oracle)
	}
	return snap, nil
}

// checkStatus maps non-2xx responses to errors carrying the API's message.
func checkStatus(r *resty.Response) error {
	if r.IsSuccess() {
		return nil
	}

	var apiErr driftErrorResponse
	_ = json.Unmarshal(r.Body(), &apiErr)

	switch r.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s", apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", apiErr.Message)
	default:
		return fmt.Errorf("HTTP %d: %s", r.StatusCode(), apiErr.Message)
	}
}
