package drift

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/driftlabs/driftbot/internal/domain"
)

// DriftCandle is a raw candle record from the Drift data API. Numeric fields
// arrive as strings.
type DriftCandle struct {
	StartTS    int64  `json:"ts"`
	Open       string `json:"fillOpen"`
	High       string `json:"fillHigh"`
	Low        string `json:"fillLow"`
	Close      string `json:"fillClose"`
	BaseVolume string `json:"baseVolume"`
}

// ToCandle converts the raw record into the domain candle. Unparseable
// numeric fields become zero.
func (c DriftCandle) ToCandle() domain.Candle {
	return domain.Candle{
		Timestamp: time.Unix(c.StartTS, 0).UTC(),
		Open:      parseF(c.Open),
		High:      parseF(c.High),
		Low:       parseF(c.Low),
		Close:     parseF(c.Close),
		Volume:    parseF(c.BaseVolume),
	}
}

// DriftFundingRate is a funding rate record for a perp market.
type DriftFundingRate struct {
	TS          int64  `json:"ts"`
	FundingRate string `json:"fundingRate"`
	OraclePrice string `json:"oraclePriceTwap"`
	MarkPrice   string `json:"markPriceTwap"`
}

// Rate returns the funding rate as a fraction per funding interval.
func (f DriftFundingRate) Rate() float64 {
	return parseF(f.FundingRate)
}

// PremiumPct returns the mark-over-oracle premium as a percentage.
func (f DriftFundingRate) PremiumPct() float64 {
	oracle := parseF(f.OraclePrice)
	if oracle == 0 {
		return 0
	}
	return (parseF(f.MarkPrice) - oracle) / oracle * 100
}

// DriftL2Level is one price level of the DLOB L2 book.
type DriftL2Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// DriftL2Book is an L2 orderbook snapshot for a perp market.
type DriftL2Book struct {
	Market string         `json:"marketName"`
	Bids   []DriftL2Level `json:"bids"`
	Asks   []DriftL2Level `json:"asks"`
	TS     int64          `json:"ts"`
	Oracle string         `json:"oracle"`
}

// BestBid returns the top-of-book bid price, or 0 on an empty side.
func (b DriftL2Book) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return parseF(b.Bids[0].Price)
}

// BestAsk returns the top-of-book ask price, or 0 on an empty side.
func (b DriftL2Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return parseF(b.Asks[0].Price)
}

// SpreadBps returns the bid/ask spread in basis points of the mid.
func (b DriftL2Book) SpreadBps() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid <= 0 || ask <= 0 || ask <= bid {
		return 0
	}
	mid := (bid + ask) / 2
	return (ask - bid) / mid * 10000
}

// Depths returns the total bid and ask size across the visible book.
func (b DriftL2Book) Depths() (bidDepth, askDepth float64) {
	for _, lvl := range b.Bids {
		bidDepth += parseF(lvl.Size)
	}
	for _, lvl := range b.Asks {
		askDepth += parseF(lvl.Size)
	}
	return bidDepth, askDepth
}

// Imbalance returns bid depth over total depth across the visible book,
// in [0, 1] with 0.5 meaning balanced. An empty book reads as balanced.
func (b DriftL2Book) Imbalance() float64 {
	bidDepth, askDepth := b.Depths()
	total := bidDepth + askDepth
	if total == 0 {
		return 0.5
	}
	return bidDepth / total
}

// driftWSMessage is the envelope of a DLOB WebSocket frame.
type driftWSMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// driftWSSubscribe is the subscribe command for the DLOB WebSocket.
type driftWSSubscribe struct {
	Type       string `json:"type"`
	MarketType string `json:"marketType"`
	Channel    string `json:"channel"`
	Market     string `json:"market"`
}

// driftErrorResponse is the error body the data API returns on non-2xx.
type driftErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func parseF(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
