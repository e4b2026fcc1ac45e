package drift

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriftCandleToCandle(t *testing.T) {
	raw := `{"ts":1748779200,"fillOpen":"151.25","fillHigh":"152.10","fillLow":"150.90","fillClose":"151.80","baseVolume":"1234.5"}`
	var dc DriftCandle
	require.NoError(t, json.Unmarshal([]byte(raw), &dc))

	c := dc.ToCandle()
	assert.Equal(t, time.Unix(1748779200, 0).UTC(), c.Timestamp)
	assert.Equal(t, 151.25, c.Open)
	assert.Equal(t, 152.10, c.High)
	assert.Equal(t, 150.90, c.Low)
	assert.Equal(t, 151.80, c.Close)
	assert.Equal(t, 1234.5, c.Volume)
}

func TestDriftCandleUnparseableFieldsAreZero(t *testing.T) {
	c := DriftCandle{Open: "not-a-number", Close: "151.0"}.ToCandle()
	assert.Zero(t, c.Open)
	assert.Equal(t, 151.0, c.Close)
}

func TestDriftFundingRate(t *testing.T) {
	f := DriftFundingRate{
		FundingRate: "0.000125",
		OraclePrice: "150.00",
		MarkPrice:   "150.30",
	}
	assert.InDelta(t, 0.000125, f.Rate(), 1e-12)
	assert.InDelta(t, 0.2, f.PremiumPct(), 1e-9)

	assert.Zero(t, DriftFundingRate{MarkPrice: "150"}.PremiumPct(), "missing oracle reads as no premium")
}

func TestDriftL2Book(t *testing.T) {
	book := DriftL2Book{
		Market: "SOL-PERP",
		Bids: []DriftL2Level{
			{Price: "149.95", Size: "100"},
			{Price: "149.90", Size: "200"},
		},
		Asks: []DriftL2Level{
			{Price: "150.05", Size: "50"},
			{Price: "150.10", Size: "50"},
		},
	}

	assert.Equal(t, 149.95, book.BestBid())
	assert.Equal(t, 150.05, book.BestAsk())
	assert.InDelta(t, 6.667, book.SpreadBps(), 0.01)

	bidDepth, askDepth := book.Depths()
	assert.Equal(t, 300.0, bidDepth)
	assert.Equal(t, 100.0, askDepth)
	assert.InDelta(t, 0.75, book.Imbalance(), 1e-9)
}

func TestDriftL2BookEmptySides(t *testing.T) {
	var book DriftL2Book
	assert.Zero(t, book.BestBid())
	assert.Zero(t, book.BestAsk())
	assert.Zero(t, book.SpreadBps())
	assert.Equal(t, 0.5, book.Imbalance())
}

func TestDriftL2BookCrossedBookSpread(t *testing.T) {
	book := DriftL2Book{
		Bids: []DriftL2Level{{Price: "150.10", Size: "10"}},
		Asks: []DriftL2Level{{Price: "150.00", Size: "10"}},
	}
	assert.Zero(t, book.SpreadBps(), "a crossed book reports no usable spread")
}
