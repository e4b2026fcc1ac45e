package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftlabs/driftbot/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// latest mark price is stored at key "price:{market}" with fields "price"
// and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.rdb}
}

func priceKey(market string) string {
	return "price:" + market
}

// SetPrice stores the latest price and timestamp for a market.
func (pc *PriceCache) SetPrice(ctx context.Context, market string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(market), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", market, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a market. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, market string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(market)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", market, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", market, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", market, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// GetPrices retrieves the latest prices for multiple markets using a
// pipeline. Markets whose keys do not exist are silently omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, markets []string) (map[string]float64, error) {
	if len(markets) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(markets))
	for _, m := range markets {
		cmds[m] = pipe.HGetAll(ctx, priceKey(m))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(markets))
	for m, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[m] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
