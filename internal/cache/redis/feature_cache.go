package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftlabs/driftbot/internal/domain"
)

// featureTTL bounds how long a stale feature vector stays visible after the
// engine stops updating it.
const featureTTL = 10 * time.Minute

// FeatureCache implements domain.FeatureCache by storing the latest feature
// vector per market as JSON at key "features:{market}".
type FeatureCache struct {
	rdb *redis.Client
}

// NewFeatureCache creates a FeatureCache backed by the given Client.
func NewFeatureCache(c *Client) *FeatureCache {
	return &FeatureCache{rdb: c.rdb}
}

func featureKey(market string) string {
	return "features:" + market
}

// SetFeatures stores the latest feature vector for its market.
func (fc *FeatureCache) SetFeatures(ctx context.Context, features domain.MarketFeatures) error {
	data, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("redis: marshal features %s: %w", features.Market, err)
	}
	if err := fc.rdb.Set(ctx, featureKey(features.Market), data, featureTTL).Err(); err != nil {
		return fmt.Errorf("redis: set features %s: %w", features.Market, err)
	}
	return nil
}

// GetFeatures retrieves the latest feature vector for a market. It returns
// domain.ErrNotFound when nothing has been cached (or the entry expired).
func (fc *FeatureCache) GetFeatures(ctx context.Context, market string) (domain.MarketFeatures, error) {
	data, err := fc.rdb.Get(ctx, featureKey(market)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketFeatures{}, domain.ErrNotFound
		}
		return domain.MarketFeatures{}, fmt.Errorf("redis: get features %s: %w", market, err)
	}

	var features domain.MarketFeatures
	if err := json.Unmarshal(data, &features); err != nil {
		return domain.MarketFeatures{}, fmt.Errorf("redis: decode features %s: %w", market, err)
	}
	return features, nil
}

// Compile-time interface check.
var _ domain.FeatureCache = (*FeatureCache)(nil)
