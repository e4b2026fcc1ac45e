package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest mark price per market.
type PriceCache interface {
	SetPrice(ctx context.Context, market string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, market string) (float64, time.Time, error)
}

// FeatureCache stores the most recent derived feature vector per market so
// operators and other processes can inspect what the engine last saw.
type FeatureCache interface {
	SetFeatures(ctx context.Context, features MarketFeatures) error
	GetFeatures(ctx context.Context, market string) (MarketFeatures, error)
}

// LockManager provides distributed locking, used to guarantee a single
// engine instance per market.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable signal stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for live decision fan-out and durable streams
// for recent signal history.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
