// Package feed turns Drift market data into the ordered snapshot stream the
// engine consumes. Candles are polled over REST at the bar resolution; the
// DLOB WebSocket, when connected, keeps top-of-book and depth fresher than
// the poll interval.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/platform/drift"
)

// Config holds feed settings for one market.
type Config struct {
	Market       string
	Resolution   string        // candle resolution in minutes, e.g. "1", "5"
	PollInterval time.Duration // how often to poll for a newly closed candle
	Buffer       int           // snapshot channel capacity
}

// Feed polls the Drift data API, merges in live book updates, and emits
// snapshots strictly ordered by candle timestamp. A candle is emitted once,
// when it first appears closed; ticks that observe no new candle are silent.
type Feed struct {
	client *drift.Client
	ws     *drift.WSClient
	cfg    Config
	logger *slog.Logger

	out chan domain.MarketSnapshot

	mu       sync.RWMutex
	book     drift.DriftL2Book
	bookSeen time.Time
}

// New creates a Feed. ws may be nil; the feed then relies on the REST book.
func New(client *drift.Client, ws *drift.WSClient, cfg Config, logger *slog.Logger) *Feed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	return &Feed{
		client: client,
		ws:     ws,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "feed"), slog.String("market", cfg.Market)),
		out:    make(chan domain.MarketSnapshot, cfg.Buffer),
	}
}

// Snapshots returns the ordered snapshot stream. The channel closes when
// Run returns.
func (f *Feed) Snapshots() <-chan domain.MarketSnapshot {
	return f.out
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried on the next tick; they never terminate the feed.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.out)

	if f.ws != nil {
		f.ws.OnBook(f.onBook)
		if err := f.ws.Connect(ctx); err != nil {
			f.logger.WarnContext(ctx, "websocket connect failed, falling back to REST book",
				slog.String("error", err.Error()),
			)
		} else if err := f.ws.Subscribe(ctx, []string{f.cfg.Market}); err != nil {
			f.logger.WarnContext(ctx, "websocket subscribe failed",
				slog.String("error", err.Error()),
			)
		}
		defer f.ws.Close()
	}

	f.logger.InfoContext(ctx, "feed started",
		slog.String("resolution", f.cfg.Resolution),
		slog.Duration("poll_interval", f.cfg.PollInterval),
	)
	defer f.logger.Info("feed stopped")

	var lastEmitted time.Time

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := f.client.Snapshot(ctx, f.cfg.Market, f.cfg.Resolution)
			if err != nil {
				f.logger.WarnContext(ctx, "snapshot poll failed", slog.String("error", err.Error()))
				continue
			}
			// Ordering invariant: emit each candle once, in timestamp order.
			if !snap.Candle.Timestamp.After(lastEmitted) {
				continue
			}
			f.overlayBook(&snap)
			lastEmitted = snap.Candle.Timestamp

			select {
			case f.out <- snap:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// onBook stores the latest WebSocket book update.
func (f *Feed) onBook(book drift.DriftL2Book) {
	if book.Market != f.cfg.Market {
		return
	}
	f.mu.Lock()
	f.book = book
	f.bookSeen = time.Now()
	f.mu.Unlock()
}

// overlayBook replaces the snapshot's REST book fields with the live book
// when the WebSocket copy is fresh enough to trust.
func (f *Feed) overlayBook(snap *domain.MarketSnapshot) {
	f.mu.RLock()
	book, seen := f.book, f.bookSeen
	f.mu.RUnlock()

	if seen.IsZero() || time.Since(seen) > f.cfg.PollInterval {
		return
	}

	snap.BestBid = book.BestBid()
	snap.BestAsk = book.BestAsk()
	snap.BidDepth, snap.AskDepth = book.Depths()
}
