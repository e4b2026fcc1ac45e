package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftlabs/driftbot/internal/domain"
)

// TradeArchiveStore is the narrow ledger surface the cold-storage archiver
// needs: time-ranged reads plus the matching delete. The Postgres trade
// store satisfies it.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.ResultArchiver and the trade cold-storage path.
// Backtest and optimization results are uploaded as pretty-printed JSON so
// they remain diffable; trade history goes out as JSONL partitioned by
// month.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
}

// NewArchiver creates an Archiver. trades may be nil when only result
// archiving is needed (backtest and optimize modes).
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore) *Archiver {
	return &Archiver{writer: writer, trades: trades}
}

// ArchiveBacktest uploads a finished backtest report. The returned path is
// the S3 key the report was written to.
func (a *Archiver) ArchiveBacktest(ctx context.Context, runID string, report any) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal backtest report %s: %w", runID, err)
	}

	path := fmt.Sprintf("results/backtest/%s/%s.json", time.Now().UTC().Format("2006-01"), runID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload backtest report %s: %w", runID, err)
	}
	return path, nil
}

// ArchiveOptimization uploads the final checkpoint of a completed sweep,
// ranked results included.
func (a *Archiver) ArchiveOptimization(ctx context.Context, runID string, cp domain.Checkpoint) (string, error) {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal optimization result %s: %w", runID, err)
	}

	path := fmt.Sprintf("results/optimize/%s/%s.json", time.Now().UTC().Format("2006-01"), runID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload optimization result %s: %w", runID, err)
	}
	return path, nil
}

// ArchiveTrades moves ledger rows older than the cutoff to cold storage:
// upload first, delete only after the upload succeeded. Returns the number
// of rows archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	if a.trades == nil {
		return 0, fmt.Errorf("s3blob: archive trades: no ledger configured")
	}

	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	// Month-sized dumps can run large; the multipart path streams them.
	path := fmt.Sprintf("archive/trades/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return deleted, fmt.Errorf("s3blob: archive trades prune: %w", err)
	}
	return deleted, nil
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.ResultArchiver = (*Archiver)(nil)
