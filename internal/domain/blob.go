package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// ResultArchiver uploads finished backtest and optimization reports to cold
// storage so sweeps can be compared after the fact.
type ResultArchiver interface {
	ArchiveBacktest(ctx context.Context, runID string, report any) (string, error)
	ArchiveOptimization(ctx context.Context, runID string, checkpoint Checkpoint) (string, error)
}
