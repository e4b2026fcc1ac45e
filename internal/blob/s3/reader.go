package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftlabs/driftbot/internal/domain"
)

// Reader retrieves and enumerates archived objects: past backtest reports
// for comparison, archived trade dumps for inventory.
type Reader struct {
	*Client
}

// NewReader wraps the client as a domain.BlobReader.
func NewReader(c *Client) *Reader {
	return &Reader{Client: c}
}

// Get fetches the object at path. The caller closes the returned body.
// Returns domain.ErrNotFound when no such object exists.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return out.Body, nil
}

// List returns metadata for every object under prefix, following the
// paginator until the listing is exhausted.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(r.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})

	var infos []domain.BlobInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				Path: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Exists reports whether an object is present at path via HeadObject.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	_, err := r.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: exists %s: %w", path, err)
	}
	return true, nil
}

// Delete removes the object at path. Deleting a missing object is not an
// error.
func (r *Reader) Delete(ctx context.Context, path string) error {
	_, err := r.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("s3blob: delete %s: %w", path, err)
	}
	return nil
}

// isNotFound matches the ways the SDK reports a missing object: GetObject
// yields NoSuchKey, HeadObject yields NotFound, and some compatible
// providers surface only a bare HTTP 404.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}
