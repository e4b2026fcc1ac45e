// Package s3blob is the bot's cold storage: backtest reports, optimization
// sweeps, and aged trade ledger rows are written to an S3 bucket as JSON
// objects. It works against AWS S3 proper or any compatible endpoint
// (MinIO, R2) through the AWS SDK v2.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds bucket coordinates and credentials.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for compatible providers.
	// Empty means standard AWS S3.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// UseSSL picks the scheme when Endpoint is given without one.
	UseSSL bool
	// ForcePathStyle puts the bucket in the URL path instead of the
	// subdomain. Most non-AWS providers need it.
	ForcePathStyle bool
}

// Client carries the SDK client and the bucket that every archive operation
// in this package targets. Reader and Writer wrap it.
type Client struct {
	api    *s3.Client
	bucket string
}

// New builds the client and resolves credentials. It does not touch the
// network; Health verifies the bucket is actually reachable.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{api: api, bucket: cfg.Bucket}, nil
}

// Health issues a HeadBucket to verify connectivity and permissions.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: bucket %s unreachable: %w", c.bucket, err)
	}
	return nil
}

// Close exists for the application's uniform shutdown stack; the SDK's HTTP
// client needs no teardown.
func (c *Client) Close() error { return nil }

// withScheme prepends http(s):// when the endpoint carries no scheme.
func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
