package storage

import (
	"context"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/waltr/flashstation/pkg/errors"
)

// Client provides S3 storage operations for s3:// artifact URLs
type Client struct {
	s3Client *s3.Client
}

// NewClient creates a new S3 client using the default credential chain
func NewClient(ctx context.Context, region string) (*Client, error) {
	slog.Info("s3_client_init", "region", region)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	slog.Info("s3_client_created", "region", region)

	return &Client{s3Client: s3.NewFromConfig(cfg)}, nil
}

// Open streams an object body. The caller must close it.
func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	slog.Info("s3_get_object_start", "bucket", bucket, "s3_key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "bucket", bucket, "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}

	return result.Body, nil
}
