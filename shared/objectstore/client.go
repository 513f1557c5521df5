package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client wraps a MinIO client bound to a single output bucket
type Client struct {
	mc     *minio.Client
	bucket string
	logger *slog.Logger
}

// NewClient creates a new object storage client and ensures the bucket exists
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	mc, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	client := &Client{
		mc:     mc,
		bucket: config.Bucket,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.ensureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("Object storage client initialized",
		slog.String("endpoint", config.Endpoint),
		slog.String("bucket", config.Bucket),
	)

	return client, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Bucket returns the configured output bucket name
func (c *Client) Bucket() string {
	return c.bucket
}

// Upload stores a local file under the given object key and returns the
// key and the uploaded size in bytes.
func (c *Client) Upload(ctx context.Context, localPath, objectKey string) (string, int64, error) {
	info, err := c.mc.FPutObject(ctx, c.bucket, objectKey, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectKey),
	})
	if err != nil {
		c.logger.Error("Failed to upload object",
			slog.String("local_path", localPath),
			slog.String("object_key", objectKey),
			slog.Any("error", err),
		)
		return "", 0, fmt.Errorf("failed to upload object: %w", err)
	}

	c.logger.Info("Object uploaded",
		slog.String("object_key", objectKey),
		slog.Int64("size_bytes", info.Size),
	)

	return objectKey, info.Size, nil
}

// SignDownloadURL issues a presigned GET URL valid for ttl from issuance.
// Repeated calls issue independent URLs.
func (c *Client) SignDownloadURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	signed, err := c.mc.PresignedGetObject(ctx, c.bucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to sign download url: %w", err)
	}
	return signed.String(), nil
}

// contentTypeFor maps an object key's extension to a content type
func contentTypeFor(objectKey string) string {
	switch strings.ToLower(filepath.Ext(objectKey)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".opus":
		return "audio/opus"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}
