package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

const defaultRegion = "us-east-1"

// Config encapsulates the connection info for AWS S3 or an S3-compatible
// service (Sevalla, MinIO, Ceph). Empty keys fall back to the default AWS
// credential chain.
type Config struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Region      string
	UseSSL      bool
	MaxAttempts int
}

// compile-time check that Client satisfies the ObjectStorage interface.
var _ storage.ObjectStorage = (*Client)(nil)

// Client implements storage.ObjectStorage on top of aws-sdk-go-v2.
type Client struct {
	client     *s3.Client
	downloader *manager.Downloader
}

// New builds a Client. A custom endpoint switches the client to path-style
// addressing, which S3-compatible services expect.
func New(ctx context.Context, cfg Config) (*Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.MaxAttempts > 0 {
		loadOptions = append(loadOptions, awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), cfg.MaxAttempts)
		}))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, fmt.Errorf("s3 credentials must include both access and secret key")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		client:     client,
		downloader: manager.NewDownloader(client),
	}, nil
}

// normalizeEndpoint adds a scheme to bare host[:port] endpoints.
func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "https"
	if !useSSL {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, strings.TrimPrefix(endpoint, "//"))
}

// ListObjects walks every object under prefix with a ListObjectsV2 paginator.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, fn func(storage.ObjectInfo) error) error {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return translateError(fmt.Sprintf("list s3://%s/%s", bucket, prefix), err)
		}
		for _, obj := range page.Contents {
			if err := fn(objectInfo(obj)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListLevel lists one level below prefix using the Delimiter parameter.
func (c *Client) ListLevel(ctx context.Context, bucket, prefix, delimiter string, fn func(storage.LevelPage) error) error {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return translateError(fmt.Sprintf("list s3://%s/%s", bucket, prefix), err)
		}

		levelPage := storage.LevelPage{
			Objects:  make([]storage.ObjectInfo, 0, len(page.Contents)),
			Prefixes: make([]string, 0, len(page.CommonPrefixes)),
		}
		for _, obj := range page.Contents {
			levelPage.Objects = append(levelPage.Objects, objectInfo(obj))
		}
		for _, commonPrefix := range page.CommonPrefixes {
			levelPage.Prefixes = append(levelPage.Prefixes, aws.ToString(commonPrefix.Prefix))
		}
		if err := fn(levelPage); err != nil {
			return err
		}
	}
	return nil
}

// GetObject reads a whole object into memory.
func (c *Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateError(fmt.Sprintf("get s3://%s/%s", bucket, key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// PutObject overwrites key with data.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return translateError(fmt.Sprintf("put s3://%s/%s", bucket, key), err)
	}
	return nil
}

// DownloadObject downloads an object to destPath with the transfer manager.
func (c *Client) DownloadObject(ctx context.Context, bucket, key, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed creating %s: %w", destPath, err)
	}
	defer file.Close()

	if _, err := c.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		_ = os.Remove(destPath)
		return translateError(fmt.Sprintf("download s3://%s/%s", bucket, key), err)
	}
	return nil
}

func objectInfo(obj types.Object) storage.ObjectInfo {
	var size uint64
	if s := aws.ToInt64(obj.Size); s > 0 {
		size = uint64(s)
	}
	return storage.ObjectInfo{Key: aws.ToString(obj.Key), Size: size}
}

// translateError maps missing keys and buckets onto the storage sentinels.
func translateError(op string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%s: %w", op, storage.ErrObjectNotFound)
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%s: %w", op, storage.ErrBucketNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, storage.ErrObjectNotFound)
		case "NoSuchBucket":
			return fmt.Errorf("%s: %w", op, storage.ErrBucketNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
