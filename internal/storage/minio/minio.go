package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

// listPageSize is how many entries are grouped into one callback. minio-go
// streams results over a channel and pages internally.
const listPageSize = 1000

// compile-time check that Client satisfies the ObjectStorage interface.
var _ storage.ObjectStorage = (*Client)(nil)

// Client wraps the MinIO SDK and implements storage.ObjectStorage.
type Client struct {
	client *minio.Client
}

// New creates a new MinIO storage client.
func New(endpoint, accessKey, secretKey, region string, useSSL bool) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint must be provided")
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new client: %w", err)
	}

	return &Client{client: mc}, nil
}

// ListObjects walks every object under prefix recursively.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, fn func(storage.ObjectInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the producer goroutine when fn bails out early

	for obj := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return translateError(fmt.Sprintf("list %s/%s", bucket, prefix), obj.Err)
		}
		if err := fn(objectInfo(obj)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// ListLevel lists one level below prefix. minio-go reports common prefixes as
// entries whose key ends with the delimiter; a "folder marker" object equal to
// prefix itself stays an object.
func (c *Client) ListLevel(ctx context.Context, bucket, prefix, delimiter string, fn func(storage.LevelPage) error) error {
	if delimiter != storage.DefaultDelimiter {
		return fmt.Errorf("minio listing only supports the %q delimiter, got %q", storage.DefaultDelimiter, delimiter)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var page storage.LevelPage
	entries := 0
	flush := func() error {
		if entries == 0 {
			return nil
		}
		err := fn(page)
		page = storage.LevelPage{}
		entries = 0
		return err
	}

	for obj := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return translateError(fmt.Sprintf("list %s/%s", bucket, prefix), obj.Err)
		}
		if obj.Key != prefix && strings.HasSuffix(obj.Key, delimiter) {
			page.Prefixes = append(page.Prefixes, obj.Key)
		} else {
			page.Objects = append(page.Objects, objectInfo(obj))
		}
		entries++
		if entries >= listPageSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return flush()
}

// GetObject reads a whole object into memory.
func (c *Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(fmt.Sprintf("get object %q", key), err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(fmt.Sprintf("read object %q", key), err)
	}
	return data, nil
}

// PutObject uploads data under key with the given content type.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}

	_, err := c.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return translateError(fmt.Sprintf("put object %q", key), err)
	}
	return nil
}

// DownloadObject downloads an object to destPath.
func (c *Client) DownloadObject(ctx context.Context, bucket, key, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}
	if err := c.client.FGetObject(ctx, bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		return translateError(fmt.Sprintf("download object %q", key), err)
	}
	return nil
}

func objectInfo(obj minio.ObjectInfo) storage.ObjectInfo {
	var size uint64
	if obj.Size > 0 {
		size = uint64(obj.Size)
	}
	return storage.ObjectInfo{Key: obj.Key, Size: size}
}

func translateError(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return fmt.Errorf("%s: %w", op, storage.ErrObjectNotFound)
	case "NoSuchBucket":
		return fmt.Errorf("%s: %w", op, storage.ErrBucketNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
