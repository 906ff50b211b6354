package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	objstore "github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

const listPageSize = 1000

// compile-time check that Client satisfies the ObjectStorage interface.
var _ objstore.ObjectStorage = (*Client)(nil)

// objectIterator is the subset of *storage.ObjectIterator used here.
type objectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// Client implements ObjectStorage for Google Cloud Storage.
type Client struct {
	client *storage.Client
}

// New connects to GCS. Without credentialsJSON the client falls back to
// Application Default Credentials.
func New(ctx context.Context, credentialsJSON string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		creds, err := google.CredentialsFromJSON(ctx, []byte(credentialsJSON), storage.ScopeReadWrite)
		if err != nil {
			return nil, fmt.Errorf("unable to parse gcs credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating storage client: %w", err)
	}
	return &Client{client: client}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ListObjects walks every object under prefix.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, fn func(objstore.ObjectInfo) error) error {
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	return walkObjects(it, func(attrs *storage.ObjectAttrs) error {
		return fn(objectInfo(attrs))
	}, fmt.Sprintf("list gs://%s/%s", bucket, prefix))
}

// ListLevel lists one level below prefix with a delimiter query.
func (c *Client) ListLevel(ctx context.Context, bucket, prefix, delimiter string, fn func(objstore.LevelPage) error) error {
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: delimiter})
	return pageLevel(it, fn, fmt.Sprintf("list gs://%s/%s", bucket, prefix))
}

func walkObjects(it objectIterator, fn func(*storage.ObjectAttrs) error, op string) error {
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return translateError(op, err)
		}
		if err := fn(attrs); err != nil {
			return err
		}
	}
}

// pageLevel groups iterator results into pages. Synthetic prefix entries
// carry only Prefix; real objects carry Name.
func pageLevel(it objectIterator, fn func(objstore.LevelPage) error, op string) error {
	var page objstore.LevelPage
	entries := 0
	err := walkObjects(it, func(attrs *storage.ObjectAttrs) error {
		if attrs.Prefix != "" {
			page.Prefixes = append(page.Prefixes, attrs.Prefix)
		} else {
			page.Objects = append(page.Objects, objectInfo(attrs))
		}
		entries++
		if entries < listPageSize {
			return nil
		}
		err := fn(page)
		page = objstore.LevelPage{}
		entries = 0
		return err
	}, op)
	if err != nil {
		return err
	}
	if entries > 0 {
		return fn(page)
	}
	return nil
}

// GetObject reads a whole object into memory.
func (c *Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, translateError(fmt.Sprintf("get gs://%s/%s", bucket, key), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// PutObject overwrites key with data.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	w := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return translateError(fmt.Sprintf("put gs://%s/%s", bucket, key), err)
	}
	if err := w.Close(); err != nil {
		return translateError(fmt.Sprintf("put gs://%s/%s", bucket, key), err)
	}
	return nil
}

// DownloadObject downloads an object to destPath.
func (c *Client) DownloadObject(ctx context.Context, bucket, key, destPath string) error {
	data, err := c.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("failed writing %s: %w", destPath, err)
	}
	return nil
}

func objectInfo(attrs *storage.ObjectAttrs) objstore.ObjectInfo {
	var size uint64
	if attrs.Size > 0 {
		size = uint64(attrs.Size)
	}
	return objstore.ObjectInfo{Key: attrs.Name, Size: size}
}

func translateError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return fmt.Errorf("%s: %w", op, objstore.ErrObjectNotFound)
	case errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("%s: %w", op, objstore.ErrBucketNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
