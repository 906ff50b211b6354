package storage

import (
	"context"
	"errors"
)

// DefaultDelimiter separates "folders" in object keys.
const DefaultDelimiter = "/"

// ContentTypeHTML is declared on uploaded reports.
const ContentTypeHTML = "text/html"

var (
	// ErrObjectNotFound is returned by GetObject and DownloadObject when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned by listings against a missing bucket.
	ErrBucketNotFound = errors.New("bucket not found")
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size uint64
}

// LevelPage is one page of a delimiter listing: the objects directly under the
// requested prefix and the immediate child prefixes.
type LevelPage struct {
	Objects  []ObjectInfo
	Prefixes []string
}

// Lister enumerates objects. Each call opens a fresh pagination sequence and
// hands results to fn as pages arrive; an error returned by fn stops the
// listing and is returned unchanged.
type Lister interface {
	// ListObjects walks every object whose key starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(ObjectInfo) error) error
	// ListLevel lists one level below prefix, partitioned at delimiter.
	ListLevel(ctx context.Context, bucket, prefix, delimiter string, fn func(LevelPage) error) error
}

// ObjectStorage captures the S3-compatible operations the report run needs.
type ObjectStorage interface {
	Lister
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	DownloadObject(ctx context.Context, bucket, key, destPath string) error
}
