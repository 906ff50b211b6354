// Package driver selects an object storage backend from configuration.
package driver

import (
	"context"
	"fmt"
	"io"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/config"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage/gcs"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage/minio"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage/s3"
)

const (
	DriverS3     = "s3"
	DriverMinio  = "minio"
	DriverGCS    = "gcs"
	DriverMemory = "memory"
)

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Driver {
	case DriverS3, "":
		return s3.New(ctx, s3.Config{
			Endpoint:    cfg.Endpoint,
			AccessKey:   cfg.AccessKey,
			SecretKey:   cfg.SecretKey,
			Region:      cfg.Region,
			UseSSL:      cfg.UseSSL,
			MaxAttempts: cfg.MaxAttempts,
		})
	case DriverMinio:
		return minio.New(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Region, cfg.UseSSL)
	case DriverGCS:
		return gcs.New(ctx, cfg.CredentialsJSON)
	case DriverMemory:
		return openMemory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// openMemory builds an in-process store for dry runs. The configured bucket
// always exists; LocalDir, when set, provides its objects.
func openMemory(cfg config.StorageConfig) (*storage.MemoryStorage, error) {
	m := storage.NewMemoryStorage(0)
	if cfg.Bucket != "" {
		m.EnsureBucket(cfg.Bucket)
	}
	if cfg.LocalDir == "" {
		return m, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("memory driver needs a bucket to load %s into", cfg.LocalDir)
	}
	if err := m.LoadDir(cfg.Bucket, cfg.LocalDir); err != nil {
		return nil, fmt.Errorf("failed to load %s into memory bucket %s: %w", cfg.LocalDir, cfg.Bucket, err)
	}
	return m, nil
}

// Close releases the backend's client when it holds one.
func Close(store storage.ObjectStorage) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
