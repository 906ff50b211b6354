package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const defaultMemoryPageSize = 1000

type memoryObject struct {
	data        []byte
	size        uint64
	contentType string
}

// MemoryStorage is an in-process ObjectStorage. Listings are served in
// lexicographic key order and split into pages of PageSize entries, which
// mirrors how S3 paginates ListObjectsV2.
type MemoryStorage struct {
	mu       sync.RWMutex
	buckets  map[string]map[string]memoryObject
	pageSize int

	// failures forces ListObjects/ListLevel on an exact prefix to fail.
	failures map[string]error
	// listCalls counts listing calls per "bucket:prefix".
	listCalls map[string]int
}

// NewMemoryStorage creates an empty store; pageSize <= 0 uses 1000.
func NewMemoryStorage(pageSize int) *MemoryStorage {
	if pageSize <= 0 {
		pageSize = defaultMemoryPageSize
	}
	return &MemoryStorage{
		buckets:   make(map[string]map[string]memoryObject),
		pageSize:  pageSize,
		failures:  make(map[string]error),
		listCalls: make(map[string]int),
	}
}

// AddObject registers a sized object without content.
func (m *MemoryStorage) AddObject(bucket, key string, size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(bucket)[key] = memoryObject{size: size}
}

// EnsureBucket creates an empty bucket if it does not exist yet.
func (m *MemoryStorage) EnsureBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(bucket)
}

// LoadDir adds every regular file below dir to bucket, keyed by its
// slash-separated path relative to dir. Only sizes are recorded.
func (m *MemoryStorage) LoadDir(bucket, dir string) error {
	m.EnsureBucket(bucket)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		m.AddObject(bucket, filepath.ToSlash(rel), uint64(info.Size()))
		return nil
	})
}

// FailPrefix makes every listing of exactly prefix return err.
func (m *MemoryStorage) FailPrefix(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[prefix] = err
}

// ListCalls reports how many listings were issued for bucket and prefix.
func (m *MemoryStorage) ListCalls(bucket, prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCalls[bucket+":"+prefix]
}

// ContentType returns the content type recorded on the last put of key.
func (m *MemoryStorage) ContentType(bucket, key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buckets[bucket][key].contentType
}

func (m *MemoryStorage) bucket(name string) map[string]memoryObject {
	b, ok := m.buckets[name]
	if !ok {
		b = make(map[string]memoryObject)
		m.buckets[name] = b
	}
	return b
}

func (m *MemoryStorage) sortedKeys(bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls[bucket+":"+prefix]++
	if err, ok := m.failures[prefix]; ok {
		return nil, err
	}
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("bucket %q: %w", bucket, ErrBucketNotFound)
	}
	keys := make([]string, 0, len(b))
	for key := range b {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStorage) sizeOf(bucket, key string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buckets[bucket][key].size
}

// ListObjects implements Lister.
func (m *MemoryStorage) ListObjects(ctx context.Context, bucket, prefix string, fn func(ObjectInfo) error) error {
	keys, err := m.sortedKeys(bucket, prefix)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += m.pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+m.pageSize, len(keys))
		for _, key := range keys[start:end] {
			if err := fn(ObjectInfo{Key: key, Size: m.sizeOf(bucket, key)}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListLevel implements Lister.
func (m *MemoryStorage) ListLevel(ctx context.Context, bucket, prefix, delimiter string, fn func(LevelPage) error) error {
	keys, err := m.sortedKeys(bucket, prefix)
	if err != nil {
		return err
	}

	// Entries are either objects or collapsed prefixes, each counting once
	// toward a page like S3 does.
	type entry struct {
		object *ObjectInfo
		prefix string
	}
	var entries []entry
	seen := make(map[string]bool)
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		if idx := strings.Index(rest, delimiter); delimiter != "" && idx >= 0 {
			common := prefix + rest[:idx+len(delimiter)]
			if !seen[common] {
				seen[common] = true
				entries = append(entries, entry{prefix: common})
			}
			continue
		}
		entries = append(entries, entry{object: &ObjectInfo{Key: key, Size: m.sizeOf(bucket, key)}})
	}

	for start := 0; start < len(entries); start += m.pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+m.pageSize, len(entries))
		var page LevelPage
		for _, e := range entries[start:end] {
			if e.object != nil {
				page.Objects = append(page.Objects, *e.object)
			} else {
				page.Prefixes = append(page.Prefixes, e.prefix)
			}
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

// GetObject implements ObjectStorage.
func (m *MemoryStorage) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

// PutObject implements ObjectStorage.
func (m *MemoryStorage) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(bucket)[key] = memoryObject{
		data:        append([]byte(nil), data...),
		size:        uint64(len(data)),
		contentType: contentType,
	}
	return nil
}

// DownloadObject implements ObjectStorage.
func (m *MemoryStorage) DownloadObject(ctx context.Context, bucket, key, destPath string) error {
	data, err := m.GetObject(ctx, bucket, key)
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

var _ ObjectStorage = (*MemoryStorage)(nil)
