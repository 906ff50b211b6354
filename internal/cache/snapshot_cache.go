package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/config"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

// SnapshotCache keeps the latest flattened usage snapshot per bucket.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, bucket string) (*domain.UsageSnapshot, bool, error)
	SetSnapshot(ctx context.Context, snapshot *domain.UsageSnapshot) error
	// Invalidate drops the snapshots of buckets, or all of them when none
	// are given, and reports how many were removed.
	Invalidate(ctx context.Context, buckets ...string) (int64, error)
}

type redisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSnapshotCache struct{}

// NewSnapshotCache connects to redis when the cache is enabled and falls
// back to a cache that stores nothing otherwise.
func NewSnapshotCache(ctx context.Context, cfg config.CacheConfig) (SnapshotCache, error) {
	if !cfg.Enabled {
		return &noopSnapshotCache{}, nil
	}

	client, err := dialRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewRedisSnapshotCache(client, snapshotTTL(cfg.SnapshotTTLSeconds)), nil
}

// NewRedisSnapshotCache wraps an existing client.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &redisSnapshotCache{client: client, ttl: ttl}
}

func NewNoopSnapshotCache() SnapshotCache {
	return &noopSnapshotCache{}
}

func (c *redisSnapshotCache) GetSnapshot(ctx context.Context, bucket string) (*domain.UsageSnapshot, bool, error) {
	payload, err := c.client.Get(ctx, SnapshotKey(bucket)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshot domain.UsageSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, false, fmt.Errorf("decode usage snapshot cache: %w", err)
	}

	return &snapshot, true, nil
}

func (c *redisSnapshotCache) SetSnapshot(ctx context.Context, snapshot *domain.UsageSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode usage snapshot cache: %w", err)
	}

	if err := c.client.Set(ctx, SnapshotKey(snapshot.Bucket), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSnapshotCache) Invalidate(ctx context.Context, buckets ...string) (int64, error) {
	return purgeSnapshots(ctx, c.client, buckets)
}

func (noopSnapshotCache) GetSnapshot(context.Context, string) (*domain.UsageSnapshot, bool, error) {
	return nil, false, nil
}

func (noopSnapshotCache) SetSnapshot(context.Context, *domain.UsageSnapshot) error {
	return nil
}

func (noopSnapshotCache) Invalidate(context.Context, ...string) (int64, error) {
	return 0, nil
}
