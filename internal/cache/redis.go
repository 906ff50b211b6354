package cache

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/config"
)

const (
	snapshotKeyPrefix  = "usage:snapshot:"
	defaultSnapshotTTL = 24 * time.Hour
	redisPingTimeout   = 5 * time.Second
	purgeBatchSize     = 100
)

// SnapshotKey is the redis key holding bucket's latest snapshot.
func SnapshotKey(bucket string) string {
	return snapshotKeyPrefix + bucket
}

// snapshotTTL turns the configured lifetime into a duration; unset or
// negative values keep snapshots for a day.
func snapshotTTL(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultSnapshotTTL
	}
	return time.Duration(seconds) * time.Second
}

// redisOptions prefers REDIS_URL and otherwise assembles the address from
// host and port.
func redisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(cmp.Or(cfg.RedisHost, "127.0.0.1"), cmp.Or(cfg.RedisPort, "6379")),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// dialRedis connects and pings so a misconfigured cache fails the run early.
func dialRedis(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", opts.Addr, err)
	}
	return client, nil
}

// purgeSnapshots deletes the snapshots of buckets, or of every bucket when
// none are named, and returns how many keys were removed. Keys are collected
// before deleting so the scan cursor never runs over a shrinking keyspace.
func purgeSnapshots(ctx context.Context, client *redis.Client, buckets []string) (int64, error) {
	if len(buckets) > 0 {
		keys := make([]string, len(buckets))
		for i, bucket := range buckets {
			keys[i] = SnapshotKey(bucket)
		}
		deleted, err := client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("redis delete failed: %w", err)
		}
		return deleted, nil
	}

	var keys []string
	it := client.Scan(ctx, 0, snapshotKeyPrefix+"*", purgeBatchSize).Iterator()
	for it.Next(ctx) {
		keys = append(keys, it.Val())
	}
	if err := it.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}

	var deleted int64
	for batch := range slices.Chunk(keys, purgeBatchSize) {
		n, err := client.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis delete failed: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}
