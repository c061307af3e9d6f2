package caches

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"annotation-service/internal/services/cache"
	"annotation-service/internal/storage"
)

// RedisCache shares cached file content between service instances.
type RedisCache struct {
	client *storage.RedisClient
	ttl    time.Duration

	// Statistics
	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedisCache(client *storage.RedisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func (rc *RedisCache) Name() string {
	return "redis"
}

func redisKey(fileID uuid.UUID) string {
	return fmt.Sprintf("file:%s", fileID.String())
}

func (rc *RedisCache) Store(ctx context.Context, fileID uuid.UUID, data []byte) error {
	if err := rc.client.SetBytes(ctx, redisKey(fileID), data, rc.ttl); err != nil {
		return fmt.Errorf("failed to store in Redis: %w", err)
	}
	return nil
}

func (rc *RedisCache) Get(ctx context.Context, fileID uuid.UUID) ([]byte, bool, error) {
	data, err := rc.client.GetBytes(ctx, redisKey(fileID))
	if err != nil {
		rc.misses.Add(1)
		return nil, false, fmt.Errorf("redis error: %w", err)
	}
	if data == nil {
		rc.misses.Add(1)
		return nil, false, nil
	}
	rc.hits.Add(1)
	return data, true, nil
}

func (rc *RedisCache) Delete(ctx context.Context, fileID uuid.UUID) error {
	return rc.client.Delete(ctx, redisKey(fileID))
}

func (rc *RedisCache) GetStats() cache.LayerStats {
	hits, misses := rc.hits.Load(), rc.misses.Load()
	return cache.LayerStats{
		Name:    rc.Name(),
		Hits:    hits,
		Misses:  misses,
		HitRate: cache.HitRate(hits, misses),
	}
}
