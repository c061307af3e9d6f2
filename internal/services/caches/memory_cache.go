package caches

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"annotation-service/internal/services/cache"
)

// MemoryCache is a size-bounded in-process layer. Entries expire after ttl
// and the least recently read entry is evicted when space runs out.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]*memoryEntry
	maxSize     int64
	currentSize int64
	ttl         time.Duration
	now         func() time.Time

	// Statistics
	hits   atomic.Int64
	misses atomic.Int64
}

type memoryEntry struct {
	data       []byte
	createdAt  time.Time
	lastAccess time.Time
}

func NewMemoryCache(maxSizeBytes int64, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[uuid.UUID]*memoryEntry),
		maxSize: maxSizeBytes,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (mc *MemoryCache) Name() string {
	return "memory"
}

func (mc *MemoryCache) Store(_ context.Context, fileID uuid.UUID, data []byte) error {
	size := int64(len(data))
	if size > mc.maxSize {
		return fmt.Errorf("object of size %d exceeds memory cache capacity", size)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.removeLocked(fileID)
	for mc.currentSize+size > mc.maxSize {
		if !mc.evictLRULocked() {
			return fmt.Errorf("unable to free space for object of size %d", size)
		}
	}
	now := mc.now()
	mc.entries[fileID] = &memoryEntry{data: data, createdAt: now, lastAccess: now}
	mc.currentSize += size
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, fileID uuid.UUID) ([]byte, bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	entry, ok := mc.entries[fileID]
	if ok && mc.expired(entry) {
		mc.removeLocked(fileID)
		ok = false
	}
	if !ok {
		mc.misses.Add(1)
		return nil, false, nil
	}
	entry.lastAccess = mc.now()
	mc.hits.Add(1)
	return entry.data, true, nil
}

func (mc *MemoryCache) Delete(_ context.Context, fileID uuid.UUID) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.removeLocked(fileID)
	return nil
}

func (mc *MemoryCache) GetStats() cache.LayerStats {
	mc.mu.Lock()
	objects, size := len(mc.entries), mc.currentSize
	mc.mu.Unlock()

	hits, misses := mc.hits.Load(), mc.misses.Load()
	return cache.LayerStats{
		Name:      mc.Name(),
		Objects:   objects,
		SizeBytes: size,
		Hits:      hits,
		Misses:    misses,
		HitRate:   cache.HitRate(hits, misses),
	}
}

// RunJanitor drops expired entries every interval until ctx is done.
func (mc *MemoryCache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mc.Sweep(); n > 0 {
				slog.Debug("memory cache: cleaned up expired objects", "count", n)
			}
		}
	}
}

// Sweep removes expired entries and returns how many were dropped.
func (mc *MemoryCache) Sweep() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	n := 0
	for id, entry := range mc.entries {
		if mc.expired(entry) {
			mc.removeLocked(id)
			n++
		}
	}
	return n
}

func (mc *MemoryCache) expired(e *memoryEntry) bool {
	return mc.ttl > 0 && mc.now().Sub(e.createdAt) > mc.ttl
}

func (mc *MemoryCache) removeLocked(fileID uuid.UUID) {
	if entry, ok := mc.entries[fileID]; ok {
		mc.currentSize -= int64(len(entry.data))
		delete(mc.entries, fileID)
	}
}

func (mc *MemoryCache) evictLRULocked() bool {
	var oldestID uuid.UUID
	var oldest *memoryEntry
	for id, entry := range mc.entries {
		if oldest == nil || entry.lastAccess.Before(oldest.lastAccess) {
			oldestID, oldest = id, entry
		}
	}
	if oldest == nil {
		return false
	}
	mc.removeLocked(oldestID)
	return true
}
