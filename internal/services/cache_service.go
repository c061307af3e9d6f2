package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"annotation-service/internal/metrics"
	"annotation-service/internal/services/cache"
	"annotation-service/internal/storage"
)

// CacheService serves file content through an ordered chain of cache layers
// in front of blob storage. Layers are tried first to last; a hit in a later
// layer is promoted into the earlier ones.
type CacheService struct {
	layers         []cache.CacheLayer
	blobs          storage.BlobStore
	maxObjectBytes int64
	metrics        *metrics.Metrics
}

func NewCacheService(blobs storage.BlobStore, maxObjectBytes int64, m *metrics.Metrics, layers ...cache.CacheLayer) *CacheService {
	return &CacheService{
		layers:         layers,
		blobs:          blobs,
		maxObjectBytes: maxObjectBytes,
		metrics:        m,
	}
}

// Open returns the content of a file. The returned layer name is "blob" when
// no cache layer held it.
func (s *CacheService) Open(ctx context.Context, fileID uuid.UUID, storageKey string) (io.ReadCloser, int64, string, error) {
	for i, layer := range s.layers {
		data, ok, err := layer.Get(ctx, fileID)
		if err != nil {
			slog.Warn("cache layer lookup failed", "layer", layer.Name(), "file_id", fileID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.promote(ctx, fileID, data, s.layers[:i])
		s.metrics.CacheLookup(layer.Name())
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), layer.Name(), nil
	}

	start := time.Now()
	rc, size, err := s.blobs.Get(ctx, storageKey)
	s.metrics.RecordBlobLatency(time.Since(start))
	s.metrics.CacheLookup("blob")
	if err != nil {
		return nil, 0, "", err
	}
	counted := newCountingReadCloser(rc, s.metrics)
	if len(s.layers) == 0 || size > s.maxObjectBytes {
		return counted, size, "blob", nil
	}

	defer counted.Close()
	data, err := io.ReadAll(counted)
	if err != nil {
		return nil, 0, "", err
	}
	s.promote(ctx, fileID, data, s.layers)
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), "blob", nil
}

// Invalidate drops a file from every layer.
func (s *CacheService) Invalidate(ctx context.Context, fileID uuid.UUID) {
	for _, layer := range s.layers {
		if err := layer.Delete(ctx, fileID); err != nil {
			slog.Warn("cache invalidation failed", "layer", layer.Name(), "file_id", fileID, "error", err)
		}
	}
}

// Stats reports statistics for every layer.
func (s *CacheService) Stats() []cache.LayerStats {
	stats := make([]cache.LayerStats, 0, len(s.layers))
	for _, layer := range s.layers {
		stats = append(stats, layer.GetStats())
	}
	return stats
}

func (s *CacheService) promote(ctx context.Context, fileID uuid.UUID, data []byte, layers []cache.CacheLayer) {
	for _, layer := range layers {
		if err := layer.Store(ctx, fileID, data); err != nil {
			slog.Warn("cache store failed", "layer", layer.Name(), "file_id", fileID, "error", err)
		}
	}
}
