package cache

import (
	"context"

	"github.com/google/uuid"
)

// CacheLayer holds file content keyed by file id.
type CacheLayer interface {
	Name() string
	Store(ctx context.Context, fileID uuid.UUID, data []byte) error
	// Get returns ok=false on a miss; err is reserved for layer failures.
	Get(ctx context.Context, fileID uuid.UUID) (data []byte, ok bool, err error)
	Delete(ctx context.Context, fileID uuid.UUID) error
	GetStats() LayerStats
}

type LayerStats struct {
	Name      string  `json:"name"`
	Objects   int     `json:"objects"`
	SizeBytes int64   `json:"sizeBytes"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hitRate"`
}

// HitRate returns hits as a percentage of all lookups.
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
