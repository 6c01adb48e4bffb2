package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/ingest/internal/domain/ingest"
)

type cacheKey struct {
	source string
	target string
}

// InMemoryMappingCache keeps accepted mappings in process memory.
// Suitable for single-instance deployments and tests.
type InMemoryMappingCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]ingest.CachedMapping
	now     func() time.Time
}

// NewInMemoryMappingCache creates an empty cache
func NewInMemoryMappingCache() *InMemoryMappingCache {
	return &InMemoryMappingCache{
		entries: make(map[cacheKey]ingest.CachedMapping),
		now:     time.Now,
	}
}

// Lookup returns the stored confidence of every known pair
func (c *InMemoryMappingCache) Lookup(_ context.Context, sourceFields, targetFields []string) (map[ingest.MappingPair]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[ingest.MappingPair]float64)
	for _, source := range sourceFields {
		norm := normalizeSource(source)
		for _, target := range targetFields {
			if e, ok := c.entries[cacheKey{norm, target}]; ok {
				out[ingest.MappingPair{SourceField: source, TargetField: target}] = e.Confidence
			}
		}
	}
	return out, nil
}

// Upsert stores m unless an entry with equal or higher confidence exists
func (c *InMemoryMappingCache) Upsert(_ context.Context, m ingest.CachedMapping) error {
	if err := checkMapping(m); err != nil {
		return err
	}
	key := cacheKey{normalizeSource(m.SourceField), m.TargetField}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok && existing.Confidence >= m.Confidence {
		return nil
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = c.now()
	}
	c.entries[key] = m
	return nil
}

// Len returns the number of stored pairs
func (c *InMemoryMappingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ ingest.MappingCacheStore = (*InMemoryMappingCache)(nil)
