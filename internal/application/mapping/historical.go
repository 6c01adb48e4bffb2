package mapping

import (
	"context"
	"fmt"

	"github.com/erp/ingest/internal/domain/ingest"
)

// HistoricalStrategy replays mappings accepted in earlier imports
type HistoricalStrategy struct {
	cache ingest.MappingCacheStore
}

// NewHistoricalStrategy creates a HistoricalStrategy over cache
func NewHistoricalStrategy(cache ingest.MappingCacheStore) *HistoricalStrategy {
	return &HistoricalStrategy{cache: cache}
}

// Name implements Strategy
func (s *HistoricalStrategy) Name() string { return ingest.StrategyHistorical }

// Candidates implements Strategy. The cache is queried once for all pairs.
func (s *HistoricalStrategy) Candidates(ctx context.Context, fields []ingest.SourceField, schema *ingest.TargetSchema) ([]ingest.FieldMapping, error) {
	if s.cache == nil || len(fields) == 0 {
		return nil, nil
	}
	sources := make([]string, len(fields))
	for i, sf := range fields {
		sources[i] = sf.Name
	}
	known, err := s.cache.Lookup(ctx, sources, schema.Names())
	if err != nil {
		return nil, fmt.Errorf("mapping cache lookup: %w", err)
	}

	var out []ingest.FieldMapping
	for _, sf := range fields {
		for _, tf := range schema.Fields {
			confidence, ok := known[ingest.MappingPair{SourceField: sf.Name, TargetField: tf.Name}]
			if !ok {
				continue
			}
			out = append(out, newMapping(sf.Name, tf.Name, confidence, ingest.StrategyHistorical, "accepted in a previous import"))
		}
	}
	return out, nil
}
