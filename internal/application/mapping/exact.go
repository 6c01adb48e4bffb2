package mapping

import (
	"context"

	"github.com/erp/ingest/internal/domain/ingest"
)

const (
	exactNameConfidence    = 100.0
	exactSynonymConfidence = 95.0
)

// ExactStrategy matches normalized names and declared synonyms
type ExactStrategy struct{}

// Name implements Strategy
func (ExactStrategy) Name() string { return ingest.StrategyExact }

// Candidates implements Strategy
func (ExactStrategy) Candidates(_ context.Context, fields []ingest.SourceField, schema *ingest.TargetSchema) ([]ingest.FieldMapping, error) {
	var out []ingest.FieldMapping
	for _, sf := range fields {
		src := ingest.NormalizeName(sf.Name)
		if src == "" {
			continue
		}
		for _, tf := range schema.Fields {
			if src == ingest.NormalizeName(tf.Name) {
				out = append(out, newMapping(sf.Name, tf.Name, exactNameConfidence, ingest.StrategyExact, "name matches"))
				continue
			}
			for _, syn := range tf.Synonyms {
				if src == ingest.NormalizeName(syn) {
					out = append(out, newMapping(sf.Name, tf.Name, exactSynonymConfidence, ingest.StrategyExact, "synonym "+syn))
					break
				}
			}
		}
	}
	return out, nil
}
