package mapping

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/erp/ingest/internal/domain/ingest"
)

const (
	minFuzzySimilarity = 0.5
	fuzzyBase          = 50.0
	fuzzySpan          = 30.0
	fuzzyCap           = 80.0
)

// FuzzyStrategy matches names by edit distance and shared words
type FuzzyStrategy struct{}

// Name implements Strategy
func (FuzzyStrategy) Name() string { return ingest.StrategyFuzzy }

// Candidates implements Strategy
func (FuzzyStrategy) Candidates(_ context.Context, fields []ingest.SourceField, schema *ingest.TargetSchema) ([]ingest.FieldMapping, error) {
	var out []ingest.FieldMapping
	for _, sf := range fields {
		src := ingest.NormalizeName(sf.Name)
		if src == "" {
			continue
		}
		for _, tf := range schema.Fields {
			best, via := 0.0, ""
			for _, v := range nameVariants(tf) {
				if s := similarity(src, v); s > best {
					best, via = s, v
				}
			}
			if best < minFuzzySimilarity {
				continue
			}
			confidence := math.Min(fuzzyCap, fuzzyBase+fuzzySpan*best)
			out = append(out, newMapping(sf.Name, tf.Name, confidence, ingest.StrategyFuzzy,
				fmt.Sprintf("similar to %q (%.2f)", via, best)))
		}
	}
	return out, nil
}

// similarity is the better of normalized Levenshtein similarity and token overlap
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	lev := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	return math.Max(lev, tokenJaccard(a, b))
}
