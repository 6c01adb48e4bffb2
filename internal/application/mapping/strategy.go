package mapping

import (
	"context"
	"strings"

	"github.com/erp/ingest/internal/domain/ingest"
)

// Strategy proposes candidate mappings for source fields
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, fields []ingest.SourceField, schema *ingest.TargetSchema) ([]ingest.FieldMapping, error)
}

// nameVariants returns the normalized name and synonyms of a target field
func nameVariants(f ingest.TargetField) []string {
	out := make([]string, 0, 1+len(f.Synonyms))
	out = append(out, ingest.NormalizeName(f.Name))
	for _, s := range f.Synonyms {
		out = append(out, ingest.NormalizeName(s))
	}
	return out
}

// tokens splits a normalized name into its words
func tokens(normalized string) []string {
	parts := strings.Split(normalized, "_")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// tokenJaccard is |a ∩ b| / |a ∪ b| over name tokens
func tokenJaccard(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]int, len(ta)+len(tb))
	for _, t := range ta {
		set[t] |= 1
	}
	for _, t := range tb {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

// nameHint scores how much a source name resembles a target field, 0..1
func nameHint(source string, target ingest.TargetField) float64 {
	src := ingest.NormalizeName(source)
	best := 0.0
	for _, v := range nameVariants(target) {
		if v == "" || src == "" {
			continue
		}
		score := tokenJaccard(src, v)
		if score < 0.5 && (strings.Contains(src, v) || strings.Contains(v, src)) {
			score = 0.5
		}
		if score > best {
			best = score
		}
	}
	return best
}

func newMapping(source, target string, confidence float64, strategy, reasoning string) ingest.FieldMapping {
	return ingest.FieldMapping{
		SourceField: source,
		TargetField: target,
		Confidence:  confidence,
		Strategy:    strategy,
		Reasoning:   reasoning,
	}
}
