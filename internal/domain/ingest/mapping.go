package ingest

import "sort"

// Mapping strategy names, in tie-break priority order
const (
	StrategyExact       = "exact"
	StrategyHistorical  = "historical"
	StrategyStatistical = "statistical"
	StrategyFuzzy       = "fuzzy"
	StrategyLLM         = "llm"
	StrategyManual      = "manual"
	// StrategyDerived marks a target computed from another mapped field.
	// Derived entries take part in projection only.
	StrategyDerived = "derived"
)

// strategyPriority breaks confidence ties; lower wins
var strategyPriority = map[string]int{
	StrategyManual:      0,
	StrategyExact:       1,
	StrategyHistorical:  2,
	StrategyStatistical: 3,
	StrategyFuzzy:       4,
	StrategyLLM:         5,
}

// StrategyPriority returns the tie-break rank of a mapping strategy
func StrategyPriority(strategy string) int {
	if p, ok := strategyPriority[strategy]; ok {
		return p
	}
	return len(strategyPriority)
}

// FieldMapping maps one source column onto one target field
type FieldMapping struct {
	SourceField string            `json:"source_field"`
	TargetField string            `json:"target_field"`
	Confidence  float64           `json:"confidence"`
	Strategy    string            `json:"strategy"`
	Reasoning   string            `json:"reasoning,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Outranks reports whether m should win over other for the same field
func (m FieldMapping) Outranks(other FieldMapping) bool {
	if m.Confidence != other.Confidence {
		return m.Confidence > other.Confidence
	}
	return StrategyPriority(m.Strategy) < StrategyPriority(other.Strategy)
}

// SortMappings orders mappings by confidence, then strategy priority, then name
func SortMappings(mappings []FieldMapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		if mappings[i].Confidence != mappings[j].Confidence || mappings[i].Strategy != mappings[j].Strategy {
			return mappings[i].Outranks(mappings[j])
		}
		return mappings[i].SourceField < mappings[j].SourceField
	})
}

// MappingResult is the merged output of all mapping strategies
type MappingResult struct {
	// Mappings holds the accepted mappings, all at or above the floor
	Mappings []FieldMapping `json:"mappings"`
	// LowConfidence holds the best candidate per source field that fell below the floor
	LowConfidence []FieldMapping `json:"low_confidence"`
	// Unmapped lists source fields without any candidate
	Unmapped       []string `json:"unmapped"`
	Confidence     float64  `json:"confidence"`
	StrategiesUsed []string `json:"strategies_used"`
	Degraded       []string `json:"degraded,omitempty"`
}

// MappingSet is an accepted set of mappings applied to records
type MappingSet []FieldMapping

// Lookup returns the target field for a source column
func (s MappingSet) Lookup(source string) (string, bool) {
	for _, m := range s {
		if m.SourceField == source && m.Strategy != StrategyDerived {
			return m.TargetField, true
		}
	}
	return "", false
}

// Targets returns the mapped target field names
func (s MappingSet) Targets() []string {
	out := make([]string, 0, len(s))
	for _, m := range s {
		out = append(out, m.TargetField)
	}
	return out
}

// Apply renames mapped source columns to their target fields. Unmapped
// columns are carried over unchanged unless they collide with a target.
func (s MappingSet) Apply(row map[string]any) Record {
	out := make(Record, len(row))
	targets := make(map[string]bool, len(s))
	for _, m := range s {
		if m.Strategy != StrategyDerived {
			targets[m.TargetField] = true
		}
	}
	for key, value := range row {
		if target, ok := s.Lookup(key); ok {
			out[target] = value
			continue
		}
		if !targets[key] {
			out[key] = value
		}
	}
	return out
}

// Project keeps only the mapped target fields of a record
func (s MappingSet) Project(record Record) Record {
	if len(s) == 0 {
		return record.Clone()
	}
	out := make(Record, len(s))
	for _, m := range s {
		if v, ok := record[m.TargetField]; ok {
			out[m.TargetField] = v
		}
	}
	return out
}
