package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/erp/ingest/internal/domain/ingest"
)

// ErrCostCeiling is returned when the estimated oracle cost exceeds the budget
var ErrCostCeiling = errors.New("estimated LLM cost exceeds ceiling")

const (
	llmConfidenceCap = 90.0
	sampleRowsForLLM = 3
	charsPerToken    = 4
)

// LLMStrategy asks a MappingOracle about columns nothing else could place
type LLMStrategy struct {
	oracle           ingest.MappingOracle
	maxFields        int
	maxCostUSD       float64
	pricePer1KTokens float64
	validate         *validator.Validate
}

// NewLLMStrategy creates an LLMStrategy. maxFields <= 0 means no limit and
// maxCostUSD <= 0 disables the cost check.
func NewLLMStrategy(oracle ingest.MappingOracle, maxFields int, maxCostUSD, pricePer1KTokens float64) *LLMStrategy {
	return &LLMStrategy{
		oracle:           oracle,
		maxFields:        maxFields,
		maxCostUSD:       maxCostUSD,
		pricePer1KTokens: pricePer1KTokens,
		validate:         validator.New(),
	}
}

// Name implements Strategy
func (s *LLMStrategy) Name() string { return ingest.StrategyLLM }

// Candidates implements Strategy
func (s *LLMStrategy) Candidates(ctx context.Context, fields []ingest.SourceField, schema *ingest.TargetSchema) ([]ingest.FieldMapping, error) {
	if s.oracle == nil || len(fields) == 0 {
		return nil, nil
	}
	if s.maxFields > 0 && len(fields) > s.maxFields {
		fields = fields[:s.maxFields]
	}

	req := ingest.OracleRequest{
		SourceFields: ingest.SourceFieldNames(fields),
		SampleRows:   sampleRows(fields, sampleRowsForLLM),
		TargetFields: schema.Names(),
		MaxCostUSD:   s.maxCostUSD,
	}
	if est := s.EstimateCost(req); s.maxCostUSD > 0 && est > s.maxCostUSD {
		return nil, fmt.Errorf("%w: %.4f > %.4f USD", ErrCostCeiling, est, s.maxCostUSD)
	}

	resp, err := s.oracle.SuggestMappings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	if resp == nil {
		return nil, nil
	}

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}
	var out []ingest.FieldMapping
	for _, sug := range resp.Mappings {
		if err := s.validate.Struct(sug); err != nil {
			continue
		}
		if !known[sug.SourceField] {
			continue
		}
		if _, ok := schema.Field(sug.TargetField); !ok {
			continue
		}
		confidence := sug.Confidence
		if confidence > llmConfidenceCap {
			confidence = llmConfidenceCap
		}
		m := newMapping(sug.SourceField, sug.TargetField, confidence, ingest.StrategyLLM, sug.Reasoning)
		m.Metadata = map[string]string{"tokens_used": fmt.Sprint(resp.TokensUsed)}
		out = append(out, m)
	}
	return out, nil
}

// EstimateCost approximates the request cost from its size
func (s *LLMStrategy) EstimateCost(req ingest.OracleRequest) float64 {
	chars := 0
	for _, f := range req.SourceFields {
		chars += len(f) + 2
	}
	for _, f := range req.TargetFields {
		chars += len(f) + 2
	}
	for _, row := range req.SampleRows {
		chars += len(strings.Join(row, ","))
	}
	tokens := float64(chars) / charsPerToken
	return tokens / 1000 * s.pricePer1KTokens
}

// sampleRows rebuilds up to n rows from per-column sample values
func sampleRows(fields []ingest.SourceField, n int) [][]string {
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(fields))
		filled := false
		for j, f := range fields {
			if i < len(f.SampleValues) {
				row[j] = f.SampleValues[i]
				filled = true
			}
		}
		if !filled {
			break
		}
		rows = append(rows, row)
	}
	return rows
}
