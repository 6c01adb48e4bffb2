package mapping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/erp/ingest/internal/domain/ingest"
)

// DefaultConfidenceFloor is the minimum confidence for a mapping to be applied
const DefaultConfidenceFloor = 50.0

// DefaultLLMTimeout bounds a single oracle call
const DefaultLLMTimeout = 15 * time.Second

// Engine runs the mapping strategies and merges their candidates
type Engine struct {
	schema     *ingest.TargetSchema
	cache      ingest.MappingCacheStore
	strategies []Strategy
	llm        *LLMStrategy
	llmTimeout time.Duration
	floor      float64
	logger     *zap.Logger
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithConfidenceFloor sets the acceptance floor
func WithConfidenceFloor(floor float64) EngineOption {
	return func(e *Engine) {
		if floor > 0 {
			e.floor = floor
		}
	}
}

// WithEngineLogger sets the logger
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLLM enables the oracle step for fields left below the floor
func WithLLM(llm *LLMStrategy, timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.llm = llm
		if timeout > 0 {
			e.llmTimeout = timeout
		}
	}
}

// WithStrategies replaces the local strategies
func WithStrategies(strategies ...Strategy) EngineOption {
	return func(e *Engine) {
		e.strategies = strategies
	}
}

// NewEngine creates an Engine for schema. cache may be nil.
func NewEngine(schema *ingest.TargetSchema, cache ingest.MappingCacheStore, opts ...EngineOption) *Engine {
	e := &Engine{
		schema:     schema,
		cache:      cache,
		floor:      DefaultConfidenceFloor,
		llmTimeout: DefaultLLMTimeout,
		logger:     zap.NewNop(),
	}
	e.strategies = []Strategy{
		ExactStrategy{},
		NewHistoricalStrategy(cache),
		StatisticalStrategy{},
		FuzzyStrategy{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the target schema
func (e *Engine) Schema() *ingest.TargetSchema {
	return e.schema
}

// Floor returns the acceptance floor
func (e *Engine) Floor() float64 {
	return e.floor
}

// GenerateMappings proposes a mapping for each source field. Strategy
// failures degrade the result instead of failing it.
func (e *Engine) GenerateMappings(ctx context.Context, fields []ingest.SourceField) (*ingest.MappingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		candidates []ingest.FieldMapping
		degraded   []string
	)
	for _, s := range e.strategies {
		found, err := e.runStrategy(ctx, s, fields)
		if err != nil {
			degraded = append(degraded, fmt.Sprintf("%s: %v", s.Name(), err))
			e.logger.Warn("Mapping strategy degraded", zap.String("strategy", s.Name()), zap.Error(err))
		}
		candidates = append(candidates, found...)
	}

	result := e.merge(fields, candidates)

	if e.llm != nil {
		pending := e.pendingFields(fields, result)
		if len(pending) > 0 {
			llmCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
			found, err := e.runStrategy(llmCtx, e.llm, pending)
			cancel()
			if err != nil {
				degraded = append(degraded, fmt.Sprintf("%s: %v", e.llm.Name(), err))
				e.logger.Warn("LLM mapping unavailable, using local result", zap.Error(err))
			} else if len(found) > 0 {
				candidates = append(candidates, found...)
				result = e.merge(fields, candidates)
			}
		}
	}
	result.Degraded = degraded

	e.remember(ctx, result.Mappings)

	e.logger.Info("Mappings generated",
		zap.Int("source_fields", len(fields)),
		zap.Int("mapped", len(result.Mappings)),
		zap.Int("low_confidence", len(result.LowConfidence)),
		zap.Int("unmapped", len(result.Unmapped)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// runStrategy shields the engine from a panicking strategy
func (e *Engine) runStrategy(ctx context.Context, s Strategy, fields []ingest.SourceField) (found []ingest.FieldMapping, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Candidates(ctx, fields, e.schema)
}

// merge assigns at most one target per source and one source per target,
// taking candidates in confidence then priority order
func (e *Engine) merge(fields []ingest.SourceField, candidates []ingest.FieldMapping) *ingest.MappingResult {
	sorted := make([]ingest.FieldMapping, len(candidates))
	copy(sorted, candidates)
	ingest.SortMappings(sorted)

	usedSource := make(map[string]bool)
	usedTarget := make(map[string]bool)
	bestLow := make(map[string]ingest.FieldMapping)
	result := &ingest.MappingResult{
		Mappings:       []ingest.FieldMapping{},
		LowConfidence:  []ingest.FieldMapping{},
		Unmapped:       []string{},
		StrategiesUsed: []string{},
	}

	for _, c := range sorted {
		if usedSource[c.SourceField] {
			continue
		}
		if c.Confidence < e.floor {
			if _, ok := bestLow[c.SourceField]; !ok && !usedTarget[c.TargetField] {
				bestLow[c.SourceField] = c
			}
			continue
		}
		if usedTarget[c.TargetField] {
			continue
		}
		usedSource[c.SourceField] = true
		usedTarget[c.TargetField] = true
		result.Mappings = append(result.Mappings, c)
	}

	strategies := make(map[string]bool)
	total := 0.0
	for _, m := range result.Mappings {
		total += m.Confidence
		strategies[m.Strategy] = true
	}
	if len(result.Mappings) > 0 {
		result.Confidence = total / float64(len(result.Mappings))
	}
	for s := range strategies {
		result.StrategiesUsed = append(result.StrategiesUsed, s)
	}
	sort.Slice(result.StrategiesUsed, func(i, j int) bool {
		return ingest.StrategyPriority(result.StrategiesUsed[i]) < ingest.StrategyPriority(result.StrategiesUsed[j])
	})

	for _, f := range fields {
		if usedSource[f.Name] {
			continue
		}
		if low, ok := bestLow[f.Name]; ok {
			result.LowConfidence = append(result.LowConfidence, low)
			continue
		}
		result.Unmapped = append(result.Unmapped, f.Name)
	}
	return result
}

// pendingFields are the source fields that did not reach the floor
func (e *Engine) pendingFields(fields []ingest.SourceField, result *ingest.MappingResult) []ingest.SourceField {
	mapped := make(map[string]bool, len(result.Mappings))
	for _, m := range result.Mappings {
		mapped[m.SourceField] = true
	}
	var out []ingest.SourceField
	for _, f := range fields {
		if !mapped[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// remember upserts accepted mappings into the cache
func (e *Engine) remember(ctx context.Context, mappings []ingest.FieldMapping) {
	if e.cache == nil {
		return
	}
	now := time.Now()
	for _, m := range mappings {
		err := e.cache.Upsert(ctx, ingest.CachedMapping{
			SourceField: m.SourceField,
			TargetField: m.TargetField,
			Confidence:  m.Confidence,
			Strategy:    m.Strategy,
			UpdatedAt:   now,
		})
		if err != nil {
			e.logger.Warn("Failed to cache mapping",
				zap.String("source", m.SourceField),
				zap.String("target", m.TargetField),
				zap.Error(err),
			)
		}
	}
}

// Remember stores manually confirmed mappings
func (e *Engine) Remember(ctx context.Context, mappings []ingest.FieldMapping) {
	e.remember(ctx, mappings)
}
