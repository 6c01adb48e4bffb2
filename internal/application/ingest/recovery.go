package ingestapp

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
)

// ErrRecoverySessionNotFound is returned for unknown or expired recovery ids
var ErrRecoverySessionNotFound = shared.NewDomainError("NOT_FOUND", "Recovery session not found or expired")

// FixKey identifies one field of one record
type FixKey struct {
	RecordIndex int    `json:"recordIndex"`
	Field       string `json:"field"`
}

// String formats the key as "index:field"
func (k FixKey) String() string {
	return fmt.Sprintf("%d:%s", k.RecordIndex, k.Field)
}

// Suggestion is the best fix found for one validation error
type Suggestion struct {
	Key           FixKey    `json:"key"`
	Rule          string    `json:"rule"`
	Pattern       string    `json:"pattern"`
	OriginalValue any       `json:"originalValue"`
	Fix           FixResult `json:"fix"`
	AutoEligible  bool      `json:"autoEligible"`
}

// RecoveryAnalysis summarises the fixes available for a set of errors
type RecoveryAnalysis struct {
	RecoveryID        string       `json:"recoveryId"`
	TotalErrors       int          `json:"totalErrors"`
	AutoFixable       int          `json:"autoFixable"`
	NeedsConfirmation int          `json:"needsConfirmation"`
	ManualRequired    int          `json:"manualRequired"`
	Suggestions       []Suggestion `json:"suggestions"`
}

// ApplyResult is the outcome of applying fixes
type ApplyResult struct {
	AppliedFixes    int                     `json:"appliedFixes"`
	SkippedFixes    int                     `json:"skippedFixes"`
	Applied         []FixKey                `json:"applied"`
	UpdatedRecords  map[int]ingest.Record   `json:"-"`
	RemainingErrors []ingest.ValidationError `json:"remainingErrors"`
}

// RecoverySession holds proposed fixes until they are applied
type RecoverySession struct {
	ID        string
	ParentID  string
	Errors    []ingest.ValidationError
	Fixes     map[FixKey]Suggestion
	Records   map[int]ingest.Record
	CreatedAt time.Time
}

// RecoveryEngine proposes and applies fixes for validation errors
type RecoveryEngine struct {
	patterns  []Pattern
	validator *Validator
	sessions  *TTLStore[*RecoverySession]
	seq       atomic.Int64
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecoveryEngine creates a RecoveryEngine. A nil patterns slice uses DefaultPatterns.
func NewRecoveryEngine(validator *Validator, sessions *TTLStore[*RecoverySession], logger *zap.Logger, patterns []Pattern) *RecoveryEngine {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryEngine{
		patterns:  patterns,
		validator: validator,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
	}
}

// AnalyzeErrors evaluates every pattern against every error and keeps the
// most confident fix per (record, field). Records are copied.
func (r *RecoveryEngine) AnalyzeErrors(parentID string, errs []ingest.ValidationError, records map[int]ingest.Record) *RecoveryAnalysis {
	id := fmt.Sprintf("%s:recovery:%d", parentID, r.seq.Add(1))
	session := &RecoverySession{
		ID:        id,
		ParentID:  parentID,
		Fixes:     make(map[FixKey]Suggestion),
		Records:   make(map[int]ingest.Record),
		CreatedAt: r.now(),
	}
	analysis := &RecoveryAnalysis{RecoveryID: id, Suggestions: []Suggestion{}}
	schema := r.validator.Schema()

	for _, e := range errs {
		if !e.IsError() {
			continue
		}
		rec, ok := records[e.RecordIndex]
		if !ok {
			continue
		}
		if _, copied := session.Records[e.RecordIndex]; !copied {
			session.Records[e.RecordIndex] = rec.Clone()
		}
		session.Errors = append(session.Errors, e)
		analysis.TotalErrors++

		field, _ := schema.Field(e.Field)
		fc := FixContext{Error: e, Field: field, Record: session.Records[e.RecordIndex], Now: r.now()}
		best, pattern, found := r.bestFix(fc)
		key := FixKey{RecordIndex: e.RecordIndex, Field: e.Field}
		if !found {
			if _, has := session.Fixes[key]; !has {
				analysis.ManualRequired++
			}
			continue
		}
		if prev, has := session.Fixes[key]; has && prev.Fix.Confidence >= best.Confidence {
			continue
		}
		session.Fixes[key] = Suggestion{
			Key:           key,
			Rule:          e.Rule,
			Pattern:       pattern,
			OriginalValue: e.Value,
			Fix:           best,
			AutoEligible:  best.AutoEligible(),
		}
	}

	for _, s := range session.Fixes {
		analysis.Suggestions = append(analysis.Suggestions, s)
		if s.AutoEligible {
			analysis.AutoFixable++
		} else {
			analysis.NeedsConfirmation++
		}
	}
	sort.Slice(analysis.Suggestions, func(i, j int) bool {
		a, b := analysis.Suggestions[i].Key, analysis.Suggestions[j].Key
		if a.RecordIndex != b.RecordIndex {
			return a.RecordIndex < b.RecordIndex
		}
		return a.Field < b.Field
	})

	r.sessions.Save(id, session)
	r.logger.Info("Recovery analysis completed",
		zap.String("recovery_id", id),
		zap.Int("errors", analysis.TotalErrors),
		zap.Int("auto_fixable", analysis.AutoFixable),
		zap.Int("manual", analysis.ManualRequired),
	)
	return analysis
}

// bestFix runs every matching pattern; a panicking pattern is skipped
func (r *RecoveryEngine) bestFix(fc FixContext) (FixResult, string, bool) {
	var (
		best    FixResult
		name    string
		matched bool
	)
	for _, p := range r.patterns {
		res, ok := r.tryPattern(p, fc)
		if !ok || !res.CanFix {
			continue
		}
		if !matched || res.Confidence > best.Confidence {
			best, name, matched = res, p.Name, true
		}
	}
	return best, name, matched
}

func (r *RecoveryEngine) tryPattern(p Pattern, fc FixContext) (res FixResult, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Recovery pattern panicked", zap.String("pattern", p.Name), zap.Any("panic", rec))
			res, ok = FixResult{}, false
		}
	}()
	if !p.Detect(fc.Error, fc.Field) {
		return FixResult{}, false
	}
	return p.Fix(fc), true
}

// ApplyAutoFixes applies fixes and re-validates the touched records. With
// nil keys every auto-eligible fix is applied; otherwise exactly the listed
// keys are. The recovery session is consumed: a second apply with the same
// id returns ErrRecoverySessionNotFound.
func (r *RecoveryEngine) ApplyAutoFixes(recoveryID string, keys []FixKey) (*ApplyResult, error) {
	session, ok := r.sessions.Take(recoveryID)
	if !ok {
		return nil, ErrRecoverySessionNotFound
	}

	selected := make(map[FixKey]bool)
	if keys == nil {
		for k, s := range session.Fixes {
			if s.AutoEligible {
				selected[k] = true
			}
		}
	} else {
		for _, k := range keys {
			if _, exists := session.Fixes[k]; exists {
				selected[k] = true
			}
		}
	}

	result := &ApplyResult{
		Applied:         []FixKey{},
		UpdatedRecords:  make(map[int]ingest.Record),
		RemainingErrors: []ingest.ValidationError{},
	}
	touched := make(map[int]ingest.Record)
	for k, s := range session.Fixes {
		if !selected[k] {
			result.SkippedFixes++
			continue
		}
		rec := session.Records[k.RecordIndex]
		rec[k.Field] = s.Fix.FixedValue
		touched[k.RecordIndex] = rec
		result.Applied = append(result.Applied, k)
		result.AppliedFixes++
	}
	sort.Slice(result.Applied, func(i, j int) bool {
		if result.Applied[i].RecordIndex != result.Applied[j].RecordIndex {
			return result.Applied[i].RecordIndex < result.Applied[j].RecordIndex
		}
		return result.Applied[i].Field < result.Applied[j].Field
	})

	for idx, rec := range touched {
		result.UpdatedRecords[idx] = rec
	}
	for _, e := range r.validator.ValidateIndexed(touched) {
		if e.IsError() {
			result.RemainingErrors = append(result.RemainingErrors, e)
		}
	}

	r.logger.Info("Recovery fixes applied",
		zap.String("recovery_id", recoveryID),
		zap.Int("applied", result.AppliedFixes),
		zap.Int("skipped", result.SkippedFixes),
		zap.Int("remaining_errors", len(result.RemainingErrors)),
	)
	return result, nil
}
