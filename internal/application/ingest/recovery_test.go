package ingestapp

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
)

func newTestRecovery(t *testing.T, patterns []Pattern) (*RecoveryEngine, *Validator) {
	t.Helper()
	store := NewTTLStore[*RecoverySession](time.Minute)
	t.Cleanup(store.Stop)
	v := productValidator()
	return NewRecoveryEngine(v, store, zaptest.NewLogger(t), patterns), v
}

func analyze(t *testing.T, r *RecoveryEngine, v *Validator, records ...ingest.Record) *RecoveryAnalysis {
	t.Helper()
	report := v.Validate(records)
	indexed := make(map[int]ingest.Record)
	for idx := range report.InvalidIndexes() {
		indexed[idx] = records[idx]
	}
	return r.AnalyzeErrors("session-1", report.Errors, indexed)
}

func suggestionFor(t *testing.T, a *RecoveryAnalysis, index int, field string) Suggestion {
	t.Helper()
	for _, s := range a.Suggestions {
		if s.Key.RecordIndex == index && s.Key.Field == field {
			return s
		}
	}
	require.Failf(t, "no suggestion", "record %d field %s", index, field)
	return Suggestion{}
}

func TestRecovery_AutoFixRoundTrip(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	rec := validProduct()
	rec["price"] = "$1,234.50"
	rec["is_active"] = "Y"

	a := analyze(t, r, v, rec)
	assert.Equal(t, "session-1:recovery:1", a.RecoveryID)
	assert.Equal(t, 2, a.TotalErrors)
	assert.Equal(t, 2, a.AutoFixable)
	assert.Equal(t, 0, a.ManualRequired)

	price := suggestionFor(t, a, 0, "price")
	assert.Equal(t, "number-format", price.Pattern)
	assert.Equal(t, ingest.Cents(123450), price.Fix.FixedValue)
	assert.GreaterOrEqual(t, price.Fix.Confidence, AutoApplyConfidence)
	assert.False(t, price.Fix.RequiresConfirmation)
	assert.Equal(t, true, suggestionFor(t, a, 0, "is_active").Fix.FixedValue)

	res, err := r.ApplyAutoFixes(a.RecoveryID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AppliedFixes)
	assert.Empty(t, res.RemainingErrors)
	assert.Equal(t, ingest.Cents(123450), res.UpdatedRecords[0]["price"])
	assert.Equal(t, true, res.UpdatedRecords[0]["is_active"])

	// the original record is untouched
	assert.Equal(t, "$1,234.50", rec["price"])

	_, err = r.ApplyAutoFixes(a.RecoveryID, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecovery_ManualWhenNoPatternFits(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	rec := validProduct()
	rec["is_active"] = "maybe"

	a := analyze(t, r, v, rec)
	assert.Equal(t, 1, a.TotalErrors)
	assert.Equal(t, 1, a.ManualRequired)
	assert.Empty(t, a.Suggestions)
}

func TestRecovery_ConfirmationRequired(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	a, b := validProduct(), validProduct()

	analysis := analyze(t, r, v, a, b)
	dup := suggestionFor(t, analysis, 1, "sku")
	assert.Equal(t, "duplicate-disambiguator", dup.Pattern)
	assert.True(t, dup.Fix.RequiresConfirmation)
	assert.False(t, dup.AutoEligible)
	assert.Equal(t, 1, analysis.NeedsConfirmation)

	// nil keys only apply auto-eligible fixes
	res, err := r.ApplyAutoFixes(analysis.RecoveryID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.AppliedFixes)
	assert.Equal(t, 1, res.SkippedFixes)
}

func TestRecovery_ApplySelectedKeys(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	a, b := validProduct(), validProduct()
	analysis := analyze(t, r, v, a, b)

	res, err := r.ApplyAutoFixes(analysis.RecoveryID, []FixKey{{RecordIndex: 1, Field: "sku"}, {RecordIndex: 9, Field: "nope"}})
	require.NoError(t, err)
	assert.Equal(t, []FixKey{{RecordIndex: 1, Field: "sku"}}, res.Applied)
	assert.NotEqual(t, "MUG-001", res.UpdatedRecords[1]["sku"])
	assert.Contains(t, res.UpdatedRecords[1]["sku"], "MUG-001-")
}

func TestRecovery_RequiredFieldFromAlternate(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	rec := validProduct()
	delete(rec, "name")
	rec["title"] = "Desk lamp"

	a := analyze(t, r, v, rec)
	s := suggestionFor(t, a, 0, "name")
	assert.Equal(t, "Desk lamp", s.Fix.FixedValue)
	assert.True(t, s.AutoEligible)
}

func TestRecovery_SynthesizedSKUNeedsConfirmation(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	rec := validProduct()
	rec["sku"] = "!!"

	a := analyze(t, r, v, rec)
	s := suggestionFor(t, a, 0, "sku")
	assert.Equal(t, "BLUE-MUG-0001", s.Fix.FixedValue)
	assert.True(t, s.Fix.RequiresConfirmation)
}

func TestRecovery_AmbiguousDateNeedsConfirmation(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	rec := validProduct()
	rec["available_from"] = "03/05/2024"

	a := analyze(t, r, v, rec)
	s := suggestionFor(t, a, 0, "available_from")
	assert.Equal(t, "2024-03-05", s.Fix.FixedValue)
	assert.Equal(t, float64(75), s.Fix.Confidence)
	assert.False(t, s.AutoEligible)
}

func TestRecovery_PanickingPatternIsSkipped(t *testing.T) {
	broken := Pattern{
		Name:   "broken",
		Detect: func(ingest.ValidationError, ingest.TargetField) bool { return true },
		Fix:    func(FixContext) FixResult { panic("boom") },
	}
	r, v := newTestRecovery(t, []Pattern{broken, booleanPattern()})
	rec := validProduct()
	rec["is_active"] = "no"

	a := analyze(t, r, v, rec)
	s := suggestionFor(t, a, 0, "is_active")
	assert.Equal(t, "boolean-vocabulary", s.Pattern)
	assert.Equal(t, false, s.Fix.FixedValue)
}

func TestRecovery_IDsAreSequential(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	rec := validProduct()
	rec["is_active"] = "yes"
	first := analyze(t, r, v, rec)
	second := analyze(t, r, v, rec)
	assert.Equal(t, "session-1:recovery:1", first.RecoveryID)
	assert.Equal(t, "session-1:recovery:2", second.RecoveryID)
	_, err := r.ApplyAutoFixes(second.RecoveryID, nil)
	require.NoError(t, err)
	_, err = r.ApplyAutoFixes(second.RecoveryID, nil)
	assert.ErrorIs(t, err, ErrRecoverySessionNotFound)
}

func TestRecovery_ConcurrentApplyConsumesSessionOnce(t *testing.T) {
	r, v := newTestRecovery(t, nil)
	records := make([]ingest.Record, 200)
	for i := range records {
		rec := validProduct()
		rec["sku"] = fmt.Sprintf("SKU-%03d", i)
		rec["is_active"] = "Y"
		rec["price"] = "$1,234.50"
		records[i] = rec
	}
	a := analyze(t, r, v, records...)
	require.Equal(t, 400, a.AutoFixable)

	const callers = 4
	start := make(chan struct{})
	results := make(chan *ApplyResult, callers)
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := r.ApplyAutoFixes(a.RecoveryID, nil)
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	require.Len(t, results, 1)
	res := <-results
	assert.Equal(t, 400, res.AppliedFixes)
	assert.Empty(t, res.RemainingErrors)
	assert.Len(t, res.UpdatedRecords, 200)
	assert.Len(t, errs, callers-1)
	for err := range errs {
		assert.ErrorIs(t, err, ErrRecoverySessionNotFound)
	}
}
