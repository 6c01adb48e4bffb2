package ingestapp

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
)

func previewingSession(t *testing.T, repo *memorySessions) *ingest.ImportSession {
	t.Helper()
	s, err := ingest.NewImportSession("product", ingest.SourceFile{Name: "catalog.csv", Size: 10})
	require.NoError(t, err)
	for _, st := range []ingest.SessionStatus{ingest.StatusAnalyzing, ingest.StatusMapping, ingest.StatusPreviewing} {
		require.NoError(t, s.TransitionTo(st))
	}
	require.NoError(t, repo.Save(context.Background(), s))
	return s
}

func numberedRecords(n int) []ingest.Record {
	out := make([]ingest.Record, n)
	for i := range out {
		out[i] = ingest.Record{"offset": i, "sku": "SKU"}
	}
	return out
}

func TestOrchestrator_IsolatesFailedBatch(t *testing.T) {
	for _, concurrency := range []int{1, 3, 8} {
		repo := newMemorySessions()
		session := previewingSession(t, repo)
		store := &fakeStore{failFrom: 600, failTo: 700}
		events := &eventRecorder{}
		o := NewOrchestrator(store, repo, events, OrchestratorConfig{
			BatchSize:      100,
			MaxConcurrency: concurrency,
			RetryAttempts:  2,
			RetryDelay:     0,
		}, zaptest.NewLogger(t))

		require.NoError(t, o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(1050), nil, "product"))

		got, err := repo.FindByID(context.Background(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, ingest.StatusCompletedWithErrors, got.Status, "concurrency %d", concurrency)
		assert.Equal(t, 1050, got.TotalRecords)
		assert.Equal(t, 1050, got.ProcessedRecords)
		assert.Equal(t, 950, got.SuccessfulRecords)
		assert.Equal(t, 100, got.FailedRecords)
		assert.Equal(t, 950, store.count())
		assert.EqualValues(t, 12, store.calls.Load(), "11 batches plus one retry of the failing batch")

		failed := events.ofType(ingest.EventBatchFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, 7, failed[0].Batch.Sequence)
		assert.Equal(t, 2, failed[0].Batch.Attempts)
		assert.Len(t, events.ofType(ingest.EventBatchCompleted), 10)

		completed := events.ofType(ingest.EventCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, float64(100), completed[0].Progress.Percent)

		var batchLog int
		for _, e := range got.ErrorLog {
			if e.Level == ingest.ErrorLevelBatch {
				batchLog++
				require.NotNil(t, e.Batch)
				assert.Equal(t, 7, *e.Batch)
			}
		}
		assert.Equal(t, 1, batchLog)
	}
}

func TestOrchestrator_ProgressIsMonotonic(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	events := &eventRecorder{}
	o := NewOrchestrator(&fakeStore{}, repo, events, OrchestratorConfig{BatchSize: 10, MaxConcurrency: 4}, nil)

	require.NoError(t, o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(95), nil, "product"))

	last := -1
	for _, ev := range events.ofType(ingest.EventProgress) {
		assert.GreaterOrEqual(t, ev.Progress.ProcessedRecords, last)
		last = ev.Progress.ProcessedRecords
	}
	assert.Equal(t, 95, last)

	all := events.all()
	assert.True(t, all[len(all)-1].IsFinal())
	got, _ := repo.FindByID(context.Background(), session.ID)
	assert.Equal(t, ingest.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestOrchestrator_Cancel(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	events := &eventRecorder{}
	store := &fakeStore{}
	var o *Orchestrator
	var calls atomic.Int64
	store.onInsert = func() {
		if calls.Add(1) == 2 {
			o.Cancel(session.ID)
		}
	}
	o = NewOrchestrator(store, repo, events, OrchestratorConfig{BatchSize: 10, MaxConcurrency: 1}, nil)

	require.NoError(t, o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(200), nil, "product"))

	got, err := repo.FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusFailed, got.Status)
	assert.Less(t, got.ProcessedRecords, 200)
	assert.Len(t, events.ofType(ingest.EventCancelled), 1)
	assert.Empty(t, events.ofType(ingest.EventCompleted))
	assert.False(t, o.IsRunning(session.ID))
}

func TestOrchestrator_CancelBeforeStart(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	events := &eventRecorder{}
	store := &fakeStore{}
	o := NewOrchestrator(store, repo, events, OrchestratorConfig{BatchSize: 10}, nil)

	require.NoError(t, o.Reserve(session.ID))
	assert.ErrorIs(t, o.Reserve(session.ID), shared.ErrSessionBusy)
	assert.True(t, o.Cancel(session.ID))

	require.NoError(t, o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(30), nil, "product"))
	assert.Zero(t, store.calls.Load())
	assert.Len(t, events.ofType(ingest.EventCancelled), 1)

	got, err := repo.FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusFailed, got.Status)

	// finished but not yet released
	assert.False(t, o.IsRunning(session.ID))
	assert.False(t, o.Cancel(session.ID))
	assert.ErrorIs(t, o.ProcessBulkImport(context.Background(), session.ID, nil, nil, "product"), shared.ErrSessionBusy)
	o.Release(session.ID)
	assert.NoError(t, o.Reserve(session.ID))
}

func TestOrchestrator_MissingSessionEmitsError(t *testing.T) {
	events := &eventRecorder{}
	o := NewOrchestrator(&fakeStore{}, newMemorySessions(), events, OrchestratorConfig{}, nil)

	err := o.ProcessBulkImport(context.Background(), "missing", numberedRecords(3), nil, "product")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, events.ofType(ingest.EventError), 1)
	assert.Equal(t, "missing", events.ofType(ingest.EventError)[0].SessionID)
	assert.False(t, o.IsRunning("missing"))
}

func TestOrchestrator_BeginFailureEmitsError(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	events := &eventRecorder{}
	o := NewOrchestrator(&fakeStore{}, repo, events, OrchestratorConfig{}, nil)
	require.NoError(t, o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(3), nil, "product"))

	err := o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(3), nil, "product")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, events.ofType(ingest.EventError), 1)
	assert.Contains(t, events.ofType(ingest.EventError)[0].Error, "Cannot move import session")
	got, err := repo.FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusCompleted, got.Status)
}

func TestOrchestrator_ContextCancelled(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	events := &eventRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewOrchestrator(&fakeStore{}, repo, events, OrchestratorConfig{BatchSize: 10}, nil)

	require.NoError(t, o.ProcessBulkImport(ctx, session.ID, numberedRecords(50), nil, "product"))

	got, _ := repo.FindByID(context.Background(), session.ID)
	assert.Equal(t, ingest.StatusFailed, got.Status)
	assert.Equal(t, 0, got.ProcessedRecords)
	assert.Len(t, events.ofType(ingest.EventCancelled), 1)
}

func TestOrchestrator_SessionSaveFailureIsFatal(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	// save 1 was the fixture, save 2 is Begin, save 3 is the first batch
	repo.failAt = 3
	events := &eventRecorder{}
	o := NewOrchestrator(&fakeStore{}, repo, events, OrchestratorConfig{BatchSize: 10, MaxConcurrency: 1}, nil)

	err := o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(100), nil, "product")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save session")
	assert.Len(t, events.ofType(ingest.EventError), 1)
	assert.Empty(t, events.ofType(ingest.EventCompleted))
}

func TestOrchestrator_RejectsConcurrentRun(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	started := make(chan struct{})
	release := make(chan struct{})
	store := &fakeStore{}
	var once atomic.Bool
	store.onInsert = func() {
		if once.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
	}
	o := NewOrchestrator(store, repo, nil, OrchestratorConfig{BatchSize: 10, MaxConcurrency: 1}, nil)

	done := make(chan error, 1)
	go func() {
		done <- o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(20), nil, "product")
	}()
	<-started
	assert.True(t, o.IsRunning(session.ID))
	err := o.ProcessBulkImport(context.Background(), session.ID, numberedRecords(20), nil, "product")
	assert.ErrorIs(t, err, shared.ErrSessionBusy)
	close(release)
	require.NoError(t, <-done)
}

func TestOrchestrator_RejectsFinishedSession(t *testing.T) {
	repo := newMemorySessions()
	s, err := ingest.NewImportSession("product", ingest.SourceFile{Name: "x.csv"})
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), s))
	o := NewOrchestrator(&fakeStore{}, repo, nil, OrchestratorConfig{}, nil)

	require.NoError(t, o.ProcessBulkImport(context.Background(), s.ID, numberedRecords(3), nil, "product"))
	err = o.ProcessBulkImport(context.Background(), s.ID, numberedRecords(3), nil, "product")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestOrchestrator_ProjectsMappedFields(t *testing.T) {
	repo := newMemorySessions()
	session := previewingSession(t, repo)
	store := &fakeStore{}
	o := NewOrchestrator(store, repo, nil, OrchestratorConfig{}, nil)
	set := ingest.MappingSet{{SourceField: "Code", TargetField: "sku", Confidence: 100, Strategy: ingest.StrategyExact}}

	records := []ingest.Record{{"sku": "A-1", "extra": "dropped"}}
	require.NoError(t, o.ProcessBulkImport(context.Background(), session.ID, records, set, "product"))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, ingest.Record{"sku": "A-1"}, store.inserted[0])
}

func TestCheckResults(t *testing.T) {
	assert.NoError(t, checkResults(nil, 3))
	assert.NoError(t, checkResults([]ingest.InsertResult{{Success: true}}, 1))
	assert.ErrorIs(t, checkResults([]ingest.InsertResult{{Success: true}}, 2), ErrBatchRejected)
	assert.ErrorIs(t, checkResults([]ingest.InsertResult{{Success: false, Error: "dup"}}, 1), ErrBatchRejected)
}
