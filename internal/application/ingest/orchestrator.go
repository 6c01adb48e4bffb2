package ingestapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
)

// Orchestrator defaults
const (
	DefaultBatchSize      = 100
	DefaultMaxConcurrency = 5
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 200 * time.Millisecond
)

// ErrBatchRejected is recorded when the store reports per-record failures
var ErrBatchRejected = errors.New("store rejected records in batch")

// BatchObserver is notified of every finished batch
type BatchObserver interface {
	ObserveBatch(ctx context.Context, entityType string, report ingest.BatchReport)
}

// OrchestratorConfig holds batch execution settings
type OrchestratorConfig struct {
	BatchSize      int
	MaxConcurrency int
	RetryAttempts  int
	RetryDelay     time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// Orchestrator inserts records in bounded-concurrency batches and keeps the
// session counters current
type Orchestrator struct {
	store    ingest.RecordStore
	sessions ingest.SessionRepository
	sink     ingest.ProgressSink
	observer BatchObserver
	cfg      OrchestratorConfig
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]*run
}

// run tracks one reserved or started import
type run struct {
	cancelled atomic.Bool
	reserved  bool
	started   bool
	finished  bool
}

// NewOrchestrator creates an Orchestrator. sink may be nil.
func NewOrchestrator(store ingest.RecordStore, sessions ingest.SessionRepository, sink ingest.ProgressSink, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		sessions: sessions,
		sink:     sink,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		running:  make(map[string]*run),
	}
}

// SetObserver registers a batch observer
func (o *Orchestrator) SetObserver(observer BatchObserver) {
	o.observer = observer
}

// Reserve claims sessionID before an import is prepared. A Cancel that
// arrives while the reservation is held stops the import once it starts.
// Callers must Release the reservation when done.
func (o *Orchestrator) Reserve(sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.running[sessionID]; busy {
		return shared.ErrSessionBusy
	}
	o.running[sessionID] = &run{reserved: true}
	return nil
}

// Release drops a reservation taken with Reserve
func (o *Orchestrator) Release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, sessionID)
}

// Cancel asks a reserved or running import to stop dispatching batches. It
// returns false when nothing is registered for sessionID or the import has
// already finished.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.running[sessionID]
	if !ok || r.finished {
		return false
	}
	r.cancelled.Store(true)
	return true
}

// IsRunning reports whether an import is reserved or in flight for sessionID
func (o *Orchestrator) IsRunning(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.running[sessionID]
	return ok && !r.finished
}

// register marks sessionID as started, adopting a reservation if one is held
func (o *Orchestrator) register(sessionID string) (*run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.running[sessionID]; ok {
		if !r.reserved || r.started || r.finished {
			return nil, shared.ErrSessionBusy
		}
		r.started = true
		return r, nil
	}
	r := &run{started: true}
	o.running[sessionID] = r
	return r, nil
}

// unregister ends a run. Reservations stay until Release.
func (o *Orchestrator) unregister(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.running[sessionID]
	switch {
	case !ok:
	case r.reserved:
		r.finished = true
	default:
		delete(o.running, sessionID)
	}
}

// batchOutcome is sent from a batch worker to the session writer
type batchOutcome struct {
	report ingest.BatchReport
	fatal  error
}

// ProcessBulkImport inserts records for a previewing session. Failed
// batches are isolated; the error return is reserved for session-fatal
// problems.
func (o *Orchestrator) ProcessBulkImport(ctx context.Context, sessionID string, records []ingest.Record, mapping ingest.MappingSet, entityType string) error {
	current, err := o.register(sessionID)
	if err != nil {
		return err
	}
	defer o.unregister(sessionID)

	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		o.logger.Error("Bulk import failed", zap.String("session_id", sessionID), zap.Error(err))
		ev := ingest.NewProgressEvent(ingest.EventError, sessionID)
		ev.Error = err.Error()
		o.publish(ev)
		return err
	}
	if err := session.Begin(len(records)); err != nil {
		return o.failSession(ctx, session, err)
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return o.failSession(ctx, session, fmt.Errorf("save session: %w", err))
	}

	ctx = ingest.ContextWithSession(ctx, sessionID)
	log := o.logger.With(zap.String("session_id", sessionID), zap.String("entity_type", entityType))
	projected := make([]ingest.Record, len(records))
	for i, r := range records {
		projected[i] = mapping.Project(r)
	}
	batches := ingest.Partition(projected, o.cfg.BatchSize)
	log.Info("Bulk import started", zap.Int("records", len(records)), zap.Int("batches", len(batches)))

	start := time.Now()
	outcomes := make(chan batchOutcome)
	writerDone := make(chan struct{})
	var fatal atomic.Pointer[error]

	// Single writer: only this goroutine touches session until writerDone
	go func() {
		defer close(writerDone)
		for out := range outcomes {
			if out.fatal != nil {
				fatal.CompareAndSwap(nil, &out.fatal)
				continue
			}
			o.applyOutcome(ctx, session, out.report, time.Since(start), &fatal)
		}
	}()

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	cancelled := current.cancelled.Load()
	if cancelled {
		batches = nil
	}
	for _, b := range batches {
		if current.cancelled.Load() || ctx.Err() != nil {
			cancelled = true
			break
		}
		if fatal.Load() != nil {
			break
		}
		g.Go(func() error {
			outcomes <- o.runBatch(ctx, b, entityType)
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	<-writerDone

	if errPtr := fatal.Load(); errPtr != nil {
		return o.failSession(ctx, session, *errPtr)
	}

	if cancelled {
		reason := "import cancelled by request"
		if ctx.Err() != nil {
			reason = fmt.Sprintf("import cancelled: %v", ctx.Err())
		}
		if err := session.Fail(ingest.ErrorLevelSession, reason); err != nil {
			return err
		}
		if err := o.sessions.Save(context.WithoutCancel(ctx), session); err != nil {
			log.Error("Failed to save cancelled session", zap.Error(err))
		}
		ev := ingest.NewProgressEvent(ingest.EventCancelled, sessionID)
		snap := session.Progress()
		ev.Progress = &snap
		o.publish(ev)
		log.Warn("Bulk import cancelled", zap.Int("processed", session.ProcessedRecords), zap.Int("total", session.TotalRecords))
		return nil
	}

	if err := session.Finish(); err != nil {
		return err
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return o.failSession(ctx, session, fmt.Errorf("save session: %w", err))
	}
	ev := ingest.NewProgressEvent(ingest.EventCompleted, sessionID)
	snap := session.Progress()
	ev.Progress = &snap
	o.publish(ev)

	log.Info("Bulk import finished",
		zap.String("status", string(session.Status)),
		zap.Int("successful", session.SuccessfulRecords),
		zap.Int("failed", session.FailedRecords),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// applyOutcome updates counters, persists the session and emits events.
// Only the writer goroutine calls it.
func (o *Orchestrator) applyOutcome(ctx context.Context, session *ingest.ImportSession, report ingest.BatchReport, elapsed time.Duration, fatal *atomic.Pointer[error]) {
	session.RecordBatch(report.Succeeded, report.Failed, elapsed)

	evType := ingest.EventBatchCompleted
	if report.Failed > 0 {
		evType = ingest.EventBatchFailed
		seq := report.Sequence
		session.LogError(ingest.SessionError{
			Level:   ingest.ErrorLevelBatch,
			Batch:   &seq,
			Message: fmt.Sprintf("batch %d failed after %d attempts: %s", report.Sequence, report.Attempts, report.Error),
		})
	}

	if err := o.sessions.Save(ctx, session); err != nil {
		wrapped := fmt.Errorf("save session: %w", err)
		fatal.CompareAndSwap(nil, &wrapped)
	}

	batchEv := ingest.NewProgressEvent(evType, session.ID)
	r := report
	batchEv.Batch = &r
	batchEv.Error = report.Error
	o.publish(batchEv)

	progressEv := ingest.NewProgressEvent(ingest.EventProgress, session.ID)
	snap := session.Progress()
	progressEv.Progress = &snap
	o.publish(progressEv)

	if o.observer != nil {
		o.observer.ObserveBatch(ctx, session.EntityType, report)
	}
}

// runBatch inserts one batch with retries. The batch succeeds or fails as a whole.
func (o *Orchestrator) runBatch(ctx context.Context, b ingest.Batch, entityType string) (out batchOutcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = batchOutcome{fatal: fmt.Errorf("panic in batch %d: %v", b.Sequence, r)}
		}
	}()

	report := ingest.BatchReport{Sequence: b.Sequence, Size: len(b.Records)}
	var lastErr error
	for attempt := 1; attempt <= o.cfg.RetryAttempts; attempt++ {
		report.Attempts = attempt
		results, err := o.store.InsertBatch(ctx, entityType, b.Records)
		if err == nil {
			err = checkResults(results, len(b.Records))
		}
		if err == nil {
			report.Succeeded = len(b.Records)
			report.Duration = time.Since(started)
			return batchOutcome{report: report}
		}
		lastErr = err
		o.logger.Debug("Batch attempt failed",
			zap.Int("batch", b.Sequence),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < o.cfg.RetryAttempts && !sleepCtx(ctx, o.cfg.RetryDelay*time.Duration(attempt)) {
			lastErr = ctx.Err()
			break
		}
	}

	report.Failed = len(b.Records)
	report.Duration = time.Since(started)
	if lastErr != nil {
		report.Error = lastErr.Error()
	}
	o.logger.Warn("Batch failed", zap.Int("batch", b.Sequence), zap.Int("attempts", report.Attempts), zap.Error(lastErr))
	return batchOutcome{report: report}
}

func checkResults(results []ingest.InsertResult, want int) error {
	if results == nil {
		return nil
	}
	if len(results) != want {
		return fmt.Errorf("%w: got %d results for %d records", ErrBatchRejected, len(results), want)
	}
	for i, r := range results {
		if !r.Success {
			return fmt.Errorf("%w: record %d: %s", ErrBatchRejected, i, r.Error)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// failSession marks the session failed, emits an error event and returns cause
func (o *Orchestrator) failSession(ctx context.Context, session *ingest.ImportSession, cause error) error {
	o.logger.Error("Bulk import failed", zap.String("session_id", session.ID), zap.Error(cause))
	if !session.IsTerminal() {
		_ = session.Fail(ingest.ErrorLevelSession, cause.Error())
		if err := o.sessions.Save(context.WithoutCancel(ctx), session); err != nil {
			o.logger.Error("Failed to save failed session", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	ev := ingest.NewProgressEvent(ingest.EventError, session.ID)
	ev.Error = cause.Error()
	snap := session.Progress()
	ev.Progress = &snap
	o.publish(ev)
	return cause
}

func (o *Orchestrator) publish(ev ingest.ProgressEvent) {
	if o.sink != nil {
		o.sink.Publish(ev)
	}
}
