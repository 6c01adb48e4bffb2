package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/erp/ingest/internal/domain/ingest"
)

// IngestMetrics records pipeline metrics. It observes batches for the
// orchestrator and counts finished runs as a progress sink.
type IngestMetrics struct {
	recordsTotal  *Counter
	batchesTotal  *Counter
	retriesTotal  *Counter
	sessionsTotal *Counter
	batchDuration *Histogram
}

// NewIngestMetrics registers the ingest instruments on meter
func NewIngestMetrics(meter metric.Meter) (*IngestMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &IngestMetrics{}
	var err error
	if m.recordsTotal, err = NewCounter(meter, "ingest_records_total", "Records written or rejected by batch inserts", "{records}"); err != nil {
		return nil, err
	}
	if m.batchesTotal, err = NewCounter(meter, "ingest_batches_total", "Batches processed", "{batches}"); err != nil {
		return nil, err
	}
	if m.retriesTotal, err = NewCounter(meter, "ingest_batch_retries_total", "Batch attempts beyond the first", "{attempts}"); err != nil {
		return nil, err
	}
	if m.sessionsTotal, err = NewCounter(meter, "ingest_sessions_total", "Import runs that finished, by outcome", "{sessions}"); err != nil {
		return nil, err
	}
	if m.batchDuration, err = NewHistogram(meter, "ingest_batch_duration_seconds", "Batch insert duration including retries", "s", BatchDurationBuckets...); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveBatch records one finished batch
func (m *IngestMetrics) ObserveBatch(ctx context.Context, entityType string, report ingest.BatchReport) {
	entity := AttrEntityType.String(entityType)
	outcome := "succeeded"
	if report.Failed > 0 {
		outcome = "failed"
	}
	m.batchesTotal.Add(ctx, 1, entity, AttrOutcome.String(outcome))
	if report.Succeeded > 0 {
		m.recordsTotal.Add(ctx, int64(report.Succeeded), entity, AttrOutcome.String("succeeded"))
	}
	if report.Failed > 0 {
		m.recordsTotal.Add(ctx, int64(report.Failed), entity, AttrOutcome.String("failed"))
	}
	if report.Attempts > 1 {
		m.retriesTotal.Add(ctx, int64(report.Attempts-1), entity)
	}
	m.batchDuration.RecordDuration(ctx, report.Duration, entity, AttrOutcome.String(outcome))
}

// Publish counts final progress events per outcome. It lets the metrics
// join the progress fan-out alongside the SSE broker.
func (m *IngestMetrics) Publish(ev ingest.ProgressEvent) {
	if !ev.IsFinal() {
		return
	}
	m.sessionsTotal.Add(context.Background(), 1, AttrOutcome.String(string(ev.Type)))
}
