package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/config"
)

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.TelemetryConfig{Enabled: true, MetricsEnabled: true, CollectorEndpoint: "otel:4317", SamplingRatio: 0.5, ServiceName: "catalog-ingest"})
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "otel:4317", cfg.CollectorEndpoint)
	assert.Equal(t, "catalog-ingest", cfg.ServiceName)
}

func TestProvidersDisabled(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	tp, err := NewTracerProvider(ctx, Config{}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, Config{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := NewLoggerProvider(ctx, Config{}, logger)
	require.NoError(t, err)
	assert.Same(t, logger, lp.Bridge(logger, zapcore.InfoLevel))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", samplerFor(1).Description())
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestIngestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := NewMeterProviderWithReader(reader, zap.NewNop())
	defer mp.Shutdown(context.Background())

	m, err := NewIngestMetrics(mp.Meter("ingest"))
	require.NoError(t, err)
	ctx := context.Background()

	m.ObserveBatch(ctx, "product", ingest.BatchReport{Sequence: 1, Size: 100, Succeeded: 100, Attempts: 1, Duration: 20 * time.Millisecond})
	m.ObserveBatch(ctx, "product", ingest.BatchReport{Sequence: 2, Size: 50, Failed: 50, Attempts: 3, Duration: time.Second})
	m.Publish(ingest.NewProgressEvent(ingest.EventProgress, "s1"))
	m.Publish(ingest.NewProgressEvent(ingest.EventCompleted, "s1"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(150), sumOf(t, rm, "ingest_records_total"))
	assert.Equal(t, int64(2), sumOf(t, rm, "ingest_batches_total"))
	assert.Equal(t, int64(2), sumOf(t, rm, "ingest_batch_retries_total"))
	assert.Equal(t, int64(1), sumOf(t, rm, "ingest_sessions_total"))

	_, err = NewIngestMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestDBTracingPlugin(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := NewTracerProviderWithExporter(exporter, zap.NewNop())
	defer tp.Shutdown(context.Background())

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond, DBName: "ingest", WithoutVariables: true}, zaptest.NewLogger(t))
	require.NoError(t, plugin.Register(db))

	type widget struct {
		ID   uint
		Name string
	}
	require.NoError(t, db.AutoMigrate(&widget{}))

	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "a"}).Error)
	span.End()

	spans := exporter.GetSpans()
	var dbSpans int
	for _, s := range spans {
		if s.Parent.SpanID() == span.SpanContext().SpanID() {
			dbSpans++
		}
	}
	assert.GreaterOrEqual(t, dbSpans, 1, "insert traced under the caller span")

	disabled := NewDBTracingPlugin(DBTracingConfig{}, zap.NewNop())
	assert.NoError(t, disabled.Register(db))
}

type recordingExporter struct {
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.records = append(e.records, records...)
	return nil
}
func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestLoggerProvider_Bridge(t *testing.T) {
	exporter := &recordingExporter{}
	lp := NewLoggerProviderWithExporter(exporter, "catalog-ingest", zap.NewNop())
	defer lp.Shutdown(context.Background())

	core, logs := observer.New(zapcore.DebugLevel)
	bridged := lp.Bridge(zap.New(core), zapcore.WarnLevel)

	bridged.Info("batch done")
	bridged.Warn("batch failed", zap.Error(errors.New("constraint")))

	assert.Equal(t, 2, logs.Len(), "base logger keeps everything")
	require.Len(t, exporter.records, 1)
	assert.Equal(t, "batch failed", exporter.records[0].Body().AsString())
}
