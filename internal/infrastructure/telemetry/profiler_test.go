package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/erp/ingest/internal/infrastructure/config"
)

func TestProfilerConfigFrom(t *testing.T) {
	cfg := ProfilerConfigFrom(config.TelemetryConfig{
		ServiceName: "catalog-ingest",
		Profiling:   config.ProfilingConfig{Enabled: true, ServerAddress: "http://pyroscope:4040"},
	})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "catalog-ingest", cfg.ApplicationName)
	assert.Equal(t, "http://pyroscope:4040", cfg.ServerAddress)
}

func TestNewProfiler(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("disabled", func(t *testing.T) {
		p, err := NewProfiler(ProfilerConfig{}, logger)
		require.NoError(t, err)
		assert.False(t, p.IsEnabled())
		assert.NoError(t, p.Stop())
		assert.NoError(t, p.Stop())
	})

	t.Run("missing address", func(t *testing.T) {
		_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "x"}, logger)
		assert.ErrorContains(t, err, "server address")
	})

	t.Run("missing application", func(t *testing.T) {
		_, err := NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, logger)
		assert.ErrorContains(t, err, "application name")
	})
}

func TestSanitizeLabels(t *testing.T) {
	long := strings.Repeat("a", MaxLabelValueLength+10)
	pairs := sanitizeLabels(map[string]string{
		ProfilingLabelStage:      "insert",
		ProfilingLabelEntityType: "product",
		"session_id":             "abc",
		"empty":                  "",
		ProfilingLabelRoute:      long,
	})
	require.Len(t, pairs, 6)
	assert.Equal(t, []string{ProfilingLabelEntityType, "product"}, pairs[0:2])
	assert.Equal(t, ProfilingLabelRoute, pairs[2])
	assert.Len(t, pairs[3], MaxLabelValueLength)
	assert.Equal(t, []string{ProfilingLabelStage, "insert"}, pairs[4:6])
}

func TestWithProfilingLabels(t *testing.T) {
	var got string
	var ok bool
	WithProfilingLabels(context.Background(), map[string]string{ProfilingLabelStage: "analyze"}, func(ctx context.Context) {
		got, ok = pprof.Label(ctx, ProfilingLabelStage)
	})
	assert.True(t, ok)
	assert.Equal(t, "analyze", got)

	called := false
	WithProfilingLabels(context.Background(), map[string]string{"request_id": "r1"}, func(ctx context.Context) {
		called = true
		_, ok = pprof.Label(ctx, "request_id")
	})
	assert.True(t, called)
	assert.False(t, ok)
}

func TestEnableSpanProfiles(t *testing.T) {
	logger := zaptest.NewLogger(t)
	defer otel.SetTracerProvider(otel.GetTracerProvider())

	disabled, err := NewTracerProvider(context.Background(), Config{}, logger)
	require.NoError(t, err)
	disabled.EnableSpanProfiles()
	assert.False(t, disabled.spanProfilesEnabled)

	tp := NewTracerProviderWithExporter(tracetest.NewInMemoryExporter(), logger)
	tp.EnableSpanProfiles()
	assert.True(t, tp.spanProfilesEnabled)
	assert.NotEqual(t, any(tp.provider), any(otel.GetTracerProvider()))

	tp.EnableSpanProfiles()
	assert.True(t, tp.spanProfilesEnabled)
	require.NoError(t, tp.Shutdown(context.Background()))
}
