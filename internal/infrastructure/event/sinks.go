package event

import (
	"go.uber.org/zap"

	"github.com/erp/ingest/internal/domain/ingest"
)

// MultiSink forwards each event to every sink in order. A panicking sink is
// logged and skipped.
type MultiSink struct {
	sinks  []ingest.ProgressSink
	logger *zap.Logger
}

// NewMultiSink combines sinks; nil entries are ignored
func NewMultiSink(logger *zap.Logger, sinks ...ingest.ProgressSink) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MultiSink{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish implements ingest.ProgressSink
func (m *MultiSink) Publish(ev ingest.ProgressEvent) {
	for _, s := range m.sinks {
		m.dispatch(s, ev)
	}
}

func (m *MultiSink) dispatch(s ingest.ProgressSink, ev ingest.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("progress sink panicked",
				zap.String("event_type", string(ev.Type)),
				zap.String("session_id", ev.SessionID),
				zap.Any("panic", r),
			)
		}
	}()
	s.Publish(ev)
}

// LogSink writes progress events to a zap logger. Per-batch progress goes to
// debug; lifecycle and failure events go to info or warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a logging sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("progress")}
}

// Publish implements ingest.ProgressSink
func (s *LogSink) Publish(ev ingest.ProgressEvent) {
	fields := []zap.Field{
		zap.String("session_id", ev.SessionID),
		zap.String("event_type", string(ev.Type)),
	}
	if p := ev.Progress; p != nil {
		fields = append(fields,
			zap.Int("processed", p.ProcessedRecords),
			zap.Int("total", p.TotalRecords),
			zap.Float64("percent", p.Percent),
		)
	}
	if b := ev.Batch; b != nil {
		fields = append(fields,
			zap.Int("batch", b.Sequence),
			zap.Int("succeeded", b.Succeeded),
			zap.Int("failed", b.Failed),
			zap.Int("attempts", b.Attempts),
			zap.Duration("duration", b.Duration),
		)
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}

	switch ev.Type {
	case ingest.EventProgress, ingest.EventBatchCompleted:
		s.logger.Debug("Import progress", fields...)
	case ingest.EventBatchFailed, ingest.EventError:
		s.logger.Warn("Import problem", fields...)
	default:
		s.logger.Info("Import finished", fields...)
	}
}

var (
	_ ingest.ProgressSink = (*MultiSink)(nil)
	_ ingest.ProgressSink = (*LogSink)(nil)
)
