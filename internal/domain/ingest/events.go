package ingest

import "time"

// EventType names a progress lifecycle event
type EventType string

const (
	EventProgress       EventType = "progress"
	EventBatchCompleted EventType = "batchCompleted"
	EventBatchFailed    EventType = "batchFailed"
	EventCompleted      EventType = "completed"
	EventError          EventType = "error"
	EventCancelled      EventType = "cancelled"
)

// BatchReport describes the outcome of one batch
type BatchReport struct {
	Sequence  int           `json:"sequence"`
	Size      int           `json:"size"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// ProgressEvent is emitted by the orchestrator to a ProgressSink
type ProgressEvent struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Progress  *ProgressSnapshot `json:"progress,omitempty"`
	Batch     *BatchReport      `json:"batch,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// NewProgressEvent creates an event stamped with the current time
func NewProgressEvent(t EventType, sessionID string) ProgressEvent {
	return ProgressEvent{Type: t, SessionID: sessionID, Timestamp: time.Now()}
}

// IsFinal reports whether no further events follow for the session
func (e ProgressEvent) IsFinal() bool {
	return e.Type == EventCompleted || e.Type == EventCancelled || e.Type == EventError
}
