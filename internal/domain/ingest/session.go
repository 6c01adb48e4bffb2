package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/ingest/internal/domain/shared"
	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of an import session
type SessionStatus string

const (
	StatusInitiated           SessionStatus = "initiated"
	StatusAnalyzing           SessionStatus = "analyzing"
	StatusMapping             SessionStatus = "mapping"
	StatusPreviewing          SessionStatus = "previewing"
	StatusProcessing          SessionStatus = "processing"
	StatusCompleted           SessionStatus = "completed"
	StatusCompletedWithErrors SessionStatus = "completed_with_errors"
	StatusFailed              SessionStatus = "failed"
)

// statusRank orders the forward-only states. The two completed states share a rank.
var statusRank = map[SessionStatus]int{
	StatusInitiated:           0,
	StatusAnalyzing:           1,
	StatusMapping:             2,
	StatusPreviewing:          3,
	StatusProcessing:          4,
	StatusCompleted:           5,
	StatusCompletedWithErrors: 5,
}

// IsValid checks if the status is valid
func (s SessionStatus) IsValid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// IsTerminal returns true if this is a terminal state
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithErrors || s == StatusFailed
}

// ErrorLevel is the granularity an error log entry refers to
type ErrorLevel string

const (
	ErrorLevelFile    ErrorLevel = "file"
	ErrorLevelMapping ErrorLevel = "mapping"
	ErrorLevelRecord  ErrorLevel = "record"
	ErrorLevelBatch   ErrorLevel = "batch"
	ErrorLevelSession ErrorLevel = "session"
)

// SessionError is one entry of the session error log
type SessionError struct {
	Level       ErrorLevel `json:"level"`
	Message     string     `json:"message"`
	RecordIndex *int       `json:"record_index,omitempty"`
	Batch       *int       `json:"batch,omitempty"`
	Field       string     `json:"field,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// SourceFile describes the uploaded file
type SourceFile struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	DetectedType string `json:"detected_type"`
	Encoding     string `json:"encoding,omitempty"`
	ArchiveKey   string `json:"archive_key,omitempty"`
}

// ProgressSnapshot is a point-in-time copy of the session counters
type ProgressSnapshot struct {
	Status                 SessionStatus `json:"status"`
	TotalRecords           int           `json:"total_records"`
	ProcessedRecords       int           `json:"processed_records"`
	SuccessfulRecords      int           `json:"successful_records"`
	FailedRecords          int           `json:"failed_records"`
	ProcessingRate         float64       `json:"processing_rate"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	Percent                float64       `json:"percent"`
}

// ImportSession tracks one end-to-end ingestion run
type ImportSession struct {
	ID                     string         `json:"id"`
	Status                 SessionStatus  `json:"status"`
	EntityType             string         `json:"entity_type"`
	Source                 SourceFile     `json:"source"`
	TotalRecords           int            `json:"total_records"`
	ProcessedRecords       int            `json:"processed_records"`
	SuccessfulRecords      int            `json:"successful_records"`
	FailedRecords          int            `json:"failed_records"`
	SkippedRecords         int            `json:"skipped_records"`
	SourceFields           []SourceField  `json:"source_fields,omitempty"`
	Mappings               []FieldMapping `json:"mappings,omitempty"`
	ProcessingRate         float64        `json:"processing_rate"`
	EstimatedTimeRemaining time.Duration  `json:"estimated_time_remaining"`
	ErrorLog               []SessionError `json:"error_log,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	StartedAt              *time.Time     `json:"started_at,omitempty"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty"`
}

// NewImportSession creates a session in the initiated state
func NewImportSession(entityType string, source SourceFile) (*ImportSession, error) {
	if entityType == "" {
		return nil, shared.NewDomainError("INVALID_ENTITY_TYPE", "Entity type cannot be empty")
	}
	if source.Name == "" {
		return nil, shared.NewDomainError("INVALID_FILE_NAME", "File name cannot be empty")
	}
	if source.Size < 0 {
		return nil, shared.NewDomainError("INVALID_FILE_SIZE", "File size cannot be negative")
	}

	now := time.Now()
	return &ImportSession{
		ID:         uuid.NewString(),
		Status:     StatusInitiated,
		EntityType: entityType,
		Source:     source,
		ErrorLog:   make([]SessionError, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CanTransitionTo reports whether moving to next keeps the status monotonic
func (s *ImportSession) CanTransitionTo(next SessionStatus) bool {
	if s.Status.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank[next] > statusRank[s.Status]
}

// TransitionTo moves the session forward
func (s *ImportSession) TransitionTo(next SessionStatus) error {
	if !s.CanTransitionTo(next) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot move import session from %s to %s", s.Status, next))
	}
	now := time.Now()
	s.Status = next
	s.UpdatedAt = now
	if next.IsTerminal() {
		s.CompletedAt = &now
	}
	return nil
}

// Fail marks the session as failed and records the reason
func (s *ImportSession) Fail(level ErrorLevel, message string) error {
	if err := s.TransitionTo(StatusFailed); err != nil {
		return err
	}
	s.LogError(SessionError{Level: level, Message: message})
	return nil
}

// LogError appends an entry to the error log
func (s *ImportSession) LogError(entry SessionError) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	s.ErrorLog = append(s.ErrorLog, entry)
	s.UpdatedAt = entry.OccurredAt
}

// Begin enters the processing state with a fresh set of counters
func (s *ImportSession) Begin(total int) error {
	if total < 0 {
		return shared.NewDomainError("INVALID_TOTAL_RECORDS", "Total records cannot be negative")
	}
	if err := s.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	now := time.Now()
	s.TotalRecords = total
	s.ProcessedRecords = 0
	s.SuccessfulRecords = 0
	s.FailedRecords = 0
	s.ProcessingRate = 0
	s.EstimatedTimeRemaining = 0
	s.StartedAt = &now
	return nil
}

// RecordBatch adds the outcome of one batch and refreshes rate and ETA.
// Counters never decrease.
func (s *ImportSession) RecordBatch(succeeded, failed int, elapsed time.Duration) {
	if succeeded < 0 {
		succeeded = 0
	}
	if failed < 0 {
		failed = 0
	}
	s.SuccessfulRecords += succeeded
	s.FailedRecords += failed
	s.ProcessedRecords += succeeded + failed

	if secs := elapsed.Seconds(); secs > 0 {
		s.ProcessingRate = float64(s.ProcessedRecords) / secs
	}
	remaining := s.TotalRecords - s.ProcessedRecords
	switch {
	case remaining <= 0:
		s.EstimatedTimeRemaining = 0
	case s.ProcessingRate > 0:
		s.EstimatedTimeRemaining = time.Duration(float64(remaining) / s.ProcessingRate * float64(time.Second))
	}
	s.UpdatedAt = time.Now()
}

// Finish moves a processing session to its completed state
func (s *ImportSession) Finish() error {
	if s.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot complete import session from state: %s", s.Status))
	}
	if s.FailedRecords > 0 {
		return s.TransitionTo(StatusCompletedWithErrors)
	}
	return s.TransitionTo(StatusCompleted)
}

// IsTerminal returns true if the session can no longer change state
func (s *ImportSession) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Progress returns a snapshot of the counters
func (s *ImportSession) Progress() ProgressSnapshot {
	var pct float64
	if s.TotalRecords > 0 {
		pct = float64(s.ProcessedRecords) / float64(s.TotalRecords) * 100
	}
	return ProgressSnapshot{
		Status:                 s.Status,
		TotalRecords:           s.TotalRecords,
		ProcessedRecords:       s.ProcessedRecords,
		SuccessfulRecords:      s.SuccessfulRecords,
		FailedRecords:          s.FailedRecords,
		ProcessingRate:         s.ProcessingRate,
		EstimatedTimeRemaining: s.EstimatedTimeRemaining,
		Percent:                pct,
	}
}

// Clone returns a deep copy safe to hand to other goroutines
func (s *ImportSession) Clone() *ImportSession {
	c := *s
	c.SourceFields = append([]SourceField(nil), s.SourceFields...)
	c.Mappings = append([]FieldMapping(nil), s.Mappings...)
	c.ErrorLog = append([]SessionError(nil), s.ErrorLog...)
	return &c
}

// ErrorLogJSON returns the error log as a JSON string
func (s *ImportSession) ErrorLogJSON() (string, error) {
	if len(s.ErrorLog) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s.ErrorLog)
	if err != nil {
		return "", fmt.Errorf("failed to marshal error log: %w", err)
	}
	return string(data), nil
}

// SetErrorLogFromJSON parses the error log from a JSON string
func (s *ImportSession) SetErrorLogFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		s.ErrorLog = make([]SessionError, 0)
		return nil
	}
	var entries []SessionError
	if err := json.Unmarshal([]byte(jsonStr), &entries); err != nil {
		return fmt.Errorf("failed to unmarshal error log: %w", err)
	}
	s.ErrorLog = entries
	return nil
}
