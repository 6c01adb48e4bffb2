package models

import (
	"time"

	"github.com/erp/ingest/internal/domain/ingest"
)

// ImportSessionModel is the persistence model for ingest.ImportSession.
// Nested collections are stored as JSON text so the same schema runs on
// PostgreSQL and SQLite.
type ImportSessionModel struct {
	ID                     string                `gorm:"type:varchar(36);primaryKey"`
	Status                 string                `gorm:"type:varchar(32);not null;index"`
	EntityType             string                `gorm:"type:varchar(64);not null;index"`
	Source                 ingest.SourceFile     `gorm:"type:text;serializer:json"`
	TotalRecords           int                   `gorm:"not null;default:0"`
	ProcessedRecords       int                   `gorm:"not null;default:0"`
	SuccessfulRecords      int                   `gorm:"not null;default:0"`
	FailedRecords          int                   `gorm:"not null;default:0"`
	SkippedRecords         int                   `gorm:"not null;default:0"`
	SourceFields           []ingest.SourceField  `gorm:"type:text;serializer:json"`
	Mappings               []ingest.FieldMapping `gorm:"type:text;serializer:json"`
	ProcessingRate         float64               `gorm:"not null;default:0"`
	EstimatedTimeRemaining int64                 `gorm:"not null;default:0"`
	ErrorLog               []ingest.SessionError `gorm:"type:text;serializer:json"`
	CreatedAt              time.Time             `gorm:"not null;index"`
	UpdatedAt              time.Time             `gorm:"not null"`
	StartedAt              *time.Time
	CompletedAt            *time.Time
}

// TableName returns the table name for GORM
func (ImportSessionModel) TableName() string {
	return "import_sessions"
}

// ToDomain converts the persistence model to a domain ImportSession
func (m *ImportSessionModel) ToDomain() *ingest.ImportSession {
	s := &ingest.ImportSession{
		ID:                     m.ID,
		Status:                 ingest.SessionStatus(m.Status),
		EntityType:             m.EntityType,
		Source:                 m.Source,
		TotalRecords:           m.TotalRecords,
		ProcessedRecords:       m.ProcessedRecords,
		SuccessfulRecords:      m.SuccessfulRecords,
		FailedRecords:          m.FailedRecords,
		SkippedRecords:         m.SkippedRecords,
		SourceFields:           m.SourceFields,
		Mappings:               m.Mappings,
		ProcessingRate:         m.ProcessingRate,
		EstimatedTimeRemaining: time.Duration(m.EstimatedTimeRemaining),
		ErrorLog:               m.ErrorLog,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
		StartedAt:              m.StartedAt,
		CompletedAt:            m.CompletedAt,
	}
	if s.ErrorLog == nil {
		s.ErrorLog = make([]ingest.SessionError, 0)
	}
	return s
}

// ImportSessionModelFromDomain creates a persistence model from a domain session
func ImportSessionModelFromDomain(s *ingest.ImportSession) *ImportSessionModel {
	return &ImportSessionModel{
		ID:                     s.ID,
		Status:                 string(s.Status),
		EntityType:             s.EntityType,
		Source:                 s.Source,
		TotalRecords:           s.TotalRecords,
		ProcessedRecords:       s.ProcessedRecords,
		SuccessfulRecords:      s.SuccessfulRecords,
		FailedRecords:          s.FailedRecords,
		SkippedRecords:         s.SkippedRecords,
		SourceFields:           s.SourceFields,
		Mappings:               s.Mappings,
		ProcessingRate:         s.ProcessingRate,
		EstimatedTimeRemaining: int64(s.EstimatedTimeRemaining),
		ErrorLog:               s.ErrorLog,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
		StartedAt:              s.StartedAt,
		CompletedAt:            s.CompletedAt,
	}
}
