package dto

import (
	"time"

	ingestapp "github.com/erp/ingest/internal/application/ingest"
	"github.com/erp/ingest/internal/domain/ingest"
)

// UploadForm is the non-file part of an upload request
type UploadForm struct {
	EntityType string `form:"entity_type" binding:"omitempty,max=64"`
}

// ListSessionsQuery filters the session list
type ListSessionsQuery struct {
	Status     string `form:"status" binding:"omitempty,oneof=initiated analyzing mapping previewing processing completed completed_with_errors failed"`
	EntityType string `form:"entity_type" binding:"omitempty,max=64"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=200"`
	SortBy     string `form:"sort_by" binding:"omitempty,max=32"`
	SortOrder  string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// PreviewQuery selects how many preview rows to return
type PreviewQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// MappingOverrideRequest replaces the targets of some source columns
type MappingOverrideRequest struct {
	Overrides []ingestapp.MappingOverride `json:"overrides" binding:"required,min=1,dive"`
}

// ApplyFixesRequest selects which proposed fixes to apply.
// An empty list applies every auto-eligible fix.
type ApplyFixesRequest struct {
	Fixes []FixKeyRequest `json:"fixes" binding:"omitempty,dive"`
}

// FixKeyRequest identifies one proposed fix
type FixKeyRequest struct {
	RecordIndex *int   `json:"recordIndex" binding:"required,min=0"`
	Field       string `json:"field" binding:"required"`
}

// Keys converts the request into fix keys; nil when no fixes were named
func (r ApplyFixesRequest) Keys() []ingestapp.FixKey {
	if len(r.Fixes) == 0 {
		return nil
	}
	keys := make([]ingestapp.FixKey, len(r.Fixes))
	for i, f := range r.Fixes {
		keys[i] = ingestapp.FixKey{RecordIndex: *f.RecordIndex, Field: f.Field}
	}
	return keys
}

// SessionFilter converts the query into a repository filter
func (q ListSessionsQuery) SessionFilter() ingest.SessionFilter {
	return ingest.SessionFilter{
		Status:     ingest.SessionStatus(q.Status),
		EntityType: q.EntityType,
		Limit:      q.Limit,
		SortBy:     q.SortBy,
		SortOrder:  q.SortOrder,
	}
}

// ProcessAcceptedResponse is returned when asynchronous processing starts
type ProcessAcceptedResponse struct {
	SessionID string               `json:"session_id"`
	Status    ingest.SessionStatus `json:"status"`
	EventsURL string               `json:"events_url"`
}

// HealthResponse reports the state of the service and its dependencies
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Timestamp    time.Time         `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}
