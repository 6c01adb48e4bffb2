package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
)

// MemorySessionRepository keeps sessions in memory. Stored sessions are deep
// copies so callers never share state with the repository.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemorySessionRepository creates an empty repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string][]byte)}
}

// Save stores a copy of session
func (r *MemorySessionRepository) Save(_ context.Context, session *ingest.ImportSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = data
	return nil
}

// FindByID returns a copy of the stored session
func (r *MemorySessionRepository) FindByID(_ context.Context, id string) (*ingest.ImportSession, error) {
	r.mu.RLock()
	data, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, shared.ErrNotFound
	}
	return decodeSession(data)
}

// List returns sessions newest first
func (r *MemorySessionRepository) List(_ context.Context, filter ingest.SessionFilter) ([]*ingest.ImportSession, error) {
	r.mu.RLock()
	out := make([]*ingest.ImportSession, 0, len(r.sessions))
	for _, data := range r.sessions {
		s, err := decodeSession(data)
		if err != nil {
			r.mu.RUnlock()
			return nil, err
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.EntityType != "" && s.EntityType != filter.EntityType {
			continue
		}
		out = append(out, s)
	}
	r.mu.RUnlock()

	less := sessionLess(ValidateSortField(filter.SortBy, SessionSortFields, "created_at"))
	if ValidateSortOrder(filter.SortOrder) == "ASC" {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return less(out[j], out[i]) })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sessionLess(field string) func(a, b *ingest.ImportSession) bool {
	switch field {
	case "id":
		return func(a, b *ingest.ImportSession) bool { return a.ID < b.ID }
	case "updated_at":
		return func(a, b *ingest.ImportSession) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "status":
		return func(a, b *ingest.ImportSession) bool { return a.Status < b.Status }
	case "entity_type":
		return func(a, b *ingest.ImportSession) bool { return a.EntityType < b.EntityType }
	case "total_records":
		return func(a, b *ingest.ImportSession) bool { return a.TotalRecords < b.TotalRecords }
	case "successful_records":
		return func(a, b *ingest.ImportSession) bool { return a.SuccessfulRecords < b.SuccessfulRecords }
	case "failed_records":
		return func(a, b *ingest.ImportSession) bool { return a.FailedRecords < b.FailedRecords }
	case "completed_at":
		return func(a, b *ingest.ImportSession) bool {
			if a.CompletedAt == nil || b.CompletedAt == nil {
				return a.CompletedAt == nil && b.CompletedAt != nil
			}
			return a.CompletedAt.Before(*b.CompletedAt)
		}
	default:
		return func(a, b *ingest.ImportSession) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

func decodeSession(data []byte) (*ingest.ImportSession, error) {
	var s ingest.ImportSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

var _ ingest.SessionRepository = (*MemorySessionRepository)(nil)
