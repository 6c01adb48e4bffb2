package ingest

import (
	"context"
	"time"
)

// RecordStore persists mapped records. InsertBatch must be atomic per call:
// either every record of the batch is stored or the call returns an error.
type RecordStore interface {
	InsertBatch(ctx context.Context, entityType string, records []Record) ([]InsertResult, error)
}

// CachedMapping is one accepted (source, target) pair
type CachedMapping struct {
	SourceField string    `json:"source_field"`
	TargetField string    `json:"target_field"`
	Confidence  float64   `json:"confidence"`
	Strategy    string    `json:"strategy"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MappingPair is a source column paired with a target field
type MappingPair struct {
	SourceField string
	TargetField string
}

// MappingCacheStore keeps previously accepted mappings. Upsert only replaces
// a stored entry when the new confidence is higher.
type MappingCacheStore interface {
	// Lookup returns the stored confidence of every known pair among
	// sourceFields x targetFields, keyed by the names as passed in
	Lookup(ctx context.Context, sourceFields, targetFields []string) (map[MappingPair]float64, error)
	Upsert(ctx context.Context, m CachedMapping) error
}

// OracleSuggestion is one mapping proposed by an external oracle
type OracleSuggestion struct {
	SourceField string  `json:"sourceField" validate:"required"`
	TargetField string  `json:"targetField" validate:"required"`
	Confidence  float64 `json:"confidence" validate:"gte=0,lte=100"`
	Reasoning   string  `json:"reasoning"`
}

// OracleRequest asks an oracle to map source columns onto target fields
type OracleRequest struct {
	SourceFields []string
	SampleRows   [][]string
	TargetFields []string
	MaxCostUSD   float64
}

// OracleResponse is the oracle's answer
type OracleResponse struct {
	Mappings   []OracleSuggestion
	TokensUsed int
	CostUSD    float64
}

// MappingOracle suggests mappings for columns the local strategies could
// not place. Implementations must respect ctx and MaxCostUSD.
type MappingOracle interface {
	SuggestMappings(ctx context.Context, req OracleRequest) (*OracleResponse, error)
}

// ProgressSink consumes progress events
type ProgressSink interface {
	Publish(ev ProgressEvent)
}

// ProgressSinkFunc adapts a function to ProgressSink
type ProgressSinkFunc func(ProgressEvent)

// Publish calls f(ev)
func (f ProgressSinkFunc) Publish(ev ProgressEvent) { f(ev) }

// SessionFilter narrows session listings
type SessionFilter struct {
	Status     SessionStatus
	EntityType string
	Limit      int
	// SortBy names a session column; unknown columns fall back to created_at
	SortBy string
	// SortOrder is ASC or DESC; anything else means DESC
	SortOrder string
}

// SessionRepository persists import sessions
type SessionRepository interface {
	Save(ctx context.Context, session *ImportSession) error
	FindByID(ctx context.Context, id string) (*ImportSession, error)
	List(ctx context.Context, filter SessionFilter) ([]*ImportSession, error)
}

// RawArchive stores uploaded files and returns the key they were stored under
type RawArchive interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}
