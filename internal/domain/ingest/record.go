package ingest

import "context"

type sessionCtxKey struct{}

// ContextWithSession tags ctx with the import session the work belongs to
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionFromContext returns the session id set by ContextWithSession
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}

// Record is one row keyed by field name
type Record map[string]any

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the value of field as trimmed text, or "" when absent
func (r Record) String(field string) string {
	return ToText(r[field])
}

// IsBlank reports whether field is absent, nil or whitespace
func (r Record) IsBlank(field string) bool {
	return r.String(field) == ""
}

// InsertResult is the outcome of inserting one record of a batch
type InsertResult struct {
	Success    bool   `json:"success"`
	InsertedID string `json:"inserted_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Batch is a contiguous slice of records processed as one unit
type Batch struct {
	Sequence int
	Offset   int
	Records  []Record
}

// Partition splits records into batches of at most size records
func Partition(records []Record, size int) []Batch {
	if size <= 0 {
		size = 1
	}
	batches := make([]Batch, 0, (len(records)+size-1)/size)
	for offset, seq := 0, 1; offset < len(records); offset, seq = offset+size, seq+1 {
		end := offset + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, Batch{Sequence: seq, Offset: offset, Records: records[offset:end]})
	}
	return batches
}
