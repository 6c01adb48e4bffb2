package ingestapp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/domain/shared"
)

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*ingest.ImportSession
	saves    atomic.Int64
	failAt   int64
	// beforeSave runs outside the lock ahead of every Save
	beforeSave func(*ingest.ImportSession)
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]*ingest.ImportSession)}
}

func (m *memorySessions) Save(_ context.Context, s *ingest.ImportSession) error {
	if m.beforeSave != nil {
		m.beforeSave(s)
	}
	n := m.saves.Add(1)
	if m.failAt > 0 && n >= m.failAt {
		return errors.New("database unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memorySessions) FindByID(_ context.Context, id string) (*ingest.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memorySessions) List(_ context.Context, filter ingest.SessionFilter) ([]*ingest.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ingest.ImportSession
	for _, s := range m.sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	return out, nil
}

// fakeStore fails every record whose "offset" lies in [failFrom, failTo)
type fakeStore struct {
	mu       sync.Mutex
	inserted []ingest.Record
	calls    atomic.Int64
	failFrom int
	failTo   int
	onInsert func()
}

func (f *fakeStore) InsertBatch(_ context.Context, _ string, records []ingest.Record) ([]ingest.InsertResult, error) {
	f.calls.Add(1)
	if f.onInsert != nil {
		f.onInsert()
	}
	for _, r := range records {
		if off, ok := r["offset"].(int); ok && off >= f.failFrom && off < f.failTo {
			return nil, errors.New("constraint violation")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, records...)
	return nil, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []ingest.ProgressEvent
}

func (r *eventRecorder) Publish(ev ingest.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t ingest.EventType) []ingest.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ingest.ProgressEvent
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) all() []ingest.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ingest.ProgressEvent(nil), r.events...)
}
