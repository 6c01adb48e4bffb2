package ingestapp

import (
	"sync"
	"time"
)

// DefaultStoreTTL is how long working state is kept without access
const DefaultStoreTTL = 30 * time.Minute

type storeEntry[T any] struct {
	value     T
	touchedAt time.Time
}

// TTLStore keeps short-lived working state in memory. Entries expire ttl
// after their last Save or Get.
type TTLStore[T any] struct {
	entries map[string]*storeEntry[T]
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	stop    sync.Once
}

// NewTTLStore creates a store and starts its cleanup loop
func NewTTLStore[T any](ttl time.Duration) *TTLStore[T] {
	if ttl <= 0 {
		ttl = DefaultStoreTTL
	}
	s := &TTLStore[T]{
		entries: make(map[string]*storeEntry[T]),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go s.startCleanupLoop()
	return s
}

// startCleanupLoop periodically removes expired entries
func (s *TTLStore[T]) startCleanupLoop() {
	interval := s.ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup goroutine
func (s *TTLStore[T]) Stop() {
	s.stop.Do(func() { close(s.stopCh) })
}

// Save stores value under id
func (s *TTLStore[T]) Save(id string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &storeEntry[T]{value: value, touchedAt: s.now()}
}

// Get returns the value stored under id and refreshes its expiry
func (s *TTLStore[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	e, ok := s.entries[id]
	if !ok {
		return zero, false
	}
	if s.now().Sub(e.touchedAt) > s.ttl {
		delete(s.entries, id)
		return zero, false
	}
	e.touchedAt = s.now()
	return e.value, true
}

// Take removes and returns the value stored under id. Only one caller can
// take a given entry.
func (s *TTLStore[T]) Take(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	e, ok := s.entries[id]
	if !ok {
		return zero, false
	}
	delete(s.entries, id)
	if s.now().Sub(e.touchedAt) > s.ttl {
		return zero, false
	}
	return e.value, true
}

// Delete removes id
func (s *TTLStore[T]) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len returns the number of stored entries, expired or not
func (s *TTLStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cleanup removes expired entries
func (s *TTLStore[T]) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.entries {
		if now.Sub(e.touchedAt) > s.ttl {
			delete(s.entries, id)
		}
	}
}
