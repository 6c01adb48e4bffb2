package event

import (
	"sync"

	"github.com/erp/ingest/internal/domain/ingest"
)

// subscriber is one listener on a session's progress stream
type subscriber struct {
	ch     chan ingest.ProgressEvent
	closed bool
}

// SubscriberRegistry tracks progress subscribers per session.
// An empty session ID subscribes to every session.
type SubscriberRegistry struct {
	mu       sync.Mutex
	sessions map[string][]*subscriber
	wildcard []*subscriber
}

// NewSubscriberRegistry creates an empty registry
func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{sessions: make(map[string][]*subscriber)}
}

func (r *SubscriberRegistry) add(sessionID string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sessionID == "" {
		r.wildcard = append(r.wildcard, sub)
		return
	}
	r.sessions[sessionID] = append(r.sessions[sessionID], sub)
}

// remove detaches sub and closes its channel once
func (r *SubscriberRegistry) remove(sessionID string, sub *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sessionID == "" {
		r.wildcard = removeSubscriber(r.wildcard, sub)
	} else {
		r.sessions[sessionID] = removeSubscriber(r.sessions[sessionID], sub)
		if len(r.sessions[sessionID]) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	closeSubscriber(sub)
}

// deliver sends ev to the session's subscribers and the wildcard ones.
// Full channels drop the event; the count of drops is returned.
// A final event closes the session's subscribers.
func (r *SubscriberRegistry) deliver(ev ingest.ProgressEvent) (delivered, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]*subscriber, 0, len(r.sessions[ev.SessionID])+len(r.wildcard))
	targets = append(targets, r.sessions[ev.SessionID]...)
	targets = append(targets, r.wildcard...)
	for _, sub := range targets {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
		}
	}

	if ev.IsFinal() {
		for _, sub := range r.sessions[ev.SessionID] {
			closeSubscriber(sub)
		}
		delete(r.sessions, ev.SessionID)
	}
	return delivered, dropped
}

// Count returns the number of subscribers for a session, wildcard excluded
func (r *SubscriberRegistry) Count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID])
}

func (r *SubscriberRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, subs := range r.sessions {
		for _, sub := range subs {
			closeSubscriber(sub)
		}
		delete(r.sessions, id)
	}
	for _, sub := range r.wildcard {
		closeSubscriber(sub)
	}
	r.wildcard = nil
}

func closeSubscriber(sub *subscriber) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func removeSubscriber(subs []*subscriber, target *subscriber) []*subscriber {
	result := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		if s != target {
			result = append(result, s)
		}
	}
	return result
}
