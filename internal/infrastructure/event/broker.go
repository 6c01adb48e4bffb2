package event

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/erp/ingest/internal/domain/ingest"
)

// DefaultSubscriberBuffer is the channel capacity given to each subscriber
const DefaultSubscriberBuffer = 64

// ProgressBroker fans progress events out to per-session subscribers.
// It remembers the latest event per session so late subscribers see the
// current state immediately.
type ProgressBroker struct {
	registry *SubscriberRegistry
	logger   *zap.Logger
	buffer   int
	running  atomic.Bool

	mu   sync.RWMutex
	last map[string]ingest.ProgressEvent
}

// BrokerOption configures a ProgressBroker
type BrokerOption func(*ProgressBroker)

// WithSubscriberBuffer sets the per-subscriber channel capacity
func WithSubscriberBuffer(n int) BrokerOption {
	return func(b *ProgressBroker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewProgressBroker creates a running broker
func NewProgressBroker(logger *zap.Logger, opts ...BrokerOption) *ProgressBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &ProgressBroker{
		registry: NewSubscriberRegistry(),
		logger:   logger.Named("progress_broker"),
		buffer:   DefaultSubscriberBuffer,
		last:     make(map[string]ingest.ProgressEvent),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.running.Store(true)
	return b
}

// Publish implements ingest.ProgressSink. It never blocks the publisher.
func (b *ProgressBroker) Publish(ev ingest.ProgressEvent) {
	if !b.running.Load() {
		return
	}
	b.mu.Lock()
	b.last[ev.SessionID] = ev
	b.mu.Unlock()

	_, dropped := b.registry.deliver(ev)
	if dropped > 0 {
		b.logger.Warn("slow progress subscriber, event dropped",
			zap.String("session_id", ev.SessionID),
			zap.String("event_type", string(ev.Type)),
			zap.Int("dropped", dropped),
		)
	}
}

// Subscribe returns a channel of events for sessionID and a function that
// cancels the subscription. The channel is closed after a final event, on
// cancel, or when the broker stops. If the session already has a recorded
// event it is delivered first; a recorded final event yields a channel
// carrying just that event.
func (b *ProgressBroker) Subscribe(sessionID string) (<-chan ingest.ProgressEvent, func()) {
	sub := &subscriber{ch: make(chan ingest.ProgressEvent, b.buffer)}

	b.mu.RLock()
	last, seen := b.last[sessionID]
	b.mu.RUnlock()

	if seen {
		sub.ch <- last
		if last.IsFinal() {
			closeSubscriber(sub)
			return sub.ch, func() {}
		}
	}
	if !b.running.Load() {
		closeSubscriber(sub)
		return sub.ch, func() {}
	}

	b.registry.add(sessionID, sub)
	b.logger.Debug("progress subscriber added", zap.String("session_id", sessionID))

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.registry.remove(sessionID, sub) })
	}
}

// Last returns the latest event recorded for a session
func (b *ProgressBroker) Last(sessionID string) (ingest.ProgressEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.last[sessionID]
	return ev, ok
}

// Forget drops the recorded state for a session
func (b *ProgressBroker) Forget(sessionID string) {
	b.mu.Lock()
	delete(b.last, sessionID)
	b.mu.Unlock()
}

// Subscribers returns the number of listeners on a session
func (b *ProgressBroker) Subscribers(sessionID string) int {
	return b.registry.Count(sessionID)
}

// Stop closes every subscription. Later publishes are ignored.
func (b *ProgressBroker) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.registry.closeAll()
	b.logger.Info("progress broker stopped")
	return ctx.Err()
}

var _ ingest.ProgressSink = (*ProgressBroker)(nil)
