package bus

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// The source adapter publishes under "source.", the ingestion engine under
// "message." and "sync.", the session lifecycle under "session.".
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	logger *zap.Logger
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs:   make(map[int]*subscription),
		logger: zap.NewNop(),
	}
}

// SetLogger attaches a logger used to report dropped events. Call before any
// subscriber is live.
func (b *Bus) SetLogger(logger *zap.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of event.Kind.
// Delivery is non-blocking: a subscriber whose buffer is full misses the event,
// and the drop is logged with the event kind so a stalled consumer is visible.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				b.logger.Warn("dropping event for slow subscriber",
					zap.String("kind", evt.Kind),
					zap.String("namespace", sub.namespace))
			}
		}
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
