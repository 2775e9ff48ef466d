package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
//
// Channel subscribers never block a publisher: a full buffer drops the event.
// Func subscribers are invoked synchronously on the publishing goroutine, in
// publication order, and are never invoked after their unsubscribe returns.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
	fn        func(Event)
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of event.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		if sub.fn != nil {
			sub.fn(evt)
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop event if subscriber is full (non-blocking).
		}
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	return ch, b.add(&subscription{namespace: namespace, ch: ch})
}

// SubscribeFunc registers fn for events matching the namespace prefix. fn runs
// on the publisher's goroutine and must not publish or unsubscribe on the same
// bus. Returns an idempotent unsubscribe function.
func (b *Bus) SubscribeFunc(namespace string, fn func(Event)) func() {
	return b.add(&subscription{namespace: namespace, fn: fn})
}

func (b *Bus) add(sub *subscription) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
