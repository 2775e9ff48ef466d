package gateway

import (
	"sync"
	"time"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/bus"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

const (
	kindActivity      = "activity.received"
	kindActivityError = "activity.error"
	kindStatusError   = "connection.error"
)

// Streams is the stream plumbing shared by gateway implementations: a private
// bus carrying activities and status changes, and the status machine.
type Streams struct {
	// mu serializes emission and closing so events reach subscribers in
	// emission order and none are delivered once Close returns.
	mu      sync.Mutex
	closed  bool
	bus     *bus.Bus
	machine *status.Machine

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
}

// NewStreams creates stream plumbing in the UNINITIALIZED state.
func NewStreams() *Streams {
	b := bus.New()
	return &Streams{
		bus:     b,
		machine: status.NewMachine(b),
		subs:    make(map[*subscription]struct{}),
	}
}

type subscription struct {
	s     *Streams
	once  sync.Once
	unsub func()
}

func (sub *subscription) Cancel() {
	sub.once.Do(func() {
		sub.unsub()
		sub.s.subsMu.Lock()
		delete(sub.s.subs, sub)
		sub.s.subsMu.Unlock()
	})
}

func (s *Streams) track(unsub func()) Subscription {
	sub := &subscription{s: s, unsub: unsub}
	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()
	return sub
}

// Activities subscribes to the activity stream.
func (s *Streams) Activities(fn func(activity.Activity), onErr func(error)) Subscription {
	return s.track(s.bus.SubscribeFunc("activity.", func(evt bus.Event) {
		switch evt.Kind {
		case kindActivity:
			fn(evt.Payload.(activity.Activity))
		case kindActivityError:
			if onErr != nil {
				onErr(evt.Payload.(error))
			}
		}
	}))
}

// ConnectionStatus subscribes to the connection status stream.
func (s *Streams) ConnectionStatus(fn func(status.State), onErr func(error)) Subscription {
	return s.track(s.bus.SubscribeFunc("connection.", func(evt bus.Event) {
		switch evt.Kind {
		case status.KindChanged:
			fn(evt.Payload.(status.StatusChange).To)
		case kindStatusError:
			if onErr != nil {
				onErr(evt.Payload.(error))
			}
		}
	}))
}

// Status returns the current connection status.
func (s *Streams) Status() status.State {
	return s.machine.Current()
}

// Transition moves the connection status. Transitions after Close are
// rejected.
func (s *Streams) Transition(to status.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisposed
	}
	return s.machine.Transition(to)
}

// Emit delivers act to activity subscribers. It reports false when the
// streams are closed and the activity was dropped.
func (s *Streams) Emit(act activity.Activity) bool {
	return s.publish(bus.Event{Kind: kindActivity, Timestamp: time.Now(), Payload: act})
}

// FailActivities reports a stream error to activity subscribers.
func (s *Streams) FailActivities(err error) bool {
	return s.publish(bus.Event{Kind: kindActivityError, Timestamp: time.Now(), Payload: err})
}

// FailStatus reports a stream error to connection status subscribers.
func (s *Streams) FailStatus(err error) bool {
	return s.publish(bus.Event{Kind: kindStatusError, Timestamp: time.Now(), Payload: err})
}

func (s *Streams) publish(evt bus.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.bus.Publish(evt)
	return true
}

// Closed reports whether Close has been called.
func (s *Streams) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close moves a non-terminal status to ENDED, then completes both streams by
// cancelling every subscription. It reports whether this call closed them.
func (s *Streams) Close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if !s.machine.Current().Terminal() {
		_ = s.machine.Transition(status.Ended)
	}
	s.closed = true
	s.mu.Unlock()

	s.subsMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
	return true
}
