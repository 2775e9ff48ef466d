// Package gateway defines the transport boundary between the session engine
// and a bot endpoint: two push streams (activities and connection status), a
// send operation with a single acknowledgment, and disposal.
package gateway

import (
	"context"
	"errors"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

var (
	// ErrNotConnected is the ack error for a send while not ONLINE.
	ErrNotConnected = errors.New("not connected")
	// ErrDisposed is the ack error for a send after Dispose.
	ErrDisposed = errors.New("gateway disposed")
)

// Subscription is an active stream subscription.
type Subscription interface {
	// Cancel stops delivery. It is idempotent. No callback runs after Cancel
	// returns. It must not be called from inside the subscription's own
	// callback.
	Cancel()
}

// Ack is the outcome of a send. ID is the activity id assigned by the
// endpoint when known.
type Ack struct {
	ID  string
	Err error
}

// Gateway is a connection to a bot endpoint.
//
// Streams deliver synchronously and in emission order. They do not replay:
// a subscriber only observes events emitted after it subscribed.
type Gateway interface {
	Activities(fn func(activity.Activity), onErr func(error)) Subscription
	ConnectionStatus(fn func(status.State), onErr func(error)) Subscription
	// Send forwards act to the endpoint. The returned channel yields exactly
	// one Ack.
	Send(ctx context.Context, act activity.Activity) <-chan Ack
	// Dispose ends both streams. It is idempotent.
	Dispose()
}

// Acked returns an already-resolved ack channel.
func Acked(id string, err error) <-chan Ack {
	ch := make(chan Ack, 1)
	ch <- Ack{ID: id, Err: err}
	return ch
}
