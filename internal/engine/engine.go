// Package engine owns the state of one conversation: the message log, the
// typing flag, the connection status and the conversation id. It consumes a
// gateway.Gateway and exposes snapshots plus bus events to its consumers.
package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/bus"
	"github.com/nkaluva9/health-chatbot/internal/clock"
	"github.com/nkaluva9/health-chatbot/internal/gateway"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

// Config identifies the local user.
type Config struct {
	UserID   string
	UserName string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the time source for local timestamps.
func WithClock(c clock.Scheduler) Option {
	return func(e *Engine) { e.clock = c }
}

// State is a read-only snapshot of the engine.
type State struct {
	Messages       []activity.Activity
	Typing         bool
	Status         status.State
	ConversationID string
}

// IsOnline reports whether sends are currently accepted.
func (s State) IsOnline() bool { return s.Status == status.Online }

// IsConnecting reports whether the connection is being established.
func (s State) IsConnecting() bool { return s.Status == status.Connecting }

// Engine is the conversational session engine.
//
// All state changes happen under one mutex and are published on the bus in
// the order they happen. Bus subscribers must not call back into the engine
// synchronously. The error callback is different: it runs on the engine's own
// dispatch goroutine, in report order, so it may call Initialize or dispose
// and rebuild the gateway.
type Engine struct {
	cfg    Config
	bus    *bus.Bus
	logger *zap.Logger
	clock  clock.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	gateway        gateway.Gateway
	generation     int
	subs           []gateway.Subscription
	onError        func(error)
	disposed       bool
	messages       []activity.Activity
	typing         bool
	status         status.State
	conversationID string

	errMu   sync.Mutex
	errs    []pendingError
	errWake chan struct{}
}

type pendingError struct {
	fn  func(error)
	err error
}

// New creates an engine for the configured user. cfg.UserID is required.
func New(cfg Config, b *bus.Bus, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, ErrUserIDRequired
	}
	if cfg.UserName == "" {
		cfg.UserName = "User"
	}
	if b == nil {
		b = bus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:     cfg,
		bus:     b,
		logger:  logger,
		clock:   clock.Real(),
		ctx:     ctx,
		cancel:  cancel,
		status:  status.Uninitialized,
		errWake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.dispatchErrors()
	return e, nil
}

// Self returns the local participant.
func (e *Engine) Self() activity.Participant {
	return activity.Participant{ID: e.cfg.UserID, Name: e.cfg.UserName}
}

// Initialize subscribes to the gateway's streams. onError receives every
// error the engine reports. Calling Initialize again, for example with a
// replacement gateway, first cancels the previous subscriptions; the status
// keeps its last value until the new gateway reports one.
func (e *Engine) Initialize(g gateway.Gateway, onError func(error)) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	old := e.subs
	e.subs = nil
	e.gateway = g
	e.onError = onError
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	for _, sub := range old {
		sub.Cancel()
	}

	actSub := g.Activities(
		func(a activity.Activity) { e.ingest(gen, a) },
		func(err error) { e.streamFailed(gen, err) },
	)
	statusSub := g.ConnectionStatus(
		func(s status.State) { e.observeStatus(gen, s) },
		func(err error) { e.streamFailed(gen, err) },
	)

	e.mu.Lock()
	if e.disposed || e.generation != gen {
		e.mu.Unlock()
		actSub.Cancel()
		statusSub.Cancel()
		if e.isDisposed() {
			return ErrDisposed
		}
		return nil
	}
	e.subs = []gateway.Subscription{actSub, statusSub}
	e.mu.Unlock()

	e.logger.Debug("engine initialized", zap.Int("generation", gen))
	return nil
}

// Send appends an optimistic copy of text to the log and forwards it to the
// gateway. Blank text is ignored. When not ONLINE a NotConnected error goes
// to the error callback. It reports whether the message was accepted and
// returns the optimistic copy.
func (e *Engine) Send(text string) (activity.Activity, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return activity.Activity{}, false
	}

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return activity.Activity{}, false
	}
	if e.status != status.Online || e.gateway == nil {
		onErr, err := e.failLocked(KindNotConnected, ErrNotConnected)
		e.mu.Unlock()
		e.report(onErr, err)
		return activity.Activity{}, false
	}

	now := activity.FormatTime(e.clock.Now())
	local := activity.Activity{
		Type:      activity.TypeMessage,
		ID:        "msg_" + uuid.NewString(),
		Timestamp: now,
		From:      e.Self(),
		Text:      text,
	}.WithConversation(e.conversationID)
	e.messages = append(e.messages, local)
	e.publishLocked(KindMessageAppended, MessageAppended{Activity: local, Local: true})
	e.publishLocked(KindMessageSent, local)
	g, gen := e.gateway, e.generation
	e.mu.Unlock()

	out := activity.Activity{
		Type:      activity.TypeMessage,
		Timestamp: now,
		From:      e.Self(),
		Text:      text,
	}
	ack := g.Send(e.ctx, out)
	go e.awaitAck(gen, ack)
	return local, true
}

func (e *Engine) awaitAck(gen int, ack <-chan gateway.Ack) {
	select {
	case a := <-ack:
		if a.Err == nil {
			return
		}
		kind := KindTransportFailure
		if errors.Is(a.Err, gateway.ErrNotConnected) {
			kind = KindNotConnected
		}
		e.mu.Lock()
		if e.disposed || e.generation != gen {
			e.mu.Unlock()
			return
		}
		onErr, err := e.failLocked(kind, a.Err)
		e.mu.Unlock()
		e.report(onErr, err)
	case <-e.ctx.Done():
	}
}

// ClearHistory empties the message log.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.messages = nil
	e.publishLocked(KindHistoryCleared, nil)
}

// LoadMessages replaces the message log with msgs, for example when
// restoring a stored session.
func (e *Engine) LoadMessages(msgs []activity.Activity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.messages = slices.Clone(msgs)
	e.publishLocked(KindHistoryLoaded, len(msgs))
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Messages:       slices.Clone(e.messages),
		Typing:         e.typing,
		Status:         e.status,
		ConversationID: e.conversationID,
	}
}

// Dispose cancels the stream subscriptions. State stops changing once it
// returns. The gateway itself is left to its owner.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	subs := e.subs
	e.subs = nil
	e.gateway = nil
	e.mu.Unlock()

	e.cancel()
	for _, sub := range subs {
		sub.Cancel()
	}
	e.logger.Debug("engine disposed")
}

func (e *Engine) ingest(gen int, a activity.Activity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed || e.generation != gen {
		return
	}

	if e.conversationID == "" && a.ConversationID() != "" {
		e.conversationID = a.ConversationID()
		e.publishLocked(KindConversationAdopted, e.conversationID)
	}

	fromSelf := a.From.ID == e.cfg.UserID
	switch {
	case a.IsMessage():
		// The endpoint echoes our own sends; the optimistic copy is already
		// in the log.
		if fromSelf {
			return
		}
		if e.typing {
			e.typing = false
			e.publishLocked(KindTypingChanged, false)
		}
		e.messages = append(e.messages, a)
		e.publishLocked(KindMessageAppended, MessageAppended{Activity: a})
	case a.IsTyping():
		if !fromSelf && !e.typing {
			e.typing = true
			e.publishLocked(KindTypingChanged, true)
		}
	}
}

func (e *Engine) observeStatus(gen int, s status.State) {
	e.mu.Lock()
	if e.disposed || e.generation != gen {
		e.mu.Unlock()
		return
	}
	e.setStatusLocked(s)
	var onErr func(error)
	var err error
	if s == status.FailedToConnect || s == status.Ended {
		onErr, err = e.failLocked(KindTransportFailure, ErrTransportFailure)
	}
	e.mu.Unlock()
	e.report(onErr, err)
}

func (e *Engine) streamFailed(gen int, cause error) {
	e.mu.Lock()
	if e.disposed || e.generation != gen {
		e.mu.Unlock()
		return
	}
	onErr, err := e.failLocked(KindSubscriptionFailure, cause)
	e.mu.Unlock()
	e.report(onErr, err)
}

func (e *Engine) setStatusLocked(s status.State) {
	from := e.status
	e.status = s
	e.publishLocked(KindStatusChanged, StatusChanged{From: from, To: s})
}

// failLocked publishes an error event and returns what report needs.
func (e *Engine) failLocked(kind ErrorKind, cause error) (func(error), error) {
	err := newError(kind, cause)
	e.publishLocked(KindError, err)
	return e.onError, err
}

// report logs err and queues it for onErr. Errors often surface inside a
// gateway stream callback, where the gateway still holds its locks, so the
// callback never runs on the reporting goroutine.
func (e *Engine) report(onErr func(error), err error) {
	if err == nil {
		return
	}
	e.logger.Warn("engine error", zap.Error(err))
	if onErr == nil {
		return
	}
	e.errMu.Lock()
	e.errs = append(e.errs, pendingError{fn: onErr, err: err})
	e.errMu.Unlock()
	select {
	case e.errWake <- struct{}{}:
	default:
	}
}

// dispatchErrors delivers queued errors in order until the engine is
// disposed. Errors still queued at that point are dropped.
func (e *Engine) dispatchErrors() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.errWake:
		}
		for {
			e.errMu.Lock()
			if len(e.errs) == 0 {
				e.errMu.Unlock()
				break
			}
			next := e.errs[0]
			e.errs = e.errs[1:]
			e.errMu.Unlock()

			if e.ctx.Err() != nil {
				return
			}
			next.fn(next.err)
		}
	}
}

func (e *Engine) publishLocked(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func (e *Engine) isDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}
