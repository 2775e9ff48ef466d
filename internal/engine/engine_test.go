package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/bus"
	"github.com/nkaluva9/health-chatbot/internal/gateway"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

const testUser = "u1"

// fakeGateway is a gateway driven directly by the test.
type fakeGateway struct {
	*gateway.Streams

	mu       sync.Mutex
	sent     []activity.Activity
	acks     []chan gateway.Ack
	disposed int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{Streams: gateway.NewStreams()}
}

func (f *fakeGateway) Send(_ context.Context, a activity.Activity) <-chan gateway.Ack {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan gateway.Ack, 1)
	f.sent = append(f.sent, a)
	f.acks = append(f.acks, ch)
	return ch
}

func (f *fakeGateway) Dispose() {
	f.mu.Lock()
	f.disposed++
	f.mu.Unlock()
	f.Close()
}

func (f *fakeGateway) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeGateway) ack(i int, a gateway.Ack) {
	f.mu.Lock()
	ch := f.acks[i]
	f.mu.Unlock()
	ch <- a
}

func (f *fakeGateway) goOnline(t *testing.T) {
	t.Helper()
	for _, s := range []status.State{status.Connecting, status.Online} {
		if err := f.Transition(s); err != nil {
			t.Fatalf("Transition(%s): %v", s, err)
		}
	}
}

type errSink struct {
	ch chan error
}

func newErrSink() *errSink { return &errSink{ch: make(chan error, 16)} }

func (s *errSink) onError(err error) { s.ch <- err }

func (s *errSink) next(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for engine error")
		return nil
	}
}

func (s *errSink) none(t *testing.T) {
	t.Helper()
	select {
	case err := <-s.ch:
		t.Fatalf("unexpected engine error: %v", err)
	default:
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeGateway, *errSink) {
	t.Helper()
	e, err := New(Config{UserID: testUser, UserName: "Tester"}, bus.New(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Dispose)
	g := newFakeGateway()
	sink := newErrSink()
	if err := e.Initialize(g, sink.onError); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return e, g, sink
}

func message(from, text string) activity.Activity {
	return activity.Activity{Type: activity.TypeMessage, From: activity.Participant{ID: from}, Text: text}
}

func typing(from string) activity.Activity {
	return activity.Activity{Type: activity.TypeTyping, From: activity.Participant{ID: from}}
}

func TestNewRequiresUserID(t *testing.T) {
	for _, id := range []string{"", "   "} {
		if _, err := New(Config{UserID: id}, nil, nil); !errors.Is(err, ErrUserIDRequired) {
			t.Errorf("New(%q) error = %v, want ErrUserIDRequired", id, err)
		}
	}
}

func TestSelfMessagesDiscarded(t *testing.T) {
	e, g, _ := newTestEngine(t)
	for i := 0; i < 5; i++ {
		g.Emit(message(testUser, "echo"))
	}
	if n := len(e.State().Messages); n != 0 {
		t.Errorf("log length = %d, want 0", n)
	}
}

func TestTypingFlag(t *testing.T) {
	tests := []struct {
		name   string
		acts   []activity.Activity
		typing bool
		logLen int
	}{
		{"bot typing sets flag", []activity.Activity{typing("bot")}, true, 0},
		{"self typing ignored", []activity.Activity{typing(testUser)}, false, 0},
		{"bot message clears flag", []activity.Activity{typing("bot"), message("bot", "hi")}, false, 1},
		{"bot message without typing", []activity.Activity{message("bot", "hi")}, false, 1},
		{"self message keeps flag", []activity.Activity{typing("bot"), message(testUser, "hi")}, true, 0},
		{"typing after message", []activity.Activity{message("bot", "a"), typing("bot")}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, g, _ := newTestEngine(t)
			for _, a := range tt.acts {
				g.Emit(a)
			}
			st := e.State()
			if st.Typing != tt.typing {
				t.Errorf("typing = %v, want %v", st.Typing, tt.typing)
			}
			if len(st.Messages) != tt.logLen {
				t.Errorf("log length = %d, want %d", len(st.Messages), tt.logLen)
			}
		})
	}
}

func TestIngestionPreservesOrder(t *testing.T) {
	e, g, _ := newTestEngine(t)
	for _, text := range []string{"one", "two", "three"} {
		g.Emit(message("bot", text))
	}
	msgs := e.State().Messages
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Text != want {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Text, want)
		}
	}
}

func TestNonMessageActivitiesIgnored(t *testing.T) {
	e, g, _ := newTestEngine(t)
	g.Emit(activity.Activity{Type: "event", From: activity.Participant{ID: "bot"}})
	st := e.State()
	if len(st.Messages) != 0 || st.Typing {
		t.Errorf("state = %+v, want unchanged", st)
	}
}

func TestConversationFirstWriteWins(t *testing.T) {
	e, g, _ := newTestEngine(t)
	g.Emit(message("bot", "no conversation"))
	if id := e.State().ConversationID; id != "" {
		t.Fatalf("conversation = %q, want unset", id)
	}
	g.Emit(typing("bot").WithConversation("c1"))
	g.Emit(message("bot", "x").WithConversation("c2"))
	g.Emit(message(testUser, "x").WithConversation("c3"))
	if id := e.State().ConversationID; id != "c1" {
		t.Errorf("conversation = %q, want c1", id)
	}
}

func TestSelfEchoAdoptsConversation(t *testing.T) {
	e, g, _ := newTestEngine(t)
	g.Emit(message(testUser, "echo").WithConversation("c1"))
	st := e.State()
	if st.ConversationID != "c1" {
		t.Errorf("conversation = %q, want c1", st.ConversationID)
	}
	if len(st.Messages) != 0 {
		t.Errorf("log length = %d, want 0", len(st.Messages))
	}
}

func TestSendBlankIsNoop(t *testing.T) {
	e, g, sink := newTestEngine(t)
	g.goOnline(t)
	for _, text := range []string{"", " ", "\t\n  "} {
		if _, ok := e.Send(text); ok {
			t.Errorf("Send(%q) accepted", text)
		}
	}
	if n := len(e.State().Messages); n != 0 {
		t.Errorf("log length = %d, want 0", n)
	}
	if g.sentCount() != 0 {
		t.Errorf("gateway sends = %d, want 0", g.sentCount())
	}
	sink.none(t)
}

func TestSendNotConnected(t *testing.T) {
	for _, st := range []status.State{status.Uninitialized, status.Connecting, status.Ended} {
		t.Run(string(st), func(t *testing.T) {
			e, g, sink := newTestEngine(t)
			switch st {
			case status.Connecting:
				_ = g.Transition(status.Connecting)
			case status.Ended:
				_ = g.Transition(status.Ended)
				<-sink.ch // transport failure
			}

			if _, ok := e.Send("hello"); ok {
				t.Error("Send accepted while not online")
			}
			err := sink.next(t)
			if !errors.Is(err, ErrNotConnected) {
				t.Errorf("error = %v, want ErrNotConnected", err)
			}
			var engErr *Error
			if !errors.As(err, &engErr) || engErr.Kind != KindNotConnected {
				t.Errorf("error kind = %v, want not_connected", err)
			}
			if n := len(e.State().Messages); n != 0 {
				t.Errorf("log length = %d, want 0", n)
			}
			if g.sentCount() != 0 {
				t.Errorf("gateway sends = %d, want 0", g.sentCount())
			}
		})
	}
}

func TestSendOptimisticAppend(t *testing.T) {
	e, g, sink := newTestEngine(t)
	g.goOnline(t)
	g.Emit(message("bot", "welcome").WithConversation("c1"))

	local, ok := e.Send("  hi there  ")
	if !ok {
		t.Fatal("Send rejected while online")
	}
	st := e.State()
	if len(st.Messages) != 2 {
		t.Fatalf("log length = %d, want 2", len(st.Messages))
	}
	got := st.Messages[1]
	if got.ID != local.ID || got.ID == "" {
		t.Errorf("local id = %q, returned %q", got.ID, local.ID)
	}
	if got.Text != "hi there" || got.From.ID != testUser || got.From.Name != "Tester" {
		t.Errorf("local copy = %+v", got)
	}
	if got.ConversationID() != "c1" {
		t.Errorf("local conversation = %q, want c1", got.ConversationID())
	}
	if got.Time().IsZero() {
		t.Errorf("local timestamp %q not parseable", got.Timestamp)
	}

	if g.sentCount() != 1 {
		t.Fatalf("gateway sends = %d, want 1", g.sentCount())
	}
	if g.sent[0].Text != "hi there" || g.sent[0].From.ID != testUser {
		t.Errorf("forwarded = %+v", g.sent[0])
	}

	// The echo is discarded; the optimistic copy stands.
	g.Emit(message(testUser, "hi there").WithConversation("c1"))
	g.ack(0, gateway.Ack{ID: "server-1"})
	if n := len(e.State().Messages); n != 2 {
		t.Errorf("log length after echo = %d, want 2", n)
	}
	sink.none(t)
}

func TestSendWithoutConversation(t *testing.T) {
	e, g, _ := newTestEngine(t)
	g.goOnline(t)
	local, ok := e.Send("hi")
	if !ok {
		t.Fatal("Send rejected")
	}
	if local.Conversation != nil {
		t.Errorf("conversation = %+v, want nil", local.Conversation)
	}
}

func TestSendAckFailure(t *testing.T) {
	e, g, sink := newTestEngine(t)
	g.goOnline(t)
	e.Send("hi")

	boom := errors.New("http 502")
	g.ack(0, gateway.Ack{Err: boom})
	err := sink.next(t)
	if !errors.Is(err, ErrTransportFailure) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want transport failure wrapping boom", err)
	}
	if n := len(e.State().Messages); n != 1 {
		t.Errorf("optimistic copy removed: log length = %d", n)
	}
}

func TestSendAckNotConnected(t *testing.T) {
	e, g, sink := newTestEngine(t)
	g.goOnline(t)
	e.Send("hi")
	g.ack(0, gateway.Ack{Err: gateway.ErrNotConnected})
	if err := sink.next(t); !errors.Is(err, ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
}

func TestStatusIngestion(t *testing.T) {
	tests := []struct {
		name    string
		steps   []status.State
		want    status.State
		failure bool
	}{
		{"connecting", []status.State{status.Connecting}, status.Connecting, false},
		{"online", []status.State{status.Connecting, status.Online}, status.Online, false},
		{"failed", []status.State{status.Connecting, status.FailedToConnect}, status.FailedToConnect, true},
		{"ended", []status.State{status.Connecting, status.Online, status.Ended}, status.Ended, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, g, sink := newTestEngine(t)
			for _, s := range tt.steps {
				if err := g.Transition(s); err != nil {
					t.Fatal(err)
				}
			}
			st := e.State()
			if st.Status != tt.want {
				t.Errorf("status = %s, want %s", st.Status, tt.want)
			}
			if st.IsOnline() != (tt.want == status.Online) {
				t.Errorf("IsOnline = %v", st.IsOnline())
			}
			if st.IsConnecting() != (tt.want == status.Connecting) {
				t.Errorf("IsConnecting = %v", st.IsConnecting())
			}
			if tt.failure {
				if err := sink.next(t); !errors.Is(err, ErrTransportFailure) {
					t.Errorf("error = %v, want ErrTransportFailure", err)
				}
			} else {
				sink.none(t)
			}
		})
	}
}

func TestStreamErrorReported(t *testing.T) {
	e, g, sink := newTestEngine(t)
	boom := errors.New("read: connection reset")
	g.FailActivities(boom)
	err := sink.next(t)
	if !errors.Is(err, ErrSubscriptionFailure) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want subscription failure wrapping boom", err)
	}
	if e.State().Status != status.Uninitialized {
		t.Errorf("status changed on stream error: %s", e.State().Status)
	}
}

func TestClearHistory(t *testing.T) {
	e, g, _ := newTestEngine(t)
	g.goOnline(t)
	g.Emit(message("bot", "hi").WithConversation("c1"))
	g.Emit(typing("bot"))
	e.ClearHistory()

	st := e.State()
	if len(st.Messages) != 0 {
		t.Errorf("log length = %d, want 0", len(st.Messages))
	}
	if st.Status != status.Online || st.ConversationID != "c1" {
		t.Errorf("clear touched status/conversation: %+v", st)
	}
}

func TestLoadMessagesRoundTrip(t *testing.T) {
	e, g, _ := newTestEngine(t)
	g.Emit(typing("bot"))
	seq := []activity.Activity{
		message(testUser, "first"),
		message("bot", "second"),
		message(testUser, "third"),
		message(testUser, "third"),
	}
	e.LoadMessages(seq)
	seq[0].Text = "mutated"

	st := e.State()
	if len(st.Messages) != 4 {
		t.Fatalf("log length = %d, want 4", len(st.Messages))
	}
	for i, want := range []string{"first", "second", "third", "third"} {
		if st.Messages[i].Text != want {
			t.Errorf("msgs[%d] = %q, want %q", i, st.Messages[i].Text, want)
		}
	}
	if !st.Typing {
		t.Error("LoadMessages cleared typing flag")
	}
}

func TestStateSnapshotIsolated(t *testing.T) {
	e, g, _ := newTestEngine(t)
	g.Emit(message("bot", "hi"))
	st := e.State()
	st.Messages[0].Text = "changed"
	if e.State().Messages[0].Text != "hi" {
		t.Error("snapshot aliases engine state")
	}
}

func TestReinitializeCancelsPreviousSubscription(t *testing.T) {
	e, g1, _ := newTestEngine(t)
	g2 := newFakeGateway()
	if err := e.Initialize(g2, nil); err != nil {
		t.Fatal(err)
	}

	g1.Emit(message("bot", "stale"))
	_ = g1.Transition(status.Connecting)
	g2.Emit(message("bot", "fresh"))

	st := e.State()
	if len(st.Messages) != 1 || st.Messages[0].Text != "fresh" {
		t.Errorf("messages = %+v, want only fresh", st.Messages)
	}
	if st.Status != status.Uninitialized {
		t.Errorf("status = %s, stale gateway leaked", st.Status)
	}
}

func TestDisposeStopsMutation(t *testing.T) {
	e, g, sink := newTestEngine(t)
	g.goOnline(t)
	e.Send("hi")
	e.Dispose()
	e.Dispose()

	g.Emit(message("bot", "late"))
	g.Emit(typing("bot").WithConversation("c9"))
	_ = g.Transition(status.Ended)
	g.ack(0, gateway.Ack{Err: errors.New("late failure")})

	st := e.State()
	if len(st.Messages) != 1 || st.Typing || st.ConversationID != "" || st.Status != status.Online {
		t.Errorf("state changed after dispose: %+v", st)
	}
	if _, ok := e.Send("again"); ok {
		t.Error("Send accepted after dispose")
	}
	if err := e.Initialize(newFakeGateway(), nil); !errors.Is(err, ErrDisposed) {
		t.Errorf("Initialize after dispose = %v, want ErrDisposed", err)
	}
	time.Sleep(20 * time.Millisecond)
	sink.none(t)
}

func TestEventsPublishedInOrder(t *testing.T) {
	b := bus.New()
	events, unsub := b.Subscribe("engine.", 64)
	defer unsub()

	e, err := New(Config{UserID: testUser}, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Dispose()
	g := newFakeGateway()
	if err := e.Initialize(g, nil); err != nil {
		t.Fatal(err)
	}
	g.goOnline(t)
	g.Emit(typing("bot").WithConversation("c1"))
	g.Emit(message("bot", "hi"))
	e.Send("yo")

	want := []string{
		KindStatusChanged,
		KindStatusChanged,
		KindConversationAdopted,
		KindTypingChanged,
		KindTypingChanged,
		KindMessageAppended,
		KindMessageAppended,
		KindMessageSent,
	}
	for i, kind := range want {
		select {
		case evt := <-events:
			if evt.Kind != kind {
				t.Errorf("event[%d] = %s, want %s", i, evt.Kind, kind)
			}
			if i == 6 {
				if p := evt.Payload.(MessageAppended); !p.Local || p.Activity.Text != "yo" {
					t.Errorf("local append payload = %+v", p)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event[%d] %s", i, kind)
		}
	}
}

func TestErrorString(t *testing.T) {
	err := newError(KindNotConnected, ErrNotConnected)
	if err.Error() != "cannot send message: not connected" {
		t.Errorf("Error() = %q", err.Error())
	}
	wrapped := newError(KindTransportFailure, errors.New("eof"))
	if wrapped.Error() != "connection failed or ended: eof" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}

func TestInitializeFromErrorCallback(t *testing.T) {
	e, err := New(Config{UserID: testUser}, bus.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Dispose)

	old, replacement := newFakeGateway(), newFakeGateway()
	done := make(chan error, 1)
	onError := func(err error) {
		if errors.Is(err, ErrSubscriptionFailure) {
			done <- e.Initialize(replacement, nil)
			old.Dispose()
		}
	}
	if err := e.Initialize(old, onError); err != nil {
		t.Fatal(err)
	}

	old.FailActivities(errors.New("read: connection reset"))
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Initialize from error callback = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Initialize from the error callback did not return")
	}

	replacement.goOnline(t)
	replacement.Emit(message("bot", "back"))
	st := e.State()
	if !st.IsOnline() || len(st.Messages) != 1 {
		t.Errorf("state after re-initialize = %+v", st)
	}
}
