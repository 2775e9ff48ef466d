package engine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nkaluva9/health-chatbot/internal/bus"
	"github.com/nkaluva9/health-chatbot/internal/clock"
	"github.com/nkaluva9/health-chatbot/internal/gateway/simulator"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

func newSimulatedEngine(t *testing.T) (*Engine, *simulator.Simulator, *clock.Virtual, *errSink, <-chan bus.Event) {
	t.Helper()
	v := clock.NewVirtual(time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC))
	b := bus.New()
	events, unsub := b.Subscribe("engine.", 256)
	t.Cleanup(unsub)

	e, err := New(Config{UserID: testUser}, b, nil, WithClock(v))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Dispose)
	sim := simulator.New(simulator.Options{Clock: v})
	t.Cleanup(sim.Dispose)
	sink := newErrSink()
	if err := e.Initialize(sim, sink.onError); err != nil {
		t.Fatal(err)
	}
	return e, sim, v, sink, events
}

func drain(events <-chan bus.Event) []bus.Event {
	var out []bus.Event
	for {
		select {
		case evt := <-events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestSimulatedCardConversation(t *testing.T) {
	e, sim, v, sink, events := newSimulatedEngine(t)

	if _, ok := e.Send("show me a card"); ok {
		t.Fatal("Send accepted before ONLINE")
	}
	if err := sink.next(t); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("error = %v, want ErrNotConnected", err)
	}
	if n := len(e.State().Messages); n != 0 {
		t.Fatalf("log length = %d, want 0", n)
	}

	v.Advance(simulator.DefaultDelays.Connect)
	if !e.State().IsConnecting() {
		t.Fatalf("status = %s, want CONNECTING", e.State().Status)
	}
	v.Advance(simulator.DefaultDelays.Online)
	if !e.State().IsOnline() {
		t.Fatalf("status = %s, want ONLINE", e.State().Status)
	}
	drain(events)

	if _, ok := e.Send("show me a card"); !ok {
		t.Fatal("Send rejected while ONLINE")
	}
	if n := len(e.State().Messages); n != 1 {
		t.Fatalf("log length after send = %d, want 1", n)
	}

	v.Advance(simulator.DefaultDelays.Echo)
	st := e.State()
	if len(st.Messages) != 1 {
		t.Fatalf("self-echo appended: log length = %d", len(st.Messages))
	}
	if st.ConversationID != sim.ConversationID() {
		t.Errorf("conversation = %q, want %q", st.ConversationID, sim.ConversationID())
	}

	v.Advance(simulator.DefaultDelays.Typing)
	if !e.State().Typing {
		t.Fatal("typing flag not set")
	}

	v.Advance(simulator.DefaultDelays.Reply)
	st = e.State()
	if st.Typing {
		t.Error("typing flag still set after reply")
	}
	if len(st.Messages) != 2 {
		t.Fatalf("log length = %d, want 2", len(st.Messages))
	}
	if st.Messages[0].From.ID != testUser || st.Messages[0].Text != "show me a card" {
		t.Errorf("first message = %+v", st.Messages[0])
	}
	reply := st.Messages[1]
	if reply.From.ID != simulator.Bot.ID || !reply.HasCard() {
		t.Fatalf("reply = %+v", reply)
	}
	var card struct {
		Body []struct {
			Text string `json:"text"`
		} `json:"body"`
	}
	if err := json.Unmarshal(reply.Attachments[0].Content, &card); err != nil {
		t.Fatal(err)
	}
	if card.Body[0].Text != "Welcome to Adaptive Cards" {
		t.Errorf("card title = %q", card.Body[0].Text)
	}

	want := []string{
		KindMessageAppended,
		KindMessageSent,
		KindConversationAdopted,
		KindTypingChanged,
		KindTypingChanged,
		KindMessageAppended,
	}
	got := drain(events)
	if len(got) != len(want) {
		t.Fatalf("events = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Kind != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i].Kind, want[i])
		}
	}
	sink.none(t)
}

func TestSimulatedTextReply(t *testing.T) {
	e, _, v, _, _ := newSimulatedEngine(t)
	v.Advance(simulator.DefaultDelays.Connect + simulator.DefaultDelays.Online)

	e.Send("hello")
	v.Advance(10 * time.Second)

	msgs := e.State().Messages
	if len(msgs) != 2 {
		t.Fatalf("log length = %d, want 2", len(msgs))
	}
	want := `You said: "hello". This is a mock response. Try asking for "card", "image", "options", or "list" to see different adaptive cards.`
	if msgs[1].Text != want {
		t.Errorf("reply = %q", msgs[1].Text)
	}
}

func TestSimulatedDisposeDropsPendingTimers(t *testing.T) {
	e, _, v, sink, _ := newSimulatedEngine(t)
	v.Advance(simulator.DefaultDelays.Connect + simulator.DefaultDelays.Online)
	e.Send("hello")
	v.Advance(simulator.DefaultDelays.Echo + simulator.DefaultDelays.Typing)

	before := e.State()
	if !before.Typing {
		t.Fatal("typing flag not set before dispose")
	}
	e.Dispose()
	v.Advance(time.Minute)

	after := e.State()
	if len(after.Messages) != len(before.Messages) || after.Typing != before.Typing || after.Status != before.Status {
		t.Errorf("state changed after dispose: before %+v after %+v", before, after)
	}
	if after.Status != status.Online {
		t.Errorf("status = %s, want ONLINE", after.Status)
	}
	sink.none(t)
}

func TestSimulatorDisposeEndsEngineConnection(t *testing.T) {
	e, sim, v, sink, _ := newSimulatedEngine(t)
	v.Advance(simulator.DefaultDelays.Connect + simulator.DefaultDelays.Online)
	sim.Dispose()

	if e.State().Status != status.Ended {
		t.Errorf("status = %s, want ENDED", e.State().Status)
	}
	if err := sink.next(t); !errors.Is(err, ErrTransportFailure) {
		t.Errorf("error = %v, want ErrTransportFailure", err)
	}
}
