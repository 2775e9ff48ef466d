package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/clock"
	"github.com/nkaluva9/health-chatbot/internal/gateway"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

type recorder struct {
	mu     sync.Mutex
	acts   []activity.Activity
	states []status.State
}

func (r *recorder) onActivity(a activity.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acts = append(r.acts, a)
}

func (r *recorder) onStatus(s status.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func newTestSimulator(t *testing.T) (*Simulator, *clock.Virtual, *recorder) {
	t.Helper()
	v := clock.NewVirtual(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	s := New(Options{Clock: v})
	t.Cleanup(s.Dispose)
	r := &recorder{}
	s.Activities(r.onActivity, nil)
	s.ConnectionStatus(r.onStatus, nil)
	return s, v, r
}

func goOnline(t *testing.T, s *Simulator, v *clock.Virtual) {
	t.Helper()
	v.Advance(DefaultDelays.Connect + DefaultDelays.Online)
	if s.Status() != status.Online {
		t.Fatalf("status = %s, want ONLINE", s.Status())
	}
}

func TestConnectionSequence(t *testing.T) {
	s, v, r := newTestSimulator(t)

	v.Advance(99 * time.Millisecond)
	if len(r.states) != 0 {
		t.Fatalf("states before 100ms = %v", r.states)
	}
	v.Advance(time.Millisecond)
	if len(r.states) != 1 || r.states[0] != status.Connecting {
		t.Fatalf("states at 100ms = %v, want [CONNECTING]", r.states)
	}
	v.Advance(500 * time.Millisecond)
	if len(r.states) != 2 || r.states[1] != status.Online {
		t.Fatalf("states at 600ms = %v, want [CONNECTING ONLINE]", r.states)
	}
	if !strings.HasPrefix(s.ConversationID(), "conv_") {
		t.Errorf("ConversationID = %q, want conv_ prefix", s.ConversationID())
	}
}

func TestSendBeforeOnline(t *testing.T) {
	s, _, _ := newTestSimulator(t)
	ack := <-s.Send(context.Background(), activity.Activity{Type: activity.TypeMessage, Text: "hi"})
	if !errors.Is(ack.Err, gateway.ErrNotConnected) {
		t.Errorf("ack.Err = %v, want ErrNotConnected", ack.Err)
	}
}

func TestSendScript(t *testing.T) {
	s, v, r := newTestSimulator(t)
	goOnline(t, s, v)

	sent := activity.Activity{
		Type: activity.TypeMessage,
		From: activity.Participant{ID: "u1", Name: "User"},
		Text: "hello there",
	}
	ackCh := s.Send(context.Background(), sent)

	v.Advance(DefaultDelays.Echo)
	var ack gateway.Ack
	select {
	case ack = <-ackCh:
	default:
		t.Fatal("no ack after echo delay")
	}
	if ack.Err != nil || !strings.HasPrefix(ack.ID, "act_") {
		t.Fatalf("ack = %+v", ack)
	}
	if len(r.acts) != 1 {
		t.Fatalf("activities after echo = %d, want 1", len(r.acts))
	}
	echo := r.acts[0]
	if echo.ID != ack.ID || echo.From.ID != "u1" || echo.Text != "hello there" {
		t.Errorf("echo = %+v", echo)
	}
	if echo.ConversationID() != s.ConversationID() {
		t.Errorf("echo conversation = %q, want %q", echo.ConversationID(), s.ConversationID())
	}

	v.Advance(DefaultDelays.Typing)
	if len(r.acts) != 2 || !r.acts[1].IsTyping() || r.acts[1].From.ID != Bot.ID {
		t.Fatalf("expected typing from bot, got %+v", r.acts)
	}

	v.Advance(DefaultDelays.Reply - time.Millisecond)
	if len(r.acts) != 2 {
		t.Fatalf("reply arrived early")
	}
	v.Advance(time.Millisecond)
	if len(r.acts) != 3 {
		t.Fatalf("activities = %d, want 3", len(r.acts))
	}
	reply := r.acts[2]
	want := `You said: "hello there". This is a mock response. Try asking for "card", "image", "options", or "list" to see different adaptive cards.`
	if !reply.IsMessage() || reply.Text != want {
		t.Errorf("reply text = %q, want %q", reply.Text, want)
	}
	if reply.From != Bot {
		t.Errorf("reply from = %+v, want %+v", reply.From, Bot)
	}

	v.Advance(time.Hour)
	if len(r.acts) != 3 {
		t.Errorf("extra activities: %d", len(r.acts))
	}
}

func TestReplySelection(t *testing.T) {
	tests := []struct {
		text  string
		title string
	}{
		{"show me a CARD", "Welcome to Adaptive Cards"},
		{"adaptive please", "Welcome to Adaptive Cards"},
		{"an image", "Featured Product"},
		{"a picture", "Featured Product"},
		{"give me options", "Quick Survey"},
		{"my choice", "Quick Survey"},
		{"list tasks", "Your Tasks"},
		{"card list", "Welcome to Adaptive Cards"},
		{"picture of options", "Featured Product"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			s, v, r := newTestSimulator(t)
			goOnline(t, s, v)
			s.Send(context.Background(), activity.Activity{Type: activity.TypeMessage, Text: tt.text})
			v.Advance(DefaultDelays.Echo + DefaultDelays.Typing + DefaultDelays.Reply)

			if len(r.acts) != 3 {
				t.Fatalf("activities = %d, want 3", len(r.acts))
			}
			reply := r.acts[2]
			if reply.Text != "" {
				t.Errorf("card reply has text %q", reply.Text)
			}
			if len(reply.Attachments) != 1 || reply.Attachments[0].ContentType != activity.AdaptiveCardContentType {
				t.Fatalf("attachments = %+v", reply.Attachments)
			}
			var card struct {
				Type    string `json:"type"`
				Version string `json:"version"`
				Body    []struct {
					Text string `json:"text"`
				} `json:"body"`
			}
			if err := json.Unmarshal(reply.Attachments[0].Content, &card); err != nil {
				t.Fatalf("card content: %v", err)
			}
			if card.Type != "AdaptiveCard" || card.Version != "1.4" {
				t.Errorf("card = %s %s", card.Type, card.Version)
			}
			if len(card.Body) == 0 || card.Body[0].Text != tt.title {
				t.Errorf("card title = %+v, want %q", card.Body, tt.title)
			}
		})
	}
}

func TestWelcomeCardDate(t *testing.T) {
	content, err := renderCard("welcome.json", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `"3/4/2026"`) {
		t.Errorf("welcome card missing date: %s", content)
	}
}

func TestDisposeEndsStreams(t *testing.T) {
	s, v, r := newTestSimulator(t)
	goOnline(t, s, v)
	ackCh := s.Send(context.Background(), activity.Activity{Type: activity.TypeMessage, Text: "hi"})

	s.Dispose()
	s.Dispose()

	if got := r.states[len(r.states)-1]; got != status.Ended {
		t.Errorf("last status = %s, want ENDED", got)
	}
	ack := <-ackCh
	if !errors.Is(ack.Err, gateway.ErrDisposed) {
		t.Errorf("pending ack = %v, want ErrDisposed", ack.Err)
	}

	v.Advance(time.Hour)
	if len(r.acts) != 0 {
		t.Errorf("activities after dispose = %+v", r.acts)
	}
	if v.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", v.Pending())
	}

	ack = <-s.Send(context.Background(), activity.Activity{Type: activity.TypeMessage, Text: "late"})
	if !errors.Is(ack.Err, gateway.ErrDisposed) {
		t.Errorf("send after dispose = %v, want ErrDisposed", ack.Err)
	}
}

func TestDisposeBeforeOnline(t *testing.T) {
	s, v, r := newTestSimulator(t)
	v.Advance(DefaultDelays.Connect)
	s.Dispose()
	v.Advance(time.Hour)

	want := []status.State{status.Connecting, status.Ended}
	if len(r.states) != len(want) {
		t.Fatalf("states = %v, want %v", r.states, want)
	}
	for i := range want {
		if r.states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, r.states[i], want[i])
		}
	}
}

func TestSendCancelledContext(t *testing.T) {
	s, v, r := newTestSimulator(t)
	goOnline(t, s, v)
	ctx, cancel := context.WithCancel(context.Background())
	ackCh := s.Send(ctx, activity.Activity{Type: activity.TypeMessage, Text: "hi"})
	cancel()
	v.Advance(time.Hour)

	ack := <-ackCh
	if !errors.Is(ack.Err, context.Canceled) {
		t.Errorf("ack.Err = %v, want context.Canceled", ack.Err)
	}
	if len(r.acts) != 0 {
		t.Errorf("activities = %d, want 0", len(r.acts))
	}
}
