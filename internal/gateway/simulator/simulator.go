// Package simulator implements a scripted in-process bot endpoint. It is
// used for development and tests; every delay runs on an injectable clock.
package simulator

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/clock"
	"github.com/nkaluva9/health-chatbot/internal/gateway"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

// Bot is the participant the simulator replies as.
var Bot = activity.Participant{ID: "bot", Name: "Assistant"}

//go:embed cards/*.json
var cardFS embed.FS

var cards = template.Must(template.ParseFS(cardFS, "cards/*.json"))

// replyRules map keywords to card templates. The first rule with a keyword
// contained in the lowercased text wins.
var replyRules = []struct {
	keywords []string
	card     string
}{
	{[]string{"card", "adaptive"}, "welcome.json"},
	{[]string{"image", "picture"}, "product.json"},
	{[]string{"options", "choice"}, "survey.json"},
	{[]string{"list"}, "tasks.json"},
}

// Delays controls the simulated latencies.
type Delays struct {
	Connect time.Duration // until CONNECTING
	Online  time.Duration // from CONNECTING until ONLINE
	Echo    time.Duration // from send until echo and ack
	Typing  time.Duration // from echo until typing
	Reply   time.Duration // from typing until reply
}

// DefaultDelays are the latencies used when none are configured.
var DefaultDelays = Delays{
	Connect: 100 * time.Millisecond,
	Online:  500 * time.Millisecond,
	Echo:    100 * time.Millisecond,
	Typing:  1000 * time.Millisecond,
	Reply:   1500 * time.Millisecond,
}

// Options configures a Simulator.
type Options struct {
	Clock  clock.Scheduler
	Logger *zap.Logger
	Delays *Delays
}

// Simulator is a gateway.Gateway backed by a scripted bot.
type Simulator struct {
	*gateway.Streams

	clock          clock.Scheduler
	logger         *zap.Logger
	delays         Delays
	conversationID string

	mu       sync.Mutex
	disposed bool
	pending  map[*timerEntry]struct{}
	acks     map[chan gateway.Ack]struct{}
}

type timerEntry struct {
	timer clock.Timer
}

var _ gateway.Gateway = (*Simulator)(nil)

// New creates a simulator and schedules its connection sequence.
func New(opts Options) *Simulator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	delays := DefaultDelays
	if opts.Delays != nil {
		delays = *opts.Delays
	}

	s := &Simulator{
		Streams:        gateway.NewStreams(),
		clock:          opts.Clock,
		logger:         opts.Logger,
		delays:         delays,
		conversationID: "conv_" + strconv.FormatInt(opts.Clock.Now().UnixMilli(), 10),
		pending:        make(map[*timerEntry]struct{}),
		acks:           make(map[chan gateway.Ack]struct{}),
	}

	s.after(delays.Connect, func() {
		s.transition(status.Connecting)
		s.after(delays.Online, func() {
			s.transition(status.Online)
		})
	})
	return s
}

// ConversationID returns the id the simulator stamps on its activities.
func (s *Simulator) ConversationID() string {
	return s.conversationID
}

// Send echoes act back, then plays a typing indicator and one reply.
func (s *Simulator) Send(ctx context.Context, act activity.Activity) <-chan gateway.Ack {
	if s.Closed() {
		return gateway.Acked("", gateway.ErrDisposed)
	}
	if s.Status() != status.Online {
		return gateway.Acked("", gateway.ErrNotConnected)
	}

	id := "act_" + uuid.NewString()
	ch := make(chan gateway.Ack, 1)
	s.mu.Lock()
	s.acks[ch] = struct{}{}
	s.mu.Unlock()

	s.after(s.delays.Echo, func() {
		if err := ctx.Err(); err != nil {
			s.resolve(ch, gateway.Ack{Err: err})
			return
		}
		echo := act.WithConversation(s.conversationID)
		echo.ID = id
		s.Emit(echo)

		text := act.Text
		s.after(s.delays.Typing, func() {
			s.Emit(s.typing())
			s.after(s.delays.Reply, func() {
				s.Emit(s.reply(text))
			})
		})
		s.resolve(ch, gateway.Ack{ID: id})
	})
	return ch
}

// Dispose ends both streams and cancels all scheduled work. Sends still
// awaiting their echo are acknowledged with gateway.ErrDisposed.
func (s *Simulator) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	for entry := range s.pending {
		entry.timer.Stop()
	}
	clear(s.pending)
	acks := s.acks
	s.acks = make(map[chan gateway.Ack]struct{})
	s.mu.Unlock()

	for ch := range acks {
		ch <- gateway.Ack{Err: gateway.ErrDisposed}
	}
	s.Streams.Close()
	s.logger.Debug("simulator disposed", zap.String("conversation_id", s.conversationID))
}

// after schedules f unless the simulator is disposed. f is dropped if the
// simulator is disposed before it runs.
func (s *Simulator) after(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	entry := &timerEntry{}
	entry.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.pending[entry]
		delete(s.pending, entry)
		s.mu.Unlock()
		if live {
			f()
		}
	})
	s.pending[entry] = struct{}{}
}

func (s *Simulator) resolve(ch chan gateway.Ack, ack gateway.Ack) {
	s.mu.Lock()
	_, ok := s.acks[ch]
	delete(s.acks, ch)
	s.mu.Unlock()
	if ok {
		ch <- ack
	}
}

func (s *Simulator) transition(to status.State) {
	if err := s.Transition(to); err != nil {
		s.logger.Debug("simulator transition skipped", zap.String("to", string(to)), zap.Error(err))
	}
}

func (s *Simulator) typing() activity.Activity {
	return activity.Activity{
		Type:         activity.TypeTyping,
		From:         Bot,
		Conversation: &activity.ConversationRef{ID: s.conversationID},
		Timestamp:    activity.FormatTime(s.clock.Now()),
	}
}

// reply builds the scripted answer to text.
func (s *Simulator) reply(text string) activity.Activity {
	now := s.clock.Now()
	act := activity.Activity{
		Type:         activity.TypeMessage,
		ID:           "msg_" + uuid.NewString(),
		From:         Bot,
		Conversation: &activity.ConversationRef{ID: s.conversationID},
		Timestamp:    activity.FormatTime(now),
	}

	if name := matchCard(text); name != "" {
		content, err := renderCard(name, now)
		if err == nil {
			act.Attachments = []activity.Attachment{{
				ContentType: activity.AdaptiveCardContentType,
				Content:     content,
			}}
			return act
		}
		s.logger.Warn("render card", zap.String("card", name), zap.Error(err))
	}

	act.Text = `You said: "` + text + `". This is a mock response. Try asking for "card", "image", "options", or "list" to see different adaptive cards.`
	return act
}

func matchCard(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range replyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.card
			}
		}
	}
	return ""
}

func renderCard(name string, now time.Time) (json.RawMessage, error) {
	var buf bytes.Buffer
	data := struct{ Date string }{Date: now.Format("1/2/2006")}
	if err := cards.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, buf.Bytes()); err != nil {
		return nil, err
	}
	return compact.Bytes(), nil
}
