// Package directline implements gateway.Gateway against a Bot Framework
// Direct Line v3 endpoint. Activities arrive over a websocket stream or by
// polling; sends are plain REST calls.
package directline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/gateway"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

// DefaultDomain is the public Direct Line endpoint.
const DefaultDomain = "https://directline.botframework.com/v3/directline"

// DefaultPollInterval is used in polling mode when none is configured.
const DefaultPollInterval = time.Second

const readLimit = 4 << 20

// ErrCredentialRequired is returned when neither a token nor a secret is set.
var ErrCredentialRequired = errors.New("direct line token or secret is required")

// Options configures a Gateway.
type Options struct {
	Domain       string
	Token        string
	Secret       string
	WebSocket    bool
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Gateway is a Direct Line connection. It starts connecting when the first
// connection status subscriber arrives, so the subscriber observes every
// transition from CONNECTING on.
type Gateway struct {
	*gateway.Streams

	opts   Options
	client *http.Client
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once

	mu             sync.Mutex
	token          string
	conversationID string
	streamURL      string
	watermark      string
}

// New validates opts and returns an unconnected gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Token == "" && opts.Secret == "" {
		return nil, ErrCredentialRequired
	}
	if opts.Domain == "" {
		opts.Domain = DefaultDomain
	}
	opts.Domain = strings.TrimRight(opts.Domain, "/")
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	token := opts.Token
	if token == "" {
		token = opts.Secret
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		Streams: gateway.NewStreams(),
		opts:    opts,
		client:  client,
		logger:  logger.Named("directline"),
		ctx:     ctx,
		cancel:  cancel,
		token:   token,
	}, nil
}

// ConnectionStatus subscribes to status changes and starts the connection
// on the first call.
func (g *Gateway) ConnectionStatus(fn func(status.State), onErr func(error)) gateway.Subscription {
	sub := g.Streams.ConnectionStatus(fn, onErr)
	g.start.Do(func() { go g.run() })
	return sub
}

// ConversationID returns the id of the started conversation, or "" before
// the conversation exists.
func (g *Gateway) ConversationID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conversationID
}

// Send posts act to the conversation. The ack carries the id assigned by the
// service.
func (g *Gateway) Send(ctx context.Context, act activity.Activity) <-chan gateway.Ack {
	if g.Status() != status.Online {
		return gateway.Acked("", gateway.ErrNotConnected)
	}

	ack := make(chan gateway.Ack, 1)
	go func() {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(g.ctx, cancel)
		defer stop()

		var resp struct {
			ID string `json:"id"`
		}
		err := g.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(g.ConversationID())+"/activities", act, &resp)
		if err != nil && g.ctx.Err() != nil {
			err = gateway.ErrDisposed
		}
		ack <- gateway.Ack{ID: resp.ID, Err: err}
	}()
	return ack
}

// Dispose stops the connection and ends both streams.
func (g *Gateway) Dispose() {
	g.cancel()
	if g.Streams.Close() {
		g.logger.Info("gateway disposed", zap.String("conversation_id", g.ConversationID()))
	}
}

func (g *Gateway) run() {
	if err := g.Transition(status.Connecting); err != nil {
		return
	}
	if err := g.startConversation(); err != nil {
		if g.ctx.Err() != nil {
			return
		}
		g.logger.Error("start conversation failed", zap.Error(err))
		_ = g.Transition(status.FailedToConnect)
		return
	}

	if g.opts.WebSocket {
		g.stream()
	} else {
		g.poll()
	}
}

type conversation struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
	StreamURL      string `json:"streamUrl"`
}

func (g *Gateway) startConversation() error {
	var conv conversation
	if err := g.do(g.ctx, http.MethodPost, "/conversations", nil, &conv); err != nil {
		return err
	}
	if conv.ConversationID == "" {
		return errors.New("start conversation: response has no conversation id")
	}

	g.mu.Lock()
	g.conversationID = conv.ConversationID
	g.streamURL = conv.StreamURL
	if conv.Token != "" {
		g.token = conv.Token
	}
	g.mu.Unlock()

	g.logger.Info("conversation started", zap.String("conversation_id", conv.ConversationID))
	return nil
}

// activitySet is both a websocket frame and a polling response.
type activitySet struct {
	Activities []activity.Activity `json:"activities"`
	Watermark  string              `json:"watermark,omitempty"`
}

func (g *Gateway) stream() {
	g.mu.Lock()
	streamURL := g.streamURL
	g.mu.Unlock()
	if streamURL == "" {
		g.fail(errors.New("open stream: response has no stream url"))
		return
	}

	conn, _, err := websocket.Dial(g.ctx, streamURL, nil)
	if err != nil {
		if g.ctx.Err() == nil {
			g.logger.Error("open stream failed", zap.Error(err))
			_ = g.Transition(status.FailedToConnect)
		}
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(readLimit)

	if err := g.Transition(status.Online); err != nil {
		return
	}

	for {
		_, data, err := conn.Read(g.ctx)
		if err != nil {
			if g.ctx.Err() != nil {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				g.logger.Info("stream closed by server")
				_ = g.Transition(status.Ended)
				return
			}
			g.fail(fmt.Errorf("read stream: %w", err))
			return
		}
		// Empty frames are heartbeats.
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		var set activitySet
		if err := json.Unmarshal(data, &set); err != nil {
			g.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		g.deliver(set)
	}
}

func (g *Gateway) poll() {
	if err := g.Transition(status.Online); err != nil {
		return
	}

	limiter := rate.NewLimiter(rate.Every(g.opts.PollInterval), 1)
	for {
		if err := limiter.Wait(g.ctx); err != nil {
			return
		}

		g.mu.Lock()
		path := "/conversations/" + url.PathEscape(g.conversationID) + "/activities"
		if g.watermark != "" {
			path += "?watermark=" + url.QueryEscape(g.watermark)
		}
		g.mu.Unlock()

		var set activitySet
		if err := g.do(g.ctx, http.MethodGet, path, nil, &set); err != nil {
			if g.ctx.Err() != nil {
				return
			}
			g.fail(fmt.Errorf("poll activities: %w", err))
			return
		}
		g.deliver(set)
	}
}

func (g *Gateway) deliver(set activitySet) {
	if set.Watermark != "" {
		g.mu.Lock()
		g.watermark = set.Watermark
		g.mu.Unlock()
	}
	for _, act := range set.Activities {
		if !g.Emit(act) {
			return
		}
	}
}

// fail reports err on the activity stream and moves to FAILED_TO_CONNECT.
// There is no retry.
func (g *Gateway) fail(err error) {
	g.logger.Error("stream failed", zap.Error(err))
	g.FailActivities(err)
	_ = g.Transition(status.FailedToConnect)
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.opts.Domain+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	g.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+g.token)
	g.mu.Unlock()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
