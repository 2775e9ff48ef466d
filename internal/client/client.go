// Package client is the typed gRPC client of the chat daemon.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/api"
)

// Client wraps the gRPC connection to a daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy reports whether the daemon answers health checks as SERVING.
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, api.FullMethod(method), in, out)
}

func (c *Client) invokeStruct(ctx context.Context, method string, in any, v any) error {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, method, in, out); err != nil {
		return err
	}
	return api.FromStruct(out, v)
}

func (c *Client) invokeList(ctx context.Context, method string, in any, v any) error {
	out := &structpb.ListValue{}
	if err := c.invoke(ctx, method, in, out); err != nil {
		return err
	}
	return api.FromList(out, v)
}

// State returns the engine and persistence state.
func (c *Client) State(ctx context.Context) (*api.StateView, error) {
	var v api.StateView
	if err := c.invokeStruct(ctx, "GetState", &emptypb.Empty{}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SendText sends a message and returns the optimistic copy.
func (c *Client) SendText(ctx context.Context, text string) (*activity.Activity, error) {
	var v activity.Activity
	if err := c.invokeStruct(ctx, "SendText", wrapperspb.String(text), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClearHistory clears the in-memory conversation.
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.invoke(ctx, "ClearHistory", &emptypb.Empty{}, &emptypb.Empty{})
}

// Reconnect replaces the daemon's gateway with a fresh one.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.invoke(ctx, "Reconnect", &emptypb.Empty{}, &emptypb.Empty{})
}

// InvokeAction runs action index (from 1) of a card. An empty messageID
// targets the latest card.
func (c *Client) InvokeAction(ctx context.Context, messageID string, index int) (*api.ActionResult, error) {
	req, err := api.ToStruct(api.ActionRequest{MessageID: messageID, Index: index})
	if err != nil {
		return nil, err
	}
	var v api.ActionResult
	if err := c.invokeStruct(ctx, "InvokeAction", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListSessions returns stored sessions, most recent first.
func (c *Client) ListSessions(ctx context.Context, includeArchived bool) ([]api.SessionView, error) {
	var v []api.SessionView
	err := c.invokeList(ctx, "ListSessions", wrapperspb.Bool(includeArchived), &v)
	return v, err
}

// SearchSessions returns sessions whose title contains term.
func (c *Client) SearchSessions(ctx context.Context, term string) ([]api.SessionView, error) {
	var v []api.SessionView
	err := c.invokeList(ctx, "SearchSessions", wrapperspb.String(term), &v)
	return v, err
}

// SearchMessages returns stored messages containing term.
func (c *Client) SearchMessages(ctx context.Context, term string) ([]api.SearchHitView, error) {
	var v []api.SearchHitView
	err := c.invokeList(ctx, "SearchMessages", wrapperspb.String(term), &v)
	return v, err
}

// NewSession starts a new empty session.
func (c *Client) NewSession(ctx context.Context) (*api.SessionView, error) {
	var v api.SessionView
	if err := c.invokeStruct(ctx, "NewSession", &emptypb.Empty{}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// OpenSession loads a stored session into the conversation.
func (c *Client) OpenSession(ctx context.Context, id string) (*api.SessionView, error) {
	var v api.SessionView
	if err := c.invokeStruct(ctx, "OpenSession", wrapperspb.String(id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ArchiveSession archives a session.
func (c *Client) ArchiveSession(ctx context.Context, id string) error {
	return c.invoke(ctx, "ArchiveSession", wrapperspb.String(id), &emptypb.Empty{})
}

// DeleteSession deletes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.invoke(ctx, "DeleteSession", wrapperspb.String(id), &emptypb.Empty{})
}

// Preferences returns the stored preferences; fields are nil when the user
// has none yet.
func (c *Client) Preferences(ctx context.Context) (*api.PreferencesView, error) {
	var v api.PreferencesView
	if err := c.invokeStruct(ctx, "GetPreferences", &emptypb.Empty{}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdatePreferences changes the non-nil fields of u.
func (c *Client) UpdatePreferences(ctx context.Context, u api.PreferencesView) (*api.PreferencesView, error) {
	req, err := api.ToStruct(u)
	if err != nil {
		return nil, err
	}
	var v api.PreferencesView
	if err := c.invokeStruct(ctx, "UpdatePreferences", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetConsent answers the data sharing prompt.
func (c *Client) SetConsent(ctx context.Context, granted bool) (*api.ConsentView, error) {
	var v api.ConsentView
	if err := c.invokeStruct(ctx, "SetConsent", wrapperspb.Bool(granted), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// EventStream receives daemon events.
type EventStream struct {
	stream grpc.ClientStream
}

// WatchEvents opens the event stream. Cancel ctx to close it.
func (c *Client) WatchEvents(ctx context.Context) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, api.WatchEventsDesc, api.FullMethod("WatchEvents"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*api.EventView, error) {
	msg := &structpb.Struct{}
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	var v api.EventView
	if err := api.FromStruct(msg, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
