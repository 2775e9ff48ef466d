package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/bus"
	"github.com/nkaluva9/health-chatbot/internal/engine"
	"github.com/nkaluva9/health-chatbot/internal/store"
	intsync "github.com/nkaluva9/health-chatbot/internal/sync"
)

// Conversation is the part of the session engine the API drives.
type Conversation interface {
	Self() activity.Participant
	State() engine.State
	Send(text string) (activity.Activity, bool)
	ClearHistory()
}

// Reconnector replaces the gateway the engine is attached to.
type Reconnector interface {
	Reconnect() error
}

// ChatService implements ChatServer.
type ChatService struct {
	conv        Conversation
	connector   Reconnector
	persist     *intsync.Synchronizer
	bus         *bus.Bus
	logger      *zap.Logger
	profileName string

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

var _ ChatServer = (*ChatService)(nil)

// NewChatService creates the chat service.
func NewChatService(conv Conversation, connector Reconnector, s *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger, profileName string) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		conv:        conv,
		connector:   connector,
		persist:     s,
		bus:         b,
		logger:      logger,
		profileName: profileName,
		shutdown:    make(chan struct{}),
	}
}

// Shutdown ends every WatchEvents stream.
func (s *ChatService) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

func (s *ChatService) GetState(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	mode, sess := s.persist.Current()
	return structOrInternal(stateView(s.profileName, s.conv.Self().ID, s.conv.State(), mode, sess))
}

func (s *ChatService) Reconnect(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.connector.Reconnect(); err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "reconnect: %v", err)
	}
	return &emptypb.Empty{}, nil
}

// WatchEvents streams engine and persistence events until the client goes
// away. Slow clients miss events rather than stalling the daemon.
func (s *ChatService) WatchEvents(_ *emptypb.Empty, stream grpc.ServerStream) error {
	engineCh, unsubEngine := s.bus.Subscribe("engine.", 256)
	defer unsubEngine()
	syncCh, unsubSync := s.bus.Subscribe("sync.", 256)
	defer unsubSync()

	for {
		var evt bus.Event
		select {
		case evt = <-engineCh:
		case evt = <-syncCh:
		case <-stream.Context().Done():
			return nil
		case <-s.shutdown:
			return nil
		}

		msg, err := ToStruct(s.eventView(evt))
		if err != nil {
			s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
			continue
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
}

func (s *ChatService) eventView(evt bus.Event) EventView {
	return EventView{
		EventID:          uuid.New().String(),
		Profile:          s.profileName,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
		Kind:             evt.Kind,
		PayloadVersion:   1,
		Payload:          encodePayload(evt.Payload),
	}
}

func encodePayload(p any) json.RawMessage {
	var v any
	switch p := p.(type) {
	case nil:
		return nil
	case error:
		v = map[string]string{"error": p.Error()}
	case store.Session:
		v = sessionView(&p)
	case store.Message:
		v = map[string]any{"session_id": p.SessionID, "message_id": p.ID, "message_type": p.MessageType}
	default:
		v = p
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func structOrInternal(v any) (*structpb.Struct, error) {
	st, err := ToStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return st, nil
}

func listOrInternal(v any) (*structpb.ListValue, error) {
	l, err := ToList(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return l, nil
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, intsync.ErrDisabled), errors.Is(err, intsync.ErrNoConsent):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, store.ErrSessionNotFound):
		return grpcstatus.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, store.ErrInvalidRetention):
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
