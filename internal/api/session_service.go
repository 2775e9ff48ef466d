package api

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const searchLimit = 50

func (s *ChatService) ListSessions(_ context.Context, req *wrapperspb.BoolValue) (*structpb.ListValue, error) {
	sessions, err := s.persist.ListSessions(req.GetValue())
	if err != nil {
		return nil, toStatus("list sessions", err)
	}
	return listOrInternal(sessionViews(sessions))
}

func (s *ChatService) SearchSessions(_ context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	sessions, err := s.persist.SearchSessions(req.GetValue())
	if err != nil {
		return nil, toStatus("search sessions", err)
	}
	return listOrInternal(sessionViews(sessions))
}

func (s *ChatService) SearchMessages(_ context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if strings.TrimSpace(req.GetValue()) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is empty")
	}
	results, err := s.persist.SearchMessages(req.GetValue(), searchLimit)
	if err != nil {
		return nil, toStatus("search messages", err)
	}
	hits := make([]SearchHitView, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHitView{
			SessionID:       r.Message.SessionID,
			SessionTitle:    r.SessionTitle,
			MessageID:       r.Message.ID,
			MessageType:     r.Message.MessageType,
			Content:         r.Message.Content,
			CreatedAtUnixMs: r.Message.CreatedAt,
		})
	}
	return listOrInternal(hits)
}

func (s *ChatService) NewSession(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sess, err := s.persist.NewSession()
	if err != nil {
		return nil, toStatus("new session", err)
	}
	return structOrInternal(sessionView(sess))
}

func (s *ChatService) OpenSession(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	sess, err := s.persist.OpenSession(req.GetValue())
	if err != nil {
		return nil, toStatus("open session", err)
	}
	return structOrInternal(sessionView(sess))
}

func (s *ChatService) ArchiveSession(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.persist.ArchiveSession(req.GetValue()); err != nil {
		return nil, toStatus("archive session", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ChatService) DeleteSession(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.persist.DeleteSession(req.GetValue()); err != nil {
		return nil, toStatus("delete session", err)
	}
	return &emptypb.Empty{}, nil
}
