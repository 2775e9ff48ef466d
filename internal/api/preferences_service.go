package api

import (
	"context"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nkaluva9/health-chatbot/internal/store"
)

func (s *ChatService) GetPreferences(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	prefs, err := s.persist.Preferences()
	if err != nil {
		return nil, toStatus("get preferences", err)
	}
	return structOrInternal(preferencesView(prefs))
}

func (s *ChatService) UpdatePreferences(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var v PreferencesView
	if err := FromStruct(req, &v); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	prefs, err := s.persist.UpdatePreferences(store.PreferencesUpdate{
		RetentionDays:      v.RetentionDays,
		MaxSessions:        v.MaxSessions,
		AutoArchive:        v.AutoArchive,
		DataSharingConsent: v.DataSharingConsent,
	})
	if err != nil {
		return nil, toStatus("update preferences", err)
	}
	return structOrInternal(preferencesView(prefs))
}

// SetConsent records the user's answer to the data sharing prompt. Granting
// opens a fresh session; declining keeps the conversation in memory only.
func (s *ChatService) SetConsent(_ context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	if req.GetValue() {
		if _, err := s.persist.GrantConsent(); err != nil {
			return nil, toStatus("grant consent", err)
		}
	} else if err := s.persist.DeclineConsent(); err != nil {
		return nil, toStatus("decline consent", err)
	}
	mode, sess := s.persist.Current()
	return structOrInternal(ConsentView{Persistence: string(mode), Session: sessionView(sess)})
}
