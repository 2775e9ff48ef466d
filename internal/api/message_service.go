package api

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/card"
	"github.com/nkaluva9/health-chatbot/internal/engine"
)

// SendText sends a message through the engine and returns the optimistic
// copy.
func (s *ChatService) SendText(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if strings.TrimSpace(req.GetValue()) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "text is empty")
	}
	sent, ok := s.conv.Send(req.GetValue())
	if !ok {
		return nil, notSent(s.conv.State())
	}
	return structOrInternal(sent)
}

func (s *ChatService) ClearHistory(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.conv.ClearHistory()
	return &emptypb.Empty{}, nil
}

// InvokeAction runs a card action. Submit actions send "Action: <name>"
// through the engine; open-url actions are handed back to the client.
func (s *ChatService) InvokeAction(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var ar ActionRequest
	if err := FromStruct(req, &ar); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}

	c := findCard(s.conv.State().Messages, ar.MessageID)
	if c == nil {
		return nil, grpcstatus.Error(codes.NotFound, "no card to act on")
	}
	if ar.Index < 1 || ar.Index > len(c.Actions) {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "action %d out of range (card has %d)", ar.Index, len(c.Actions))
	}
	action := c.Actions[ar.Index-1]

	result := ActionResult{Type: action.Type}
	if action.Type == card.ActionOpenURL {
		result.URL = action.URL
	} else {
		text, ok := card.SubmitText(action)
		if !ok {
			return nil, grpcstatus.Errorf(codes.Unimplemented, "action type %q is not supported", action.Type)
		}
		sent, ok := s.conv.Send(text)
		if !ok {
			return nil, notSent(s.conv.State())
		}
		result.Text = text
		result.Sent = &sent
	}
	return structOrInternal(result)
}

// findCard returns the first card of message id, or of the most recent
// message carrying a card when id is empty.
func findCard(msgs []activity.Activity, id string) *card.Card {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if id != "" && m.ID != id {
			continue
		}
		if cards := card.FromActivity(m); len(cards) > 0 {
			return cards[0]
		}
		if id != "" {
			return nil
		}
	}
	return nil
}

func notSent(st engine.State) error {
	if !st.IsOnline() {
		return grpcstatus.Error(codes.FailedPrecondition, engine.ErrNotConnected.Error())
	}
	return grpcstatus.Error(codes.Unavailable, "message not accepted")
}
