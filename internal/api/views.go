package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/engine"
	"github.com/nkaluva9/health-chatbot/internal/store"
	intsync "github.com/nkaluva9/health-chatbot/internal/sync"
)

// StateView is the response of GetState.
type StateView struct {
	Profile        string              `json:"profile"`
	Status         string              `json:"status"`
	Typing         bool                `json:"typing"`
	ConversationID string              `json:"conversation_id,omitempty"`
	UserID         string              `json:"user_id"`
	Messages       []activity.Activity `json:"messages"`
	Persistence    string              `json:"persistence"`
	Session        *SessionView        `json:"session,omitempty"`
}

// SessionView is a stored session.
type SessionView struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	MessageCount    int    `json:"message_count"`
	IsArchived      bool   `json:"is_archived"`
	ExpiresAtUnixMs int64  `json:"expires_at_unix_ms"`
	LastMessageAtMs int64  `json:"last_message_at_unix_ms"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
}

// SearchHitView is a stored message matching a search.
type SearchHitView struct {
	SessionID       string `json:"session_id"`
	SessionTitle    string `json:"session_title"`
	MessageID       string `json:"message_id"`
	MessageType     string `json:"message_type"`
	Content         string `json:"content"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
}

// PreferencesView holds retention and consent settings. In UpdatePreferences
// requests absent fields are left unchanged.
type PreferencesView struct {
	RetentionDays      *int  `json:"retention_days,omitempty"`
	MaxSessions        *int  `json:"max_sessions,omitempty"`
	AutoArchive        *bool `json:"auto_archive,omitempty"`
	DataSharingConsent *bool `json:"data_sharing_consent,omitempty"`
}

// ActionRequest selects a card action: the Index-th (from 1) action of the
// first card in message MessageID, or of the latest card when MessageID is
// empty.
type ActionRequest struct {
	MessageID string `json:"message_id,omitempty"`
	Index     int    `json:"index"`
}

// ActionResult reports what invoking a card action did. Submit actions send
// Text; open-url actions return URL for the client to open.
type ActionResult struct {
	Type string             `json:"type"`
	Text string             `json:"text,omitempty"`
	URL  string             `json:"url,omitempty"`
	Sent *activity.Activity `json:"sent,omitempty"`
}

// ConsentView is the response of SetConsent.
type ConsentView struct {
	Persistence string       `json:"persistence"`
	Session     *SessionView `json:"session,omitempty"`
}

// EventView is one event of WatchEvents.
type EventView struct {
	EventID          string          `json:"event_id"`
	Profile          string          `json:"profile"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Kind             string          `json:"kind"`
	PayloadVersion   int             `json:"payload_version"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

func sessionView(s *store.Session) *SessionView {
	if s == nil {
		return nil
	}
	return &SessionView{
		ID:              s.ID,
		Title:           s.Title,
		MessageCount:    s.MessageCount,
		IsArchived:      s.IsArchived,
		ExpiresAtUnixMs: s.ExpiresAt,
		LastMessageAtMs: s.LastMessageAt,
		CreatedAtUnixMs: s.CreatedAt,
	}
}

func sessionViews(sessions []store.Session) []SessionView {
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, *sessionView(&sessions[i]))
	}
	return views
}

func preferencesView(p *store.Preferences) PreferencesView {
	if p == nil {
		return PreferencesView{}
	}
	return PreferencesView{
		RetentionDays:      &p.RetentionDays,
		MaxSessions:        &p.MaxSessions,
		AutoArchive:        &p.AutoArchive,
		DataSharingConsent: &p.DataSharingConsent,
	}
}

func stateView(profile, userID string, st engine.State, mode intsync.Mode, sess *store.Session) StateView {
	msgs := st.Messages
	if msgs == nil {
		msgs = []activity.Activity{}
	}
	return StateView{
		Profile:        profile,
		Status:         string(st.Status),
		Typing:         st.Typing,
		ConversationID: st.ConversationID,
		UserID:         userID,
		Messages:       msgs,
		Persistence:    string(mode),
		Session:        sessionView(sess),
	}
}

// ToStruct converts v to a structpb.Struct through its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("convert %T: %w", v, err)
	}
	return s, nil
}

// ToList converts a slice to a structpb.ListValue through its JSON form.
func ToList(v any) (*structpb.ListValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	l := &structpb.ListValue{}
	if err := l.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("convert %T: %w", v, err)
	}
	return l, nil
}

// FromStruct decodes s into v.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// FromList decodes l into the slice pointed to by v.
func FromList(l *structpb.ListValue, v any) error {
	data, err := l.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
