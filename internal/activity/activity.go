// Package activity defines the unit of conversational traffic exchanged with
// a bot endpoint. The JSON shape follows the Bot Framework Direct Line v3
// activity schema.
package activity

import (
	"encoding/json"
	"time"
)

// Type is the activity type.
type Type string

const (
	TypeMessage Type = "message"
	TypeTyping  Type = "typing"
)

// AdaptiveCardContentType is the attachment content type of adaptive cards.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

// Participant identifies the sender of an activity.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationRef identifies the conversation an activity belongs to.
type ConversationRef struct {
	ID string `json:"id"`
}

// Attachment is rich content attached to a message.
type Attachment struct {
	ContentType string          `json:"contentType"`
	ContentURL  string          `json:"contentUrl,omitempty"`
	Name        string          `json:"name,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// Activity is a single event on the conversation stream. An empty Text is
// treated as absent.
type Activity struct {
	Type         Type             `json:"type"`
	ID           string           `json:"id,omitempty"`
	Timestamp    string           `json:"timestamp,omitempty"`
	From         Participant      `json:"from"`
	Conversation *ConversationRef `json:"conversation,omitempty"`
	Text         string           `json:"text,omitempty"`
	Attachments  []Attachment     `json:"attachments,omitempty"`
	ReplyToID    string           `json:"replyToId,omitempty"`
	Value        json.RawMessage  `json:"value,omitempty"`
}

// IsMessage reports whether a is a message activity.
func (a Activity) IsMessage() bool { return a.Type == TypeMessage }

// IsTyping reports whether a is a typing indicator.
func (a Activity) IsTyping() bool { return a.Type == TypeTyping }

// ConversationID returns the conversation id, or "" when unset.
func (a Activity) ConversationID() string {
	if a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// HasCard reports whether any attachment is an adaptive card.
func (a Activity) HasCard() bool {
	for _, att := range a.Attachments {
		if att.ContentType == AdaptiveCardContentType {
			return true
		}
	}
	return false
}

// Time parses the activity timestamp. The zero time is returned when the
// timestamp is missing or malformed.
func (a Activity) Time() time.Time {
	if a.Timestamp == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, a.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTime renders t as an activity timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// WithConversation returns a copy of a attached to the given conversation.
func (a Activity) WithConversation(id string) Activity {
	if id == "" {
		a.Conversation = nil
		return a
	}
	a.Conversation = &ConversationRef{ID: id}
	return a
}
