package engine

import (
	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/status"
)

// Bus event kinds published by the engine.
const (
	KindMessageAppended     = "engine.message_appended"
	KindMessageSent         = "engine.message_sent"
	KindTypingChanged       = "engine.typing_changed"
	KindStatusChanged       = "engine.status_changed"
	KindConversationAdopted = "engine.conversation_adopted"
	KindHistoryCleared      = "engine.history_cleared"
	KindHistoryLoaded       = "engine.history_loaded"
	KindError               = "engine.error"
)

// MessageAppended is the payload of KindMessageAppended. Local is true for
// the optimistic copy of a message sent by this engine.
type MessageAppended struct {
	Activity activity.Activity `json:"activity"`
	Local    bool              `json:"local"`
}

// StatusChanged is the payload of KindStatusChanged.
type StatusChanged struct {
	From status.State `json:"from"`
	To   status.State `json:"to"`
}
