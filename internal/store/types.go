package store

import "errors"

// DefaultTitle is the title of a session until one is derived from its first
// message.
const DefaultTitle = "New Conversation"

// Message types.
const (
	MessageTypeUser = "user"
	MessageTypeBot  = "bot"
)

// Preference defaults applied when a user grants consent.
const (
	DefaultRetentionDays = 90
	DefaultMaxSessions   = 100
)

// ErrInvalidRetention is returned for a retention period outside 30, 60 or 90 days.
var ErrInvalidRetention = errors.New("retention days must be 30, 60 or 90")

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is a persisted, titled conversation. Timestamps are unix milliseconds.
type Session struct {
	ID            string
	UserID        string
	Title         string
	MessageCount  int
	IsArchived    bool
	ExpiresAt     int64
	LastMessageAt int64
	CreatedAt     int64
	UpdatedAt     int64
}

// Message is a persisted chat message. Attachments and Metadata hold JSON
// text and are empty when absent.
type Message struct {
	ID          string
	SessionID   string
	UserID      string
	MessageType string
	Content     string
	Attachments string
	Metadata    string
	CreatedAt   int64
}

// Preferences are a user's retention and consent settings.
type Preferences struct {
	UserID             string
	RetentionDays      int
	MaxSessions        int
	AutoArchive        bool
	DataSharingConsent bool
	UpdatedAt          int64
}

// PreferencesUpdate holds the preference fields to change; nil fields keep
// their current (or default) value.
type PreferencesUpdate struct {
	RetentionDays      *int
	MaxSessions        *int
	AutoArchive        *bool
	DataSharingConsent *bool
}

// SessionUpdate holds the session fields to change.
type SessionUpdate struct {
	Title      *string
	IsArchived *bool
}

// ValidRetention reports whether days is an allowed retention period.
func ValidRetention(days int) bool {
	return days == 30 || days == 60 || days == 90
}
