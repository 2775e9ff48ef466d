// Package sync persists the conversation held by the session engine. It
// observes engine events on the bus and writes sessions and messages to the
// store, gated by configuration and the user's consent.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/bus"
	"github.com/nkaluva9/health-chatbot/internal/engine"
	"github.com/nkaluva9/health-chatbot/internal/store"
)

// MaxTitleLength is the number of characters kept when deriving a session
// title from its first message.
const MaxTitleLength = 50

// Bot is the participant restored bot messages are attributed to.
var Bot = activity.Participant{ID: "bot", Name: "Assistant"}

// Bus event kinds published by the synchronizer.
const (
	KindModeChanged     = "sync.mode_changed"
	KindSessionChanged  = "sync.session_changed"
	KindMessageRecorded = "sync.message_recorded"
	KindWriteFailed     = "sync.write_failed"
)

var (
	// ErrDisabled is returned when persistence is turned off in configuration.
	ErrDisabled = errors.New("persistence disabled")
	// ErrNoConsent is returned for session operations before consent is granted.
	ErrNoConsent = errors.New("data sharing consent not granted")
)

// Mode is the persistence mode of the running conversation.
type Mode string

const (
	ModeDisabled        Mode = "disabled"
	ModeConsentRequired Mode = "consent_required"
	ModeDeclined        Mode = "declined"
	ModeActive          Mode = "active"
)

// Conversation is the part of the session engine the synchronizer drives
// when switching sessions.
type Conversation interface {
	Self() activity.Participant
	LoadMessages(msgs []activity.Activity)
	ClearHistory()
}

// Options configures a Synchronizer.
type Options struct {
	UserID  string
	Enabled bool
}

// Synchronizer records engine traffic into the store.
type Synchronizer struct {
	db         *store.DB
	conv       Conversation
	bus        *bus.Bus
	logger     *zap.Logger
	reconciler *Reconciler
	userID     string
	enabled    bool
	cancel     context.CancelFunc
	done       chan struct{}

	mu      stdsync.Mutex
	mode    Mode
	session *store.Session

	// target is the session engine traffic is filed under at publish time,
	// empty while nothing is recorded. It has its own lock because it is
	// read on the engine's publishing goroutine.
	targetMu stdsync.Mutex
	target   string

	queueMu stdsync.Mutex
	queue   []queuedEvent
	wake    chan struct{}
}

// queuedEvent is an engine event waiting for the worker, with the session
// that was open when the engine published it.
type queuedEvent struct {
	evt       bus.Event
	sessionID string
}

// NewSynchronizer creates a synchronizer. It starts in ModeConsentRequired
// when enabled and ModeDisabled otherwise; call Restore to load state.
func NewSynchronizer(db *store.DB, conv Conversation, b *bus.Bus, logger *zap.Logger, opts Options) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := ModeDisabled
	if opts.Enabled {
		mode = ModeConsentRequired
	}
	return &Synchronizer{
		db:         db,
		conv:       conv,
		bus:        b,
		logger:     logger,
		reconciler: NewReconciler(db, logger),
		userID:     opts.UserID,
		enabled:    opts.Enabled,
		mode:       mode,
		wake:       make(chan struct{}, 1),
	}
}

// Start subscribes to engine events on the bus. Events are queued on the
// engine's goroutine, tagged with the session open at that moment, and
// written by a worker so store latency never reaches the engine. The queue
// does not drop events.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	unsub := s.bus.SubscribeFunc("engine.", s.enqueue)

	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.wake:
				s.drain()
			case <-ctx.Done():
				unsub()
				s.drain()
				return
			}
		}
	}()
}

// Stop stops the synchronizer. Events already queued are written before it
// returns.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// enqueue runs on the publisher's goroutine, inside the engine's critical
// section. It only takes the target and queue locks.
func (s *Synchronizer) enqueue(evt bus.Event) {
	if evt.Kind != engine.KindMessageSent && evt.Kind != engine.KindMessageAppended {
		return
	}
	id := s.currentTarget()
	if id == "" {
		return
	}
	s.queueMu.Lock()
	s.queue = append(s.queue, queuedEvent{evt: evt, sessionID: id})
	s.queueMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) drain() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.queueMu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()
		s.handleEvent(next.sessionID, next.evt)
	}
}

func (s *Synchronizer) handleEvent(sessionID string, evt bus.Event) {
	switch evt.Kind {
	case engine.KindMessageSent:
		act, ok := evt.Payload.(activity.Activity)
		if !ok {
			return
		}
		s.record(sessionID, store.MessageTypeUser, act)
	case engine.KindMessageAppended:
		p, ok := evt.Payload.(engine.MessageAppended)
		if !ok || p.Local || p.Activity.From.ID == s.userID {
			return
		}
		s.record(sessionID, store.MessageTypeBot, p.Activity)
	}
}

func (s *Synchronizer) currentTarget() string {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()
	return s.target
}

// retargetLocked recomputes target from mode and session. s.mu must be held.
func (s *Synchronizer) retargetLocked() {
	id := ""
	if s.mode == ModeActive && s.session != nil {
		id = s.session.ID
	}
	s.targetMu.Lock()
	s.target = id
	s.targetMu.Unlock()
}

// Current returns the persistence mode and a copy of the open session, if any.
func (s *Synchronizer) Current() (Mode, *store.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return s.mode, nil
	}
	cp := *s.session
	return s.mode, &cp
}

// Record stores act in the open session. It is a no-op unless persistence
// is active. Failures are logged and published, never returned: the
// in-memory conversation carries on regardless.
func (s *Synchronizer) Record(messageType string, act activity.Activity) {
	if id := s.currentTarget(); id != "" {
		s.record(id, messageType, act)
	}
}

// record stores act in sessionID, which need not be the open session any
// more. Nothing is written once consent has been withdrawn.
func (s *Synchronizer) record(sessionID, messageType string, act activity.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeActive {
		return
	}

	msg := &store.Message{
		SessionID:   sessionID,
		UserID:      s.userID,
		MessageType: messageType,
		Content:     act.Text,
		Metadata:    metadataJSON(act),
	}
	if len(act.Attachments) > 0 {
		data, err := json.Marshal(act.Attachments)
		if err != nil {
			s.failLocked("encode attachments", err)
			return
		}
		msg.Attachments = string(data)
	}

	count, err := s.db.AppendMessage(msg)
	if err != nil {
		s.failLocked("record message", err)
		return
	}
	current := s.session != nil && s.session.ID == sessionID
	if current {
		s.session.MessageCount = count
	}

	if count == 1 && act.Text != "" {
		sess := s.session
		if !current {
			if sess, err = s.db.GetSession(sessionID); err != nil {
				s.failLocked("load session", err)
				sess = nil
			}
		}
		if sess != nil && sess.Title == store.DefaultTitle {
			title := DeriveTitle(act.Text)
			updated, err := s.db.UpdateSession(sessionID, store.SessionUpdate{Title: &title})
			if err != nil {
				s.failLocked("derive title", err)
			} else {
				if current {
					s.session = updated
				}
				s.publish(KindSessionChanged, *updated)
			}
		}
	}
	s.publish(KindMessageRecorded, *msg)
}

// Restore loads the user's preferences and, with consent, reopens the last
// session or starts a new one.
func (s *Synchronizer) Restore() (Mode, error) {
	if !s.enabled {
		return ModeDisabled, nil
	}
	prefs, err := s.db.GetPreferences(s.userID)
	if err != nil {
		return s.currentMode(), fmt.Errorf("load preferences: %w", err)
	}
	if prefs == nil || !prefs.DataSharingConsent {
		s.setMode(ModeConsentRequired)
		return ModeConsentRequired, nil
	}
	s.setMode(ModeActive)

	sess, err := s.reconciler.ActiveSession(s.userID)
	if err != nil {
		return ModeActive, fmt.Errorf("read checkpoint: %w", err)
	}
	if sess == nil {
		sess, err = s.db.LatestSession(s.userID)
		if err != nil {
			return ModeActive, fmt.Errorf("latest session: %w", err)
		}
	}
	if sess == nil {
		_, err = s.NewSession()
		return ModeActive, err
	}
	_, err = s.OpenSession(sess.ID)
	return ModeActive, err
}

// GrantConsent stores the user's consent with default retention settings
// and starts a new session.
func (s *Synchronizer) GrantConsent() (*store.Session, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}
	consent, retention, maxSessions, autoArchive := true, store.DefaultRetentionDays, store.DefaultMaxSessions, true
	if _, err := s.db.UpsertPreferences(s.userID, store.PreferencesUpdate{
		DataSharingConsent: &consent,
		RetentionDays:      &retention,
		MaxSessions:        &maxSessions,
		AutoArchive:        &autoArchive,
	}); err != nil {
		return nil, fmt.Errorf("save consent: %w", err)
	}
	s.setMode(ModeActive)
	return s.NewSession()
}

// DeclineConsent keeps the conversation in memory only.
func (s *Synchronizer) DeclineConsent() error {
	if !s.enabled {
		return ErrDisabled
	}
	s.mu.Lock()
	s.session = nil
	s.retargetLocked()
	s.mu.Unlock()
	s.setMode(ModeDeclined)
	return nil
}

// NewSession creates and opens an empty session, clearing the engine's log.
// Sessions beyond the user's limit are archived or deleted.
func (s *Synchronizer) NewSession() (*store.Session, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	sess, err := s.db.CreateSession(s.userID, "")
	if err != nil {
		return nil, err
	}
	s.enforceLimit()
	s.conv.ClearHistory()
	s.open(sess)
	return sess, nil
}

// OpenSession loads a stored session into the engine and makes it current.
func (s *Synchronizer) OpenSession(id string) (*store.Session, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	sess, err := s.ownedSession(id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.db.ListMessages(id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	acts := make([]activity.Activity, 0, len(msgs))
	for _, m := range msgs {
		acts = append(acts, s.toActivity(m))
	}
	s.conv.LoadMessages(acts)
	s.open(sess)
	return sess, nil
}

// ArchiveSession archives a session. Archiving the open session starts a
// new one.
func (s *Synchronizer) ArchiveSession(id string) error {
	return s.retire(id, s.db.ArchiveSession)
}

// DeleteSession deletes a session and its messages. Deleting the open
// session starts a new one.
func (s *Synchronizer) DeleteSession(id string) error {
	return s.retire(id, s.db.DeleteSession)
}

func (s *Synchronizer) retire(id string, op func(string) error) error {
	if err := s.requireActive(); err != nil {
		return err
	}
	if _, err := s.ownedSession(id); err != nil {
		return err
	}
	if err := op(id); err != nil {
		return err
	}
	s.mu.Lock()
	wasOpen := s.session != nil && s.session.ID == id
	s.mu.Unlock()
	if wasOpen {
		_, err := s.NewSession()
		return err
	}
	return nil
}

// ListSessions returns the user's sessions, most recent first.
func (s *Synchronizer) ListSessions(includeArchived bool) ([]store.Session, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	return s.db.ListSessions(s.userID, includeArchived)
}

// SearchSessions returns the user's non-archived sessions whose title
// contains term.
func (s *Synchronizer) SearchSessions(term string) ([]store.Session, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	return s.db.SearchSessions(s.userID, term)
}

// SearchMessages returns the user's stored messages containing term.
func (s *Synchronizer) SearchMessages(term string, limit int) ([]store.SearchResult, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	return s.db.SearchMessages(s.userID, term, limit)
}

// Preferences returns the user's stored preferences, or nil if none exist.
func (s *Synchronizer) Preferences() (*store.Preferences, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}
	return s.db.GetPreferences(s.userID)
}

// UpdatePreferences stores u. Withdrawing consent stops recording.
func (s *Synchronizer) UpdatePreferences(u store.PreferencesUpdate) (*store.Preferences, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}
	prefs, err := s.db.UpsertPreferences(s.userID, u)
	if err != nil {
		return nil, err
	}
	if u.DataSharingConsent != nil {
		if !prefs.DataSharingConsent {
			_ = s.DeclineConsent()
		} else if s.currentMode() != ModeActive {
			if _, err := s.Restore(); err != nil {
				return prefs, err
			}
		}
	}
	if s.currentMode() == ModeActive {
		s.enforceLimit()
	}
	return prefs, nil
}

func (s *Synchronizer) enforceLimit() {
	prefs, err := s.db.GetPreferences(s.userID)
	if err != nil || prefs == nil {
		return
	}
	n, err := s.db.EnforceSessionLimit(s.userID, prefs.MaxSessions, prefs.AutoArchive)
	if err != nil {
		s.logger.Warn("failed to enforce session limit", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("session limit enforced", zap.Int("sessions", n), zap.Bool("archived", prefs.AutoArchive))
	}
}

func (s *Synchronizer) ownedSession(id string) (*store.Session, error) {
	sess, err := s.db.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != s.userID {
		return nil, store.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Synchronizer) open(sess *store.Session) {
	s.mu.Lock()
	cp := *sess
	s.session = &cp
	s.retargetLocked()
	s.publish(KindSessionChanged, cp)
	s.mu.Unlock()
	s.reconciler.SetActiveSession(s.userID, sess.ID)
}

func (s *Synchronizer) requireActive() error {
	if !s.enabled {
		return ErrDisabled
	}
	if s.currentMode() != ModeActive {
		return ErrNoConsent
	}
	return nil
}

func (s *Synchronizer) currentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Synchronizer) setMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == m {
		return
	}
	s.mode = m
	s.retargetLocked()
	s.publish(KindModeChanged, m)
}

func (s *Synchronizer) failLocked(op string, err error) {
	s.logger.Error("persistence write failed", zap.String("op", op), zap.Error(err))
	s.publish(KindWriteFailed, fmt.Errorf("%s: %w", op, err))
}

func (s *Synchronizer) publish(kind string, payload any) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func (s *Synchronizer) toActivity(m store.Message) activity.Activity {
	from := Bot
	if m.MessageType == store.MessageTypeUser {
		from = s.conv.Self()
	}
	act := activity.Activity{
		Type:      activity.TypeMessage,
		ID:        m.ID,
		Timestamp: activity.FormatTime(time.UnixMilli(m.CreatedAt)),
		From:      from,
		Text:      m.Content,
	}
	if m.Attachments != "" {
		if err := json.Unmarshal([]byte(m.Attachments), &act.Attachments); err != nil {
			s.logger.Warn("skipping unreadable attachments", zap.String("msg_id", m.ID), zap.Error(err))
		}
	}
	return act
}

func metadataJSON(act activity.Activity) string {
	meta := map[string]string{}
	if act.ID != "" {
		meta["activity_id"] = act.ID
	}
	if id := act.ConversationID(); id != "" {
		meta["conversation_id"] = id
	}
	if act.Timestamp != "" {
		meta["timestamp"] = act.Timestamp
	}
	if len(meta) == 0 {
		return ""
	}
	data, _ := json.Marshal(meta)
	return string(data)
}

// DeriveTitle turns the first message of a session into its title: the
// first MaxTitleLength characters, with "..." appended when cut.
func DeriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= MaxTitleLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxTitleLength]) + "..."
}
