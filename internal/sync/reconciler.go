package sync

import (
	"github.com/nkaluva9/health-chatbot/internal/store"
	"go.uber.org/zap"
)

// Reconciler manages session checkpoints so a restarted daemon resumes the
// session the user last had open.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger}
}

func activeSessionKey(userID string) string {
	return "active_session:" + userID
}

// SetActiveSession records the session a user has open.
func (r *Reconciler) SetActiveSession(userID, sessionID string) {
	if err := r.db.SetState(activeSessionKey(userID), sessionID); err != nil {
		r.logger.Warn("failed to checkpoint active session", zap.Error(err), zap.String("session_id", sessionID))
	}
}

// ActiveSession returns the checkpointed session for a user if it still
// exists, belongs to the user and is not archived.
func (r *Reconciler) ActiveSession(userID string) (*store.Session, error) {
	id, err := r.db.GetState(activeSessionKey(userID))
	if err != nil || id == "" {
		return nil, err
	}
	s, err := r.db.GetSession(id)
	if err != nil {
		return nil, err
	}
	if s == nil || s.UserID != userID || s.IsArchived {
		r.logger.Debug("stale session checkpoint", zap.String("session_id", id))
		return nil, nil
	}
	return s, nil
}
