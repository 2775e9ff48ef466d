package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, title, message_count, is_archived, expires_at, last_message_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.MessageCount, &s.IsArchived,
		&s.ExpiresAt, &s.LastMessageAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new session for userID. An empty title stores
// DefaultTitle. The expiry is derived from the user's retention preference.
func (db *DB) CreateSession(userID, title string) (*Session, error) {
	if title == "" {
		title = DefaultTitle
	}
	retention := DefaultRetentionDays
	prefs, err := db.GetPreferences(userID)
	if err != nil {
		return nil, err
	}
	if prefs != nil {
		retention = prefs.RetentionDays
	}

	now := time.Now()
	s := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         title,
		ExpiresAt:     now.AddDate(0, 0, retention).UnixMilli(),
		LastMessageAt: now.UnixMilli(),
		CreatedAt:     now.UnixMilli(),
		UpdatedAt:     now.UnixMilli(),
	}
	_, err = db.Exec(`
		INSERT INTO chat_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, 0, 0, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Title, s.ExpiresAt, s.LastMessageAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// GetSession returns a session by id, or nil when it does not exist.
func (db *DB) GetSession(id string) (*Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns a user's sessions, most recently updated first.
func (db *DB) ListSessions(userID string, includeArchived bool) ([]Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE user_id = ?`
	if !includeArchived {
		q += ` AND is_archived = 0`
	}
	q += ` ORDER BY updated_at DESC, rowid DESC`
	return db.querySessions(q, userID)
}

// LatestSession returns the user's most recently updated non-archived
// session, or nil.
func (db *DB) LatestSession(userID string) (*Session, error) {
	s, err := scanSession(db.QueryRow(`
		SELECT `+sessionColumns+` FROM chat_sessions
		WHERE user_id = ? AND is_archived = 0
		ORDER BY updated_at DESC, rowid DESC
		LIMIT 1`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SearchSessions returns a user's non-archived sessions whose title contains
// term, case-insensitively.
func (db *DB) SearchSessions(userID, term string) ([]Session, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return db.querySessions(`
		SELECT `+sessionColumns+` FROM chat_sessions
		WHERE user_id = ? AND is_archived = 0 AND lower(title) LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, rowid DESC`, userID, pattern)
}

// UpdateSession applies u to a session and returns the updated row.
func (db *DB) UpdateSession(id string, u SessionUpdate) (*Session, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UnixMilli()}
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.IsArchived != nil {
		sets = append(sets, "is_archived = ?")
		args = append(args, *u.IsArchived)
	}
	args = append(args, id)

	res, err := db.Exec(`UPDATE chat_sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSessionNotFound
	}
	return db.GetSession(id)
}

// ArchiveSession marks a session archived.
func (db *DB) ArchiveSession(id string) error {
	archived := true
	_, err := db.UpdateSession(id, SessionUpdate{IsArchived: &archived})
	return err
}

// DeleteSession removes a session and, by cascade, its messages.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is before now and
// returns how many were deleted.
func (db *DB) DeleteExpiredSessions(now time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM chat_sessions WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// EnforceSessionLimit keeps at most limit non-archived sessions for a user.
// Older sessions beyond the limit are archived when autoArchive is set and
// deleted otherwise. Returns the number of sessions affected.
func (db *DB) EnforceSessionLimit(userID string, limit int, autoArchive bool) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	var affected int
	err := db.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id FROM chat_sessions
			WHERE user_id = ? AND is_archived = 0
			ORDER BY updated_at DESC, rowid DESC
			LIMIT -1 OFFSET ?`, userID, limit)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		for _, id := range ids {
			if autoArchive {
				_, err = tx.Exec(`UPDATE chat_sessions SET is_archived = 1, updated_at = ? WHERE id = ?`, now, id)
			} else {
				_, err = tx.Exec(`DELETE FROM chat_sessions WHERE id = ?`, id)
			}
			if err != nil {
				return err
			}
		}
		affected = len(ids)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("enforce session limit: %w", err)
	}
	return affected, nil
}

func (db *DB) querySessions(q string, args ...any) ([]Session, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
