package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AppendMessage stores m in its session and bumps the session's message
// count and last-message time. A missing ID is generated. It returns the
// session's message count after the insert.
func (db *DB) AppendMessage(m *Message) (int, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}

	var count int
	err := db.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE chat_sessions
			SET message_count = message_count + 1, last_message_at = ?, updated_at = ?
			WHERE id = ?`,
			m.CreatedAt, m.CreatedAt, m.SessionID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrSessionNotFound
		}
		_, err = tx.Exec(`
			INSERT INTO chat_messages (id, session_id, user_id, message_type, content, attachments, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, m.UserID, m.MessageType,
			nullString(m.Content), nullString(m.Attachments), nullString(m.Metadata), m.CreatedAt)
		if err != nil {
			return err
		}
		return tx.QueryRow(`SELECT message_count FROM chat_sessions WHERE id = ?`, m.SessionID).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return count, nil
}

// ListMessages returns a session's messages in the order they were stored.
func (db *DB) ListMessages(sessionID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, session_id, user_id, message_type,
			COALESCE(content, ''), COALESCE(attachments, ''), COALESCE(metadata, ''), created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.MessageType,
			&m.Content, &m.Attachments, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SearchResult is a message matching a search, with its session title.
type SearchResult struct {
	Message      Message
	SessionTitle string
}

// SearchMessages finds a user's messages whose content contains query,
// case-insensitively, newest first. Archived sessions are skipped.
func (db *DB) SearchMessages(userID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := db.Query(`
		SELECT m.id, m.session_id, m.user_id, m.message_type,
			COALESCE(m.content, ''), COALESCE(m.attachments, ''), COALESCE(m.metadata, ''), m.created_at,
			s.title
		FROM chat_messages m
		JOIN chat_sessions s ON s.id = m.session_id
		WHERE s.user_id = ? AND s.is_archived = 0 AND lower(m.content) LIKE ? ESCAPE '\'
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ?`, userID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Message.ID, &r.Message.SessionID, &r.Message.UserID, &r.Message.MessageType,
			&r.Message.Content, &r.Message.Attachments, &r.Message.Metadata, &r.Message.CreatedAt,
			&r.SessionTitle); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
