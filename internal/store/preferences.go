package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetPreferences returns a user's preferences, or nil if none are stored.
func (db *DB) GetPreferences(userID string) (*Preferences, error) {
	var p Preferences
	err := db.QueryRow(`
		SELECT user_id, retention_days, max_sessions, auto_archive, data_sharing_consent, updated_at
		FROM user_chat_preferences WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.RetentionDays, &p.MaxSessions, &p.AutoArchive, &p.DataSharingConsent, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPreferences applies u on top of the stored preferences (or the
// defaults when none exist) and returns the result.
func (db *DB) UpsertPreferences(userID string, u PreferencesUpdate) (*Preferences, error) {
	current, err := db.GetPreferences(userID)
	if err != nil {
		return nil, err
	}
	p := Preferences{
		UserID:        userID,
		RetentionDays: DefaultRetentionDays,
		MaxSessions:   DefaultMaxSessions,
		AutoArchive:   true,
	}
	if current != nil {
		p = *current
	}
	if u.RetentionDays != nil {
		p.RetentionDays = *u.RetentionDays
	}
	if u.MaxSessions != nil {
		p.MaxSessions = *u.MaxSessions
	}
	if u.AutoArchive != nil {
		p.AutoArchive = *u.AutoArchive
	}
	if u.DataSharingConsent != nil {
		p.DataSharingConsent = *u.DataSharingConsent
	}
	if !ValidRetention(p.RetentionDays) {
		return nil, ErrInvalidRetention
	}
	if p.MaxSessions < 1 {
		return nil, fmt.Errorf("max sessions must be positive, got %d", p.MaxSessions)
	}
	p.UpdatedAt = time.Now().UnixMilli()

	_, err = db.Exec(`
		INSERT INTO user_chat_preferences (user_id, retention_days, max_sessions, auto_archive, data_sharing_consent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			retention_days = excluded.retention_days,
			max_sessions = excluded.max_sessions,
			auto_archive = excluded.auto_archive,
			data_sharing_consent = excluded.data_sharing_consent,
			updated_at = excluded.updated_at`,
		p.UserID, p.RetentionDays, p.MaxSessions, p.AutoArchive, p.DataSharingConsent, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert preferences: %w", err)
	}
	return &p, nil
}
