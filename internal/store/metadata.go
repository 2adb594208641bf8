package store

import (
	"database/sql"
	"strconv"
)

const keyGroupsEnabled = "student_groups_enabled"

// SetSetting upserts a key-value pair in the settings table.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetSetting returns the value for a settings key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetGroupsEnabled toggles whether group names appear in exports.
func (s *Store) SetGroupsEnabled(enabled bool) error {
	return s.SetSetting(keyGroupsEnabled, strconv.FormatBool(enabled))
}

// GroupsEnabled defaults to true when the setting was never written.
func (s *Store) GroupsEnabled() (bool, error) {
	v, err := s.GetSetting(keyGroupsEnabled)
	if err != nil || v == "" {
		return true, err
	}
	return strconv.ParseBool(v)
}
