// internal/storage/settings_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSettingNotFound is returned when no value is stored under a key.
var ErrSettingNotFound = errors.New("setting not found")

// GetSetting returns the value stored under key.
func GetSetting(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ? LIMIT 1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		customLog.Warnf("Storage: Failed to read setting '%s': %v", key, err)
		return "", fmt.Errorf("database error reading setting: %w", err)
	}
	return value, nil
}

// PutSetting inserts or replaces the value stored under key.
func PutSetting(ctx context.Context, db *sql.DB, key, value string) error {
	upsertSQL := `
	INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP;`
	if _, err := db.ExecContext(ctx, upsertSQL, key, value); err != nil {
		customLog.Warnf("Storage: Failed to store setting '%s': %v", key, err)
		return fmt.Errorf("database error storing setting: %w", err)
	}
	return nil
}

// DeleteSetting removes key. Removing an absent key is not an error.
func DeleteSetting(ctx context.Context, db *sql.DB, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		customLog.Warnf("Storage: Failed to delete setting '%s': %v", key, err)
		return fmt.Errorf("database error deleting setting: %w", err)
	}
	return nil
}

// ListSettingKeys returns every stored key in alphabetical order.
func ListSettingKeys(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key FROM settings ORDER BY key`)
	if err != nil {
		customLog.Warnf("Storage: Error listing settings: %v", err)
		return nil, fmt.Errorf("database error listing settings: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed processing settings list: %w", err)
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading settings list: %w", err)
	}
	return keys, nil
}
