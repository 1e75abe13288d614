// internal/storage/database.go
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Driver registration

	"github.com/Annany2002/odkx-manager/config"
	"github.com/Annany2002/odkx-manager/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// ConnectCredentialsDB opens the local SQLite database that persists remembered server
// credentials and client settings, and ensures the 'settings' table exists.
func ConnectCredentialsDB(cfg *config.Config) (*sql.DB, error) {
	dbPath := filepath.Join(cfg.CredentialsDbDir, cfg.CredentialsDbFile)
	customLog.Debugf("Storage: Initializing credentials database: %s", dbPath)

	if err := os.MkdirAll(cfg.CredentialsDbDir, 0o750); err != nil {
		customLog.Warnf("Storage: Error creating data directory '%s': %v", cfg.CredentialsDbDir, err)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// WAL and a busy timeout so that concurrent CLI invocations do not fail on a locked file
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		customLog.Warnf("Storage: Failed to open credentials db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to open credentials db: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping credentials db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to connect to credentials db: %w", err)
	}

	createSettingsTableSQL := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err = db.Exec(createSettingsTableSQL); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to create settings table: %v", err)
		return nil, fmt.Errorf("failed to ensure settings table: %w", err)
	}
	customLog.Debug("Storage: Settings table ensured.")

	// a single writer is plenty for a handful of keys
	db.SetMaxOpenConns(1)

	return db, nil
}
