// Package credentials stores the remote server URL and basic auth token, either for the
// current session only or persistently when the user asks to be remembered.
package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/Annany2002/odkx-manager/internal/auth"
	"github.com/Annany2002/odkx-manager/internal/logger"
	"github.com/Annany2002/odkx-manager/internal/storage"
)

var customLog = logger.NewLogger()

// Keys under which the vault stores its values.
const (
	KeyServerURL  = "odkServerUrl"
	KeyToken      = "odkToken"
	KeyFetchLimit = "fetchLimit"
)

// Store is a string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryStore keeps values for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// SQLiteStore persists values in the settings table. When a sealer is set, the token is
// encrypted at rest.
type SQLiteStore struct {
	db     *sql.DB
	sealer *auth.Sealer
}

// NewSQLiteStore wraps an open credentials database. sealer may be nil.
func NewSQLiteStore(db *sql.DB, sealer *auth.Sealer) *SQLiteStore {
	return &SQLiteStore{db: db, sealer: sealer}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := storage.GetSetting(ctx, s.db, key)
	if errors.Is(err, storage.ErrSettingNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if key == KeyToken && s.sealer != nil {
		value, err = s.sealer.Open(value)
		if err != nil {
			return "", false, fmt.Errorf("failed to unseal stored token: %w", err)
		}
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if key == KeyToken && s.sealer != nil {
		sealed, err := s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("failed to seal token: %w", err)
		}
		value = sealed
	}
	return storage.PutSetting(ctx, s.db, key, value)
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	return storage.DeleteSetting(ctx, s.db, key)
}
