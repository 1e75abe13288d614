package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/odkx-manager/config"
)

func setupTestDB(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		CredentialsDbDir:  filepath.Join(t.TempDir(), "nested"),
		CredentialsDbFile: "credentials.db",
	}
	db, err := ConnectCredentialsDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, cfg
}

func TestConnectCredentialsDBCreatesFile(t *testing.T) {
	_, cfg := setupTestDB(t)

	_, err := os.Stat(filepath.Join(cfg.CredentialsDbDir, cfg.CredentialsDbFile))
	assert.NoError(t, err)
}

func TestSettingsCRUD(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := GetSetting(ctx, db, "odkServerUrl")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	require.NoError(t, PutSetting(ctx, db, "odkServerUrl", "https://odk.example.org"))
	require.NoError(t, PutSetting(ctx, db, "fetchLimit", "100"))
	require.NoError(t, PutSetting(ctx, db, "fetchLimit", "200"))

	value, err := GetSetting(ctx, db, "fetchLimit")
	require.NoError(t, err)
	assert.Equal(t, "200", value)

	keys, err := ListSettingKeys(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetchLimit", "odkServerUrl"}, keys)

	require.NoError(t, DeleteSetting(ctx, db, "fetchLimit"))
	require.NoError(t, DeleteSetting(ctx, db, "fetchLimit"), "deleting twice is fine")
	_, err = GetSetting(ctx, db, "fetchLimit")
	assert.ErrorIs(t, err, ErrSettingNotFound)
}

func TestSettingsSurviveReopen(t *testing.T) {
	db, cfg := setupTestDB(t)
	require.NoError(t, PutSetting(context.Background(), db, "odkToken", "sealed"))
	require.NoError(t, db.Close())

	reopened, err := ConnectCredentialsDB(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := GetSetting(context.Background(), reopened, "odkToken")
	require.NoError(t, err)
	assert.Equal(t, "sealed", value)
}
