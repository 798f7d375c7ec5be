package storage

import (
	"context"
	"encoding/json"
	"otapush/internal/models"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteTestStorage(t *testing.T, dbPath string) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(context.Background(), Config{Type: "sqlite", ConnectionString: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		return newSQLiteTestStorage(t, filepath.Join(t.TempDir(), "test.db"))
	})
}

func TestSQLiteStorage_RequiresConnectionString(t *testing.T) {
	_, err := NewSQLiteStorage(context.Background(), Config{Type: "sqlite"})
	assert.Error(t, err)
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()
	key := models.NewHistoryKey("1.0.0", "android", "prod")

	s, err := NewSQLiteStorage(ctx, Config{ConnectionString: dbPath})
	require.NoError(t, err)
	_, err = s.PublishReleaseHistory(ctx, key, models.ReleaseHistory{"1.0.0": {Enabled: true}}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = newSQLiteTestStorage(t, dbPath)
	rec, err := s.FetchReleaseHistory(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Revision)
	assert.True(t, rec.History["1.0.0"].Enabled)
}

func TestSQLiteStorage_StoresBareHistory(t *testing.T) {
	s := newSQLiteTestStorage(t, filepath.Join(t.TempDir(), "format.db"))
	ctx := context.Background()
	key := models.NewHistoryKey("1.0.0", "ios", "prod")
	h := models.ReleaseHistory{
		"1.0.0": {Enabled: true},
		"1.0.1": {Enabled: true, Mandatory: true, DownloadURL: "https://cdn/a", PackageHash: "a"},
	}

	_, err := s.PublishReleaseHistory(ctx, key, h, 0)
	require.NoError(t, err)

	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT history FROM release_histories WHERE platform = ? AND identifier = ? AND binary_version = ?`,
		"ios", "prod", "1.0.0").Scan(&raw))

	var stored models.ReleaseHistory
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, h, stored)
}
