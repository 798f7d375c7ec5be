package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

func TestPostgresStorageConnectionError(t *testing.T) {
	_, err := NewPostgresStorage(context.Background(), Config{ConnectionString: ""})
	assert.Error(t, err, "expected error for empty connection string")
}

func TestPostgresStorage(t *testing.T) {
	dsn := getPostgresDSN(t)
	testStorageContract(t, func(t *testing.T) Storage {
		s, err := NewPostgresStorage(context.Background(), Config{ConnectionString: dsn})
		require.NoError(t, err)
		_, err = s.pool.Exec(context.Background(), "TRUNCATE release_histories")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
