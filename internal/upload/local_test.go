package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploader_Upload(t *testing.T) {
	src := filepath.Join(t.TempDir(), "abc123")
	require.NoError(t, os.WriteFile(src, []byte("zip bytes"), 0o600))
	root := t.TempDir()

	u, err := NewLocalUploader(root, "http://localhost:8080/static")
	require.NoError(t, err)

	url, err := u.Upload(context.Background(), src, "bundles/ios/prod/abc123")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/static/bundles/ios/prod/abc123", url)

	dest := filepath.Join(root, "bundles", "ios", "prod", "abc123")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestLocalUploader_Overwrite(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()
	u, err := NewLocalUploader(root, "")
	require.NoError(t, err)

	for _, content := range []string{"first", "second"} {
		src := filepath.Join(dir, content)
		require.NoError(t, os.WriteFile(src, []byte(content), 0o600))
		got, err := u.Upload(context.Background(), src, "histories/ios/prod/1.0.0.json")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "histories", "ios", "prod", "1.0.0.json"), got)
	}

	data, err := os.ReadFile(filepath.Join(root, "histories", "ios", "prod", "1.0.0.json"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "histories", "ios", "prod"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalUploader_StaysInsideRoot(t *testing.T) {
	src := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))
	root := t.TempDir()
	u, err := NewLocalUploader(root, "")
	require.NoError(t, err)

	got, err := u.Upload(context.Background(), src, "../../escape")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "escape"), got)
}

func TestLocalUploader_Errors(t *testing.T) {
	_, err := NewLocalUploader("", "")
	assert.Error(t, err)

	u, err := NewLocalUploader(t.TempDir(), "")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), "bundles/x")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = u.Upload(ctx, "whatever", "bundles/x")
	assert.ErrorIs(t, err, context.Canceled)
}
