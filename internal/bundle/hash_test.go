package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CodePush")
	writeFiles(t, dir, map[string]string{
		"main.jsbundle":          "bytecode",
		"assets/logo.png":        "png",
		".DS_Store":              "junk",
		"assets/.DS_Store":       "junk",
		"__MACOSX/main.jsbundle": "junk",
		".codepushrelease":       "signature",
	})

	manifest, err := Manifest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CodePush/assets/logo.png:" + sha("png"),
		"CodePush/main.jsbundle:" + sha("bytecode"),
	}, manifest)
}

func TestHashDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CodePush")
	writeFiles(t, dir, map[string]string{
		"main.jsbundle":   "bytecode",
		"assets/logo.png": "png",
	})

	hash, err := HashDirectory(context.Background(), dir)
	require.NoError(t, err)

	expected := sha(`["CodePush/assets/logo.png:` + sha("png") + `","CodePush/main.jsbundle:` + sha("bytecode") + `"]`)
	assert.Equal(t, expected, hash)
}

func TestHashDirectory_IgnoredFilesDoNotChangeHash(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CodePush")
	writeFiles(t, dir, map[string]string{"main.jsbundle": "bytecode"})
	ctx := context.Background()

	before, err := HashDirectory(ctx, dir)
	require.NoError(t, err)

	writeFiles(t, dir, map[string]string{".DS_Store": "junk", "__MACOSX/x": "junk"})
	after, err := HashDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	writeFiles(t, dir, map[string]string{"main.jsbundle": "other bytecode"})
	changed, err := HashDirectory(ctx, dir)
	require.NoError(t, err)
	assert.NotEqual(t, before, changed)
}

func TestHashDirectory_Empty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CodePush")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := HashDirectory(context.Background(), dir)
	assert.ErrorIs(t, err, ErrEmptyBundle)

	writeFiles(t, dir, map[string]string{".DS_Store": "junk"})
	_, err = HashDirectory(context.Background(), dir)
	assert.ErrorIs(t, err, ErrEmptyBundle)
}

func TestHashDirectory_MissingDir(t *testing.T) {
	_, err := HashDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIgnored(t *testing.T) {
	assert.True(t, ignored("__MACOSX/a"))
	assert.True(t, ignored("CodePush/__MACOSX/a"))
	assert.True(t, ignored("CodePush/.DS_Store"))
	assert.True(t, ignored(".codepushrelease"))
	assert.False(t, ignored("CodePush/DS_Store"))
	assert.False(t, ignored("CodePush/__MACOSX"))
}
