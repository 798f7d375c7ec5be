package bundle

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"otapush/internal/models"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// fakeRunner stands in for the JS bundler, hermesc and node by writing the
// files each tool would produce.
type fakeRunner struct {
	t     *testing.T
	calls []call
	fail  string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, call{name: name, args: args})
	if name == f.fail {
		return errors.New("exit status 1")
	}

	switch {
	case len(args) > 0 && (args[0] == "bundle" || args[0] == "export:embed"):
		writeFile(f.t, flag(args, "--bundle-output"), "js source")
		writeFile(f.t, flag(args, "--sourcemap-output"), `{"version":3}`)
		writeFile(f.t, filepath.Join(flag(args, "--assets-dest"), "assets", "logo.png"), "png")
	case len(args) > 0 && args[0] == "-emit-binary":
		out := flag(args, "-out")
		writeFile(f.t, out, "hermes bytecode")
		writeFile(f.t, out+".map", `{"version":3}`)
	}
	return nil
}

func flag(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newTestBundler(t *testing.T, runner Runner) *Bundler {
	b := NewBundler(runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.tempDir = t.TempDir()
	return b
}

func testOptions(t *testing.T, platform string) Options {
	root := t.TempDir()
	script := filepath.Join(root, "compose-source-maps.js")
	writeFile(t, script, "")
	return Options{
		Platform:       platform,
		OutputRoot:     filepath.Join(root, "build"),
		EntryFile:      "index.ts",
		BundleDir:      filepath.Join(root, "bundle"),
		ReactNativeCLI: "react-native",
		ExpoCLI:        "expo",
		Hermes: models.HermesConfig{
			Enabled:           true,
			Command:           "hermesc",
			ComposeSourceMaps: script,
		},
	}
}

func TestDefaultBundleName(t *testing.T) {
	assert.Equal(t, "main.jsbundle", DefaultBundleName("ios"))
	assert.Equal(t, "index.android.bundle", DefaultBundleName("android"))
}

func TestBundler_Run(t *testing.T) {
	runner := &fakeRunner{t: t}
	b := newTestBundler(t, runner)
	opts := testOptions(t, "ios")

	// Leftovers from a previous build are removed first.
	writeFile(t, filepath.Join(opts.OutputRoot, "CodePush", "stale.js"), "old")

	res, err := b.Run(context.Background(), opts)
	require.NoError(t, err)

	contents := filepath.Join(opts.OutputRoot, "CodePush")
	jsBundle := filepath.Join(contents, "main.jsbundle")
	sourcemap := filepath.Join(opts.OutputRoot, "main.jsbundle.map")

	require.Len(t, runner.calls, 3)
	assert.Equal(t, call{"react-native", []string{
		"bundle",
		"--assets-dest", contents,
		"--bundle-output", jsBundle,
		"--dev", "false",
		"--entry-file", "index.ts",
		"--platform", "ios",
		"--sourcemap-output", sourcemap,
	}}, runner.calls[0])
	assert.Equal(t, call{"hermesc", []string{
		"-emit-binary", "-out", jsBundle + ".hbc", jsBundle, "-output-source-map", "-w",
	}}, runner.calls[1])
	assert.Equal(t, call{"node", []string{
		opts.Hermes.ComposeSourceMaps, sourcemap, jsBundle + ".hbc.map", "-o", sourcemap,
	}}, runner.calls[2])

	data, err := os.ReadFile(jsBundle)
	require.NoError(t, err)
	assert.Equal(t, "hermes bytecode", string(data))
	assert.NoFileExists(t, jsBundle+".hbc")
	assert.NoFileExists(t, jsBundle+".hbc.map")
	assert.NoFileExists(t, filepath.Join(contents, "stale.js"))

	hash, err := HashDirectory(context.Background(), contents)
	require.NoError(t, err)
	assert.Equal(t, hash, res.PackageHash)
	assert.Equal(t, filepath.Join(opts.BundleDir, hash), res.Path)

	zr, err := zip.OpenReader(res.Path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"CodePush/",
		"CodePush/assets/",
		"CodePush/assets/logo.png",
		"CodePush/main.jsbundle",
	}, names)
}

func TestBundler_RunExpoWithoutHermes(t *testing.T) {
	runner := &fakeRunner{t: t}
	b := newTestBundler(t, runner)
	opts := testOptions(t, "android")
	opts.Framework = "expo"
	opts.Hermes.Enabled = false
	opts.ExtraBundlerOptions = []string{"--minify", "true"}

	_, err := b.Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	args := runner.calls[0].args
	assert.Equal(t, "expo", runner.calls[0].name)
	assert.Equal(t, "export:embed", args[0])
	assert.Equal(t, filepath.Join(opts.OutputRoot, "CodePush", "index.android.bundle"), flag(args, "--bundle-output"))
	assert.Equal(t, []string{"--reset-cache", "--minify", "true"}, args[len(args)-3:])

	data, err := os.ReadFile(filepath.Join(opts.OutputRoot, "CodePush", "index.android.bundle"))
	require.NoError(t, err)
	assert.Equal(t, "js source", string(data))
}

func TestBundler_RunCleansReactTempDirs(t *testing.T) {
	b := newTestBundler(t, &fakeRunner{t: t})
	stale := filepath.Join(b.tempDir, "react-native-packager-cache")
	other := filepath.Join(b.tempDir, "keep-me")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.MkdirAll(other, 0o755))

	_, err := b.Run(context.Background(), testOptions(t, "ios"))
	require.NoError(t, err)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, other)
}

func TestBundler_RunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported platform", func(t *testing.T) {
		runner := &fakeRunner{t: t}
		_, err := newTestBundler(t, runner).Run(ctx, testOptions(t, "windows"))
		assert.ErrorContains(t, err, "unsupported platform")
		assert.Empty(t, runner.calls)
	})

	t.Run("bundler fails", func(t *testing.T) {
		runner := &fakeRunner{t: t, fail: "react-native"}
		_, err := newTestBundler(t, runner).Run(ctx, testOptions(t, "ios"))
		assert.ErrorContains(t, err, "exit status 1")
		assert.Len(t, runner.calls, 1)
	})

	t.Run("hermes fails", func(t *testing.T) {
		runner := &fakeRunner{t: t, fail: "hermesc"}
		opts := testOptions(t, "ios")
		_, err := newTestBundler(t, runner).Run(ctx, opts)
		assert.Error(t, err)
		assert.NoDirExists(t, opts.BundleDir)
	})

	t.Run("missing compose script", func(t *testing.T) {
		opts := testOptions(t, "ios")
		opts.Hermes.ComposeSourceMaps = filepath.Join(t.TempDir(), "missing.js")
		_, err := newTestBundler(t, &fakeRunner{t: t}).Run(ctx, opts)
		assert.ErrorIs(t, err, ErrComposeScriptNotFound)
	})

	t.Run("bundler produced nothing", func(t *testing.T) {
		runner := RunnerFunc(func(context.Context, string, ...string) error { return nil })
		_, err := newTestBundler(t, runner).Run(ctx, testOptions(t, "ios"))
		assert.ErrorContains(t, err, "bundler did not produce")
	})
}

func TestMake(t *testing.T) {
	root := t.TempDir()
	contents := filepath.Join(root, "CodePush")
	writeFile(t, filepath.Join(contents, "main.jsbundle"), "bytecode")

	name, err := Make(context.Background(), contents, filepath.Join(root, "out", "bundles"))
	require.NoError(t, err)

	hash, err := HashDirectory(context.Background(), contents)
	require.NoError(t, err)
	assert.Equal(t, hash, name)
	assert.FileExists(t, filepath.Join(root, "out", "bundles", name))

	entries, err := os.ReadDir(filepath.Join(root, "out", "bundles"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp archives left behind")
}

func TestMake_EmptyContents(t *testing.T) {
	root := t.TempDir()
	contents := filepath.Join(root, "CodePush")
	require.NoError(t, os.MkdirAll(contents, 0o755))

	_, err := Make(context.Background(), contents, filepath.Join(root, "bundle"))
	assert.ErrorIs(t, err, ErrEmptyBundle)
}
