package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"otapush/internal/models"
	"path/filepath"
	"runtime"
)

// ContentsDirName is the root folder of every bundle archive.
const ContentsDirName = "CodePush"

const frameworkExpo = "expo"

var (
	ErrHermesNotFound        = errors.New("hermes compiler not found, react-native 0.69 or later is required")
	ErrComposeScriptNotFound = errors.New("react-native compose-source-maps.js script not found")
)

// DefaultBundleName returns the JS bundle file name react-native uses on
// platform.
func DefaultBundleName(platform string) string {
	if platform == models.PlatformAndroid {
		return "index.android.bundle"
	}
	return "main.jsbundle"
}

// Options describes one bundle build.
type Options struct {
	Platform            string
	Framework           string
	OutputRoot          string
	EntryFile           string
	BundleName          string
	BundleDir           string
	ReactNativeCLI      string
	ExpoCLI             string
	ExtraBundlerOptions []string
	Hermes              models.HermesConfig
}

// NewOptions builds Options for platform from the bundle configuration.
func NewOptions(cfg models.BundleConfig, platform string) Options {
	return Options{
		Platform:            platform,
		Framework:           cfg.Framework,
		OutputRoot:          cfg.OutputPath,
		EntryFile:           cfg.EntryFile,
		BundleName:          cfg.BundleName,
		BundleDir:           cfg.OutputBundleDir,
		ReactNativeCLI:      cfg.ReactNativeCLI,
		ExpoCLI:             cfg.ExpoCLI,
		ExtraBundlerOptions: cfg.ExtraBundlerOptions,
		Hermes:              cfg.Hermes,
	}
}

func (o *Options) applyDefaults() {
	defaults := models.NewDefaultConfig().Bundle
	if o.OutputRoot == "" {
		o.OutputRoot = defaults.OutputPath
	}
	if o.EntryFile == "" {
		o.EntryFile = defaults.EntryFile
	}
	if o.BundleDir == "" {
		o.BundleDir = defaults.OutputBundleDir
	}
	if o.BundleName == "" {
		o.BundleName = DefaultBundleName(o.Platform)
	}
	if o.ReactNativeCLI == "" {
		o.ReactNativeCLI = defaults.ReactNativeCLI
	}
	if o.ExpoCLI == "" {
		o.ExpoCLI = defaults.ExpoCLI
	}
}

// Result describes a finished bundle.
type Result struct {
	// PackageHash is also the archive's file name.
	PackageHash string
	Path        string
}

// Bundler drives the external tools that produce a bundle.
type Bundler struct {
	runner  Runner
	logger  *slog.Logger
	tempDir string
}

// NewBundler creates a Bundler that runs tools through runner.
func NewBundler(runner Runner, logger *slog.Logger) *Bundler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bundler{runner: runner, logger: logger, tempDir: os.TempDir()}
}

// Run bundles the app and packages the result into opts.BundleDir.
func (b *Bundler) Run(ctx context.Context, opts Options) (*Result, error) {
	if !models.IsSupportedPlatform(opts.Platform) {
		return nil, fmt.Errorf("unsupported platform: %q", opts.Platform)
	}
	if opts.Framework != "" && opts.Framework != frameworkExpo {
		return nil, fmt.Errorf("invalid framework: %s", opts.Framework)
	}
	opts.applyDefaults()

	contents := filepath.Join(opts.OutputRoot, ContentsDirName)
	sourcemap := filepath.Join(opts.OutputRoot, opts.BundleName+".map")
	jsBundle := filepath.Join(contents, opts.BundleName)

	if err := b.prepare(opts.OutputRoot, contents); err != nil {
		return nil, err
	}

	if err := b.runJSBundler(ctx, opts, contents, jsBundle, sourcemap); err != nil {
		return nil, err
	}
	if _, err := os.Stat(jsBundle); err != nil {
		return nil, fmt.Errorf("bundler did not produce %s: %w", jsBundle, err)
	}
	b.logger.InfoContext(ctx, "JS bundling complete", "bundle", jsBundle)

	if opts.Hermes.Enabled {
		if err := b.compileHermes(ctx, opts.Hermes, jsBundle, sourcemap); err != nil {
			return nil, err
		}
		b.logger.InfoContext(ctx, "Hermes compilation complete", "bundle", jsBundle)
	}

	name, err := Make(ctx, contents, opts.BundleDir)
	if err != nil {
		return nil, err
	}

	res := &Result{PackageHash: name, Path: filepath.Join(opts.BundleDir, name)}
	b.logger.InfoContext(ctx, "bundle created", "path", res.Path, "package_hash", res.PackageHash)
	return res, nil
}

func (b *Bundler) prepare(root, contents string) error {
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to clean %s: %w", root, err)
	}

	// Stale metro caches survive between builds otherwise.
	stale, _ := filepath.Glob(filepath.Join(b.tempDir, "react-*"))
	for _, dir := range stale {
		if err := os.RemoveAll(dir); err != nil {
			b.logger.Warn("failed to remove react temp dir", "path", dir, "error", err)
		}
	}

	if err := os.MkdirAll(contents, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", contents, err)
	}
	return nil
}

func (b *Bundler) runJSBundler(ctx context.Context, opts Options, contents, jsBundle, sourcemap string) error {
	args := []string{
		"--assets-dest", contents,
		"--bundle-output", jsBundle,
		"--dev", "false",
		"--entry-file", opts.EntryFile,
		"--platform", opts.Platform,
		"--sourcemap-output", sourcemap,
	}

	if opts.Framework == frameworkExpo {
		args = append([]string{"export:embed"}, args...)
		args = append(args, "--reset-cache")
		args = append(args, opts.ExtraBundlerOptions...)
		return b.runner.Run(ctx, opts.ExpoCLI, args...)
	}

	args = append([]string{"bundle"}, args...)
	args = append(args, opts.ExtraBundlerOptions...)
	return b.runner.Run(ctx, opts.ReactNativeCLI, args...)
}

// compileHermes replaces jsBundle with Hermes bytecode and folds the
// compiler's source map into sourcemap.
func (b *Bundler) compileHermes(ctx context.Context, cfg models.HermesConfig, jsBundle, sourcemap string) error {
	command := cfg.Command
	if command == "" {
		found, err := findHermes()
		if err != nil {
			return err
		}
		command = found
	}

	hbc := jsBundle + ".hbc"
	args := []string{"-emit-binary", "-out", hbc, jsBundle}
	args = append(args, cfg.ExtraFlags...)
	args = append(args, "-output-source-map", "-w")
	if err := b.runner.Run(ctx, command, args...); err != nil {
		return err
	}

	if err := copyFile(hbc, jsBundle); err != nil {
		return fmt.Errorf("failed to replace JS bundle with bytecode: %w", err)
	}
	if err := os.Remove(hbc); err != nil {
		return err
	}

	script := cfg.ComposeSourceMaps
	if script == "" {
		script = filepath.Join("node_modules", "react-native", "scripts", "compose-source-maps.js")
	}
	if !fileExists(script) {
		return fmt.Errorf("%s: %w", script, ErrComposeScriptNotFound)
	}

	hbcMap := hbc + ".map"
	if !fileExists(hbcMap) {
		return fmt.Errorf("sourcemap file %s is not found", hbcMap)
	}
	if err := b.runner.Run(ctx, "node", script, sourcemap, hbcMap, "-o", sourcemap); err != nil {
		return fmt.Errorf("compose-source-maps failed: %w", err)
	}
	// The compiler map would otherwise ship inside the bundle.
	return os.Remove(hbcMap)
}

func findHermes() (string, error) {
	bin, exe := "linux64-bin", "hermesc"
	switch runtime.GOOS {
	case "windows":
		bin, exe = "win64-bin", "hermesc.exe"
	case "darwin":
		bin = "osx-bin"
	}

	candidates := []string{
		// react-native 0.83 moved the compiler into its own package.
		filepath.Join("node_modules", "hermes-compiler", "hermesc", bin, exe),
		filepath.Join("node_modules", "react-native", "sdks", "hermesc", bin, exe),
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
	}
	return "", ErrHermesNotFound
}

// Make hashes contentsDir and zips it into outputDir, named by its package
// hash. It returns the file name.
func Make(ctx context.Context, contentsDir, outputDir string) (string, error) {
	hash, err := HashDirectory(ctx, contentsDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outputDir, err)
	}

	tmp, err := os.CreateTemp(outputDir, ".bundle-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := Zip(contentsDir, tmpName); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, filepath.Join(outputDir, hash)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move archive: %w", err)
	}
	return hash, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
