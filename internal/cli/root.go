// Package cli implements the otapush command tree: bundling, uploading and
// publishing releases to a release history.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"otapush/internal/bundle"
	"otapush/internal/config"
	"otapush/internal/history"
	"otapush/internal/logger"
	"otapush/internal/models"
	"otapush/internal/storage"
	"otapush/internal/update"
	"otapush/internal/upload"
	"otapush/internal/version"
	"otapush/internal/versioning"

	"github.com/spf13/cobra"
)

// DefaultConfigPath is read when --config is not given. A missing default
// file is not an error.
const DefaultConfigPath = "otapush.yaml"

// Operator-facing messages. Release scripts match on this exact text.
const (
	rolloutMessage    = "Rollout percentage number must be between 0 and 100 (inclusive)."
	noOptionsMessage  = "No options specified."
	singleFileMessage = "The bundlePath must contain only one file."
)

// Options replaces collaborators the commands would otherwise build from the
// loaded configuration. Zero fields use the configured implementation.
type Options struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Runner   bundle.Runner
	Storage  storage.Storage
	Uploader upload.Uploader
}

type app struct {
	opts       Options
	configPath string
	format     string

	cfg    *models.Config
	logger *slog.Logger
}

// NewRootCommand builds the otapush command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "otapush",
		Short:         "Bundle, upload and publish over-the-air updates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.format {
			case "", formatText, formatJSON, formatYAML:
				return nil
			default:
				return fmt.Errorf("unsupported output format %q (want text, json or yaml)", a.format)
			}
		},
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", DefaultConfigPath, "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&a.format, "format", "", "output format: text, json or yaml")

	root.AddCommand(
		newBundleCommand(a),
		newReleaseCommand(a),
		newCreateHistoryCommand(a),
		newUpdateHistoryCommand(a),
		newShowHistoryCommand(a),
		newListHistoriesCommand(a),
		newUploadCommand(a),
		newInitCommand(a),
		newVersionCommand(a),
	)
	return root
}

// load reads the configuration once per invocation and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	if a.cfg != nil {
		return nil
	}

	path := a.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	l, err := logger.New(a.opts.Stderr, cfg.Logging, version.GetInfo())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = l.With("command", cmd.Name())
	return nil
}

// service opens the configured storage and wraps it in an update service.
// The returned func releases the storage.
func (a *app) service(ctx context.Context) (*update.Service, func(), error) {
	kind := versioning.Kind(a.cfg.Versioning.Strategy)
	if a.opts.Storage != nil {
		return update.NewService(a.opts.Storage, kind, update.WithLogger(a.logger)), func() {}, nil
	}

	store, err := storage.NewFactory(a.logger).Create(ctx, a.cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	release := func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("failed to close storage", "error", err)
		}
	}
	return update.NewService(store, kind, update.WithLogger(a.logger)), release, nil
}

// uploader returns the configured uploader and a func that releases it.
func (a *app) uploader(ctx context.Context) (upload.Uploader, func(), error) {
	if a.opts.Uploader != nil {
		return a.opts.Uploader, func() {}, nil
	}

	u, err := upload.New(ctx, a.cfg.Upload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create uploader: %w", err)
	}
	release := func() {}
	if c, ok := u.(io.Closer); ok {
		release = func() {
			if err := c.Close(); err != nil {
				a.logger.Warn("failed to close uploader", "error", err)
			}
		}
	}
	return u, release, nil
}

func (a *app) runner() bundle.Runner {
	if a.opts.Runner != nil {
		return a.opts.Runner
	}
	return bundle.ExecRunner{Stdout: a.opts.Stderr, Stderr: a.opts.Stderr, Logger: a.logger}
}

func (a *app) printer(fallback string) printer {
	format := a.format
	if format == "" {
		format = fallback
	}
	return printer{format: format, w: a.opts.Stdout}
}

// rolloutFlag returns the --rollout value when it was given, after checking
// its range.
func rolloutFlag(cmd *cobra.Command, value float64) (*float64, error) {
	if !cmd.Flags().Changed("rollout") {
		return nil, nil
	}
	if err := history.ValidateRollout(&value); err != nil {
		return nil, errors.New(rolloutMessage)
	}
	return &value, nil
}

func historyKeyFlags(cmd *cobra.Command, binaryVersion, platform, identifier *string) {
	cmd.Flags().StringVarP(binaryVersion, "binary-version", "b", "", "binary version the history belongs to (required)")
	cmd.Flags().StringVarP(platform, "platform", "p", models.PlatformIOS, "ios or android")
	cmd.Flags().StringVarP(identifier, "identifier", "i", models.DefaultIdentifier, "distribution identifier, e.g. staging or production")
	cmd.MarkFlagRequired("binary-version")
}
