package cli

import (
	"io"
	"otapush/internal/bundle"
	"otapush/internal/models"
	"path/filepath"

	"github.com/spf13/cobra"
)

// bundleFlags are shared by bundle and release. Empty values fall back to the
// bundle section of the config.
type bundleFlags struct {
	framework       string
	platform        string
	outputPath      string
	entryFile       string
	bundleName      string
	outputBundleDir string
}

func (f *bundleFlags) register(cmd *cobra.Command, bundleNameShorthand string) {
	cmd.Flags().StringVarP(&f.framework, "framework", "f", "", "framework used to bundle; only expo is recognized")
	cmd.Flags().StringVarP(&f.platform, "platform", "p", models.PlatformIOS, "ios or android")
	cmd.Flags().StringVarP(&f.outputPath, "output-path", "o", "", "build output root (default from config: build)")
	cmd.Flags().StringVarP(&f.entryFile, "entry-file", "e", "", "entry file of the app (default from config: index.ts)")
	cmd.Flags().StringVarP(&f.bundleName, "bundle-name", bundleNameShorthand, "", "JS bundle file name (default main.jsbundle or index.android.bundle)")
	cmd.Flags().StringVar(&f.outputBundleDir, "output-bundle-dir", "", "directory under the output path that receives the archive (default from config: bundle)")
}

func (f *bundleFlags) config(base models.BundleConfig) models.BundleConfig {
	cfg := base
	if f.framework != "" {
		cfg.Framework = f.framework
	}
	if f.outputPath != "" {
		cfg.OutputPath = f.outputPath
	}
	if f.entryFile != "" {
		cfg.EntryFile = f.entryFile
	}
	if f.bundleName != "" {
		cfg.BundleName = f.bundleName
	}
	if f.outputBundleDir != "" {
		cfg.OutputBundleDir = f.outputBundleDir
	}
	return cfg
}

// options resolves the bundle build. The archive lands in
// {output-path}/{output-bundle-dir}.
func (f *bundleFlags) options(base models.BundleConfig) bundle.Options {
	cfg := f.config(base)
	opts := bundle.NewOptions(cfg, f.platform)
	opts.BundleDir = filepath.Join(cfg.OutputPath, cfg.OutputBundleDir)
	return opts
}

type bundleResult struct {
	PackageHash string `json:"package_hash" yaml:"package_hash"`
	Path        string `json:"path" yaml:"path"`
}

func newBundleCommand(a *app) *cobra.Command {
	var flags bundleFlags

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Bundle the JS app and package it as an update archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			res, err := bundle.NewBundler(a.runner(), a.logger).Run(ctx, flags.options(a.cfg.Bundle))
			if err != nil {
				return err
			}

			out := bundleResult{PackageHash: res.PackageHash, Path: res.Path}
			return a.printer(formatText).print(out, func(w io.Writer) error {
				_, err := io.WriteString(w, res.Path+"\n")
				return err
			})
		},
	}
	flags.register(cmd, "b")
	return cmd
}
