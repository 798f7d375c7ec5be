package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"otapush/internal/bundle"
	"otapush/internal/models"
	"path/filepath"

	"github.com/spf13/cobra"
)

type releaseFlags struct {
	bundle        bundleFlags
	binaryVersion string
	appVersion    string
	identifier    string
	mandatory     bool
	enable        bool
	rollout       float64
	skipBundle    bool
	skipCleanup   bool
}

func newReleaseCommand(a *app) *cobra.Command {
	var flags releaseFlags

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Bundle, upload and publish a new release to a release history",
		Long: `Release bundles the app, uploads the archive and adds it to the release
history of the binary version. The archive is named by its package hash.

With --skip-bundle the archive already in {output-path}/{output-bundle-dir}
is released; that directory must hold exactly one file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rollout, err := rolloutFlag(cmd, flags.rollout)
			if err != nil {
				return err
			}
			if err := a.load(cmd); err != nil {
				return err
			}
			return a.release(cmd.Context(), &flags, rollout)
		},
	}

	flags.bundle.register(cmd, "j")
	cmd.Flags().StringVarP(&flags.binaryVersion, "binary-version", "b", "", "binary version the release targets (required)")
	cmd.Flags().StringVarP(&flags.appVersion, "app-version", "v", "", "version of the new release (required)")
	cmd.Flags().StringVarP(&flags.identifier, "identifier", "i", models.DefaultIdentifier, "distribution identifier, e.g. staging or production")
	cmd.Flags().BoolVarP(&flags.mandatory, "mandatory", "m", false, "force devices to install this release")
	cmd.Flags().BoolVar(&flags.enable, "enable", true, "serve the release as soon as it is published")
	cmd.Flags().Float64Var(&flags.rollout, "rollout", 100, "percentage of devices offered the release, 0 to 100")
	cmd.Flags().BoolVar(&flags.skipBundle, "skip-bundle", false, "release the archive already in the bundle directory")
	cmd.Flags().BoolVar(&flags.skipCleanup, "skip-cleanup", false, "keep the output path after releasing")
	cmd.MarkFlagRequired("binary-version")
	cmd.MarkFlagRequired("app-version")
	return cmd
}

func (a *app) release(ctx context.Context, flags *releaseFlags, rollout *float64) error {
	key := models.NewHistoryKey(flags.binaryVersion, flags.bundle.platform, flags.identifier)

	svc, closeStore, err := a.service(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	// Fail before bundling when the release could never be published.
	current, err := svc.ShowHistory(ctx, key)
	if err != nil {
		return err
	}
	if _, ok := current.History[flags.appVersion]; ok {
		return fmt.Errorf("v%s is already released", flags.appVersion)
	}

	opts := flags.bundle.options(a.cfg.Bundle)
	var archive string
	if flags.skipBundle {
		archive, err = singleFile(opts.BundleDir)
	} else {
		var res *bundle.Result
		res, err = bundle.NewBundler(a.runner(), a.logger).Run(ctx, opts)
		if res != nil {
			archive = res.Path
		}
	}
	if err != nil {
		return err
	}
	packageHash := filepath.Base(archive)

	up, closeUploader, err := a.uploader(ctx)
	if err != nil {
		return err
	}
	defer closeUploader()

	downloadURL, err := up.Upload(ctx, archive, key.BundlePath(packageHash))
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "bundle uploaded", "download_url", downloadURL, "package_hash", packageHash)

	rec, err := svc.Release(ctx, key, flags.appVersion, models.ReleaseInfo{
		Enabled:     flags.enable,
		Mandatory:   flags.mandatory,
		DownloadURL: downloadURL,
		PackageHash: packageHash,
		Rollout:     rollout,
	})
	if err != nil {
		return err
	}

	if !flags.skipCleanup {
		if err := os.RemoveAll(opts.OutputRoot); err != nil {
			a.logger.WarnContext(ctx, "failed to clean up output path", "path", opts.OutputRoot, "error", err)
		}
	}

	return a.printer(formatText).print(models.NewHistoryResponse(rec), func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Released v%s to %s (revision %d)\n", flags.appVersion, rec.Key, rec.Revision)
		return err
	})
}

// singleFile returns the only entry of dir, which must be a regular file.
func singleFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read bundle directory: %w", err)
	}
	if len(entries) != 1 || !entries[0].Type().IsRegular() {
		return "", errors.New(singleFileMessage)
	}
	return filepath.Join(dir, entries[0].Name()), nil
}
