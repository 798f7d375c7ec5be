package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type uploadResult struct {
	DownloadURL string `json:"download_url" yaml:"download_url"`
}

func newUploadCommand(a *app) *cobra.Command {
	var source, target string
	var preserve bool

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a file to the configured bundle store and print its URL",
		Long: `Upload copies a local file to the configured bundle store under the target
path and prints the URL it can be downloaded from. The source file is removed
afterwards unless --preserve-file is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			up, closeUploader, err := a.uploader(ctx)
			if err != nil {
				return err
			}
			defer closeUploader()

			url, err := up.Upload(ctx, source, target)
			if err != nil {
				return err
			}
			if !preserve {
				if err := os.Remove(source); err != nil {
					return fmt.Errorf("uploaded to %s but failed to remove %s: %w", url, source, err)
				}
			}

			return a.printer(formatText).print(uploadResult{DownloadURL: url}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, url)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source-file-path", "s", "", "local file to upload (required)")
	cmd.Flags().StringVarP(&target, "target", "t", "", "remote path, e.g. bundles/ios/staging/<hash> (required)")
	cmd.Flags().BoolVarP(&preserve, "preserve-file", "p", false, "keep the source file after uploading")
	cmd.MarkFlagRequired("source-file-path")
	cmd.MarkFlagRequired("target")
	return cmd
}
