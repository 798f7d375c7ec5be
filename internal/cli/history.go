package cli

import (
	"errors"
	"fmt"
	"io"
	"otapush/internal/history"
	"otapush/internal/models"
	"strings"

	"github.com/spf13/cobra"
)

func newCreateHistoryCommand(a *app) *cobra.Command {
	var binaryVersion, platform, identifier string

	cmd := &cobra.Command{
		Use:   "create-history",
		Short: "Create the release history for a new binary version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			svc, closeStore, err := a.service(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := svc.CreateHistory(ctx, models.NewHistoryKey(binaryVersion, platform, identifier))
			if err != nil {
				return err
			}
			return a.printer(formatText).print(models.NewHistoryResponse(rec), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Created release history %s\n", rec.Key)
				return err
			})
		},
	}
	historyKeyFlags(cmd, &binaryVersion, &platform, &identifier)
	return cmd
}

func newUpdateHistoryCommand(a *app) *cobra.Command {
	var (
		appVersion, binaryVersion, platform, identifier string
		mandatory, enable                               bool
		rollout                                         float64
	)

	cmd := &cobra.Command{
		Use:   "update-history",
		Short: "Change mandatory, enabled or rollout on a published release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var u history.Update
			if cmd.Flags().Changed("mandatory") {
				u.Mandatory = &mandatory
			}
			if cmd.Flags().Changed("enable") {
				u.Enabled = &enable
			}
			r, err := rolloutFlag(cmd, rollout)
			if err != nil {
				return err
			}
			u.Rollout = r
			if u.Empty() {
				return errors.New(noOptionsMessage)
			}

			if err := a.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			svc, closeStore, err := a.service(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := svc.UpdateRelease(ctx, models.NewHistoryKey(binaryVersion, platform, identifier), appVersion, u)
			if err != nil {
				return err
			}
			return a.printer(formatText).print(models.NewHistoryResponse(rec), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Updated v%s in %s (revision %d)\n", appVersion, rec.Key, rec.Revision)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&appVersion, "app-version", "v", "", "release to update (required)")
	historyKeyFlags(cmd, &binaryVersion, &platform, &identifier)
	cmd.Flags().BoolVarP(&mandatory, "mandatory", "m", false, "make the release mandatory")
	cmd.Flags().BoolVarP(&enable, "enable", "e", false, "enable or disable the release")
	cmd.Flags().Float64Var(&rollout, "rollout", 100, "percentage of devices offered the release, 0 to 100")
	cmd.MarkFlagRequired("app-version")
	return cmd
}

func newShowHistoryCommand(a *app) *cobra.Command {
	var binaryVersion, platform, identifier string

	cmd := &cobra.Command{
		Use:   "show-history",
		Short: "Print the release history of a binary version",
		Long: `Print the release history of a binary version. The history is printed as
JSON unless --format selects text or yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			svc, closeStore, err := a.service(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := svc.ShowHistory(ctx, models.NewHistoryKey(binaryVersion, platform, identifier))
			if err != nil {
				return err
			}
			resp := models.NewHistoryResponse(rec)
			return a.printer(formatJSON).print(resp, func(w io.Writer) error {
				return writeHistoryTable(w, resp, svc.Kind())
			})
		},
	}
	historyKeyFlags(cmd, &binaryVersion, &platform, &identifier)
	return cmd
}

func newListHistoriesCommand(a *app) *cobra.Command {
	var platform, identifier string

	cmd := &cobra.Command{
		Use:   "list-histories",
		Short: "List the binary versions that have a release history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			svc, closeStore, err := a.service(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			versions, err := svc.ListHistories(ctx, platform, identifier)
			if err != nil {
				return err
			}
			resp := models.HistoryListResponse{Platform: platform, Identifier: identifier, BinaryVersions: versions}
			if resp.BinaryVersions == nil {
				resp.BinaryVersions = []string{}
			}
			return a.printer(formatText).print(resp, func(w io.Writer) error {
				sorted := sortedVersions(versions, svc.Kind())
				if len(sorted) == 0 {
					return nil
				}
				_, err := io.WriteString(w, strings.Join(sorted, "\n")+"\n")
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", models.PlatformIOS, "ios or android")
	cmd.Flags().StringVarP(&identifier, "identifier", "i", models.DefaultIdentifier, "distribution identifier, e.g. staging or production")
	return cmd
}
