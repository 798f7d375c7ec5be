package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"otapush/internal/models"
	"otapush/internal/versioning"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type printer struct {
	format string
	w      io.Writer
}

// print writes v as JSON or YAML, or calls text for the human format.
func (p printer) print(v any, text func(w io.Writer) error) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(p.w)
	}
}

// writeHistoryTable prints one row per release, newest first.
func writeHistoryTable(w io.Writer, resp *models.HistoryResponse, kind versioning.Kind) error {
	fmt.Fprintf(w, "%s/%s/%s (revision %d)\n", resp.Platform, resp.Identifier, resp.BinaryVersion, resp.Revision)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tENABLED\tMANDATORY\tROLLOUT\tPACKAGE HASH")
	for _, v := range sortedVersions(resp.History.Versions(), kind) {
		info := resp.History[v]
		hash := info.PackageHash
		if hash == "" {
			hash = "-"
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%s%%\t%s\n", v, info.Enabled, info.Mandatory,
			strconv.FormatFloat(info.RolloutPercent(), 'f', -1, 64), hash)
	}
	return tw.Flush()
}

// sortedVersions orders versions newest first under kind. Keys the strategy
// cannot parse sort last, lexically.
func sortedVersions(versions []string, kind versioning.Kind) []string {
	versions = slices.Clone(versions)
	strategy, err := versioning.StrategyFor(kind)
	if err != nil {
		slices.Sort(versions)
		return versions
	}

	slices.SortFunc(versions, func(a, b string) int {
		aErr, bErr := strategy.Validate(a), strategy.Validate(b)
		switch {
		case aErr == nil && bErr == nil:
			return strategy.Compare(b, a)
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	return versions
}
