package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgfiles/tgfiles/internal/core/store"
	"github.com/tgfiles/tgfiles/internal/output"
)

var (
	rateLimitResetAll    bool
	rateLimitResetRoute  string
	rateLimitResetClient string
	rateLimitResetPrefix string
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
	rateLimitResetOutput string
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored rate windows",
	Long: `Clear stored rate windows so the matching clients start a fresh window.

Examples:
  tgfiles rate-limit reset --client 203.0.113.5
  tgfiles rate-limit reset --route files --prefix 10.0.
  tgfiles rate-limit reset --all --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitResetOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.WindowQuery{
			All:    rateLimitResetAll,
			Route:  strings.TrimSpace(rateLimitResetRoute),
			Client: strings.TrimSpace(rateLimitResetClient),
			Prefix: strings.TrimSpace(rateLimitResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openWindowAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountWindows(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath, err := resolveOutputPath(cmd, format, "rate-limit.reset")
		if err != nil {
			return err
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if rateLimitResetDryRun {
			return writeWindowResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetWindows(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeWindowResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeWindowResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would clear %d rate window(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Cleared %d/%d rate window(s)\n", deleted, matched)
	return err
}

func init() {
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Clear every window")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetRoute, "route", "", "Only windows for this route")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetClient, "client", "", "Only windows for this client key (exact match)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Only client keys with this prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be cleared")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitResetCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitResetCmd.Flags().String("out-dir", "", "Write output to a directory")
}
