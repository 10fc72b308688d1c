package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/tgfiles/tgfiles/internal/core/store"
	"github.com/tgfiles/tgfiles/internal/output"
)

var (
	rateLimitListOutput string
	rateLimitListAll    bool
	rateLimitListRoute  string
	rateLimitListClient string
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitListOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.WindowQuery{
			All:    rateLimitListAll,
			Route:  strings.TrimSpace(rateLimitListRoute),
			Client: strings.TrimSpace(rateLimitListClient),
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if query.Validate() != nil {
			query.All = true
		}

		db, err := openWindowAdmin(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListWindows(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath, err := resolveOutputPath(cmd, format, "rate-limit.list")
		if err != nil {
			return err
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, string(payload))
			return err
		}

		_, err = fmt.Fprint(sink.writer, ascii.DrawBox(renderWindowLines(entries, time.Now()), 0))
		return err
	},
}

func renderWindowLines(entries []store.WindowEntry, now time.Time) string {
	lines := []string{"Rate Windows", ""}
	if len(entries) == 0 {
		lines = append(lines, "(no stored rate windows)")
		return strings.Join(lines, "\n")
	}

	for _, entry := range entries {
		state := "expired"
		if remaining := entry.WindowStart.Add(entry.Window).Sub(now); remaining > 0 {
			state = "resets in " + remaining.Round(time.Second).String()
		}
		lines = append(lines, fmt.Sprintf("%s %s: count=%d window=%s %s",
			entry.Route, entry.Client, entry.Count, entry.Window, state))
	}
	return strings.Join(lines, "\n")
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitListCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().String("out-dir", "", "Write output to a directory")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List every window")
	rateLimitListCmd.Flags().StringVar(&rateLimitListRoute, "route", "", "Only windows for this route")
	rateLimitListCmd.Flags().StringVar(&rateLimitListClient, "client", "", "Only windows for this client key")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "Only client keys with this prefix")
}
