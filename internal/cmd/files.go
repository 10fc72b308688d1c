package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgfiles/tgfiles/internal/output"
	"github.com/tgfiles/tgfiles/internal/relay"
)

// cliClientKey is the rate window key used by one-shot commands.
const cliClientKey = "cli"

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List downloadable files recently posted to a channel",
	Long: `List downloadable files recently posted to a channel the bot can see.

The bot's pending updates are polled once, filtered to the channel and resolved
to download URLs. The command does not acknowledge updates, so it can run
alongside the HTTP relay.

Examples:
  tgfiles files
  tgfiles files --channel @mychannel --order asc
  tgfiles files --output-format json --out catalog.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		channel, _ := cmd.Flags().GetString("channel")
		order, _ := cmd.Flags().GetString("order")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := buildRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close() // nolint:errcheck // best-effort cleanup

		result, err := rt.files.FetchFiles(cmd.Context(), relay.FetchRequest{
			ClientKey: cliClientKey,
			Channel:   channel,
			Order:     order,
		})
		if err != nil {
			return describeRelayError(err)
		}

		stem := "files.all-chats"
		if result.Channel != "" {
			stem = "files." + sanitizeFilename(result.Channel)
		}
		outPath, err := resolveOutputPath(cmd, format, stem)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatFiles(&output.Catalog{
			Channel:   result.Channel,
			Files:     result.Files,
			Total:     result.Total,
			Timestamp: result.Timestamp,
			Message:   result.Message(),
		})
		if err != nil {
			return err
		}
		return writeRendered(outPath, rendered)
	},
}

// describeRelayError adds the operator hint to relay errors for terminal use.
func describeRelayError(err error) error {
	var upstream *relay.UpstreamError
	switch {
	case errors.Is(err, relay.ErrConfigMissing):
		return fmt.Errorf("%w: %s", err, relay.ConfigHint)
	case errors.As(err, &upstream) && upstream.Hint != "":
		return fmt.Errorf("%w: %s", err, upstream.Hint)
	default:
		return err
	}
}

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.Flags().String("channel", "", "Channel username or numeric id (default from telegram.default_channel)")
	filesCmd.Flags().String("order", "", "Sort order: desc|newest|asc|oldest")
	filesCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown|yaml")
	filesCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	filesCmd.Flags().String("out-dir", "", "Write output to a directory")
}
