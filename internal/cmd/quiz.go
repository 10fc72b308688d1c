package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgfiles/tgfiles/internal/output"
	"github.com/tgfiles/tgfiles/internal/relay"
)

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Parse plain-text quiz documents",
}

var quizParseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Parse a quiz from a local file, stdin, or a Telegram file reference",
	Long: `Parse a quiz written as Q:/A:-D:/ANS:/EXPLANATION: lines.

A local file or stdin needs no bot token. --ref downloads the document through
the bot first.

Examples:
  tgfiles quiz parse questions.txt
  cat questions.txt | tgfiles quiz parse -
  tgfiles quiz parse --ref BQACAgQAAxkBAAI --output-format markdown`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		ref, _ := cmd.Flags().GetString("ref")
		ref = strings.TrimSpace(ref)

		if ref == "" && len(args) == 0 {
			return fmt.Errorf("provide a file, - for stdin, or --ref")
		}
		if ref != "" && len(args) > 0 {
			return fmt.Errorf("--ref and a file argument are mutually exclusive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := buildRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close() // nolint:errcheck // best-effort cleanup

		var (
			result *relay.QuizResult
			source string
		)
		if ref != "" {
			source = ref
			result, err = rt.quiz.ParseFile(cmd.Context(), relay.QuizRequest{ClientKey: cliClientKey, FileRef: ref})
		} else {
			source = args[0]
			var text string
			text, err = readQuizInput(cmd.InOrStdin(), source, cfg.Quiz.MaxBytes)
			if err == nil {
				result, err = rt.quiz.ParseText(cmd.Context(), cliClientKey, text)
			}
		}
		if err != nil {
			return describeRelayError(err)
		}

		outPath, err := resolveOutputPath(cmd, format, "quiz."+sanitizeFilename(filepath.Base(source)))
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatQuiz(&output.Quiz{
			Source:    source,
			Questions: result.Questions,
			Total:     result.Total,
		})
		if err != nil {
			return err
		}
		return writeRendered(outPath, rendered)
	},
}

// readQuizInput reads at most one byte past the cap so the service can
// report the document as too large.
func readQuizInput(stdin io.Reader, path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = relay.DefaultQuizMaxBytes
	}

	reader := stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer file.Close() // nolint:errcheck // read-only
		reader = file
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read quiz input: %w", err)
	}
	return string(data), nil
}

func init() {
	quizCmd.AddCommand(quizParseCmd)
	rootCmd.AddCommand(quizCmd)

	quizParseCmd.Flags().String("ref", "", "Telegram file reference to download and parse")
	quizParseCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown|yaml")
	quizParseCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	quizParseCmd.Flags().String("out-dir", "", "Write output to a directory")
}
