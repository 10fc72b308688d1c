package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/tgfiles/tgfiles/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// Catalog is one rendered file listing.
type Catalog struct {
	Channel   string            `json:"channel,omitempty" yaml:"channel,omitempty"`
	Files     []core.FileRecord `json:"files" yaml:"files"`
	Total     int               `json:"total_files" yaml:"total_files"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Message   string            `json:"message,omitempty" yaml:"message,omitempty"`
}

// Quiz is one rendered quiz document.
type Quiz struct {
	Source    string              `json:"source,omitempty" yaml:"source,omitempty"`
	Questions []core.QuizQuestion `json:"questions" yaml:"questions"`
	Total     int                 `json:"total" yaml:"total"`
}

// Formatter renders catalogs and quizzes.
type Formatter interface {
	FormatFiles(catalog *Catalog) (string, error)
	FormatQuiz(quiz *Quiz) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

// HumanSize renders a byte count with a binary unit.
func HumanSize(size *int64) string {
	if size == nil {
		return "-"
	}
	const unit = 1024
	n := *size
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func optionLine(q core.QuizQuestion) string {
	parts := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		parts = append(parts, opt.Letter+") "+opt.Text)
	}
	return strings.Join(parts, "  ")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
